package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/quickkash/api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// --- mocks ---

type mockUserStore struct{ mock.Mock }

func (m *mockUserStore) Create(ctx context.Context, u *domain.User) error {
	return m.Called(ctx, u).Error(0)
}
func (m *mockUserStore) Get(ctx context.Context, userID string) (*domain.User, error) {
	args := m.Called(ctx, userID)
	if u, _ := args.Get(0).(*domain.User); u != nil {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockUserStore) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	args := m.Called(ctx, email)
	if u, _ := args.Get(0).(*domain.User); u != nil {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockUserStore) Update(ctx context.Context, userID string, updates map[string]interface{}) error {
	return m.Called(ctx, userID, updates).Error(0)
}

type mockOTPStore struct{ mock.Mock }

func (m *mockOTPStore) Issue(ctx context.Context, identifier string) (string, error) {
	args := m.Called(ctx, identifier)
	return args.String(0), args.Error(1)
}
func (m *mockOTPStore) Validate(ctx context.Context, identifier, code string) (bool, error) {
	args := m.Called(ctx, identifier, code)
	return args.Bool(0), args.Error(1)
}

type mockMailer struct{ mock.Mock }

func (m *mockMailer) SendEmail(to, subject, htmlBody string) error {
	return m.Called(to, subject, htmlBody).Error(0)
}

type mockSMSSender struct{ mock.Mock }

func (m *mockSMSSender) SendSMS(ctx context.Context, to, message string) error {
	return m.Called(ctx, to, message).Error(0)
}

type mockSigner struct{ mock.Mock }

func (m *mockSigner) Sign(userID string) (string, error) {
	args := m.Called(userID)
	return args.String(0), args.Error(1)
}

// --- builder ---

func newService(us *mockUserStore, os *mockOTPStore, ml *mockMailer, sms *mockSMSSender, sg *mockSigner) Service {
	return NewService(ServiceDeps{
		UserRepo:  us,
		OTPStore:  os,
		Mailer:    ml,
		SMSSender: sms,
		Signer:    sg,
	})
}

func hashOf(t *testing.T, password string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	require.NoError(t, err)
	return string(h)
}

func registerReq() domain.RegisterRequest {
	return domain.RegisterRequest{
		Name:     "Ann",
		Phone:    "555-0100",
		Email:    "ann@x.com",
		Password: "pw123",
	}
}

// --- Register ---

func TestRegister_DuplicateEmail(t *testing.T) {
	us := &mockUserStore{}
	us.On("GetByEmail", mock.Anything, "ann@x.com").Return(&domain.User{UserID: "u1"}, nil)

	svc := newService(us, nil, nil, nil, nil)
	err := svc.Register(context.Background(), registerReq())

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrConflict))
	us.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestRegister_HappyPath(t *testing.T) {
	us := &mockUserStore{}
	os := &mockOTPStore{}
	ml := &mockMailer{}

	var created *domain.User
	us.On("GetByEmail", mock.Anything, "ann@x.com").Return(nil, domain.ErrNotFound)
	us.On("Create", mock.Anything, mock.AnythingOfType("*domain.User")).Run(func(args mock.Arguments) {
		created = args.Get(1).(*domain.User)
	}).Return(nil)
	os.On("Issue", mock.Anything, "ann@x.com").Return("654321", nil)
	ml.On("SendEmail", "ann@x.com", mock.Anything, mock.AnythingOfType("string")).Return(nil)

	ref := "abc123"
	req := registerReq()
	req.ReferralCode = &ref
	svc := newService(us, os, ml, nil, nil)
	err := svc.Register(context.Background(), req)

	require.NoError(t, err)
	require.NotNil(t, created)
	assert.False(t, created.IsActivated, "new accounts start unverified")
	assert.NotEqual(t, "pw123", created.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(created.PasswordHash), []byte("pw123")))
	assert.Len(t, created.ReferralCode, 6)
	require.NotNil(t, created.ReferredBy)
	assert.Equal(t, "abc123", *created.ReferredBy)
	assert.NotEmpty(t, created.UserID)
	us.AssertExpectations(t)
	os.AssertExpectations(t)
	ml.AssertExpectations(t)
}

func TestRegister_OTPEmailContainsCode(t *testing.T) {
	us := &mockUserStore{}
	os := &mockOTPStore{}
	ml := &mockMailer{}

	us.On("GetByEmail", mock.Anything, "ann@x.com").Return(nil, domain.ErrNotFound)
	us.On("Create", mock.Anything, mock.Anything).Return(nil)
	os.On("Issue", mock.Anything, "ann@x.com").Return("654321", nil)

	var sentBody string
	ml.On("SendEmail", "ann@x.com", "Verify your email", mock.AnythingOfType("string")).Run(func(args mock.Arguments) {
		sentBody = args.String(2)
	}).Return(nil)

	svc := newService(us, os, ml, nil, nil)
	require.NoError(t, svc.Register(context.Background(), registerReq()))
	assert.Contains(t, sentBody, "654321")
}

func TestRegister_MailFailure_AccountStaysPending(t *testing.T) {
	us := &mockUserStore{}
	os := &mockOTPStore{}
	ml := &mockMailer{}

	us.On("GetByEmail", mock.Anything, "ann@x.com").Return(nil, domain.ErrNotFound)
	us.On("Create", mock.Anything, mock.Anything).Return(nil)
	os.On("Issue", mock.Anything, "ann@x.com").Return("654321", nil)
	ml.On("SendEmail", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("smtp down"))

	svc := newService(us, os, ml, nil, nil)
	err := svc.Register(context.Background(), registerReq())

	// The error surfaces, but the account write already happened — no rollback.
	require.Error(t, err)
	us.AssertCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestRegister_RepoConflict_Propagates(t *testing.T) {
	us := &mockUserStore{}
	us.On("GetByEmail", mock.Anything, "ann@x.com").Return(nil, domain.ErrNotFound)
	us.On("Create", mock.Anything, mock.Anything).Return(domain.ErrConflict)

	svc := newService(us, nil, nil, nil, nil)
	err := svc.Register(context.Background(), registerReq())

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrConflict))
}

// --- Login ---

func TestLogin_UserNotFound(t *testing.T) {
	us := &mockUserStore{}
	us.On("GetByEmail", mock.Anything, "nobody@x.com").Return(nil, domain.ErrNotFound)

	svc := newService(us, nil, nil, nil, nil)
	_, _, err := svc.Login(context.Background(), domain.LoginRequest{Email: "nobody@x.com", Password: "pw123"})

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestLogin_WrongPassword(t *testing.T) {
	us := &mockUserStore{}
	us.On("GetByEmail", mock.Anything, "ann@x.com").Return(&domain.User{
		UserID: "u1", PasswordHash: hashOf(t, "pw123"), IsActivated: true,
	}, nil)

	svc := newService(us, nil, nil, nil, nil)
	_, _, err := svc.Login(context.Background(), domain.LoginRequest{Email: "ann@x.com", Password: "wrong"})

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrUnauthorized))
}

func TestLogin_MalformedHash_FailsClosed(t *testing.T) {
	us := &mockUserStore{}
	us.On("GetByEmail", mock.Anything, "ann@x.com").Return(&domain.User{
		UserID: "u1", PasswordHash: "not-a-bcrypt-hash", IsActivated: true,
	}, nil)

	svc := newService(us, nil, nil, nil, nil)
	_, _, err := svc.Login(context.Background(), domain.LoginRequest{Email: "ann@x.com", Password: "pw123"})

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrUnauthorized))
}

func TestLogin_NotVerified(t *testing.T) {
	us := &mockUserStore{}
	us.On("GetByEmail", mock.Anything, "ann@x.com").Return(&domain.User{
		UserID: "u1", PasswordHash: hashOf(t, "pw123"), IsActivated: false,
	}, nil)

	svc := newService(us, nil, nil, nil, nil)
	_, _, err := svc.Login(context.Background(), domain.LoginRequest{Email: "ann@x.com", Password: "pw123"})

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrForbidden))
}

func TestLogin_HappyPath(t *testing.T) {
	us := &mockUserStore{}
	sg := &mockSigner{}
	u := &domain.User{
		UserID: "u1", Name: "Ann", Email: "ann@x.com",
		PasswordHash: hashOf(t, "pw123"), IsActivated: true, ReferralCode: "abc123",
	}
	us.On("GetByEmail", mock.Anything, "ann@x.com").Return(u, nil)
	sg.On("Sign", "u1").Return("bearer-token", nil)

	svc := newService(us, nil, nil, nil, sg)
	token, got, err := svc.Login(context.Background(), domain.LoginRequest{Email: "ann@x.com", Password: "pw123"})

	require.NoError(t, err)
	assert.Equal(t, "bearer-token", token)
	assert.Equal(t, "u1", got.UserID)
	sg.AssertExpectations(t)
}

// --- VerifyEmail ---

func TestVerifyEmail_InvalidOTP(t *testing.T) {
	us := &mockUserStore{}
	os := &mockOTPStore{}
	os.On("Validate", mock.Anything, "ann@x.com", "000000").Return(false, nil)

	svc := newService(us, os, nil, nil, nil)
	err := svc.VerifyEmail(context.Background(), "ann@x.com", "000000")

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrBadRequest))
	us.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
}

func TestVerifyEmail_HappyPath(t *testing.T) {
	us := &mockUserStore{}
	os := &mockOTPStore{}
	os.On("Validate", mock.Anything, "ann@x.com", "654321").Return(true, nil)
	us.On("GetByEmail", mock.Anything, "ann@x.com").Return(&domain.User{UserID: "u1"}, nil)
	us.On("Update", mock.Anything, "u1", map[string]interface{}{fieldIsActivated: true}).Return(nil)

	svc := newService(us, os, nil, nil, nil)
	require.NoError(t, svc.VerifyEmail(context.Background(), "ann@x.com", "654321"))
	us.AssertExpectations(t)
}

func TestVerifyEmail_AlreadyActive_IsIdempotent(t *testing.T) {
	us := &mockUserStore{}
	os := &mockOTPStore{}
	os.On("Validate", mock.Anything, "ann@x.com", "654321").Return(true, nil)
	us.On("GetByEmail", mock.Anything, "ann@x.com").Return(&domain.User{UserID: "u1", IsActivated: true}, nil)
	us.On("Update", mock.Anything, "u1", map[string]interface{}{fieldIsActivated: true}).Return(nil)

	svc := newService(us, os, nil, nil, nil)
	require.NoError(t, svc.VerifyEmail(context.Background(), "ann@x.com", "654321"))
}

// --- ForgotPassword ---

func TestForgotPassword_UserNotFound(t *testing.T) {
	us := &mockUserStore{}
	us.On("GetByEmail", mock.Anything, "nobody@x.com").Return(nil, domain.ErrNotFound)

	svc := newService(us, nil, nil, nil, nil)
	err := svc.ForgotPassword(context.Background(), "nobody@x.com")

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestForgotPassword_HappyPath_IgnoresActivation(t *testing.T) {
	us := &mockUserStore{}
	os := &mockOTPStore{}
	ml := &mockMailer{}
	// Unverified account: forgot-password still works.
	us.On("GetByEmail", mock.Anything, "ann@x.com").Return(&domain.User{
		UserID: "u1", Name: "Ann", Email: "ann@x.com", IsActivated: false,
	}, nil)
	os.On("Issue", mock.Anything, "ann@x.com").Return("111222", nil)
	ml.On("SendEmail", "ann@x.com", "Reset your password", mock.AnythingOfType("string")).Return(nil)

	svc := newService(us, os, ml, nil, nil)
	require.NoError(t, svc.ForgotPassword(context.Background(), "ann@x.com"))
	os.AssertExpectations(t)
	ml.AssertExpectations(t)
}

// --- ResetPassword ---

func TestResetPassword_WrongCode(t *testing.T) {
	us := &mockUserStore{}
	os := &mockOTPStore{}
	os.On("Validate", mock.Anything, "ann@x.com", "000000").Return(false, nil)

	svc := newService(us, os, nil, nil, nil)
	err := svc.ResetPassword(context.Background(), "ann@x.com", "000000", "newpw456")

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrBadRequest))
	us.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
}

func TestResetPassword_HappyPath_RotatesHash(t *testing.T) {
	us := &mockUserStore{}
	os := &mockOTPStore{}
	os.On("Validate", mock.Anything, "ann@x.com", "111222").Return(true, nil)
	us.On("GetByEmail", mock.Anything, "ann@x.com").Return(&domain.User{
		UserID: "u1", PasswordHash: hashOf(t, "pw123"),
	}, nil)

	var newHash string
	us.On("Update", mock.Anything, "u1", mock.MatchedBy(func(m map[string]interface{}) bool {
		h, ok := m[fieldPasswordHash].(string)
		if ok {
			newHash = h
		}
		return ok
	})).Return(nil)

	svc := newService(us, os, nil, nil, nil)
	require.NoError(t, svc.ResetPassword(context.Background(), "ann@x.com", "111222", "newpw456"))

	require.NotEmpty(t, newHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(newHash), []byte("newpw456")))
	assert.Error(t, bcrypt.CompareHashAndPassword([]byte(newHash), []byte("pw123")))
}

// --- Phone verification ---

func TestRequestPhoneVerification_NoPhone(t *testing.T) {
	us := &mockUserStore{}
	us.On("Get", mock.Anything, "u1").Return(&domain.User{UserID: "u1"}, nil)

	svc := newService(us, nil, nil, nil, nil)
	err := svc.RequestPhoneVerification(context.Background(), "u1")

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrBadRequest))
}

func TestRequestPhoneVerification_HappyPath(t *testing.T) {
	us := &mockUserStore{}
	os := &mockOTPStore{}
	sms := &mockSMSSender{}
	us.On("Get", mock.Anything, "u1").Return(&domain.User{UserID: "u1", Phone: "555-0100"}, nil)
	os.On("Issue", mock.Anything, "555-0100").Return("333444", nil)

	var sent string
	sms.On("SendSMS", mock.Anything, "555-0100", mock.AnythingOfType("string")).Run(func(args mock.Arguments) {
		sent = args.String(2)
	}).Return(nil)

	svc := newService(us, os, nil, sms, nil)
	require.NoError(t, svc.RequestPhoneVerification(context.Background(), "u1"))
	assert.Contains(t, sent, "333444")
}

func TestVerifyPhone_HappyPath(t *testing.T) {
	us := &mockUserStore{}
	os := &mockOTPStore{}
	us.On("Get", mock.Anything, "u1").Return(&domain.User{UserID: "u1", Phone: "555-0100"}, nil)
	os.On("Validate", mock.Anything, "555-0100", "333444").Return(true, nil)
	us.On("Update", mock.Anything, "u1", map[string]interface{}{fieldPhoneConfirmed: true}).Return(nil)

	svc := newService(us, os, nil, nil, nil)
	require.NoError(t, svc.VerifyPhone(context.Background(), "u1", "333444"))
	us.AssertExpectations(t)
}
