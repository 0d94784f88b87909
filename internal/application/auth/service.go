package auth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/quickkash/api/internal/application/otp"
	"github.com/quickkash/api/internal/domain"
	"github.com/quickkash/api/internal/infrastructure/smtp"
	"github.com/quickkash/api/internal/infrastructure/sns"
	"github.com/quickkash/api/internal/pkg/id"
	"github.com/quickkash/api/internal/pkg/referral"
	"golang.org/x/crypto/bcrypt"
)

// DynamoDB attribute names used in partial update maps.
const (
	fieldIsActivated    = "is_activated"
	fieldPasswordHash   = "password_hash"
	fieldPhoneConfirmed = "phone_confirmed"
)

type Service interface {
	Register(ctx context.Context, req domain.RegisterRequest) error
	Login(ctx context.Context, req domain.LoginRequest) (string, *domain.User, error)
	VerifyEmail(ctx context.Context, email, code string) error
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, email, code, newPassword string) error
	Profile(ctx context.Context, userID string) (*domain.User, error)
	RequestPhoneVerification(ctx context.Context, userID string) error
	VerifyPhone(ctx context.Context, userID, code string) error
}

type userStore interface {
	Create(ctx context.Context, u *domain.User) error
	Get(ctx context.Context, userID string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Update(ctx context.Context, userID string, updates map[string]interface{}) error
}

type tokenSigner interface {
	Sign(userID string) (string, error)
}

type service struct {
	repo      userStore
	otpStore  otp.Store
	mailer    smtp.Mailer
	smsSender sns.SMSSender
	signer    tokenSigner
}

type ServiceDeps struct {
	UserRepo  userStore
	OTPStore  otp.Store
	Mailer    smtp.Mailer
	SMSSender sns.SMSSender
	Signer    tokenSigner
}

func NewService(deps ServiceDeps) Service {
	return &service{
		repo:      deps.UserRepo,
		otpStore:  deps.OTPStore,
		mailer:    deps.Mailer,
		smsSender: deps.SMSSender,
		signer:    deps.Signer,
	}
}

// Register creates the account in the pending-verification state and sends
// the verification OTP. If the OTP dispatch fails after the account write,
// the account stays pending — there is no rollback; the user recovers via
// forgot-password, which issues a fresh code.
func (s *service) Register(ctx context.Context, req domain.RegisterRequest) error {
	if _, err := s.repo.GetByEmail(ctx, req.Email); err == nil {
		return fmt.Errorf("email already registered: %w", domain.ErrConflict)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	code, err := referral.New()
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	u := &domain.User{
		UserID:       id.New(),
		Name:         req.Name,
		Phone:        req.Phone,
		Email:        req.Email,
		PasswordHash: string(hash),
		IsActivated:  false,
		ReferralCode: code,
		// The referring code is stored as submitted; it is never checked
		// against existing accounts.
		ReferredBy: req.ReferralCode,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repo.Create(ctx, u); err != nil {
		return err
	}

	otpCode, err := s.otpStore.Issue(ctx, u.Email)
	if err != nil {
		return err
	}
	return s.mailer.SendEmail(u.Email, "Verify your email", verifyEmailBody(u.Name, otpCode))
}

func (s *service) Login(ctx context.Context, req domain.LoginRequest) (string, *domain.User, error) {
	u, err := s.repo.GetByEmail(ctx, req.Email)
	if err != nil {
		return "", nil, fmt.Errorf("user not found: %w", domain.ErrNotFound)
	}
	// bcrypt fails closed on a malformed stored hash.
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)); err != nil {
		return "", nil, fmt.Errorf("invalid password: %w", domain.ErrUnauthorized)
	}
	if !u.IsActivated {
		return "", nil, fmt.Errorf("email not verified: %w", domain.ErrForbidden)
	}
	token, err := s.signer.Sign(u.UserID)
	if err != nil {
		return "", nil, err
	}
	return token, u, nil
}

// VerifyEmail consumes the OTP and activates the account. Verifying an
// already-active account is a harmless no-op update.
func (s *service) VerifyEmail(ctx context.Context, email, code string) error {
	ok, err := s.otpStore.Validate(ctx, email, code)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("invalid or expired OTP: %w", domain.ErrBadRequest)
	}
	u, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("user not found: %w", domain.ErrNotFound)
	}
	return s.repo.Update(ctx, u.UserID, map[string]interface{}{fieldIsActivated: true})
}

// ForgotPassword issues a reset OTP regardless of activation state.
func (s *service) ForgotPassword(ctx context.Context, email string) error {
	u, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("user not found: %w", domain.ErrNotFound)
	}
	code, err := s.otpStore.Issue(ctx, u.Email)
	if err != nil {
		return err
	}
	return s.mailer.SendEmail(u.Email, "Reset your password", resetPasswordBody(u.Name, code))
}

// ResetPassword rotates the password. Outstanding session tokens stay valid
// until their natural expiry.
func (s *service) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	ok, err := s.otpStore.Validate(ctx, email, code)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("invalid or expired OTP: %w", domain.ErrBadRequest)
	}
	u, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("user not found: %w", domain.ErrNotFound)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return s.repo.Update(ctx, u.UserID, map[string]interface{}{fieldPasswordHash: string(hash)})
}

func (s *service) Profile(ctx context.Context, userID string) (*domain.User, error) {
	return s.repo.Get(ctx, userID)
}

func (s *service) RequestPhoneVerification(ctx context.Context, userID string) error {
	u, err := s.repo.Get(ctx, userID)
	if err != nil {
		return fmt.Errorf("user not found: %w", domain.ErrNotFound)
	}
	if u.Phone == "" {
		return fmt.Errorf("no phone number on account: %w", domain.ErrBadRequest)
	}
	if s.smsSender == nil {
		return fmt.Errorf("sms delivery is not configured")
	}
	code, err := s.otpStore.Issue(ctx, u.Phone)
	if err != nil {
		return err
	}
	return s.smsSender.SendSMS(ctx, u.Phone, "Your QuickKash verification code: "+code)
}

func (s *service) VerifyPhone(ctx context.Context, userID, code string) error {
	u, err := s.repo.Get(ctx, userID)
	if err != nil {
		return fmt.Errorf("user not found: %w", domain.ErrNotFound)
	}
	ok, err := s.otpStore.Validate(ctx, u.Phone, code)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("invalid or expired OTP: %w", domain.ErrBadRequest)
	}
	if err := s.repo.Update(ctx, userID, map[string]interface{}{fieldPhoneConfirmed: true}); err != nil {
		slog.Warn("failed to flag phone as confirmed", "user_id", userID, "err", err)
		return err
	}
	return nil
}
