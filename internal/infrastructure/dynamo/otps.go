package dynamo

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/quickkash/api/internal/application/otp"
)

// OTPRepo is the durable otp.Store variant backed by the otps table.
// PK: identifier (email or phone). The table's TTL attribute evicts stale
// records eventually; Validate still checks expires_at itself so a code is
// never accepted past its window.
type OTPRepo struct {
	client    *dynamodb.Client
	tableName string
	ttl       time.Duration
}

func NewOTPRepo(client *dynamodb.Client, tableName string, ttl time.Duration) *OTPRepo {
	return &OTPRepo{client: client, tableName: tableName, ttl: ttl}
}

func (r *OTPRepo) Issue(ctx context.Context, identifier string) (string, error) {
	code, err := otp.GenerateCode()
	if err != nil {
		return "", err
	}
	expiresAt := time.Now().Add(r.ttl).Unix()
	// PutItem overwrites any prior record for the identifier — last issue wins.
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item: map[string]types.AttributeValue{
			"identifier": &types.AttributeValueMemberS{Value: identifier},
			"code":       &types.AttributeValueMemberS{Value: code},
			"expires_at": &types.AttributeValueMemberN{Value: strconv.FormatInt(expiresAt, 10)},
		},
	})
	if err != nil {
		return "", fmt.Errorf("store otp: %w", err)
	}
	return code, nil
}

func (r *OTPRepo) Validate(ctx context.Context, identifier, code string) (bool, error) {
	// A conditional delete both checks and consumes the code in one atomic
	// call: a replay of the same code races for the delete and loses.
	now := strconv.FormatInt(time.Now().Unix(), 10)
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(r.tableName),
		Key:                 strKey("identifier", identifier),
		ConditionExpression: aws.String("#c = :c AND #e > :now"),
		ExpressionAttributeNames: map[string]string{
			"#c": "code",
			"#e": "expires_at",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":c":   &types.AttributeValueMemberS{Value: code},
			":now": &types.AttributeValueMemberN{Value: now},
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return false, nil
		}
		return false, fmt.Errorf("validate otp: %w", err)
	}
	return true, nil
}
