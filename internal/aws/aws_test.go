package awsclient

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockSecretsClient struct {
	mock.Mock
}

func (m *MockSecretsClient) GetSecretValue(ctx context.Context, input *secretsmanager.GetSecretValueInput, opts ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	args := m.Called(ctx, input)
	out, _ := args.Get(0).(*secretsmanager.GetSecretValueOutput)
	return out, args.Error(1)
}

func TestGetSigningSecrets(t *testing.T) {
	client := new(MockSecretsClient)
	client.On("GetSecretValue", mock.Anything, mock.MatchedBy(func(in *secretsmanager.GetSecretValueInput) bool {
		return aws.ToString(in.SecretId) == "forms/signing"
	})).Return(&secretsmanager.GetSecretValueOutput{
		SecretString: aws.String(`{"accessTokenSecret":"a","refreshTokenSecret":"r"}`),
	}, nil)

	secrets, err := GetSigningSecrets(context.Background(), client, "forms/signing")
	require.NoError(t, err)
	assert.Equal(t, "a", secrets.AccessTokenSecret)
	assert.Equal(t, "r", secrets.RefreshTokenSecret)
	client.AssertExpectations(t)
}

func TestGetSigningSecrets_NotFound(t *testing.T) {
	client := new(MockSecretsClient)
	client.On("GetSecretValue", mock.Anything, mock.Anything).Return(nil,
		&smithy.GenericAPIError{Code: "ResourceNotFoundException", Message: "no such secret"})

	_, err := GetSigningSecrets(context.Background(), client, "forms/missing")
	assert.ErrorIs(t, err, ErrSecretNotFound)
}

func TestGetSigningSecrets_Incomplete(t *testing.T) {
	client := new(MockSecretsClient)
	client.On("GetSecretValue", mock.Anything, mock.Anything).Return(&secretsmanager.GetSecretValueOutput{
		SecretString: aws.String(`{"accessTokenSecret":"a"}`),
	}, nil)

	_, err := GetSigningSecrets(context.Background(), client, "forms/signing")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrSecretNotFound)
}
