package secretstore

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/secretsmanager"
	"github.com/aws/aws-sdk-go/service/secretsmanager/secretsmanageriface"

	"github.com/rudderlabs/rudder-go-kit/config"
)

// SecretsManagerStore implements Store on AWS Secrets Manager.
type SecretsManagerStore struct {
	svc secretsmanageriface.SecretsManagerAPI
}

func NewSecretsManagerStore(conf *config.Config) (*SecretsManagerStore, error) {
	region := conf.GetString("AWS_REGION", "us-east-1")
	sess, err := session.NewSession(&aws.Config{Region: aws.String(region)})
	if err != nil {
		return nil, fmt.Errorf("creating aws session: %w", err)
	}
	return &SecretsManagerStore{svc: secretsmanager.New(sess)}, nil
}

func NewSecretsManagerStoreWithClient(svc secretsmanageriface.SecretsManagerAPI) *SecretsManagerStore {
	return &SecretsManagerStore{svc: svc}
}

func (s *SecretsManagerStore) GetSecret(ctx context.Context, name string) (string, error) {
	out, err := s.svc.GetSecretValueWithContext(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(name),
	})
	if err != nil {
		return "", fmt.Errorf("getting secret %s: %w", name, err)
	}
	return aws.StringValue(out.SecretString), nil
}

func (s *SecretsManagerStore) PutSecret(ctx context.Context, name, value string) error {
	_, err := s.svc.PutSecretValueWithContext(ctx, &secretsmanager.PutSecretValueInput{
		SecretId:     aws.String(name),
		SecretString: aws.String(value),
	})
	if err != nil {
		return fmt.Errorf("putting secret %s: %w", name, err)
	}
	return nil
}
