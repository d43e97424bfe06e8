// Copyright (c) 2024 Netskope, Inc. All rights reserved.

package util

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// AWS IAM credential file paths (vault-injected in Kubernetes deployments)
const (
	DefaultAWSKeyFile  = "/vault/secrets/awskey"
	DefaultAWSPassFile = "/vault/secrets/awspass"

	// AccessTokenEnv allows bypassing Secrets Manager lookups (e.g., smoketests/local).
	// When set (even to an empty string), ResolveAccessToken returns the value directly.
	AccessTokenEnv = "LIST_IMPORT_ACCESS_TOKEN" //nolint:gosec // env var name, not a credential
)

// AWSOptions selects region, endpoint and optional static credentials.
type AWSOptions struct {
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// SecretGetter is the Secrets Manager call used by this package.
type SecretGetter interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// LoadAWSConfig builds an AWS config with the following credential priority:
// 1. Static keys from opts (CLI flags) - highest priority
// 2. AWS SDK default chain (env vars, AWS CLI credentials, SSO cache, IAM roles, etc.)
// 3. Vault files (/vault/secrets/awskey, /vault/secrets/awspass) - fallback
func LoadAWSConfig(ctx context.Context, opts AWSOptions) (aws.Config, error) {
	loadOpts := []func(*config.LoadOptions) error{
		config.WithRegion(opts.Region),
	}
	if opts.Endpoint != "" {
		loadOpts = append(loadOpts, config.WithBaseEndpoint(opts.Endpoint))
	}

	keyID, secret, token := opts.AccessKeyID, opts.SecretAccessKey, opts.SessionToken
	if keyID == "" || secret == "" {
		keyID, secret, token = vaultCredentials()
	}
	if keyID != "" && secret != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(keyID, secret, token)))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("create AWS config: %w", err)
	}
	return awsCfg, nil
}

// vaultCredentials reads the vault files only when the environment carries no
// keys, so the SDK default chain keeps priority over them.
func vaultCredentials() (string, string, string) {
	if os.Getenv("AWS_ACCESS_KEY_ID") != "" && os.Getenv("AWS_SECRET_ACCESS_KEY") != "" {
		return "", "", ""
	}
	key, err := os.ReadFile(DefaultAWSKeyFile)
	if err != nil {
		return "", "", ""
	}
	pass, err := os.ReadFile(DefaultAWSPassFile)
	if err != nil {
		return "", "", ""
	}
	return strings.TrimSpace(string(key)), strings.TrimSpace(string(pass)), ""
}

// GetSecretField retrieves a secret from AWS Secrets Manager and returns one
// field of its JSON payload.
func GetSecretField(ctx context.Context, svc SecretGetter, secretName, field string) (string, error) {
	if secretName == "" {
		return "", fmt.Errorf("secret name is required for Secrets Manager")
	}

	out, err := svc.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId:     aws.String(secretName),
		VersionStage: aws.String("AWSCURRENT"),
	})
	if err != nil {
		return "", fmt.Errorf("get secret value: %w", err)
	}
	if out.SecretString == nil {
		return "", fmt.Errorf("secret string empty for %s", secretName)
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(*out.SecretString), &payload); err != nil {
		return "", fmt.Errorf("parse secret json: %w", err)
	}
	value, _ := payload[field].(string)
	if value == "" {
		return "", fmt.Errorf("%s field empty in secret %s", field, secretName)
	}
	return value, nil
}

// ResolveAccessToken returns the bearer token for the list site. If
// AccessTokenEnv is set (even to an empty string), that value is returned.
// Otherwise a configured token wins, and the secret is read from AWS
// Secrets Manager as a last step.
func ResolveAccessToken(ctx context.Context, token, secretName string, awsOpts AWSOptions) (string, error) {
	if v, ok := os.LookupEnv(AccessTokenEnv); ok {
		return v, nil
	}
	if token != "" {
		return token, nil
	}
	if awsOpts.Region == "" {
		return "", fmt.Errorf("region is required for Secrets Manager")
	}

	awsCfg, err := LoadAWSConfig(ctx, awsOpts)
	if err != nil {
		return "", err
	}
	return GetSecretField(ctx, secretsmanager.NewFromConfig(awsCfg), secretName, "access_token")
}
