package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"

	appconfig "github.com/wolfman30/whatsapp-concierge/internal/config"
	"github.com/wolfman30/whatsapp-concierge/pkg/logging"
)

// parameterAPI is the slice of the SSM client used to resolve secrets.
type parameterAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// LoadSecrets fills credentials that are empty in the environment from SSM
// Parameter Store under SSM_PARAM_PREFIX. It does nothing without a prefix.
func LoadSecrets(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) error {
	if cfg == nil || strings.TrimSpace(cfg.SSMParamPrefix) == "" {
		return nil
	}
	awsCfg, err := LoadAWSConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("bootstrap: load aws config: %w", err)
	}
	client := ssm.NewFromConfig(awsCfg, func(o *ssm.Options) {
		if endpoint := strings.TrimSpace(cfg.AWSEndpointOverride); endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
	return applySecrets(ctx, client, cfg, logger)
}

func applySecrets(ctx context.Context, api parameterAPI, cfg *appconfig.Config, logger *logging.Logger) error {
	if logger == nil {
		logger = logging.Default()
	}
	prefix := strings.TrimRight(strings.TrimSpace(cfg.SSMParamPrefix), "/")
	fields := []struct {
		name string
		dst  *string
	}{
		{"whatsapp-access-token", &cfg.WhatsAppAccessToken},
		{"whatsapp-app-secret", &cfg.WhatsAppAppSecret},
		{"whatsapp-verify-token", &cfg.WhatsAppVerifyToken},
		{"admin-jwt-secret", &cfg.AdminJWTSecret},
		{"database-url", &cfg.DatabaseURL},
		{"redis-password", &cfg.RedisPassword},
		{"gemini-api-key", &cfg.GeminiAPIKey},
	}

	loaded := 0
	for _, f := range fields {
		if strings.TrimSpace(*f.dst) != "" {
			continue
		}
		value, err := getParameter(ctx, api, prefix+"/"+f.name)
		if err != nil {
			var notFound *ssmtypes.ParameterNotFound
			if errors.As(err, &notFound) {
				continue
			}
			return err
		}
		*f.dst = value
		loaded++
	}
	logger.Info("secrets loaded from parameter store", "prefix", prefix, "count", loaded)
	return nil
}

func getParameter(ctx context.Context, api parameterAPI, name string) (string, error) {
	out, err := api.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("bootstrap: get parameter %q: %w", name, err)
	}
	if out == nil || out.Parameter == nil || out.Parameter.Value == nil {
		return "", fmt.Errorf("bootstrap: parameter %q has no value", name)
	}
	return *out.Parameter.Value, nil
}
