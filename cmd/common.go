package cmd

import (
	"context"
	"fmt"

	"github.com/rlms-portal/forms-services/db"
	"github.com/rlms-portal/forms-services/internal/appconfig"
	"github.com/rlms-portal/forms-services/internal/authn"
	awsclient "github.com/rlms-portal/forms-services/internal/aws"
	"github.com/rlms-portal/forms-services/internal/events"
	"github.com/rs/zerolog/log"
)

var (
	appCfg   *appconfig.Config
	portalDB *db.PortalDB
)

// commonSetUp sets the log level, loads the config and connects to the
// database, through the SSH tunnel when one is configured.
func commonSetUp() {
	setLogging(logLevel)

	var err error
	appCfg, err = appconfig.LoadConfig(configPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", configPath).Msg("failed to load config")
	}

	if appCfg.Database.Tunnel != nil {
		if _, err := StartSSHTunnel(appCfg.Database.Tunnel); err != nil {
			log.Fatal().Err(err).Msg("failed to start SSH tunnel")
		}
	}

	portalDB, err = db.NewPortalDB(appCfg.Database.Source, &log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize database")
	}
}

// signingSecrets returns the token secrets from the config, or from Secrets
// Manager when a secret id is configured.
func signingSecrets(ctx context.Context, cfg appconfig.AuthConfig, region string) (access, refresh string, err error) {
	if cfg.SecretsManagerSecretID == "" {
		return cfg.AccessTokenSecret, cfg.RefreshTokenSecret, nil
	}

	awsCfg, err := awsclient.LoadAWSConfig(ctx, region)
	if err != nil {
		return "", "", err
	}
	secrets, err := awsclient.GetSigningSecrets(ctx, awsclient.NewSecretsManagerClient(awsCfg), cfg.SecretsManagerSecretID)
	if err != nil {
		return "", "", err
	}
	log.Info().Str("secret_id", cfg.SecretsManagerSecretID).Msg("loaded signing secrets from Secrets Manager")
	return secrets.AccessTokenSecret, secrets.RefreshTokenSecret, nil
}

func newIssuer(ctx context.Context) (*authn.Issuer, error) {
	access, refresh, err := signingSecrets(ctx, appCfg.Auth, appCfg.AWS.Region)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve signing secrets: %w", err)
	}
	return authn.NewIssuer(authn.IssuerConfig{
		AccessSecret:  access,
		RefreshSecret: refresh,
		AccessExpiry:  appCfg.Auth.AccessTokenExpiry.Std(),
		RefreshExpiry: appCfg.Auth.RefreshTokenExpiry.Std(),
	})
}

// newNotifier connects to Pulsar, or drops events when no URL is configured.
func newNotifier() (events.Notifier, error) {
	if appCfg.Pulsar.URL == "" {
		log.Warn().Msg("pulsar url not set, response events will not be published")
		return events.NoopNotifier{}, nil
	}
	return events.NewEventPublisher(appCfg.Pulsar.URL, appCfg.Pulsar.TopicProducer)
}
