package cmd

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/apache/pulsar-client-go/pulsar"
	awsclient "github.com/rlms-portal/forms-services/internal/aws"
	"github.com/rlms-portal/forms-services/internal/events"
	"github.com/rlms-portal/forms-services/internal/notify"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var consumeCmd = &cobra.Command{
	Use:   "consume",
	Short: "Run the Pulsar consumer that emails submitters about decisions",
	Run: func(cmd *cobra.Command, args []string) {

		// Load the config, initialize the database and set up logging
		commonSetUp()
		defer portalDB.Close()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		ctx = log.Logger.WithContext(ctx)

		handler := &notify.Handler{
			Users:   portalDB,
			Enabled: appCfg.Notifications.Enabled,
		}
		if handler.Enabled {
			awsCfg, err := awsclient.LoadAWSConfig(ctx, appCfg.AWS.Region)
			if err != nil {
				log.Fatal().Err(err).Msg("failed to load AWS config")
			}
			handler.Mailer = &notify.DecisionMailer{
				Client: awsclient.NewSESClient(awsCfg),
				From:   appCfg.Notifications.FromEmail,
			}
		}

		// Initialize event consumer
		consumer, err := events.NewEventConsumer(appCfg.Pulsar.URL, appCfg.Pulsar.TopicConsumer, appCfg.Pulsar.Subscription)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize event consumer")
		}
		defer consumer.Close()

		log.Info().Str("topic", appCfg.Pulsar.TopicConsumer).Msg("waiting for messages")
		for {
			msg, err := consumer.ReceiveMessage(ctx)
			if err != nil {
				if errors.Is(ctx.Err(), context.Canceled) {
					log.Info().Msg("consumer stopped")
					return
				}
				log.Error().Err(err).Msg("Error receiving message")
				continue
			}

			logger := log.With().Str("message_id", msg.ID().String()).Logger()
			redeliver := handleMessage(logger.WithContext(ctx), handler, msg.Payload())
			settle(logger, consumer, msg, redeliver)
		}
	},
}

type eventHandler interface {
	Handle(ctx context.Context, event events.ResponseEvent) error
}

type messageAcker interface {
	Ack(msg pulsar.Message) error
	Nack(msg pulsar.Message)
}

// handleMessage decodes and handles one payload and reports whether it
// should be redelivered. Malformed payloads are never redelivered.
func handleMessage(ctx context.Context, handler eventHandler, payload []byte) bool {
	logger := zerolog.Ctx(ctx)

	event, err := events.DecodeResponseEvent(payload)
	if err != nil {
		logger.Error().Err(err).Msg("dropping malformed event")
		return false
	}

	if err := handler.Handle(ctx, event); err != nil {
		logger.Error().Err(err).Str("response_id", event.ResponseID.String()).Msg("failed to process event")
		return true
	}
	return false
}

// settle acks or nacks msg. Ack failures are logged on every path.
func settle(logger zerolog.Logger, acker messageAcker, msg pulsar.Message, redeliver bool) {
	if redeliver {
		acker.Nack(msg)
		return
	}
	if err := acker.Ack(msg); err != nil {
		logger.Error().Err(err).Msg("failed to acknowledge message")
	}
}

func init() {
	rootCmd.AddCommand(consumeCmd)
}
