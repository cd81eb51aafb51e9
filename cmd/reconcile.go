package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rlms-portal/forms-services/internal/appconfig"
	"github.com/rlms-portal/forms-services/internal/events"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var reconcileSince string

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Republish decision events for responses decided since a point in time",
	Run: func(cmd *cobra.Command, args []string) {

		since, err := parseSince(reconcileSince, time.Now().UTC())
		if err != nil {
			log.Fatal().Err(err).Msg("invalid --since")
		}

		// Load the config, initialize the database and set up logging
		commonSetUp()
		defer portalDB.Close()

		// Initialize event publisher
		publisher, err := events.NewEventPublisher(appCfg.Pulsar.URL, appCfg.Pulsar.TopicProducer)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize event publisher")
		}
		defer publisher.Close()

		ctx := context.Background()
		responses, err := portalDB.ListDecidedSince(ctx, since)
		if err != nil {
			log.Fatal().Err(err).Msg("Error fetching decided responses")
		}

		log.Info().Time("since", since).Int("count", len(responses)).Msg("Starting reconciliation process...")

		failed := 0
		for _, r := range responses {
			actor := uuid.Nil
			if r.DecidedBy != nil {
				actor = *r.DecidedBy
			}
			event := events.NewResponseEvent(events.ResponseDecided, r, actor)
			if err := publisher.Notify(ctx, event); err != nil {
				failed++
				log.Error().Err(err).Str("response_id", r.ID.String()).Msg("Failed to publish decision")
				continue
			}
			log.Debug().Str("response_id", r.ID.String()).Msg("Published decision")
		}

		log.Info().Int("published", len(responses)-failed).Int("failed", failed).Msg("Reconciliation completed")
	},
}

// parseSince accepts an RFC 3339 timestamp or a duration back from now.
func parseSince(s string, now time.Time) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	d, err := appconfig.ParseDuration(s)
	if err != nil || d == 0 {
		return time.Time{}, fmt.Errorf("%q is neither an RFC 3339 time nor a duration", s)
	}
	return now.Add(-d), nil
}

func init() {
	rootCmd.AddCommand(reconcileCmd)
	reconcileCmd.Flags().StringVar(&reconcileSince, "since", "24h", "RFC 3339 time or duration, e.g. 2h or 7d")
}
