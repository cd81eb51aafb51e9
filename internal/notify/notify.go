package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/google/uuid"
	"github.com/rlms-portal/forms-services/internal/events"
	"github.com/rlms-portal/forms-services/models"
	"github.com/rs/zerolog"
)

// EmailClient is the part of the SES v2 API used to send mail.
type EmailClient interface {
	SendEmail(ctx context.Context, input *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// UserLookup resolves the submitter of a response.
type UserLookup interface {
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// DecisionMailer emails submitters when a reviewer decides their response.
type DecisionMailer struct {
	Client EmailClient
	From   string
}

// NotifyDecision sends the decision email for event to user.
func (m *DecisionMailer) NotifyDecision(ctx context.Context, user models.PublicUser, event events.ResponseEvent) error {
	if user.Email == "" {
		return errors.New("submitter has no email address")
	}

	body := fmt.Sprintf("Hello %s,\n\nYour response %s to compliance form %d has been %s.\n",
		user.Username, event.ResponseID, event.FormType, event.Status)

	out, err := m.Client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(m.From),
		Destination: &types.Destination{
			ToAddresses: []string{user.Email},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(subject(event))},
				Body: &types.Body{
					Text: &types.Content{Data: aws.String(body)},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to send decision email: %w", err)
	}

	zerolog.Ctx(ctx).Info().
		Str("response_id", event.ResponseID.String()).
		Str("message_id", aws.ToString(out.MessageId)).
		Msg("decision email sent")
	return nil
}

// Handler processes events taken off the response topic.
type Handler struct {
	Users   UserLookup
	Mailer  *DecisionMailer
	Enabled bool
}

// Handle emails the submitter of a decided response. Other event types are
// ignored. A returned error means the message should be redelivered.
func (h *Handler) Handle(ctx context.Context, event events.ResponseEvent) error {
	logger := zerolog.Ctx(ctx).With().
		Str("event", event.Type).
		Str("response_id", event.ResponseID.String()).
		Logger()

	if event.Type != events.ResponseDecided {
		logger.Debug().Msg("ignoring event")
		return nil
	}
	if !h.Enabled || h.Mailer == nil {
		logger.Debug().Msg("notifications disabled")
		return nil
	}
	if !event.Status.Decision() {
		logger.Warn().Str("status", string(event.Status)).Msg("decided event without a decision status")
		return nil
	}

	user, err := h.Users.GetUserByID(ctx, event.UserID)
	if err != nil {
		return fmt.Errorf("failed to load submitter: %w", err)
	}
	if user == nil {
		// Account gone; nothing to notify.
		logger.Warn().Str("user_id", event.UserID.String()).Msg("submitter not found")
		return nil
	}

	return h.Mailer.NotifyDecision(logger.WithContext(ctx), user.Public(), event)
}

func subject(event events.ResponseEvent) string {
	return fmt.Sprintf("Your form %d response was %s", event.FormType, event.Status)
}
