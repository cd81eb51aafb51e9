package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/google/uuid"
	"github.com/rlms-portal/forms-services/internal/events"
	"github.com/rlms-portal/forms-services/internal/services/servicestest"
	"github.com/rlms-portal/forms-services/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockAWSEmailClient struct {
	mock.Mock
}

func (m *MockAWSEmailClient) SendEmail(ctx context.Context, input *sesv2.SendEmailInput, opts ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	args := m.Called(ctx, input)
	out, _ := args.Get(0).(*sesv2.SendEmailOutput)
	return out, args.Error(1)
}

func newHandler(t *testing.T) (*Handler, *MockAWSEmailClient, *servicestest.Store, models.User) {
	t.Helper()
	store := servicestest.NewStore()
	user := models.User{
		ID:        uuid.New(),
		Username:  "jdoe",
		Email:     "jdoe@example.com",
		Role:      models.RoleUser,
		CreatedAt: time.Now().UTC(),
	}
	store.PutUser(user)

	client := new(MockAWSEmailClient)
	return &Handler{
		Users:   store,
		Mailer:  &DecisionMailer{Client: client, From: "forms@example.com"},
		Enabled: true,
	}, client, store, user
}

func decided(user models.User, status models.Status) events.ResponseEvent {
	return events.ResponseEvent{
		Type:       events.ResponseDecided,
		ResponseID: uuid.New(),
		UserID:     user.ID,
		FormType:   4,
		Status:     status,
		ActorID:    uuid.New(),
		Timestamp:  time.Now().Unix(),
	}
}

func TestHandle_SendsDecisionEmail(t *testing.T) {
	h, client, _, user := newHandler(t)
	event := decided(user, models.StatusApproved)

	client.On("SendEmail", mock.Anything, mock.MatchedBy(func(in *sesv2.SendEmailInput) bool {
		return aws.ToString(in.FromEmailAddress) == "forms@example.com" &&
			len(in.Destination.ToAddresses) == 1 &&
			in.Destination.ToAddresses[0] == "jdoe@example.com" &&
			aws.ToString(in.Content.Simple.Subject.Data) == "Your form 4 response was approved"
	})).Return(&sesv2.SendEmailOutput{MessageId: aws.String("msg-1")}, nil).Once()

	require.NoError(t, h.Handle(context.Background(), event))
	client.AssertExpectations(t)
}

func TestHandle_SendFailureIsReturned(t *testing.T) {
	h, client, _, user := newHandler(t)
	client.On("SendEmail", mock.Anything, mock.Anything).Return(nil, errors.New("throttled"))

	err := h.Handle(context.Background(), decided(user, models.StatusRejected))
	assert.ErrorContains(t, err, "throttled")
}

func TestHandle_SkipsWithoutSending(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(h *Handler, store *servicestest.Store, event *events.ResponseEvent)
	}{
		{
			name: "submitted events",
			mutate: func(_ *Handler, _ *servicestest.Store, e *events.ResponseEvent) {
				e.Type = events.ResponseSubmitted
				e.Status = models.StatusPending
			},
		},
		{
			name:   "notifications disabled",
			mutate: func(h *Handler, _ *servicestest.Store, _ *events.ResponseEvent) { h.Enabled = false },
		},
		{
			name:   "pending status",
			mutate: func(_ *Handler, _ *servicestest.Store, e *events.ResponseEvent) { e.Status = models.StatusPending },
		},
		{
			name: "submitter deleted",
			mutate: func(_ *Handler, store *servicestest.Store, e *events.ResponseEvent) {
				store.DeleteUser(e.UserID)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, client, store, user := newHandler(t)
			event := decided(user, models.StatusApproved)
			tt.mutate(h, store, &event)

			require.NoError(t, h.Handle(context.Background(), event))
			client.AssertNotCalled(t, "SendEmail", mock.Anything, mock.Anything)
		})
	}
}

func TestHandle_StoreFailureIsReturned(t *testing.T) {
	h, client, store, user := newHandler(t)
	store.Fail = true

	err := h.Handle(context.Background(), decided(user, models.StatusApproved))
	assert.ErrorIs(t, err, servicestest.ErrInjected)
	client.AssertNotCalled(t, "SendEmail", mock.Anything, mock.Anything)
}
