package db

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rlms-portal/forms-services/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupPortalDB starts PostgreSQL in a container and returns a migrated store.
func setupPortalDB(t *testing.T) *PortalDB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping database tests in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "forms",
			"POSTGRES_PASSWORD": "forms",
			"POSTGRES_DB":       "forms",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	postgresC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "could not start container")
	t.Cleanup(func() { postgresC.Terminate(ctx) })

	host, err := postgresC.Host(ctx)
	require.NoError(t, err)
	port, err := postgresC.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	connStr := fmt.Sprintf("postgres://forms:forms@%s:%s/forms?sslmode=disable", host, port.Port())
	logger := zerolog.Nop()

	portalDB, err := NewPortalDB(connStr, &logger)
	require.NoError(t, err)
	t.Cleanup(func() { portalDB.Close() })

	require.NoError(t, portalDB.Migrate())
	return portalDB
}

func truncate(t *testing.T, p *PortalDB) {
	t.Helper()
	_, err := p.DB.Exec(`TRUNCATE form_responses, users`)
	require.NoError(t, err)
}

func newUser(name string, role models.Role, ft *models.FormType) *models.User {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &models.User{
		ID:                uuid.New(),
		Username:          name,
		Email:             name + "@example.com",
		PasswordHash:      "$2a$10$hash",
		Role:              role,
		GroupHeadFormType: ft,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

func newResponse(userID uuid.UUID, ft models.FormType, created time.Time) *models.FormResponse {
	return &models.FormResponse{
		ID:       uuid.New(),
		UserID:   userID,
		FormType: ft,
		Responses: models.Entries{
			{Question: "Is the fire exit clear?", Answer: models.AnswerYes},
		},
		Status:    models.StatusPending,
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func TestPortalDB(t *testing.T) {
	p := setupPortalDB(t)
	ctx := context.Background()

	t.Run("users", func(t *testing.T) {
		truncate(t, p)
		ft := models.FormType(3)
		head := newUser("head", models.RoleGroupHead, &ft)
		require.NoError(t, p.CreateUser(ctx, head))

		got, err := p.GetUserByEmail(ctx, "HEAD@example.com")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, head.ID, got.ID)
		assert.Equal(t, models.RoleGroupHead, got.Role)
		require.NotNil(t, got.GroupHeadFormType)
		assert.Equal(t, ft, *got.GroupHeadFormType)
		assert.Empty(t, got.RefreshToken)

		missing, err := p.GetUserByID(ctx, uuid.New())
		require.NoError(t, err)
		assert.Nil(t, missing)

		users, err := p.ListUsers(ctx)
		require.NoError(t, err)
		assert.Len(t, users, 1)
	})

	t.Run("duplicates", func(t *testing.T) {
		truncate(t, p)
		require.NoError(t, p.CreateUser(ctx, newUser("alice", models.RoleUser, nil)))

		sameName := newUser("alice", models.RoleUser, nil)
		sameName.Email = "other@example.com"
		assert.ErrorIs(t, p.CreateUser(ctx, sameName), ErrDuplicate)

		sameEmail := newUser("bob", models.RoleUser, nil)
		sameEmail.Email = "Alice@Example.com"
		assert.ErrorIs(t, p.CreateUser(ctx, sameEmail), ErrDuplicate)
	})

	t.Run("refresh rotation", func(t *testing.T) {
		truncate(t, p)
		u := newUser("carol", models.RoleUser, nil)
		require.NoError(t, p.CreateUser(ctx, u))
		require.NoError(t, p.SetRefreshToken(ctx, u.ID, "first"))

		ok, err := p.RotateRefreshToken(ctx, u.ID, "first", "second")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = p.RotateRefreshToken(ctx, u.ID, "first", "third")
		require.NoError(t, err)
		assert.False(t, ok, "stale token must not rotate")

		require.NoError(t, p.SetRefreshToken(ctx, u.ID, ""))
		got, err := p.GetUserByID(ctx, u.ID)
		require.NoError(t, err)
		assert.Empty(t, got.RefreshToken)

		assert.Error(t, p.SetRefreshToken(ctx, uuid.New(), "x"))
	})

	t.Run("responses", func(t *testing.T) {
		truncate(t, p)
		u := newUser("dave", models.RoleUser, nil)
		require.NoError(t, p.CreateUser(ctx, u))

		base := time.Now().UTC().Truncate(time.Microsecond)
		older := newResponse(u.ID, 2, base.Add(-time.Hour))
		newer := newResponse(u.ID, 2, base)
		other := newResponse(u.ID, 5, base)
		for _, r := range []*models.FormResponse{older, newer, other} {
			require.NoError(t, p.CreateResponse(ctx, r))
		}

		own, err := p.ListResponsesByUser(ctx, u.ID)
		require.NoError(t, err)
		assert.Len(t, own, 3)

		byType, err := p.ListResponsesByFormType(ctx, 2)
		require.NoError(t, err)
		require.Len(t, byType, 2)
		assert.Equal(t, newer.ID, byType[0].ID)
		assert.Equal(t, older.ID, byType[1].ID)
		assert.Equal(t, older.Responses, byType[1].Responses)

		orphan := newResponse(uuid.New(), 2, base)
		assert.Error(t, p.CreateResponse(ctx, orphan))
	})

	t.Run("conditional decision", func(t *testing.T) {
		truncate(t, p)
		u := newUser("erin", models.RoleUser, nil)
		require.NoError(t, p.CreateUser(ctx, u))
		ft := models.FormType(4)
		reviewer := newUser("reviewer", models.RoleGroupHead, &ft)
		require.NoError(t, p.CreateUser(ctx, reviewer))
		r := newResponse(u.ID, 4, time.Now().UTC())
		require.NoError(t, p.CreateResponse(ctx, r))

		at := time.Now().UTC().Truncate(time.Microsecond)

		// Out of scope
		got, err := p.DecidePendingResponse(ctx, r.ID, models.ResponseScope{FormType: 5}, models.StatusApproved, reviewer.ID, at)
		require.NoError(t, err)
		assert.Nil(t, got)
		scoped, err := p.GetScopedResponse(ctx, r.ID, models.ResponseScope{FormType: 5})
		require.NoError(t, err)
		assert.Nil(t, scoped)

		got, err = p.DecidePendingResponse(ctx, r.ID, models.ResponseScope{FormType: 4}, models.StatusRejected, reviewer.ID, at)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, models.StatusRejected, got.Status)
		require.NotNil(t, got.DecidedAt)
		assert.True(t, at.Equal(*got.DecidedAt))
		require.NotNil(t, got.DecidedBy)
		assert.Equal(t, reviewer.ID, *got.DecidedBy)

		// Already decided
		got, err = p.DecidePendingResponse(ctx, r.ID, models.ResponseScope{AllFormTypes: true}, models.StatusApproved, reviewer.ID, at)
		require.NoError(t, err)
		assert.Nil(t, got)

		scoped, err = p.GetScopedResponse(ctx, r.ID, models.ResponseScope{AllFormTypes: true})
		require.NoError(t, err)
		require.NotNil(t, scoped)
		assert.Equal(t, models.StatusRejected, scoped.Status)
	})

	t.Run("decided since excludes self-certified", func(t *testing.T) {
		truncate(t, p)
		ft := models.FormType(3)
		head := newUser("head", models.RoleGroupHead, &ft)
		require.NoError(t, p.CreateUser(ctx, head))
		submitter := newUser("gina", models.RoleUser, nil)
		require.NoError(t, p.CreateUser(ctx, submitter))

		since := time.Now().UTC().Add(-time.Minute)

		selfCertified := newResponse(head.ID, 3, time.Now().UTC())
		selfCertified.Status = models.StatusApproved
		require.NoError(t, p.CreateResponse(ctx, selfCertified))

		reviewed := newResponse(submitter.ID, 3, time.Now().UTC())
		require.NoError(t, p.CreateResponse(ctx, reviewed))
		_, err := p.DecidePendingResponse(ctx, reviewed.ID, models.ResponseScope{FormType: 3}, models.StatusApproved, head.ID, time.Now().UTC())
		require.NoError(t, err)

		decided, err := p.ListDecidedSince(ctx, since)
		require.NoError(t, err)
		require.Len(t, decided, 1)
		assert.Equal(t, reviewed.ID, decided[0].ID)
		require.NotNil(t, decided[0].DecidedBy)
		assert.Equal(t, head.ID, *decided[0].DecidedBy)

		stored, err := p.GetScopedResponse(ctx, selfCertified.ID, models.ResponseScope{AllFormTypes: true})
		require.NoError(t, err)
		require.NotNil(t, stored)
		assert.Nil(t, stored.DecidedAt)
		assert.Nil(t, stored.DecidedBy)

		later, err := p.ListDecidedSince(ctx, time.Now().UTC().Add(time.Minute))
		require.NoError(t, err)
		assert.Empty(t, later)
	})

	t.Run("concurrent decisions", func(t *testing.T) {
		truncate(t, p)
		u := newUser("frank", models.RoleUser, nil)
		require.NoError(t, p.CreateUser(ctx, u))
		admin := newUser("admin", models.RoleAdmin, nil)
		require.NoError(t, p.CreateUser(ctx, admin))
		r := newResponse(u.ID, 1, time.Now().UTC())
		require.NoError(t, p.CreateResponse(ctx, r))

		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			wins int
		)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				status := models.StatusApproved
				if i%2 == 1 {
					status = models.StatusRejected
				}
				got, err := p.DecidePendingResponse(ctx, r.ID, models.ResponseScope{AllFormTypes: true}, status, admin.ID, time.Now().UTC())
				assert.NoError(t, err)
				if got != nil {
					mu.Lock()
					wins++
					mu.Unlock()
				}
			}(i)
		}
		wg.Wait()
		assert.Equal(t, 1, wins)
	})
}
