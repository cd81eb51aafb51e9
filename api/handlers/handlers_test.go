package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rlms-portal/forms-services/api/middleware"
	"github.com/rlms-portal/forms-services/internal/apierr"
	"github.com/rlms-portal/forms-services/internal/authn"
	"github.com/rlms-portal/forms-services/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type accountsMock struct {
	auth    *models.AuthResponse
	pair    *models.TokenPair
	profile *models.PublicUser
	users   []models.PublicUser
	err     error

	gotAllowAdmin bool
	gotRegister   models.RegisterRequest
	gotRefresh    string
	loggedOut     bool
}

func (m *accountsMock) Register(_ context.Context, req models.RegisterRequest, allowAdmin bool) (*models.AuthResponse, error) {
	m.gotRegister = req
	m.gotAllowAdmin = allowAdmin
	return m.auth, m.err
}

func (m *accountsMock) Login(context.Context, models.LoginRequest) (*models.AuthResponse, error) {
	return m.auth, m.err
}

func (m *accountsMock) Refresh(_ context.Context, token string) (*models.TokenPair, error) {
	m.gotRefresh = token
	return m.pair, m.err
}

func (m *accountsMock) Logout(context.Context, authn.AccessClaims) error {
	m.loggedOut = m.err == nil
	return m.err
}

func (m *accountsMock) Profile(context.Context, authn.AccessClaims) (*models.PublicUser, error) {
	return m.profile, m.err
}

func (m *accountsMock) ListUsers(context.Context) ([]models.PublicUser, error) {
	return m.users, m.err
}

type submissionsMock struct {
	response  *models.FormResponse
	responses []models.FormResponse
	joined    []models.ResponseWithSubmitter
	err       error

	gotFormType   *models.FormType
	gotResponseID string
	gotStatus     models.Status
}

func (m *submissionsMock) Submit(_ context.Context, _ authn.AccessClaims, req models.SubmitRequest) (*models.FormResponse, error) {
	return m.response, m.err
}

func (m *submissionsMock) ListOwn(context.Context, authn.AccessClaims) ([]models.FormResponse, error) {
	return m.responses, m.err
}

func (m *submissionsMock) ListByFormType(_ context.Context, _ authn.AccessClaims, formType *models.FormType) ([]models.ResponseWithSubmitter, error) {
	m.gotFormType = formType
	return m.joined, m.err
}

func (m *submissionsMock) UpdateStatus(_ context.Context, _ authn.AccessClaims, responseID string, status models.Status) (*models.FormResponse, error) {
	m.gotResponseID = responseID
	m.gotStatus = status
	return m.response, m.err
}

func withClaims(req *http.Request, role models.Role) *http.Request {
	ctx := context.WithValue(req.Context(), middleware.ClaimsKey, authn.AccessClaims{
		UserID: uuid.New(),
		Role:   role,
	})
	return req.WithContext(ctx)
}

func decodeErrorBody(t *testing.T, w *httptest.ResponseRecorder) models.Response {
	var body models.Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return body
}

func TestRegister_Created(t *testing.T) {
	svc := &accountsMock{auth: &models.AuthResponse{
		User:      models.PublicUser{ID: uuid.New(), Username: "alice", Role: models.RoleUser},
		TokenPair: models.TokenPair{AccessToken: "access", RefreshToken: "refresh"},
	}}

	body := `{"username":"alice","email":"a@x.com","password":"secret1","role":"group_head","groupHeadFormType":"3"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader(body))
	w := httptest.NewRecorder()
	Register(svc).ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.False(t, svc.gotAllowAdmin)
	require.NotNil(t, svc.gotRegister.GroupHeadFormType)
	assert.Equal(t, models.FormType(3), *svc.gotRegister.GroupHeadFormType)

	var resp map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "access", resp["accessToken"])
	assert.Equal(t, "refresh", resp["refreshToken"])
	user := resp["user"].(map[string]interface{})
	assert.Equal(t, "alice", user["username"])
	assert.NotContains(t, user, "password")
	assert.NotContains(t, user, "refreshToken")
}

func TestRegisterAdmin_AllowsAdmin(t *testing.T) {
	svc := &accountsMock{auth: &models.AuthResponse{}}
	req := httptest.NewRequest(http.MethodPost, "/admin/register-admin",
		strings.NewReader(`{"username":"root","email":"r@x.com","password":"secret1","role":"admin"}`))
	w := httptest.NewRecorder()
	RegisterAdmin(svc).ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.True(t, svc.gotAllowAdmin)
}

func TestRegister_BadBodies(t *testing.T) {
	for _, body := range []string{``, `{`, `{"role":"superuser"}`, `{"groupHeadFormType":"three"}`} {
		svc := &accountsMock{}
		req := httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader(body))
		w := httptest.NewRecorder()
		Register(svc).ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code, body)
		assert.Equal(t, apierr.CodeValidation, decodeErrorBody(t, w).ErrorCode)
	}
}

func TestRegister_ServiceErrors(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{apierr.Conflict("Username or email already exists"), http.StatusConflict},
		{apierr.Authorization(apierr.CodeInsufficientRole, "Admin registration requires special privileges"), http.StatusForbidden},
		{apierr.Internal("failed to create user", assert.AnError), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		svc := &accountsMock{err: tt.err}
		req := httptest.NewRequest(http.MethodPost, "/auth/register",
			strings.NewReader(`{"username":"a","email":"a@x.com","password":"secret1"}`))
		w := httptest.NewRecorder()
		Register(svc).ServeHTTP(w, req)
		assert.Equal(t, tt.code, w.Code)
		assert.Equal(t, 0, decodeErrorBody(t, w).Success)
	}
}

func TestLogin_InvalidCredentials(t *testing.T) {
	svc := &accountsMock{err: apierr.Authentication(apierr.CodeInvalidCredentials, "Invalid credentials")}
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"a@x.com","password":"nope"}`))
	w := httptest.NewRecorder()
	Login(svc).ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	body := decodeErrorBody(t, w)
	assert.Equal(t, apierr.CodeInvalidCredentials, body.ErrorCode)
	assert.Equal(t, "Invalid credentials", body.ErrorDetails)
}

func TestRefresh(t *testing.T) {
	svc := &accountsMock{pair: &models.TokenPair{AccessToken: "a2", RefreshToken: "r2"}}
	req := httptest.NewRequest(http.MethodPost, "/auth/refresh", strings.NewReader(`{"refreshToken":"r1"}`))
	w := httptest.NewRecorder()
	Refresh(svc).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "r1", svc.gotRefresh)

	var pair models.TokenPair
	require.NoError(t, json.NewDecoder(w.Body).Decode(&pair))
	assert.Equal(t, "r2", pair.RefreshToken)
}

func TestRefresh_MissingToken(t *testing.T) {
	svc := &accountsMock{}
	req := httptest.NewRequest(http.MethodPost, "/auth/refresh", strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	Refresh(svc).ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, svc.gotRefresh)
}

func TestLogout(t *testing.T) {
	svc := &accountsMock{}
	req := withClaims(httptest.NewRequest(http.MethodPost, "/auth/logout", nil), models.RoleUser)
	w := httptest.NewRecorder()
	Logout(svc).ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.True(t, svc.loggedOut)
}

func TestHandlers_RequireClaims(t *testing.T) {
	accounts := &accountsMock{}
	subs := &submissionsMock{}
	for name, h := range map[string]http.HandlerFunc{
		"logout":   Logout(accounts),
		"profile":  GetProfile(accounts),
		"submit":   SubmitForm(subs),
		"mine":     GetMySubmissions(subs),
		"review":   GetFormResponses(subs),
		"decision": UpdateResponseStatus(subs),
	} {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code, name)
	}
}

func TestGetProfile(t *testing.T) {
	svc := &accountsMock{profile: &models.PublicUser{Username: "alice", Email: "a@x.com"}}
	req := withClaims(httptest.NewRequest(http.MethodGet, "/users/me", nil), models.RoleUser)
	w := httptest.NewRecorder()
	GetProfile(svc).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var profile models.PublicUser
	require.NoError(t, json.NewDecoder(w.Body).Decode(&profile))
	assert.Equal(t, "alice", profile.Username)
}

func TestGetUsers(t *testing.T) {
	svc := &accountsMock{users: []models.PublicUser{{Username: "alice"}, {Username: "bob"}}}
	req := withClaims(httptest.NewRequest(http.MethodGet, "/admin/users", nil), models.RoleAdmin)
	w := httptest.NewRecorder()
	GetUsers(svc).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var users []models.PublicUser
	require.NoError(t, json.NewDecoder(w.Body).Decode(&users))
	assert.Len(t, users, 2)
}

func TestHealth(t *testing.T) {
	w := httptest.NewRecorder()
	Health().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, w.Body.String())
}

func TestSubmitForm(t *testing.T) {
	now := time.Now().UTC()
	svc := &submissionsMock{response: &models.FormResponse{
		ID:        uuid.New(),
		FormType:  3,
		Responses: models.Entries{{Question: "Wear PPE?", Answer: models.AnswerYes}},
		Status:    models.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}}
	req := httptest.NewRequest(http.MethodPost, "/forms/submit",
		strings.NewReader(`{"formType":3,"responses":[{"question":"Wear PPE?","answer":"yes"}]}`))
	w := httptest.NewRecorder()
	SubmitForm(svc).ServeHTTP(w, withClaims(req, models.RoleUser))

	assert.Equal(t, http.StatusCreated, w.Code)
	var created models.FormResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&created))
	assert.Equal(t, models.StatusPending, created.Status)
	assert.Equal(t, models.FormType(3), created.FormType)
}

func TestSubmitForm_InvalidAnswer(t *testing.T) {
	svc := &submissionsMock{}
	req := httptest.NewRequest(http.MethodPost, "/forms/submit",
		strings.NewReader(`{"formType":3,"responses":[{"question":"Wear PPE?","answer":"maybe"}]}`))
	w := httptest.NewRecorder()
	SubmitForm(svc).ServeHTTP(w, withClaims(req, models.RoleUser))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetMySubmissions_StoreFailure(t *testing.T) {
	svc := &submissionsMock{err: apierr.Internal("failed to retrieve submissions", assert.AnError)}
	req := withClaims(httptest.NewRequest(http.MethodGet, "/forms/my-submissions", nil), models.RoleUser)
	w := httptest.NewRecorder()
	GetMySubmissions(svc).ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, apierr.CodeInternal, decodeErrorBody(t, w).ErrorCode)
}

func TestGetFormResponses_FormTypeSources(t *testing.T) {
	tests := []struct {
		name   string
		target string
		vars   map[string]string
		want   *models.FormType
	}{
		{name: "none", target: "/grouphead/responses"},
		{name: "path", target: "/grouphead/responses/4", vars: map[string]string{"formType": "4"}, want: ftPtr(4)},
		{name: "query", target: "/grouphead/responses?formType=6", want: ftPtr(6)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &submissionsMock{joined: []models.ResponseWithSubmitter{}}
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.vars != nil {
				req = mux.SetURLVars(req, tt.vars)
			}
			w := httptest.NewRecorder()
			GetFormResponses(svc).ServeHTTP(w, withClaims(req, models.RoleAdmin))

			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tt.want, svc.gotFormType)
			assert.JSONEq(t, `[]`, w.Body.String())
		})
	}
}

func TestGetFormResponses_BadFormType(t *testing.T) {
	for _, v := range []string{"0", "10", "abc"} {
		svc := &submissionsMock{}
		req := mux.SetURLVars(httptest.NewRequest(http.MethodGet, "/grouphead/responses/"+v, nil),
			map[string]string{"formType": v})
		w := httptest.NewRecorder()
		GetFormResponses(svc).ServeHTTP(w, withClaims(req, models.RoleAdmin))
		assert.Equal(t, http.StatusBadRequest, w.Code, v)
	}
}

func TestUpdateResponseStatus(t *testing.T) {
	id := uuid.New()
	svc := &submissionsMock{response: &models.FormResponse{ID: id, Status: models.StatusApproved}}
	req := httptest.NewRequest(http.MethodPatch, "/grouphead/responses/"+id.String(), strings.NewReader(`{"status":"approved"}`))
	req = mux.SetURLVars(req, map[string]string{"responseId": id.String()})
	w := httptest.NewRecorder()
	UpdateResponseStatus(svc).ServeHTTP(w, withClaims(req, models.RoleGroupHead))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, id.String(), svc.gotResponseID)
	assert.Equal(t, models.StatusApproved, svc.gotStatus)
}

func TestUpdateResponseStatus_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		err  error
		code int
	}{
		{"unknown status", `{"status":"archived"}`, nil, http.StatusBadRequest},
		{"not found", `{"status":"rejected"}`, apierr.NotFound("Response not found"), http.StatusNotFound},
		{"already decided", `{"status":"rejected"}`, apierr.Conflict("Response already approved"), http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &submissionsMock{err: tt.err}
			req := httptest.NewRequest(http.MethodPatch, "/grouphead/responses/x", strings.NewReader(tt.body))
			req = mux.SetURLVars(req, map[string]string{"responseId": "x"})
			w := httptest.NewRecorder()
			UpdateResponseStatus(svc).ServeHTTP(w, withClaims(req, models.RoleGroupHead))
			assert.Equal(t, tt.code, w.Code)
		})
	}
}

func ftPtr(n int) *models.FormType {
	ft := models.FormType(n)
	return &ft
}
