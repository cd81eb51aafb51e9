package handlers

import (
	"net/http"

	"github.com/rlms-portal/forms-services/api/respond"
	"github.com/rlms-portal/forms-services/internal/apierr"
	"github.com/rlms-portal/forms-services/models"
)

// @Summary Register a user
// @Description Create a user or group head account and open a session. Admin accounts cannot be created here.
// @Tags auth
// @Accept json
// @Produce json
// @Param body body models.RegisterRequest true "Registration details"
// @Success 201 {object} models.AuthResponse
// @Failure 400 {object} models.Response
// @Failure 403 {object} models.Response
// @Failure 409 {object} models.Response
// @Router /auth/register [post]
func Register(svc Accounts) http.HandlerFunc {
	return register(svc, false)
}

// @Summary Register an admin
// @Description Create an account of any role, including admin.
// @Tags admin
// @Accept json
// @Produce json
// @Param body body models.RegisterRequest true "Registration details"
// @Success 201 {object} models.AuthResponse
// @Failure 400 {object} models.Response
// @Failure 401 {object} models.Response
// @Failure 403 {object} models.Response
// @Failure 409 {object} models.Response
// @Security BearerAuth
// @Router /admin/register-admin [post]
func RegisterAdmin(svc Accounts) http.HandlerFunc {
	return register(svc, true)
}

func register(svc Accounts, allowAdmin bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req models.RegisterRequest
		if err := respond.DecodeJSON(r, &req); err != nil {
			respond.WriteError(w, r, err)
			return
		}

		resp, err := svc.Register(r.Context(), req, allowAdmin)
		if err != nil {
			respond.WriteError(w, r, err)
			return
		}
		respond.WriteResponse(w, http.StatusCreated, resp)
	}
}

// @Summary Log in
// @Description Exchange email and password for a token pair. Any earlier refresh token stops working.
// @Tags auth
// @Accept json
// @Produce json
// @Param body body models.LoginRequest true "Credentials"
// @Success 200 {object} models.AuthResponse
// @Failure 400 {object} models.Response
// @Failure 401 {object} models.Response
// @Router /auth/login [post]
func Login(svc Accounts) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req models.LoginRequest
		if err := respond.DecodeJSON(r, &req); err != nil {
			respond.WriteError(w, r, err)
			return
		}

		resp, err := svc.Login(r.Context(), req)
		if err != nil {
			respond.WriteError(w, r, err)
			return
		}
		respond.WriteResponse(w, http.StatusOK, resp)
	}
}

// @Summary Refresh tokens
// @Description Exchange the current refresh token for a new pair. The presented token is single use.
// @Tags auth
// @Accept json
// @Produce json
// @Param body body models.RefreshRequest true "Refresh token"
// @Success 200 {object} models.TokenPair
// @Failure 400 {object} models.Response
// @Failure 401 {object} models.Response
// @Router /auth/refresh [post]
func Refresh(svc Accounts) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req models.RefreshRequest
		if err := respond.DecodeJSON(r, &req); err != nil {
			respond.WriteError(w, r, err)
			return
		}
		if req.RefreshToken == "" {
			respond.WriteError(w, r, apierr.Authentication(apierr.CodeMissingToken, "No token provided"))
			return
		}

		pair, err := svc.Refresh(r.Context(), req.RefreshToken)
		if err != nil {
			respond.WriteError(w, r, err)
			return
		}
		respond.WriteResponse(w, http.StatusOK, pair)
	}
}

// @Summary Log out
// @Description Revoke the caller's refresh token.
// @Tags auth
// @Success 204
// @Failure 401 {object} models.Response
// @Security BearerAuth
// @Router /auth/logout [post]
func Logout(svc Accounts) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := claimsOrReject(w, r)
		if !ok {
			return
		}
		if err := svc.Logout(r.Context(), claims); err != nil {
			respond.WriteError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
