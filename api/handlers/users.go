package handlers

import (
	"net/http"

	"github.com/rlms-portal/forms-services/api/respond"
	"github.com/rlms-portal/forms-services/models"
)

// @Summary Current user
// @Tags users
// @Produce json
// @Success 200 {object} models.PublicUser
// @Failure 401 {object} models.Response
// @Failure 404 {object} models.Response
// @Security BearerAuth
// @Router /users/me [get]
func GetProfile(svc Accounts) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := claimsOrReject(w, r)
		if !ok {
			return
		}
		profile, err := svc.Profile(r.Context(), claims)
		if err != nil {
			respond.WriteError(w, r, err)
			return
		}
		respond.WriteResponse(w, http.StatusOK, profile)
	}
}

// @Summary List users
// @Tags admin
// @Produce json
// @Success 200 {array} models.PublicUser
// @Failure 401 {object} models.Response
// @Failure 403 {object} models.Response
// @Security BearerAuth
// @Router /admin/users [get]
func GetUsers(svc Accounts) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		users, err := svc.ListUsers(r.Context())
		if err != nil {
			respond.WriteError(w, r, err)
			return
		}
		respond.WriteResponse(w, http.StatusOK, users)
	}
}

// @Summary Health check
// @Tags health
// @Produce json
// @Success 200 {object} models.HealthResponse
// @Router /health [get]
func Health() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respond.WriteResponse(w, http.StatusOK, models.HealthResponse{Status: "healthy"})
	}
}
