package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rlms-portal/forms-services/api/respond"
	"github.com/rlms-portal/forms-services/internal/apierr"
	"github.com/rlms-portal/forms-services/models"
	"github.com/rs/zerolog"
)

// @Summary Submit a form
// @Description Store a questionnaire response. Responses from group heads and admins are approved on creation.
// @Tags forms
// @Accept json
// @Produce json
// @Param body body models.SubmitRequest true "Form response"
// @Success 201 {object} models.FormResponse
// @Failure 400 {object} models.Response
// @Failure 401 {object} models.Response
// @Failure 403 {object} models.Response
// @Security BearerAuth
// @Router /forms/submit [post]
func SubmitForm(svc Submissions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := claimsOrReject(w, r)
		if !ok {
			return
		}

		var req models.SubmitRequest
		if err := respond.DecodeJSON(r, &req); err != nil {
			respond.WriteError(w, r, err)
			return
		}

		created, err := svc.Submit(r.Context(), claims, req)
		if err != nil {
			respond.WriteError(w, r, err)
			return
		}

		zerolog.Ctx(r.Context()).Info().
			Str("response_id", created.ID.String()).
			Int("form_type", int(created.FormType)).
			Str("status", string(created.Status)).
			Msg("form submitted")

		respond.WriteResponse(w, http.StatusCreated, created)
	}
}

// @Summary My submissions
// @Tags forms
// @Produce json
// @Success 200 {array} models.FormResponse
// @Failure 401 {object} models.Response
// @Failure 403 {object} models.Response
// @Failure 500 {object} models.Response
// @Security BearerAuth
// @Router /forms/my-submissions [get]
func GetMySubmissions(svc Submissions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := claimsOrReject(w, r)
		if !ok {
			return
		}
		responses, err := svc.ListOwn(r.Context(), claims)
		if err != nil {
			respond.WriteError(w, r, err)
			return
		}
		respond.WriteResponse(w, http.StatusOK, responses)
	}
}

// @Summary Responses for review
// @Description List the responses of a form type with their submitters. Group heads default to their own form type; admins must name one.
// @Tags grouphead
// @Produce json
// @Param formType path int false "Form type (1-9)"
// @Param formType query int false "Form type (1-9), when not given in the path"
// @Success 200 {array} models.ResponseWithSubmitter
// @Failure 400 {object} models.Response
// @Failure 401 {object} models.Response
// @Failure 403 {object} models.Response
// @Failure 500 {object} models.Response
// @Security BearerAuth
// @Router /grouphead/responses [get]
// @Router /grouphead/responses/{formType} [get]
func GetFormResponses(svc Submissions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := claimsOrReject(w, r)
		if !ok {
			return
		}

		var formType *models.FormType
		v, found := mux.Vars(r)["formType"]
		if !found {
			v = r.URL.Query().Get("formType")
			found = v != ""
		}
		if found {
			ft, err := models.ParseFormType(v)
			if err != nil {
				respond.WriteError(w, r, apierr.Validation("%s", err.Error()))
				return
			}
			formType = &ft
		}

		responses, err := svc.ListByFormType(r.Context(), claims, formType)
		if err != nil {
			respond.WriteError(w, r, err)
			return
		}
		respond.WriteResponse(w, http.StatusOK, responses)
	}
}

// @Summary Approve or reject a response
// @Description Decide a pending response within the caller's form type. Responses outside the caller's scope are reported as not found.
// @Tags grouphead
// @Accept json
// @Produce json
// @Param responseId path string true "Response ID"
// @Param body body models.StatusUpdateRequest true "New status"
// @Success 200 {object} models.FormResponse
// @Failure 400 {object} models.Response
// @Failure 401 {object} models.Response
// @Failure 403 {object} models.Response
// @Failure 404 {object} models.Response
// @Failure 409 {object} models.Response
// @Security BearerAuth
// @Router /grouphead/responses/{responseId} [patch]
func UpdateResponseStatus(svc Submissions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := claimsOrReject(w, r)
		if !ok {
			return
		}

		var req models.StatusUpdateRequest
		if err := respond.DecodeJSON(r, &req); err != nil {
			respond.WriteError(w, r, err)
			return
		}

		updated, err := svc.UpdateStatus(r.Context(), claims, mux.Vars(r)["responseId"], req.Status)
		if err != nil {
			respond.WriteError(w, r, err)
			return
		}
		respond.WriteResponse(w, http.StatusOK, updated)
	}
}
