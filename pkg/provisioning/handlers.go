package provisioning

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/fedid/guestsync/pkg/authority"
	"github.com/fedid/guestsync/pkg/httputil"
)

// FailureHandlers exposes the operator-facing failure inspection and
// replay endpoints.
type FailureHandlers struct {
	store   FailureStore
	sync    *Synchronizer
	checker authority.Checker
	log     *logrus.Entry
}

// NewFailureHandlers creates new FailureHandlers
func NewFailureHandlers(store FailureStore, sync *Synchronizer, checker authority.Checker, log *logrus.Entry) *FailureHandlers {
	return &FailureHandlers{store: store, sync: sync, checker: checker, log: log}
}

// RegisterRoutes registers the failure routes
func (h *FailureHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/institutions/{institutionID}/scim-failures", h.listFailures).Methods("GET")
	router.HandleFunc("/scim-failures/{id}", h.getFailure).Methods("GET")
	router.HandleFunc("/scim-failures/{id}/resend", h.resendFailure).Methods("POST")
	router.HandleFunc("/scim-failures/{id}", h.discardFailure).Methods("DELETE")
}

// listFailures handles GET /institutions/{institutionID}/scim-failures
func (h *FailureHandlers) listFailures(w http.ResponseWriter, r *http.Request) {
	institutionID, ok := httputil.ParsePathInt64OrError(w, r, "institutionID")
	if !ok {
		return
	}
	if !authority.Require(w, r, h.checker, authority.ActionManageFailures, institutionID) {
		return
	}

	failures, err := h.store.ListByInstitution(r.Context(), institutionID)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, failures)
}

// getFailure handles GET /scim-failures/{id}
func (h *FailureHandlers) getFailure(w http.ResponseWriter, r *http.Request) {
	failure, ok := h.loadAuthorized(w, r)
	if !ok {
		return
	}
	httputil.WriteSuccess(w, failure)
}

// resendFailure handles POST /scim-failures/{id}/resend. The record is
// deleted whether or not the replay succeeds; a failed replay surfaces
// as a 502 and, if it was itself capturable, exists as a fresh record.
func (h *FailureHandlers) resendFailure(w http.ResponseWriter, r *http.Request) {
	failure, ok := h.loadAuthorized(w, r)
	if !ok {
		return
	}

	replayErr := h.sync.ResendFailure(r.Context(), failure)

	if err := h.store.Delete(r.Context(), failure.ID); err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	if replayErr != nil {
		h.log.WithError(replayErr).WithField("failure_id", failure.ID).Warn("failure replay failed")
		httputil.WriteError(w, http.StatusBadGateway, replayErr)
		return
	}
	httputil.WriteSuccess(w, map[string]string{"status": "resent"})
}

// discardFailure handles DELETE /scim-failures/{id}
func (h *FailureHandlers) discardFailure(w http.ResponseWriter, r *http.Request) {
	failure, ok := h.loadAuthorized(w, r)
	if !ok {
		return
	}
	if err := h.store.Delete(r.Context(), failure.ID); err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (h *FailureHandlers) loadAuthorized(w http.ResponseWriter, r *http.Request) (*SCIMFailure, bool) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return nil, false
	}
	failure, err := h.store.Get(r.Context(), id)
	if err != nil {
		httputil.WriteNotFoundError(w, err.Error())
		return nil, false
	}
	if !authority.Require(w, r, h.checker, authority.ActionManageFailures, failure.InstitutionID) {
		return nil, false
	}
	return failure, true
}
