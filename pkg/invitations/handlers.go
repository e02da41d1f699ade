package invitations

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/fedid/guestsync/pkg/authority"
	"github.com/fedid/guestsync/pkg/httputil"
)

// Handlers exposes the invitation endpoints.
type Handlers struct {
	service *Service
	store   Store
	checker authority.Checker
}

// NewHandlers creates new Handlers
func NewHandlers(service *Service, store Store, checker authority.Checker) *Handlers {
	return &Handlers{service: service, store: store, checker: checker}
}

// RegisterRoutes registers the invitation routes on the authenticated
// router; RegisterPublicRoutes the token-based guest routes.
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/institutions/{institutionID}/invitations", h.createInvitation).Methods("POST")
	router.HandleFunc("/institutions/{institutionID}/invitations", h.listInvitations).Methods("GET")
}

// RegisterPublicRoutes registers the guest-facing accept/decline routes
func (h *Handlers) RegisterPublicRoutes(router *mux.Router) {
	router.HandleFunc("/invitations/{token}/accept", h.acceptInvitation).Methods("POST")
	router.HandleFunc("/invitations/{token}/decline", h.declineInvitation).Methods("POST")
}

// createInvitation handles POST /institutions/{institutionID}/invitations
func (h *Handlers) createInvitation(w http.ResponseWriter, r *http.Request) {
	institutionID, ok := httputil.ParsePathInt64OrError(w, r, "institutionID")
	if !ok {
		return
	}
	if !authority.Require(w, r, h.checker, authority.ActionInviteUsers, institutionID) {
		return
	}

	var req CreateRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	level := authority.LevelGuest
	if req.IntendedLevel != "" {
		parsed, err := authority.ParseLevel(req.IntendedLevel)
		if err != nil {
			httputil.WriteBadRequest(w, err.Error())
			return
		}
		level = parsed
	}

	inv := &Invitation{
		InstitutionID: institutionID,
		Email:         req.Email,
		RoleIDs:       req.RoleIDs,
		IntendedLevel: level,
		Message:       req.Message,
		InvitedBy:     authority.FromContext(r.Context()).PrincipalName,
	}
	if req.ExpiryDays > 0 {
		inv.ExpiresAt = time.Now().AddDate(0, 0, req.ExpiryDays)
	}
	if err := h.service.Invite(r.Context(), inv); err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	httputil.WriteCreated(w, inv)
}

// listInvitations handles GET /institutions/{institutionID}/invitations
func (h *Handlers) listInvitations(w http.ResponseWriter, r *http.Request) {
	institutionID, ok := httputil.ParsePathInt64OrError(w, r, "institutionID")
	if !ok {
		return
	}
	if !authority.Require(w, r, h.checker, authority.ActionInviteUsers, institutionID) {
		return
	}
	invitations, err := h.store.ListByInstitution(r.Context(), institutionID)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, invitations)
}

// acceptInvitation handles POST /invitations/{token}/accept
func (h *Handlers) acceptInvitation(w http.ResponseWriter, r *http.Request) {
	token := mux.Vars(r)["token"]
	var req AcceptRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	user, err := h.service.Accept(r.Context(), token, req)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	httputil.WriteSuccess(w, user)
}

// declineInvitation handles POST /invitations/{token}/decline
func (h *Handlers) declineInvitation(w http.ResponseWriter, r *http.Request) {
	token := mux.Vars(r)["token"]
	if err := h.service.Decline(r.Context(), token); err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	httputil.WriteNoContent(w)
}
