package acl

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/cccs-paul/rcbudget/pkg/httputil"
	"github.com/cccs-paul/rcbudget/pkg/observability"
)

// Handlers provides HTTP handlers for permission operations
type Handlers struct {
	engine *Engine
	logger *observability.Logger
}

// NewHandlers creates new permission handlers
func NewHandlers(engine *Engine, logger *observability.Logger) *Handlers {
	return &Handlers{engine: engine, logger: logger}
}

// RegisterRoutes registers all permission routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/centres/{id}/permissions", h.ListPermissions).Methods("GET")
	router.HandleFunc("/centres/{id}/permissions/users", h.GrantUserAccess).Methods("POST")
	router.HandleFunc("/centres/{id}/permissions/groups", h.GrantGroupAccess).Methods("POST")
	router.HandleFunc("/centres/{id}/access", h.GetEffectiveAccess).Methods("GET")
	router.HandleFunc("/permissions/{id}", h.UpdatePermission).Methods("PUT")
	router.HandleFunc("/permissions/{id}", h.RevokeAccess).Methods("DELETE")
}

// writeEngineError maps engine failures onto HTTP statuses using the error
// variants, never message contents.
func (h *Handlers) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	var ae *AuthorizationError
	if errors.As(err, &ae) {
		httputil.WriteForbidden(w, ae.Message)
		return
	}

	var ve *ValidationError
	if errors.As(err, &ve) {
		switch ve.Code {
		case CodeNotFound:
			httputil.WriteNotFound(w, ve.Message)
		case CodeDuplicate:
			httputil.WriteConflict(w, ve.Message)
		default:
			httputil.WriteBadRequest(w, ve.Message)
		}
		return
	}

	observability.FromContext(r.Context()).WithError(err).Error("permission operation failed")
	httputil.WriteInternalError(w, errors.New("internal server error"))
}

func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	return id, err == nil
}

func requester(w http.ResponseWriter, r *http.Request) (string, bool) {
	identifier := observability.GetRequester(r.Context())
	if identifier == "" {
		httputil.WriteUnauthorized(w, "Authentication required")
		return "", false
	}
	return identifier, true
}

// ListPermissions returns every grant on a centre plus the synthesized
// owner entry. Owner only.
func (h *Handlers) ListPermissions(w http.ResponseWriter, r *http.Request) {
	centreID, ok := pathID(r, "id")
	if !ok {
		httputil.WriteBadRequest(w, "Invalid centre id")
		return
	}
	identifier, ok := requester(w, r)
	if !ok {
		return
	}

	grants, err := h.engine.PermissionsForCentre(r.Context(), centreID, identifier)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"permissions": grants})
}

// GrantUserAccess grants a user access to a centre
func (h *Handlers) GrantUserAccess(w http.ResponseWriter, r *http.Request) {
	centreID, ok := pathID(r, "id")
	if !ok {
		httputil.WriteBadRequest(w, "Invalid centre id")
		return
	}
	identifier, ok := requester(w, r)
	if !ok {
		return
	}

	var req struct {
		Identifier  string      `json:"identifier"`
		AccessLevel AccessLevel `json:"access_level"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequest(w, "Invalid request body")
		return
	}
	if req.Identifier == "" {
		httputil.WriteBadRequest(w, "identifier is required")
		return
	}

	grant, err := h.engine.GrantUserAccess(r.Context(), centreID, identifier, req.Identifier, req.AccessLevel)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	httputil.WriteCreated(w, grant)
}

// GrantGroupAccess grants a group or distribution list access to a centre
func (h *Handlers) GrantGroupAccess(w http.ResponseWriter, r *http.Request) {
	centreID, ok := pathID(r, "id")
	if !ok {
		httputil.WriteBadRequest(w, "Invalid centre id")
		return
	}
	identifier, ok := requester(w, r)
	if !ok {
		return
	}

	var req struct {
		Identifier    string        `json:"identifier"`
		DisplayName   string        `json:"display_name"`
		PrincipalType PrincipalType `json:"principal_type"`
		AccessLevel   AccessLevel   `json:"access_level"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequest(w, "Invalid request body")
		return
	}
	if req.Identifier == "" {
		httputil.WriteBadRequest(w, "identifier is required")
		return
	}

	grant, err := h.engine.GrantGroupAccess(r.Context(), centreID, identifier, req.Identifier, req.DisplayName, req.PrincipalType, req.AccessLevel)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	httputil.WriteCreated(w, grant)
}

// GetEffectiveAccess reports the requester's effective access to a centre.
// Group memberships are supplied by the caller as a comma-separated list;
// membership resolution happens upstream.
func (h *Handlers) GetEffectiveAccess(w http.ResponseWriter, r *http.Request) {
	centreID, ok := pathID(r, "id")
	if !ok {
		httputil.WriteBadRequest(w, "Invalid centre id")
		return
	}
	identifier, ok := requester(w, r)
	if !ok {
		return
	}

	var groups []string
	if raw := r.URL.Query().Get("groups"); raw != "" {
		for _, g := range strings.Split(raw, ",") {
			if g = strings.TrimSpace(g); g != "" {
				groups = append(groups, g)
			}
		}
	}

	level, found, err := h.engine.EffectiveAccessLevel(r.Context(), centreID, identifier, groups)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	resp := map[string]interface{}{
		"has_access": found,
	}
	if found {
		resp["access_level"] = level
		resp["can_edit"] = level.AtLeast(LevelReadWrite)
	}
	httputil.WriteSuccess(w, resp)
}

// UpdatePermission changes a grant's access level
func (h *Handlers) UpdatePermission(w http.ResponseWriter, r *http.Request) {
	grantID, ok := pathID(r, "id")
	if !ok {
		httputil.WriteBadRequest(w, "Invalid grant id")
		return
	}
	identifier, ok := requester(w, r)
	if !ok {
		return
	}

	var req struct {
		AccessLevel AccessLevel `json:"access_level"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequest(w, "Invalid request body")
		return
	}

	grant, err := h.engine.UpdatePermission(r.Context(), grantID, identifier, req.AccessLevel)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, grant)
}

// RevokeAccess deletes a grant
func (h *Handlers) RevokeAccess(w http.ResponseWriter, r *http.Request) {
	grantID, ok := pathID(r, "id")
	if !ok {
		httputil.WriteBadRequest(w, "Invalid grant id")
		return
	}
	identifier, ok := requester(w, r)
	if !ok {
		return
	}

	if err := h.engine.RevokeAccess(r.Context(), grantID, identifier); err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}
