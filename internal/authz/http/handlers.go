package authzhttp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/workboard/projectguard/internal/authz"
	"github.com/workboard/projectguard/internal/grants"
	"github.com/workboard/projectguard/internal/platform/httpx"
	"github.com/workboard/projectguard/internal/policy"
	"github.com/workboard/projectguard/internal/shared"
)

// GrantService is the subset of grants.Service the handlers need.
type GrantService interface {
	Get(ctx context.Context, projectID, userID string) (grants.Record, error)
	List(ctx context.Context, projectID string, page, perPage int) ([]grants.Record, shared.Pagination, error)
	Assign(ctx context.Context, in grants.AssignInput) (grants.Record, error)
	Revoke(ctx context.Context, projectID, userID, actorID string) error
}

// Handler serves the permission API.
type Handler struct {
	logger    *slog.Logger
	grants    GrantService
	authz     authz.Middleware
	validator *validator.Validate
	writeRate int
}

// NewHandler builds a Handler. writesPerMinute bounds grant writes per caller;
// zero disables the limit.
func NewHandler(logger *slog.Logger, grantSvc GrantService, mw authz.Middleware, writesPerMinute int) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:    logger,
		grants:    grantSvc,
		authz:     mw,
		validator: validator.New(validator.WithRequiredStructEnabled()),
		writeRate: writesPerMinute,
	}
}

type ownershipRequest struct {
	OwnerUserID string `json:"owner_user_id" validate:"required"`
	Kind        string `json:"kind" validate:"required"`
	Action      string `json:"action"`
}

type checkRequest struct {
	Capability string            `json:"capability" validate:"required"`
	Ownership  *ownershipRequest `json:"ownership" validate:"omitempty"`
}

type checkResponse struct {
	Capability string `json:"capability"`
	policy.Decision
}

type assignRequest struct {
	Tokens []string `json:"tokens" validate:"omitempty,max=32,dive,required,max=64"`
	Preset string   `json:"preset" validate:"omitempty,max=64"`
	Add    []string `json:"add" validate:"omitempty,max=32,dive,required,max=64"`
	Remove []string `json:"remove" validate:"omitempty,max=32,dive,required,max=64"`
}

type grantResponse struct {
	ProjectID string               `json:"project_id"`
	UserID    string               `json:"user_id"`
	Tokens    policy.CapabilitySet `json:"tokens"`
	Revision  string               `json:"revision,omitempty"`
	UpdatedBy string               `json:"updated_by,omitempty"`
	UpdatedAt *time.Time           `json:"updated_at,omitempty"`
}

type grantListResponse struct {
	Data       []grantResponse   `json:"data"`
	Pagination shared.Pagination `json:"pagination"`
}

type effectiveResponse struct {
	ProjectID    string               `json:"project_id"`
	UserID       string               `json:"user_id"`
	Capabilities policy.CapabilitySet `json:"capabilities"`
}

func (h *Handler) handlePresets(w http.ResponseWriter, r *http.Request) {
	presets := policy.Presets()
	for i := range presets {
		presets[i].Tokens = presets[i].Tokens.With(policy.CapView)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": presets})
}

func (h *Handler) handlePreset(w http.ResponseWriter, r *http.Request) {
	preset, err := policy.LookupPreset(chi.URLParam(r, "name"))
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrNotFound, err))
		return
	}
	preset.Tokens = preset.Tokens.With(policy.CapView)
	httpx.JSON(w, http.StatusOK, preset)
}

func (h *Handler) handleCapabilities(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, map[string]any{"data": policy.Catalog()})
}

func (h *Handler) handleCheck(w http.ResponseWriter, r *http.Request) {
	scope, ok := authz.ScopeFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrMissingCredentials)
		return
	}
	var req checkRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}

	capability := policy.Capability(strings.TrimSpace(req.Capability))
	if parsed, err := policy.ParseCapability(req.Capability); err == nil {
		capability = parsed
	}
	var own *policy.Ownership
	if req.Ownership != nil {
		own = &policy.Ownership{
			OwnerUserID: strings.TrimSpace(req.Ownership.OwnerUserID),
			Kind:        policy.ResourceKind(strings.ToLower(strings.TrimSpace(req.Ownership.Kind))),
			Action:      policy.OwnershipAction(strings.ToLower(strings.TrimSpace(req.Ownership.Action))),
		}
	}

	d := scope.Check(capability, own)
	httpx.JSON(w, http.StatusOK, checkResponse{Capability: string(capability), Decision: d})
}

func (h *Handler) handleEffective(w http.ResponseWriter, r *http.Request) {
	scope, ok := authz.ScopeFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrMissingCredentials)
		return
	}
	httpx.JSON(w, http.StatusOK, effectiveResponse{
		ProjectID:    scope.Membership().ProjectID,
		UserID:       scope.Identity().UserID,
		Capabilities: scope.Effective(),
	})
}

func (h *Handler) handleListGrants(w http.ResponseWriter, r *http.Request) {
	page, perPage := shared.PageParams(r.URL.Query())
	records, pagination, err := h.grants.List(r.Context(), chi.URLParam(r, "projectID"), page, perPage)
	if err != nil {
		h.respondError(w, "list grants", err)
		return
	}
	out := grantListResponse{Data: make([]grantResponse, 0, len(records)), Pagination: pagination}
	for _, rec := range records {
		out.Data = append(out.Data, toGrantResponse(rec))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) handleGetGrant(w http.ResponseWriter, r *http.Request) {
	scope, ok := authz.ScopeFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrMissingCredentials)
		return
	}
	projectID := chi.URLParam(r, "projectID")
	userID := chi.URLParam(r, "userID")
	if !scope.Membership().IsMember(userID) {
		httpx.RespondError(w, fmt.Errorf("user %s: %w", userID, httpx.ErrNotFound))
		return
	}
	rec, err := h.grants.Get(r.Context(), projectID, userID)
	if errors.Is(err, httpx.ErrNotFound) {
		// No record is a valid state: the member holds an empty grant.
		httpx.JSON(w, http.StatusOK, grantResponse{ProjectID: projectID, UserID: userID})
		return
	}
	if err != nil {
		h.respondError(w, "get grant", err)
		return
	}
	w.Header().Set("ETag", etag(rec))
	httpx.JSON(w, http.StatusOK, toGrantResponse(rec))
}

func (h *Handler) handleAssign(w http.ResponseWriter, r *http.Request) {
	scope, ok := authz.ScopeFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrMissingCredentials)
		return
	}
	var req assignRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	in := grants.AssignInput{
		ProjectID: chi.URLParam(r, "projectID"),
		UserID:    chi.URLParam(r, "userID"),
		ActorID:   scope.Identity().UserID,
		Tokens:    req.Tokens,
		Preset:    req.Preset,
		Add:       req.Add,
		Remove:    req.Remove,
		Ceiling:   scope.Effective(),
	}
	tokens, err := grants.ResolveTokens(in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	// An empty assignment revokes the grant, so it takes the revoke gate.
	if tokens.IsEmpty() {
		if d := scope.Check(policy.CapAdmin, nil); !d.Allowed {
			httpx.Problem(w, http.StatusForbidden, "Forbidden", string(d.Reason))
			return
		}
	}
	rec, err := h.grants.Assign(r.Context(), in)
	if err != nil {
		h.respondError(w, "assign grant", err)
		return
	}
	w.Header().Set("ETag", etag(rec))
	httpx.JSON(w, http.StatusOK, toGrantResponse(rec))
}

func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	scope, ok := authz.ScopeFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrMissingCredentials)
		return
	}
	err := h.grants.Revoke(r.Context(), chi.URLParam(r, "projectID"), chi.URLParam(r, "userID"), scope.Identity().UserID)
	if err != nil {
		h.respondError(w, "revoke grant", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) decode(r *http.Request, target any) error {
	if err := httpx.DecodeJSON(r, target); err != nil {
		return err
	}
	if err := h.validator.Struct(target); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			fields := make([]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				fields = append(fields, fe.Namespace()+" "+fe.Tag())
			}
			return fmt.Errorf("%w: %s", httpx.ErrValidation, strings.Join(fields, "; "))
		}
		return fmt.Errorf("%w: %v", httpx.ErrValidation, err)
	}
	return nil
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, httpx.ErrNotFound),
		errors.Is(err, httpx.ErrValidation),
		errors.Is(err, httpx.ErrForbidden),
		errors.Is(err, httpx.ErrUnprocessable):
		h.logger.Debug(op, slog.Any("error", err))
	default:
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func toGrantResponse(rec grants.Record) grantResponse {
	out := grantResponse{
		ProjectID: rec.ProjectID,
		UserID:    rec.UserID,
		Tokens:    rec.Tokens,
		Revision:  rec.Revision.String(),
		UpdatedBy: rec.UpdatedBy,
	}
	if !rec.UpdatedAt.IsZero() {
		at := rec.UpdatedAt
		out.UpdatedAt = &at
	}
	return out
}

func etag(rec grants.Record) string {
	return `"` + rec.Revision.String() + `"`
}
