package authzhttp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/workboard/projectguard/internal/authz"
	"github.com/workboard/projectguard/internal/grants"
	"github.com/workboard/projectguard/internal/platform/httpx"
	"github.com/workboard/projectguard/internal/policy"
	"github.com/workboard/projectguard/internal/shared"
)

type stubProjects map[string]policy.Membership

func (s stubProjects) Membership(_ context.Context, projectID string) (policy.Membership, error) {
	m, ok := s[projectID]
	if !ok {
		return policy.Membership{}, httpx.ErrNotFound
	}
	return m, nil
}

type stubGrantService struct {
	records  map[string]grants.Record
	assigned []grants.AssignInput
	revoked  []string
}

func (s *stubGrantService) Lookup(_ context.Context, projectID, userID string) (*policy.Grant, error) {
	rec, ok := s.records[projectID+":"+userID]
	if !ok {
		return nil, nil
	}
	return rec.Grant(), nil
}

func (s *stubGrantService) Get(_ context.Context, projectID, userID string) (grants.Record, error) {
	rec, ok := s.records[projectID+":"+userID]
	if !ok {
		return grants.Record{}, httpx.ErrNotFound
	}
	return rec, nil
}

func (s *stubGrantService) List(_ context.Context, projectID string, page, perPage int) ([]grants.Record, shared.Pagination, error) {
	var out []grants.Record
	for _, rec := range s.records {
		if rec.ProjectID == projectID {
			out = append(out, rec)
		}
	}
	return out, shared.NewPagination(page, perPage, len(out)), nil
}

func (s *stubGrantService) Assign(_ context.Context, in grants.AssignInput) (grants.Record, error) {
	s.assigned = append(s.assigned, in)
	tokens, err := grants.ResolveTokens(in)
	if err != nil {
		return grants.Record{}, err
	}
	if !in.Ceiling.Contains(tokens) {
		return grants.Record{}, grants.ErrEscalation
	}
	rec := grants.Record{ProjectID: in.ProjectID, UserID: in.UserID, Tokens: tokens, Revision: uuid.MustParse("11111111-2222-3333-4444-555555555555")}
	s.records[in.ProjectID+":"+in.UserID] = rec
	return rec, nil
}

func (s *stubGrantService) Revoke(_ context.Context, projectID, userID, actorID string) error {
	s.revoked = append(s.revoked, projectID+":"+userID+":"+actorID)
	return nil
}

func newRouter(t *testing.T, svc *stubGrantService) http.Handler {
	t.Helper()
	projects := stubProjects{"p1": policy.NewMembership("p1", "pm-1", "pm-1", "alice", "bob", "carol")}
	mw := authz.Middleware{Service: authz.NewService(projects, svc, nil, nil)}
	h := NewHandler(nil, svc, mw, 0)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if user := r.Header.Get("X-Test-User"); user != "" {
				role, err := policy.ParseRole(r.Header.Get("X-Test-Role"))
				require.NoError(t, err)
				r = r.WithContext(shared.ContextWithIdentity(r.Context(), policy.Identity{UserID: user, Role: role}))
			}
			next.ServeHTTP(w, r)
		})
	})
	r.Route("/v1", h.MountRoutes)
	return r
}

func do(t *testing.T, h http.Handler, method, path, user, role, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if user != "" {
		req.Header.Set("X-Test-User", user)
		req.Header.Set("X-Test-Role", role)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func newStubGrantService() *stubGrantService {
	return &stubGrantService{records: map[string]grants.Record{
		"p1:alice": {ProjectID: "p1", UserID: "alice", Tokens: policy.NewCapabilitySet(policy.CapView, policy.CapManageTeam, policy.CapEdit)},
	}}
}

func TestCheckEndpoint(t *testing.T) {
	h := newRouter(t, newStubGrantService())

	rr := do(t, h, http.MethodPost, "/v1/projects/p1/check", "bob", "team_member", `{"capability":"Edit"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"capability":"edit","allowed":false,"reason":"no_grant"}`, rr.Body.String())

	rr = do(t, h, http.MethodPost, "/v1/projects/p1/check", "bob", "team_member",
		`{"capability":"edit","ownership":{"owner_user_id":"bob","kind":"comment"}}`)
	assert.JSONEq(t, `{"capability":"edit","allowed":true,"reason":"self_ownership"}`, rr.Body.String())

	rr = do(t, h, http.MethodPost, "/v1/projects/p1/check", "bob", "team_member",
		`{"capability":"manage_comments","ownership":{"owner_user_id":"carol","kind":"comment","action":"delete"}}`)
	assert.JSONEq(t, `{"capability":"manage_comments","allowed":false,"reason":"foreign_content"}`, rr.Body.String())

	rr = do(t, h, http.MethodPost, "/v1/projects/p1/check", "bob", "team_member", `{"capability":"teleport"}`)
	assert.JSONEq(t, `{"capability":"teleport","allowed":false,"reason":"unknown_capability"}`, rr.Body.String())

	rr = do(t, h, http.MethodPost, "/v1/projects/p1/check", "bob", "team_member", `{}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, h, http.MethodPost, "/v1/projects/nope/check", "bob", "team_member", `{"capability":"view"}`)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(t, h, http.MethodPost, "/v1/projects/p1/check", "", "", `{"capability":"view"}`)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestEffectiveCapabilitiesEndpoint(t *testing.T) {
	h := newRouter(t, newStubGrantService())

	rr := do(t, h, http.MethodGet, "/v1/projects/p1/capabilities", "alice", "team_member", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"project_id":"p1","user_id":"alice","capabilities":["view","edit","manage_team"]}`, rr.Body.String())

	rr = do(t, h, http.MethodGet, "/v1/projects/p1/capabilities", "root", "admin", "")
	var body effectiveResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, policy.AllCapabilities(), body.Capabilities)
}

func TestPresetEndpoints(t *testing.T) {
	h := newRouter(t, newStubGrantService())

	rr := do(t, h, http.MethodGet, "/v1/presets/Viewer", "bob", "team_member", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"tokens":["view"]`)

	rr = do(t, h, http.MethodGet, "/v1/presets/owner", "bob", "team_member", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(t, h, http.MethodGet, "/v1/capabilities", "bob", "team_member", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"token":"full_access_limited"`)
}

func TestAssignRequiresManageTeam(t *testing.T) {
	svc := newStubGrantService()
	h := newRouter(t, svc)

	rr := do(t, h, http.MethodPut, "/v1/projects/p1/permissions/carol", "bob", "team_member", `{"tokens":["edit"]}`)
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Contains(t, rr.Body.String(), "no_grant")
	assert.Empty(t, svc.assigned)

	rr = do(t, h, http.MethodPut, "/v1/projects/p1/permissions/carol", "alice", "team_member", `{"tokens":["edit"]}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, `"11111111-2222-3333-4444-555555555555"`, rr.Header().Get("ETag"))
	assert.Contains(t, rr.Body.String(), `"tokens":["edit"]`)
	require.Len(t, svc.assigned, 1)
	assert.Equal(t, "alice", svc.assigned[0].ActorID)
	assert.Equal(t, policy.NewCapabilitySet(policy.CapView, policy.CapEdit, policy.CapManageTeam), svc.assigned[0].Ceiling)

	rr = do(t, h, http.MethodPut, "/v1/projects/p1/permissions/carol", "alice", "team_member", `{"tokens":["admin"]}`)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = do(t, h, http.MethodPut, "/v1/projects/p1/permissions/carol", "alice", "team_member", `{"tokens":["bogus"]}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, h, http.MethodPut, "/v1/projects/p1/permissions/carol", "alice", "team_member", `{"tokens":[""]}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, h, http.MethodPut, "/v1/projects/p1/permissions/carol", "alice", "team_member", `{"unknown":true}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestEmptyAssignTakesRevokeGate(t *testing.T) {
	svc := newStubGrantService()
	h := newRouter(t, svc)

	rr := do(t, h, http.MethodPut, "/v1/projects/p1/permissions/carol", "alice", "team_member", `{"tokens":[]}`)
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Contains(t, rr.Body.String(), "no_grant")

	rr = do(t, h, http.MethodPut, "/v1/projects/p1/permissions/carol", "alice", "team_member",
		`{"preset":"viewer","remove":["view"]}`)
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Empty(t, svc.assigned)

	rr = do(t, h, http.MethodPut, "/v1/projects/p1/permissions/carol", "pm-1", "project_manager", `{"tokens":[]}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"tokens":[]`)
	require.Len(t, svc.assigned, 1)
	assert.Equal(t, "pm-1", svc.assigned[0].ActorID)
}

func TestReadGrant(t *testing.T) {
	h := newRouter(t, newStubGrantService())

	rr := do(t, h, http.MethodGet, "/v1/projects/p1/permissions/bob", "pm-1", "project_manager", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"project_id":"p1","user_id":"bob","tokens":[]}`, rr.Body.String())

	rr = do(t, h, http.MethodGet, "/v1/projects/p1/permissions/stranger", "pm-1", "project_manager", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(t, h, http.MethodGet, "/v1/projects/p1/permissions", "pm-1", "project_manager", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"user_id":"alice"`)
	assert.Contains(t, rr.Body.String(), `"total":1`)
}

func TestRevokeRequiresAdmin(t *testing.T) {
	svc := newStubGrantService()
	h := newRouter(t, svc)

	rr := do(t, h, http.MethodDelete, "/v1/projects/p1/permissions/bob", "alice", "team_member", "")
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Empty(t, svc.revoked)

	rr = do(t, h, http.MethodDelete, "/v1/projects/p1/permissions/bob", "pm-1", "project_manager", "")
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, []string{"p1:bob:pm-1"}, svc.revoked)
}
