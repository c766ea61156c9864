// Package authz answers project-scoped authorization questions for the HTTP
// layer. It loads membership and grants from their stores, hands them to the
// policy evaluator and records every decision.
package authz

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/workboard/projectguard/internal/platform/httpx"
	"github.com/workboard/projectguard/internal/policy"
)

// ErrLookupFailed reports that membership or grant data could not be read.
// Callers must treat it as a denial.
var ErrLookupFailed = fmt.Errorf("authz: lookup failed: %w", httpx.ErrUnavailable)

// MembershipSource resolves project membership snapshots.
type MembershipSource interface {
	Membership(ctx context.Context, projectID string) (policy.Membership, error)
}

// GrantSource returns the actor's grant or nil when none is stored.
type GrantSource interface {
	Lookup(ctx context.Context, projectID, userID string) (*policy.Grant, error)
}

// DecisionRecorder observes evaluator outcomes.
type DecisionRecorder interface {
	ObserveDecision(c policy.Capability, d policy.Decision)
}

// Service builds evaluation scopes.
type Service struct {
	projects MembershipSource
	grants   GrantSource
	recorder DecisionRecorder
	logger   *slog.Logger
}

// NewService constructs a Service. recorder may be nil.
func NewService(projects MembershipSource, grants GrantSource, recorder DecisionRecorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{projects: projects, grants: grants, recorder: recorder, logger: logger}
}

// Scope loads the inputs for one actor on one project. Membership and grant
// are fetched concurrently; a missing project surfaces as httpx.ErrNotFound and
// any other failure as ErrLookupFailed.
func (s *Service) Scope(ctx context.Context, id policy.Identity, projectID string) (*Scope, error) {
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return nil, fmt.Errorf("%w: project required", httpx.ErrValidation)
	}

	var (
		membership policy.Membership
		grant      *policy.Grant
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		m, err := s.projects.Membership(gctx, projectID)
		if err != nil {
			return err
		}
		membership = m
		return nil
	})
	g.Go(func() error {
		if id.UserID == "" {
			return nil
		}
		gr, err := s.grants.Lookup(gctx, projectID, id.UserID)
		if err != nil {
			return err
		}
		grant = gr
		return nil
	})
	if err := g.Wait(); err != nil {
		if errors.Is(err, httpx.ErrNotFound) {
			return nil, err
		}
		s.logger.Error("authz lookup",
			slog.String("project_id", projectID),
			slog.String("user_id", id.UserID),
			slog.Any("error", err))
		return nil, fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}

	return &Scope{
		service:    s,
		identity:   id,
		membership: membership,
		grant:      grant,
		memo:       make(map[policy.Capability]policy.Decision),
	}, nil
}

// Check is a one-shot Scope plus Check.
func (s *Service) Check(ctx context.Context, id policy.Identity, projectID string, c policy.Capability, own *policy.Ownership) (policy.Decision, error) {
	scope, err := s.Scope(ctx, id, projectID)
	if err != nil {
		return policy.Decision{}, err
	}
	return scope.Check(c, own), nil
}

func (s *Service) record(scope *Scope, c policy.Capability, d policy.Decision) {
	if s.recorder != nil {
		s.recorder.ObserveDecision(c, d)
	}
	level := slog.LevelDebug
	switch d.Reason {
	case policy.ReasonContextMismatch:
		level = slog.LevelError
	case policy.ReasonUnknownCapability, policy.ReasonUnknownRole, policy.ReasonInvalidOwnership:
		level = slog.LevelWarn
	}
	s.logger.Log(context.Background(), level, "authz decision",
		slog.String("project_id", scope.membership.ProjectID),
		slog.String("user_id", scope.identity.UserID),
		slog.String("capability", string(c)),
		slog.Bool("allowed", d.Allowed),
		slog.String("reason", string(d.Reason)))
}

// Scope is a per-request view of one actor on one project. It caches
// decisions that do not depend on resource ownership and must not outlive
// the request that created it.
type Scope struct {
	service    *Service
	identity   policy.Identity
	membership policy.Membership
	grant      *policy.Grant

	mu   sync.Mutex
	memo map[policy.Capability]policy.Decision
}

// Identity returns the actor the scope was built for.
func (sc *Scope) Identity() policy.Identity { return sc.identity }

// Membership returns the loaded membership snapshot.
func (sc *Scope) Membership() policy.Membership { return sc.membership }

// Check evaluates one capability, optionally against a specific resource.
func (sc *Scope) Check(c policy.Capability, own *policy.Ownership) policy.Decision {
	if own == nil {
		sc.mu.Lock()
		d, ok := sc.memo[c]
		sc.mu.Unlock()
		if ok {
			return d
		}
	}

	d := policy.Evaluate(sc.request(c, own))
	sc.service.record(sc, c, d)

	if own == nil {
		sc.mu.Lock()
		sc.memo[c] = d
		sc.mu.Unlock()
	}
	return d
}

// Effective returns every capability the actor holds on the project.
func (sc *Scope) Effective() policy.CapabilitySet {
	return policy.EffectiveCapabilities(sc.request("", nil))
}

func (sc *Scope) request(c policy.Capability, own *policy.Ownership) policy.Request {
	return policy.Request{
		Identity:   sc.identity,
		Membership: sc.membership,
		Grant:      sc.grant,
		Capability: c,
		Ownership:  own,
	}
}
