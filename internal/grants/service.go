package grants

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/workboard/projectguard/internal/platform/httpx"
	"github.com/workboard/projectguard/internal/policy"
	"github.com/workboard/projectguard/internal/shared"
)

var (
	// ErrNotMember rejects grants for users outside the project.
	ErrNotMember = fmt.Errorf("grants: target is not a project member: %w", httpx.ErrUnprocessable)
	// ErrEscalation rejects grants wider than the assigning actor's own rights.
	ErrEscalation = fmt.Errorf("grants: cannot grant capabilities you do not hold: %w", httpx.ErrForbidden)
)

// Store defines data access for the grant table.
type Store interface {
	Get(ctx context.Context, projectID, userID string) (Record, error)
	List(ctx context.Context, projectID string, limit, offset int) ([]Record, int, error)
	Save(ctx context.Context, rec Record, audit shared.AuditLog) (Record, error)
	Delete(ctx context.Context, projectID, userID string, audit shared.AuditLog) error
	DeleteByProject(ctx context.Context, projectID string) (int64, error)
	DeleteByUser(ctx context.Context, userID string) (int64, error)
	DeleteOrphans(ctx context.Context) (int64, error)
}

// MembershipSource resolves project membership snapshots.
type MembershipSource interface {
	Membership(ctx context.Context, projectID string) (policy.Membership, error)
}

// Service owns every write to the grant store. All tokens pass through
// policy.Validate before they are persisted.
type Service struct {
	store    Store
	projects MembershipSource
	logger   *slog.Logger
	newID    func() uuid.UUID
}

// NewService builds a Service.
func NewService(store Store, projects MembershipSource, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, projects: projects, logger: logger, newID: uuid.New}
}

// Lookup returns the actor's grant, or nil when no record exists.
func (s *Service) Lookup(ctx context.Context, projectID, userID string) (*policy.Grant, error) {
	rec, err := s.store.Get(ctx, projectID, userID)
	if err != nil {
		if errors.Is(err, httpx.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return rec.Grant(), nil
}

// Get returns the stored record or httpx.ErrNotFound.
func (s *Service) Get(ctx context.Context, projectID, userID string) (Record, error) {
	return s.store.Get(ctx, projectID, userID)
}

// List returns one page of a project's grants.
func (s *Service) List(ctx context.Context, projectID string, page, perPage int) ([]Record, shared.Pagination, error) {
	p := shared.NewPagination(page, perPage, 0)
	records, total, err := s.store.List(ctx, projectID, p.PerPage, p.Offset())
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return records, shared.NewPagination(p.Page, p.PerPage, total), nil
}

// ResolveTokens computes the token set an AssignInput asks for.
func ResolveTokens(in AssignInput) (policy.CapabilitySet, error) {
	base, err := policy.Validate(in.Tokens)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", httpx.ErrValidation, err)
	}
	if strings.TrimSpace(in.Preset) != "" {
		preset, err := policy.ExpandPreset(in.Preset)
		if err != nil {
			return 0, fmt.Errorf("%w: %w", httpx.ErrValidation, err)
		}
		base = base.Union(preset)
	}
	set, err := policy.Customize(base, in.Add, in.Remove)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", httpx.ErrValidation, err)
	}
	return set, nil
}

// Assign validates and stores a grant, replacing any previous record.
func (s *Service) Assign(ctx context.Context, in AssignInput) (Record, error) {
	in.ProjectID = strings.TrimSpace(in.ProjectID)
	in.UserID = strings.TrimSpace(in.UserID)
	if in.ProjectID == "" || in.UserID == "" {
		return Record{}, fmt.Errorf("%w: project and user are required", httpx.ErrValidation)
	}
	tokens, err := ResolveTokens(in)
	if err != nil {
		return Record{}, err
	}
	if !in.Ceiling.IsEmpty() && !in.Ceiling.Contains(tokens) {
		return Record{}, ErrEscalation
	}

	membership, err := s.projects.Membership(ctx, in.ProjectID)
	if err != nil {
		return Record{}, err
	}
	if !membership.IsMember(in.UserID) {
		return Record{}, ErrNotMember
	}

	rec := Record{
		ProjectID: in.ProjectID,
		UserID:    in.UserID,
		Tokens:    tokens,
		Revision:  s.newID(),
		UpdatedBy: in.ActorID,
	}
	saved, err := s.store.Save(ctx, rec, shared.AuditLog{
		ActorID:  in.ActorID,
		Action:   AuditActionAssign,
		Entity:   AuditEntity,
		EntityID: entityID(rec.ProjectID, rec.UserID),
		Meta:     map[string]any{"tokens": tokens.Tokens(), "revision": rec.Revision.String()},
	})
	if err != nil {
		return Record{}, err
	}
	s.logger.Info("permissions assigned",
		slog.String("project_id", saved.ProjectID),
		slog.String("user_id", saved.UserID),
		slog.String("actor_id", in.ActorID),
		slog.Any("tokens", tokens.Tokens()))
	return saved, nil
}

// Revoke deletes a grant. The user keeps implicit view while still a member.
func (s *Service) Revoke(ctx context.Context, projectID, userID, actorID string) error {
	err := s.store.Delete(ctx, projectID, userID, shared.AuditLog{
		ActorID:  actorID,
		Action:   AuditActionRevoke,
		Entity:   AuditEntity,
		EntityID: entityID(projectID, userID),
	})
	if err != nil {
		return err
	}
	s.logger.Info("permissions revoked",
		slog.String("project_id", projectID),
		slog.String("user_id", userID),
		slog.String("actor_id", actorID))
	return nil
}

// PurgeProject removes every grant of a deleted project.
func (s *Service) PurgeProject(ctx context.Context, projectID string) (int64, error) {
	if strings.TrimSpace(projectID) == "" {
		return 0, fmt.Errorf("%w: project required", httpx.ErrValidation)
	}
	return s.store.DeleteByProject(ctx, projectID)
}

// PurgeUser removes every grant of a deleted user.
func (s *Service) PurgeUser(ctx context.Context, userID string) (int64, error) {
	if strings.TrimSpace(userID) == "" {
		return 0, fmt.Errorf("%w: user required", httpx.ErrValidation)
	}
	return s.store.DeleteByUser(ctx, userID)
}

// PruneOrphans removes grants of users who are no longer members.
func (s *Service) PruneOrphans(ctx context.Context) (int64, error) {
	return s.store.DeleteOrphans(ctx)
}
