package policy

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrUnknownRole indicates a global role outside the closed set.
var ErrUnknownRole = errors.New("policy: unknown global role")

// Role is the actor's global role. Exactly one per user.
type Role string

const (
	RoleAdmin          Role = "admin"
	RoleProjectManager Role = "project_manager"
	RoleTeamMember     Role = "team_member"
)

var roleByKey = map[string]Role{
	tokenKey(string(RoleAdmin)):          RoleAdmin,
	tokenKey(string(RoleProjectManager)): RoleProjectManager,
	tokenKey(string(RoleTeamMember)):     RoleTeamMember,
}

// ParseRole accepts "ProjectManager", "project_manager" and similar spellings.
func ParseRole(raw string) (Role, error) {
	r, ok := roleByKey[tokenKey(raw)]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, raw)
	}
	return r, nil
}

// Valid reports whether r is one of the three global roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleProjectManager, RoleTeamMember:
		return true
	}
	return false
}

// Identity is the authenticated actor of one request.
type Identity struct {
	UserID string `json:"user_id"`
	Role   Role   `json:"role"`
}

// Membership is a read-only snapshot of the facts about one project that a
// decision needs. Build it with NewMembership.
type Membership struct {
	ProjectID     string
	ManagerUserID string
	members       map[string]struct{}
}

// NewMembership captures a project's manager and member list. Blank ids are
// dropped.
func NewMembership(projectID, managerUserID string, memberUserIDs ...string) Membership {
	members := make(map[string]struct{}, len(memberUserIDs))
	for _, id := range memberUserIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		members[id] = struct{}{}
	}
	return Membership{
		ProjectID:     strings.TrimSpace(projectID),
		ManagerUserID: strings.TrimSpace(managerUserID),
		members:       members,
	}
}

// IsMember reports whether userID is on the project's member list.
func (m Membership) IsMember(userID string) bool {
	if userID == "" {
		return false
	}
	_, ok := m.members[userID]
	return ok
}

// Members returns the member ids sorted.
func (m Membership) Members() []string {
	out := make([]string, 0, len(m.members))
	for id := range m.members {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Grant is the explicit token set one user holds on one project.
type Grant struct {
	ProjectID string        `json:"project_id"`
	UserID    string        `json:"user_id"`
	Tokens    CapabilitySet `json:"tokens"`
}

// ResourceKind names the kind of content an Ownership refers to.
type ResourceKind string

const (
	ResourceComment ResourceKind = "comment"
	ResourceSubtask ResourceKind = "subtask"
	// ResourceTask means Ownership.OwnerUserID holds the task's assignee.
	ResourceTask ResourceKind = "task"
)

// OwnershipAction says whether the caller modifies or removes the resource.
type OwnershipAction string

const (
	ActionModify OwnershipAction = "modify"
	ActionDelete OwnershipAction = "delete"
)

// Ownership carries per-query resource facts. It is never persisted. An
// empty Action means ActionModify.
type Ownership struct {
	OwnerUserID string          `json:"owner_user_id"`
	Kind        ResourceKind    `json:"kind"`
	Action      OwnershipAction `json:"action,omitempty"`
}

func (o Ownership) valid() bool {
	if strings.TrimSpace(o.OwnerUserID) == "" {
		return false
	}
	switch o.Kind {
	case ResourceComment, ResourceSubtask, ResourceTask:
	default:
		return false
	}
	switch o.Action {
	case "", ActionModify, ActionDelete:
		return true
	}
	return false
}

func (o Ownership) ownedBy(userID string) bool {
	return o.OwnerUserID == userID
}

// foreignCommentDelete reports whether the request removes someone else's
// comment, which only administrator rights may do.
func (o Ownership) foreignCommentDelete(userID string) bool {
	return o.Kind == ResourceComment && o.Action == ActionDelete && !o.ownedBy(userID)
}

// foreignContentDelete reports whether the request removes a comment or
// subtask authored by someone else.
func (o Ownership) foreignContentDelete(userID string) bool {
	switch o.Kind {
	case ResourceComment, ResourceSubtask:
		return o.Action == ActionDelete && !o.ownedBy(userID)
	}
	return false
}

var (
	commentAuthoring  = NewCapabilitySet(CapEdit, CapManageComments)
	subtaskAuthoring  = NewCapabilitySet(CapEdit, CapManageSubtasks)
	assigneeAuthoring = NewCapabilitySet(CapEdit, CapManageSubtasks)
)
