package grants

import (
	"time"

	"github.com/google/uuid"

	"github.com/workboard/projectguard/internal/policy"
)

// Record is a stored grant together with its bookkeeping columns.
type Record struct {
	ProjectID string
	UserID    string
	Tokens    policy.CapabilitySet
	Revision  uuid.UUID
	UpdatedBy string
	UpdatedAt time.Time
}

// Grant converts the record into the evaluator's input.
func (r Record) Grant() *policy.Grant {
	return &policy.Grant{ProjectID: r.ProjectID, UserID: r.UserID, Tokens: r.Tokens}
}

// AssignInput describes one write to the grant store. Tokens, Preset, Add and
// Remove combine as: Tokens ∪ expand(Preset) ∪ Add, minus Remove.
type AssignInput struct {
	ProjectID string
	UserID    string
	ActorID   string
	Tokens    []string
	Preset    string
	Add       []string
	Remove    []string
	// Ceiling bounds what the actor may hand out; the zero set disables the
	// check for trusted callers such as the CLI.
	Ceiling policy.CapabilitySet
}

// Audit actions and entity name written for grant changes.
const (
	AuditActionAssign = "permissions.assign"
	AuditActionRevoke = "permissions.revoke"
	AuditEntity       = "project_permission"
)

func entityID(projectID, userID string) string {
	return projectID + ":" + userID
}
