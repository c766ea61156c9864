package policy

// Reason explains a Decision. Reason values are stable wire strings.
type Reason string

const (
	ReasonGlobalAdmin       Reason = "global_admin"
	ReasonProjectOwner      Reason = "project_owner"
	ReasonGrantAdmin        Reason = "grant_admin"
	ReasonFullAccessLimited Reason = "full_access_limited"
	ReasonImplicitView      Reason = "implicit_view"
	ReasonExplicitGrant     Reason = "explicit_grant"
	ReasonSelfOwnership     Reason = "self_ownership"
	ReasonAssignee          Reason = "assignee_elevation"

	ReasonNoGrant           Reason = "no_grant"
	ReasonNotMember         Reason = "not_member"
	ReasonForeignContent    Reason = "foreign_content"
	ReasonContextMismatch   Reason = "context_mismatch"
	ReasonUnknownCapability Reason = "unknown_capability"
	ReasonUnknownRole       Reason = "unknown_role"
	ReasonInvalidOwnership  Reason = "invalid_ownership"
)

// Malformed reports whether the reason stems from bad input rather than an
// ordinary policy outcome.
func (r Reason) Malformed() bool {
	switch r {
	case ReasonContextMismatch, ReasonUnknownCapability, ReasonUnknownRole, ReasonInvalidOwnership:
		return true
	}
	return false
}

// Decision is the outcome of one evaluation.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  Reason `json:"reason"`
}

func (d Decision) String() string {
	if d.Allowed {
		return "allow:" + string(d.Reason)
	}
	return "deny:" + string(d.Reason)
}

func allow(r Reason) Decision { return Decision{Allowed: true, Reason: r} }

func deny(r Reason) Decision { return Decision{Reason: r} }
