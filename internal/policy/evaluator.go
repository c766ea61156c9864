package policy

import "strings"

// Request bundles the inputs of one authorization question. Grant is nil
// when the store holds no record for the actor; Ownership is nil unless the
// question concerns a specific comment, subtask or task.
type Request struct {
	Identity   Identity
	Membership Membership
	Grant      *Grant
	Capability Capability
	Ownership  *Ownership
}

// Evaluate answers whether the request's actor holds the requested
// capability. Malformed input is denied, never guessed at.
//
// Precedence, first match wins:
//  1. global Admin role
//  2. ProjectManager who manages this project
//  3. grant evaluation for project members: Admin token, FullAccessLimited
//     (everything but Admin), implicit View, explicit token. A ProjectManager
//     who does not manage the project reaches this step only with a grant.
//  4. self-ownership of a comment or subtask
//  5. assignee elevation on a task
//
// Deleting another user's comment is reserved for steps 1, 2 and the Admin
// token; neither FullAccessLimited nor an explicit manage_comments grant
// reaches it. FullAccessLimited never deletes another user's subtask either;
// that takes an explicit manage_subtasks token.
func Evaluate(req Request) Decision {
	if !contextConsistent(req) {
		return deny(ReasonContextMismatch)
	}
	if !req.Capability.Valid() {
		return deny(ReasonUnknownCapability)
	}
	if req.Ownership != nil && !req.Ownership.valid() {
		return deny(ReasonInvalidOwnership)
	}

	switch req.Identity.Role {
	case RoleAdmin:
		return allow(ReasonGlobalAdmin)
	case RoleProjectManager:
		if req.Membership.ManagerUserID == req.Identity.UserID {
			return allow(ReasonProjectOwner)
		}
		if req.Grant == nil && req.Membership.IsMember(req.Identity.UserID) {
			return deny(ReasonNoGrant)
		}
	case RoleTeamMember:
	default:
		return deny(ReasonUnknownRole)
	}
	return evaluateMember(req)
}

// EffectiveCapabilities returns every capability Evaluate would allow for the
// request's actor. The request's own Capability is ignored.
func EffectiveCapabilities(req Request) CapabilitySet {
	var set CapabilitySet
	for _, info := range catalog {
		req.Capability = info.Capability
		if Evaluate(req).Allowed {
			set |= info.Capability.bit()
		}
	}
	return set
}

func contextConsistent(req Request) bool {
	userID := req.Identity.UserID
	projectID := req.Membership.ProjectID
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(projectID) == "" {
		return false
	}
	if g := req.Grant; g != nil {
		return g.UserID == userID && g.ProjectID == projectID
	}
	return true
}

func evaluateMember(req Request) Decision {
	userID := req.Identity.UserID
	if !req.Membership.IsMember(userID) {
		return deny(ReasonNotMember)
	}

	var tokens CapabilitySet
	if req.Grant != nil {
		tokens = req.Grant.Tokens
	}

	own := req.Ownership
	if own != nil && own.foreignCommentDelete(userID) {
		if tokens.Has(CapAdmin) {
			return allow(ReasonGrantAdmin)
		}
		return deny(ReasonForeignContent)
	}

	d := evaluateGrant(tokens, req.Capability)
	if d.Reason == ReasonFullAccessLimited && own != nil && own.foreignContentDelete(userID) {
		if !tokens.Has(req.Capability) {
			return deny(ReasonForeignContent)
		}
		d = allow(ReasonExplicitGrant)
	}
	if d.Allowed || own == nil || !own.ownedBy(userID) {
		return d
	}

	switch own.Kind {
	case ResourceComment:
		if commentAuthoring.Has(req.Capability) {
			return allow(ReasonSelfOwnership)
		}
	case ResourceSubtask:
		if subtaskAuthoring.Has(req.Capability) {
			return allow(ReasonSelfOwnership)
		}
	case ResourceTask:
		if assigneeAuthoring.Has(req.Capability) {
			return allow(ReasonAssignee)
		}
	}
	return d
}

func evaluateGrant(tokens CapabilitySet, requested Capability) Decision {
	switch {
	case tokens.Has(CapAdmin):
		return allow(ReasonGrantAdmin)
	case tokens.Has(CapFullAccessLimited) && requested != CapAdmin:
		return allow(ReasonFullAccessLimited)
	case requested == CapView:
		return allow(ReasonImplicitView)
	case tokens.Has(requested):
		return allow(ReasonExplicitGrant)
	}
	return deny(ReasonNoGrant)
}
