package policy_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/workboard/projectguard/internal/policy"
)

func TestCatalogIsClosedAndOrdered(t *testing.T) {
	catalog := policy.Catalog()
	require.Len(t, catalog, 10)
	assert.Equal(t, policy.CapView, catalog[0].Capability)
	assert.Equal(t, policy.CapAdmin, catalog[len(catalog)-1].Capability)
	for _, info := range catalog {
		assert.True(t, info.ImpliesView, info.Capability)
		assert.Equal(t, info.Capability != policy.CapAdmin, info.FullAccessEligible, info.Capability)
	}
}

func TestValidateNormalizes(t *testing.T) {
	set, err := policy.Validate([]string{"  Edit ", "MANAGE_PHASES", "manage-tasks", "Manage Subtasks", "ManageComments", "edit"})
	require.NoError(t, err)
	assert.Equal(t, []string{"edit", "manage_phases", "manage_tasks", "manage_subtasks", "manage_comments"}, set.Tokens())
}

func TestValidateRejectsUnknownTokens(t *testing.T) {
	_, err := policy.Validate([]string{"view", "superuser", "", "edit"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, policy.ErrInvalidToken))

	var verr *policy.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, []string{"superuser", ""}, verr.Invalid)
}

func TestValidateKeepsSeparatorsInsideWords(t *testing.T) {
	for _, tok := range []string{"v_i_e_w", "man-agep-hases", "manageph ases", "ad_min", "MANAGEPHASES"} {
		_, err := policy.Validate([]string{tok})
		assert.ErrorIs(t, err, policy.ErrInvalidToken, tok)
	}

	set, err := policy.Validate([]string{"manage__phases", " full - access - limited "})
	require.NoError(t, err)
	assert.Equal(t, []string{"manage_phases", "full_access_limited"}, set.Tokens())
}

func TestValidateEmptyIsEmptySet(t *testing.T) {
	set, err := policy.Validate(nil)
	require.NoError(t, err)
	assert.True(t, set.IsEmpty())
}

func TestValidateRoundTrip(t *testing.T) {
	inputs := [][]string{
		{"admin", "view"},
		{"manage_team", "edit", "manage_deliverables"},
		{"Full_Access_Limited"},
		{},
	}
	for _, in := range inputs {
		set, err := policy.Validate(in)
		require.NoError(t, err)
		again, err := policy.Validate(set.Tokens())
		require.NoError(t, err)
		assert.Equal(t, set, again)

		want := make([]string, 0, len(in))
		for _, tok := range in {
			want = append(want, policy.NormalizeToken(tok))
		}
		assert.ElementsMatch(t, want, set.Tokens())
	}
}

func TestParseCapability(t *testing.T) {
	c, err := policy.ParseCapability("Manage_Team")
	require.NoError(t, err)
	assert.Equal(t, policy.CapManageTeam, c)

	_, err = policy.ParseCapability("owner")
	assert.ErrorIs(t, err, policy.ErrInvalidToken)
}

func TestCapabilitySetOperations(t *testing.T) {
	s := policy.NewCapabilitySet(policy.CapView, policy.CapEdit, policy.Capability("bogus"))
	assert.Equal(t, 2, s.Len())
	assert.True(t, s.Has(policy.CapEdit))
	assert.False(t, s.Has(policy.Capability("bogus")))

	s2 := s.With(policy.CapAdmin).Without(policy.CapView)
	assert.Equal(t, []policy.Capability{policy.CapEdit, policy.CapAdmin}, s2.Capabilities())
	assert.Equal(t, 2, s.Len(), "original set must not change")

	assert.True(t, policy.AllCapabilities().Contains(s2))
	assert.False(t, s2.Contains(s))
	assert.Equal(t, "{view,edit,admin}", s.Union(s2).String())
}

func TestCapabilitySetJSON(t *testing.T) {
	raw, err := json.Marshal(policy.NewCapabilitySet(policy.CapManageTeam, policy.CapView))
	require.NoError(t, err)
	assert.JSONEq(t, `["view","manage_team"]`, string(raw))

	var decoded policy.CapabilitySet
	require.NoError(t, json.Unmarshal([]byte(`["VIEW","manage_team"]`), &decoded))
	assert.Equal(t, policy.NewCapabilitySet(policy.CapView, policy.CapManageTeam), decoded)

	err = json.Unmarshal([]byte(`["view","root"]`), &decoded)
	assert.ErrorIs(t, err, policy.ErrInvalidToken)
}

func TestParseRole(t *testing.T) {
	cases := map[string]policy.Role{
		"Admin":           policy.RoleAdmin,
		"ProjectManager":  policy.RoleProjectManager,
		"project_manager": policy.RoleProjectManager,
		" TeamMember ":    policy.RoleTeamMember,
	}
	for raw, want := range cases {
		got, err := policy.ParseRole(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got)
	}
	_, err := policy.ParseRole("guest")
	assert.ErrorIs(t, err, policy.ErrUnknownRole)
}

func TestMembershipSnapshot(t *testing.T) {
	m := policy.NewMembership(" p1 ", "u1", "u3", " ", "u2", "u3")
	assert.Equal(t, "p1", m.ProjectID)
	assert.Equal(t, []string{"u2", "u3"}, m.Members())
	assert.True(t, m.IsMember("u2"))
	assert.False(t, m.IsMember("u1"))
	assert.False(t, m.IsMember(""))
}
