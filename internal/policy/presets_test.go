package policy_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/workboard/projectguard/internal/policy"
)

func TestExpandViewer(t *testing.T) {
	set, err := policy.ExpandPreset("Viewer")
	require.NoError(t, err)
	assert.Equal(t, policy.NewCapabilitySet(policy.CapView), set)
}

func TestExpandKnownPresets(t *testing.T) {
	editor, err := policy.ExpandPreset("editor")
	require.NoError(t, err)
	assert.Equal(t, []string{"view", "edit", "manage_deliverables"}, editor.Tokens())

	manager, err := policy.ExpandPreset(" MANAGER ")
	require.NoError(t, err)
	assert.Equal(t, []string{"view", "edit", "manage_phases", "manage_deliverables", "manage_tasks", "manage_team"}, manager.Tokens())
}

func TestAdministratorIsSupersetOfEveryPreset(t *testing.T) {
	admin, err := policy.ExpandPreset(policy.PresetAdministrator)
	require.NoError(t, err)
	assert.Equal(t, policy.AllCapabilities(), admin)

	for _, p := range policy.Presets() {
		set, err := policy.ExpandPreset(p.Name)
		require.NoError(t, err)
		assert.True(t, set.Has(policy.CapView), p.Name)
		assert.True(t, admin.Contains(set), p.Name)
	}
}

func TestExpandUnknownPreset(t *testing.T) {
	_, err := policy.ExpandPreset("not-a-preset")
	assert.ErrorIs(t, err, policy.ErrUnknownPreset)

	_, err = policy.ExpandPreset("")
	assert.ErrorIs(t, err, policy.ErrUnknownPreset)
}

func TestPresetsOrder(t *testing.T) {
	assert.Equal(t, []string{"Viewer", "Editor", "Manager", "Administrator"}, policy.PresetNames())
	for _, p := range policy.Presets() {
		assert.NotEmpty(t, p.Description)
	}
}

func TestCustomize(t *testing.T) {
	base, err := policy.ExpandPreset(policy.PresetEditor)
	require.NoError(t, err)

	set, err := policy.Customize(base, []string{"manage_comments"}, []string{"manage_deliverables"})
	require.NoError(t, err)
	assert.Equal(t, []string{"view", "edit", "manage_comments"}, set.Tokens())

	_, err = policy.Customize(base, []string{"root"}, nil)
	assert.ErrorIs(t, err, policy.ErrInvalidToken)
}
