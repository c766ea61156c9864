package policy

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownPreset indicates a preset name outside the catalogue.
var ErrUnknownPreset = errors.New("policy: unknown preset")

const (
	PresetViewer        = "Viewer"
	PresetEditor        = "Editor"
	PresetManager       = "Manager"
	PresetAdministrator = "Administrator"
)

// Preset is a named starting token set for assignment screens.
type Preset struct {
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Tokens      CapabilitySet `json:"tokens"`
}

var presets = []Preset{
	{
		Name:        PresetViewer,
		Description: "Read-only access to the project",
		Tokens:      NewCapabilitySet(CapView),
	},
	{
		Name:        PresetEditor,
		Description: "Edit content and manage deliverables",
		Tokens:      NewCapabilitySet(CapView, CapEdit, CapManageDeliverables),
	},
	{
		Name:        PresetManager,
		Description: "Run the project day to day, including the team",
		Tokens: NewCapabilitySet(CapView, CapEdit, CapManagePhases, CapManageDeliverables,
			CapManageTasks, CapManageTeam),
	},
	{
		Name:        PresetAdministrator,
		Description: "Every permission on the project",
		Tokens:      AllCapabilities(),
	},
}

// Presets lists the catalogue in display order.
func Presets() []Preset {
	out := make([]Preset, len(presets))
	copy(out, presets)
	return out
}

// LookupPreset finds a preset by name, ignoring case and surrounding space.
func LookupPreset(name string) (Preset, error) {
	key := NormalizeToken(name)
	for _, p := range presets {
		if NormalizeToken(p.Name) == key {
			return p, nil
		}
	}
	return Preset{}, fmt.Errorf("%w: %q", ErrUnknownPreset, name)
}

// ExpandPreset returns the token set of the named preset. The result always
// contains CapView.
func ExpandPreset(name string) (CapabilitySet, error) {
	p, err := LookupPreset(name)
	if err != nil {
		return 0, err
	}
	return p.Tokens.With(CapView), nil
}

// Customize applies operator edits on top of a base set. add and remove are
// validated; the result is not checked against any preset.
func Customize(base CapabilitySet, add, remove []string) (CapabilitySet, error) {
	added, err := Validate(add)
	if err != nil {
		return 0, err
	}
	removed, err := Validate(remove)
	if err != nil {
		return 0, err
	}
	return base.Union(added) &^ removed, nil
}

// PresetNames lists the catalogue names in display order.
func PresetNames() []string {
	names := make([]string, len(presets))
	for i, p := range presets {
		names[i] = p.Name
	}
	return names
}

func (p Preset) String() string {
	return p.Name + " " + strings.Join(p.Tokens.Tokens(), ",")
}
