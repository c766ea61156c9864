package policy

import (
	"encoding/json"
	"math/bits"
	"strings"
)

// Capability is one permission token of the closed taxonomy.
type Capability string

const (
	CapView               Capability = "view"
	CapEdit               Capability = "edit"
	CapManagePhases       Capability = "manage_phases"
	CapManageDeliverables Capability = "manage_deliverables"
	CapManageTasks        Capability = "manage_tasks"
	CapManageSubtasks     Capability = "manage_subtasks"
	CapManageComments     Capability = "manage_comments"
	CapManageTeam         Capability = "manage_team"
	CapFullAccessLimited  Capability = "full_access_limited"
	CapAdmin              Capability = "admin"
)

// CapabilityInfo describes a registered capability. ImpliesView is true for
// every entry: holding any token on a project means the holder can see it.
// FullAccessEligible reports whether FullAccessLimited covers the capability.
type CapabilityInfo struct {
	Capability         Capability `json:"token"`
	Description        string     `json:"description"`
	ImpliesView        bool       `json:"implies_view"`
	FullAccessEligible bool       `json:"full_access_eligible"`
}

// catalog order is the canonical serialisation order.
var catalog = []CapabilityInfo{
	{CapView, "See the project and everything in it", true, true},
	{CapEdit, "Edit project details and content", true, true},
	{CapManagePhases, "Create, edit and remove phases", true, true},
	{CapManageDeliverables, "Create, edit and remove deliverables", true, true},
	{CapManageTasks, "Create, edit and remove tasks", true, true},
	{CapManageSubtasks, "Create, edit and remove subtasks", true, true},
	{CapManageComments, "Moderate comments", true, true},
	{CapManageTeam, "Manage team members and their permissions", true, true},
	{CapFullAccessLimited, "Everything except administrator-only actions", true, true},
	{CapAdmin, "Full control including deletion and foreign content", true, false},
}

var capabilityIndex, capabilityByKey = indexCatalog()

func indexCatalog() (map[Capability]int, map[string]Capability) {
	byCap := make(map[Capability]int, len(catalog))
	byKey := make(map[string]Capability, len(catalog))
	for i, info := range catalog {
		byCap[info.Capability] = i
		byKey[tokenKey(string(info.Capability))] = info.Capability
	}
	return byCap, byKey
}

// Catalog returns the capability registry in canonical order.
func Catalog() []CapabilityInfo {
	out := make([]CapabilityInfo, len(catalog))
	copy(out, catalog)
	return out
}

// LookupCapability returns the registry entry for c.
func LookupCapability(c Capability) (CapabilityInfo, bool) {
	idx, ok := capabilityIndex[c]
	if !ok {
		return CapabilityInfo{}, false
	}
	return catalog[idx], true
}

// Valid reports whether c belongs to the closed taxonomy.
func (c Capability) Valid() bool {
	_, ok := capabilityIndex[c]
	return ok
}

func (c Capability) String() string { return string(c) }

func (c Capability) bit() CapabilitySet {
	idx, ok := capabilityIndex[c]
	if !ok {
		return 0
	}
	return 1 << idx
}

// CapabilitySet is an immutable set of capabilities. The zero value is empty.
type CapabilitySet uint16

// NewCapabilitySet builds a set from known capabilities. Values outside the
// taxonomy cannot be represented and are left out; use Validate for
// untrusted input.
func NewCapabilitySet(caps ...Capability) CapabilitySet {
	var s CapabilitySet
	for _, c := range caps {
		s |= c.bit()
	}
	return s
}

// AllCapabilities returns the set of every registered capability.
func AllCapabilities() CapabilitySet {
	return CapabilitySet(1<<len(catalog) - 1)
}

// Has reports whether c is in the set.
func (s CapabilitySet) Has(c Capability) bool {
	b := c.bit()
	return b != 0 && s&b == b
}

// With returns a copy of s including caps.
func (s CapabilitySet) With(caps ...Capability) CapabilitySet {
	return s | NewCapabilitySet(caps...)
}

// Without returns a copy of s excluding caps.
func (s CapabilitySet) Without(caps ...Capability) CapabilitySet {
	return s &^ NewCapabilitySet(caps...)
}

// Union returns the capabilities held by either set.
func (s CapabilitySet) Union(other CapabilitySet) CapabilitySet {
	return s | other
}

// Contains reports whether every capability of other is in s.
func (s CapabilitySet) Contains(other CapabilitySet) bool {
	return s&other == other
}

// Len returns the number of capabilities in the set.
func (s CapabilitySet) Len() int {
	return bits.OnesCount16(uint16(s))
}

// IsEmpty reports whether the set holds nothing.
func (s CapabilitySet) IsEmpty() bool {
	return s == 0
}

// Capabilities lists the members in canonical order.
func (s CapabilitySet) Capabilities() []Capability {
	out := make([]Capability, 0, s.Len())
	for i, info := range catalog {
		if s&(1<<i) != 0 {
			out = append(out, info.Capability)
		}
	}
	return out
}

// Tokens serialises the set to wire tokens in canonical order.
func (s CapabilitySet) Tokens() []string {
	caps := s.Capabilities()
	out := make([]string, len(caps))
	for i, c := range caps {
		out[i] = string(c)
	}
	return out
}

func (s CapabilitySet) String() string {
	return "{" + strings.Join(s.Tokens(), ",") + "}"
}

// MarshalJSON encodes the set as an array of tokens.
func (s CapabilitySet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Tokens())
}

// UnmarshalJSON decodes an array of tokens through Validate.
func (s *CapabilitySet) UnmarshalJSON(data []byte) error {
	var tokens []string
	if err := json.Unmarshal(data, &tokens); err != nil {
		return err
	}
	set, err := Validate(tokens)
	if err != nil {
		return err
	}
	*s = set
	return nil
}
