package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"github.com/workboard/projectguard/internal/policy"
)

// Scenario is an offline evaluation fixture. Grant is optional; when present
// its project and user default to the scenario's own.
type Scenario struct {
	Identity struct {
		UserID string `yaml:"user_id"`
		Role   string `yaml:"role"`
	} `yaml:"identity"`
	Project struct {
		ID      string   `yaml:"id"`
		Manager string   `yaml:"manager"`
		Members []string `yaml:"members"`
	} `yaml:"project"`
	Grant  *ScenarioGrant  `yaml:"grant"`
	Checks []ScenarioCheck `yaml:"checks"`
}

// ScenarioGrant describes the stored grant of the scenario's actor.
type ScenarioGrant struct {
	ProjectID string   `yaml:"project_id"`
	UserID    string   `yaml:"user_id"`
	Preset    string   `yaml:"preset"`
	Tokens    []string `yaml:"tokens"`
}

// ScenarioCheck is one question against the scenario. Expect is "allow",
// "deny" or empty.
type ScenarioCheck struct {
	Capability string             `yaml:"capability"`
	Ownership  *ScenarioOwnership `yaml:"ownership"`
	Expect     string             `yaml:"expect"`
}

// ScenarioOwnership mirrors policy.Ownership.
type ScenarioOwnership struct {
	OwnerUserID string `yaml:"owner_user_id"`
	Kind        string `yaml:"kind"`
	Action      string `yaml:"action"`
}

// CheckResult is the outcome of one ScenarioCheck.
type CheckResult struct {
	Capability string `json:"capability"`
	Allowed    bool   `json:"allowed"`
	Reason     string `json:"reason"`
	Expect     string `json:"expect,omitempty"`
	Matched    bool   `json:"matched"`
}

// LoadScenario parses a scenario document.
func LoadScenario(r io.Reader) (Scenario, error) {
	var sc Scenario
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&sc); err != nil {
		return Scenario{}, fmt.Errorf("parse scenario: %w", err)
	}
	if len(sc.Checks) == 0 {
		return Scenario{}, fmt.Errorf("parse scenario: no checks")
	}
	return sc, nil
}

// Evaluate runs every check of the scenario.
func (sc Scenario) Evaluate() ([]CheckResult, error) {
	req := policy.Request{
		Identity:   policy.Identity{UserID: sc.Identity.UserID, Role: policy.Role(sc.Identity.Role)},
		Membership: policy.NewMembership(sc.Project.ID, sc.Project.Manager, sc.Project.Members...),
	}
	if role, err := policy.ParseRole(sc.Identity.Role); err == nil {
		req.Identity.Role = role
	}
	if g := sc.Grant; g != nil {
		tokens, err := policy.Validate(g.Tokens)
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(g.Preset) != "" {
			preset, err := policy.ExpandPreset(g.Preset)
			if err != nil {
				return nil, err
			}
			tokens = tokens.Union(preset)
		}
		grant := &policy.Grant{ProjectID: g.ProjectID, UserID: g.UserID, Tokens: tokens}
		if grant.ProjectID == "" {
			grant.ProjectID = sc.Project.ID
		}
		if grant.UserID == "" {
			grant.UserID = sc.Identity.UserID
		}
		req.Grant = grant
	}

	results := make([]CheckResult, 0, len(sc.Checks))
	for _, check := range sc.Checks {
		req.Capability = policy.Capability(strings.TrimSpace(check.Capability))
		if c, err := policy.ParseCapability(check.Capability); err == nil {
			req.Capability = c
		}
		req.Ownership = nil
		if o := check.Ownership; o != nil {
			req.Ownership = &policy.Ownership{
				OwnerUserID: o.OwnerUserID,
				Kind:        policy.ResourceKind(o.Kind),
				Action:      policy.OwnershipAction(o.Action),
			}
		}
		d := policy.Evaluate(req)

		expect := strings.ToLower(strings.TrimSpace(check.Expect))
		matched := true
		switch expect {
		case "":
		case "allow":
			matched = d.Allowed
		case "deny":
			matched = !d.Allowed
		default:
			return nil, fmt.Errorf("check %s: expect must be allow or deny, got %q", check.Capability, check.Expect)
		}
		results = append(results, CheckResult{
			Capability: string(req.Capability),
			Allowed:    d.Allowed,
			Reason:     string(d.Reason),
			Expect:     expect,
			Matched:    matched,
		})
	}
	return results, nil
}

// CheckOptions defines available flags for the check command.
type CheckOptions struct {
	OutputOptions
	Path string
}

// CheckCommand evaluates a scenario file. It exits 10 when any expectation
// fails.
func CheckCommand(opts CheckOptions) int {
	opts.defaults()
	var in io.Reader = os.Stdin
	if opts.Path != "" && opts.Path != "-" {
		f, err := os.Open(opts.Path)
		if err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "check: %v\n", err)
			return 1
		}
		defer f.Close()
		in = f
	}
	sc, err := LoadScenario(in)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "check: %v\n", err)
		return 1
	}
	results, err := sc.Evaluate()
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "check: %v\n", err)
		return 1
	}

	if opts.JSONOutput {
		if err := encode(opts.OutputOptions, results); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "check: %v\n", err)
			return 1
		}
	} else {
		renderResults(opts.Stdout, results)
	}
	for _, r := range results {
		if !r.Matched {
			return 10
		}
	}
	return 0
}

func renderResults(out io.Writer, results []CheckResult) {
	tw := tabwriter.NewWriter(out, 2, 0, 3, ' ', 0)
	_, _ = fmt.Fprintln(tw, "CAPABILITY\tDECISION\tREASON\tEXPECT")
	for _, r := range results {
		decision := "deny"
		if r.Allowed {
			decision = "allow"
		}
		expect := r.Expect
		if expect != "" && !r.Matched {
			expect += " (MISMATCH)"
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.Capability, decision, r.Reason, expect)
	}
	_ = tw.Flush()
}
