package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/workboard/projectguard/internal/policy"
)

// OutputOptions selects the output streams and format of a command.
type OutputOptions struct {
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

func (o *OutputOptions) defaults() {
	if o.Stdout == nil {
		o.Stdout = os.Stdout
	}
	if o.Stderr == nil {
		o.Stderr = os.Stderr
	}
}

type presetDoc struct {
	Name        string   `yaml:"name" json:"name"`
	Description string   `yaml:"description" json:"description"`
	Tokens      []string `yaml:"tokens" json:"tokens"`
}

type capabilityDoc struct {
	Token              string `yaml:"token" json:"token"`
	Description        string `yaml:"description" json:"description"`
	FullAccessEligible bool   `yaml:"full_access_eligible" json:"full_access_eligible"`
}

type catalogDoc struct {
	Capabilities []capabilityDoc `yaml:"capabilities" json:"capabilities"`
	Presets      []presetDoc     `yaml:"presets" json:"presets"`
}

// PresetsCommand prints the capability taxonomy and the preset catalogue.
func PresetsCommand(opts OutputOptions) int {
	opts.defaults()
	doc := catalogDoc{}
	for _, info := range policy.Catalog() {
		doc.Capabilities = append(doc.Capabilities, capabilityDoc{
			Token:              string(info.Capability),
			Description:        info.Description,
			FullAccessEligible: info.FullAccessEligible,
		})
	}
	for _, p := range policy.Presets() {
		doc.Presets = append(doc.Presets, presetDoc{
			Name:        p.Name,
			Description: p.Description,
			Tokens:      p.Tokens.With(policy.CapView).Tokens(),
		})
	}
	if err := encode(opts, doc); err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "presets: %v\n", err)
		return 1
	}
	return 0
}

// ValidateCommand normalises tokens and prints the canonical set, or the
// rejected tokens with exit code 1.
func ValidateCommand(tokens []string, opts OutputOptions) int {
	opts.defaults()
	set, err := policy.Validate(tokens)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "validate: %v\n", err)
		return 1
	}
	if err := encode(opts, map[string][]string{"tokens": set.Tokens()}); err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "validate: %v\n", err)
		return 1
	}
	return 0
}

func encode(opts OutputOptions, v any) error {
	if opts.JSONOutput {
		return json.NewEncoder(opts.Stdout).Encode(v)
	}
	enc := yaml.NewEncoder(opts.Stdout)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
