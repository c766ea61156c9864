package policy

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
)

// ErrInvalidToken is wrapped by every ValidationError.
var ErrInvalidToken = errors.New("policy: invalid permission token")

// ValidationError lists the raw tokens Validate refused.
type ValidationError struct {
	Invalid []string
}

func (e *ValidationError) Error() string {
	quoted := make([]string, len(e.Invalid))
	for i, tok := range e.Invalid {
		quoted[i] = fmt.Sprintf("%q", tok)
	}
	return fmt.Sprintf("policy: unknown permission tokens %s", strings.Join(quoted, ", "))
}

func (e *ValidationError) Unwrap() error { return ErrInvalidToken }

// Validate converts wire tokens into a CapabilitySet. Tokens are trimmed and
// case folded and word separators are normalised; "Manage Phases",
// "manage-phases", "ManagePhases" and "MANAGE_PHASES" all name
// CapManagePhases. Every unknown or blank token is reported at once.
func Validate(tokens []string) (CapabilitySet, error) {
	var (
		set     CapabilitySet
		invalid []string
	)
	for _, raw := range tokens {
		c, ok := capabilityByKey[tokenKey(raw)]
		if !ok {
			invalid = append(invalid, raw)
			continue
		}
		set |= c.bit()
	}
	if len(invalid) > 0 {
		return 0, &ValidationError{Invalid: invalid}
	}
	return set, nil
}

// ParseCapability validates a single token.
func ParseCapability(raw string) (Capability, error) {
	c, ok := capabilityByKey[tokenKey(raw)]
	if !ok {
		return "", &ValidationError{Invalid: []string{raw}}
	}
	return c, nil
}

// NormalizeToken trims and case folds a token without validating it.
func NormalizeToken(raw string) string {
	// A Caser keeps state between calls, so each call gets its own.
	return cases.Fold().String(strings.TrimSpace(raw))
}

// tokenKey splits raw into words at separators and at lower-to-upper case
// changes, folds each word and joins the words with underscores. Separators
// inside a word are not dropped, so "v_i_e_w" stays distinct from "view".
func tokenKey(raw string) string {
	var (
		words []string
		word  []rune
		prev  rune
	)
	flush := func() {
		if len(word) > 0 {
			words = append(words, NormalizeToken(string(word)))
			word = word[:0]
		}
	}
	for _, r := range strings.TrimSpace(raw) {
		switch {
		case r == '_' || r == '-' || unicode.IsSpace(r):
			flush()
		case unicode.IsUpper(r) && unicode.IsLower(prev):
			flush()
			word = append(word, r)
		default:
			word = append(word, r)
		}
		prev = r
	}
	flush()
	return strings.Join(words, "_")
}
