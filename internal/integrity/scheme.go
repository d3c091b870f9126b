package integrity

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ucarion/jcs"
)

// Scheme identifies a canonicalization rule. The scheme used to write a hash
// is stored next to it so the verifier can recompute with the same rule.
type Scheme int

const (
	// SchemeSorted serializes the five fields as RFC 8785 canonical JSON
	// (keys in lexicographic order).
	SchemeSorted Scheme = 1
	// SchemeFixed serializes the five fields as compact JSON in the fixed
	// order diagnosis, confidence, riskLevel, systemVersion, modelVersion.
	SchemeFixed Scheme = 2

	// CurrentScheme is used for new hashes unless configured otherwise.
	CurrentScheme = SchemeFixed
)

// ErrUnknownScheme is returned for scheme identifiers with no canonicalizer.
var ErrUnknownScheme = errors.New("unknown hash scheme")

// Valid reports whether s has a canonicalizer.
func (s Scheme) Valid() bool {
	return s == SchemeSorted || s == SchemeFixed
}

func (s Scheme) String() string {
	switch s {
	case SchemeSorted:
		return "sorted"
	case SchemeFixed:
		return "fixed"
	default:
		return "scheme(" + strconv.Itoa(int(s)) + ")"
	}
}

// ParseScheme accepts a scheme name ("sorted", "fixed") or its number.
func ParseScheme(v string) (Scheme, error) {
	v = strings.ToLower(strings.TrimSpace(v))
	switch v {
	case "sorted", "1":
		return SchemeSorted, nil
	case "fixed", "2":
		return SchemeFixed, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownScheme, v)
}

// Canonicalize serializes normalized fields with the rule of scheme s.
func (s Scheme) Canonicalize(c Canonical) ([]byte, error) {
	switch s {
	case SchemeSorted:
		return canonicalizeSorted(c)
	case SchemeFixed:
		return canonicalizeFixed(c)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownScheme, int(s))
	}
}

func canonicalizeFixed(c Canonical) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(c); err != nil {
		return nil, fmt.Errorf("encode canonical fields: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

func canonicalizeSorted(c Canonical) ([]byte, error) {
	out, err := jcs.Format(map[string]interface{}{
		FieldDiagnosis:     c.Diagnosis,
		FieldConfidence:    c.Confidence,
		FieldRiskLevel:     c.RiskLevel,
		FieldSystemVersion: c.SystemVersion,
		FieldModelVersion:  c.ModelVersion,
	})
	if err != nil {
		return nil, fmt.Errorf("canonicalize fields: %w", err)
	}
	return []byte(out), nil
}
