// Package integrity computes the tamper-evidence fingerprint stored with every
// scan record and re-derives it during verification.
//
// Five clinical fields participate in the digest: diagnosis, confidence,
// riskLevel, systemVersion and modelVersion. Defaults are applied once, in
// Normalize, so that an omitted field and its documented default always hash
// identically.
package integrity

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// DefaultRiskLevel is substituted when a record carries no risk level.
const DefaultRiskLevel = "Low"

// Canonical field names, shared by every scheme.
const (
	FieldDiagnosis     = "diagnosis"
	FieldConfidence    = "confidence"
	FieldRiskLevel     = "riskLevel"
	FieldSystemVersion = "systemVersion"
	FieldModelVersion  = "modelVersion"
)

// Fields is the hash input as supplied by a caller. A nil member means the
// field is absent and its default applies.
type Fields struct {
	Diagnosis     *string
	Confidence    *float64
	RiskLevel     *string
	SystemVersion *string
	ModelVersion  *string
}

// Canonical is the normalized hash input. Field order matches the fixed
// serialization of SchemeFixed.
type Canonical struct {
	Diagnosis     string  `json:"diagnosis"`
	Confidence    float64 `json:"confidence"`
	RiskLevel     string  `json:"riskLevel"`
	SystemVersion string  `json:"systemVersion"`
	ModelVersion  string  `json:"modelVersion"`
}

// Normalize applies the field defaults. It never fails.
func Normalize(f Fields) Canonical {
	c := Canonical{
		Diagnosis:     deref(f.Diagnosis),
		RiskLevel:     deref(f.RiskLevel),
		SystemVersion: deref(f.SystemVersion),
		ModelVersion:  deref(f.ModelVersion),
	}
	if f.Confidence != nil {
		c.Confidence = *f.Confidence
	}
	if math.IsNaN(c.Confidence) || math.IsInf(c.Confidence, 0) || c.Confidence == 0 {
		// also folds -0 into 0
		c.Confidence = 0
	}
	if c.RiskLevel == "" {
		c.RiskLevel = DefaultRiskLevel
	}
	return c
}

// FieldsFromMap coerces a loosely typed document (for example a decoded JSON
// object) into Fields. Unknown keys are ignored and key order is irrelevant.
func FieldsFromMap(m map[string]interface{}) Fields {
	var f Fields
	if v, ok := m[FieldDiagnosis]; ok {
		f.Diagnosis = coerceString(v)
	}
	if v, ok := m[FieldConfidence]; ok {
		f.Confidence = coerceNumber(v)
	}
	if v, ok := m[FieldRiskLevel]; ok {
		f.RiskLevel = coerceString(v)
	}
	if v, ok := m[FieldSystemVersion]; ok {
		f.SystemVersion = coerceString(v)
	}
	if v, ok := m[FieldModelVersion]; ok {
		f.ModelVersion = coerceString(v)
	}
	return f
}

// String returns a pointer to s. Convenience for building Fields.
func String(s string) *string { return &s }

// Number returns a pointer to n. Convenience for building Fields.
func Number(n float64) *float64 { return &n }

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func coerceString(v interface{}) *string {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		return &t
	case float64:
		s := strconv.FormatFloat(t, 'f', -1, 64)
		return &s
	case json.Number:
		s := t.String()
		return &s
	default:
		s := fmt.Sprint(t)
		return &s
	}
}

func coerceNumber(v interface{}) *float64 {
	var n float64
	switch t := v.(type) {
	case nil:
		return nil
	case float64:
		n = t
	case float32:
		n = float64(t)
	case int:
		n = float64(t)
	case int32:
		n = float64(t)
	case int64:
		n = float64(t)
	case json.Number:
		n, _ = t.Float64()
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err == nil {
			n = parsed
		}
	}
	return &n
}
