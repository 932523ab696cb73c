package pii

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/rudderlabs/rudder-go-kit/jsonrs"
)

// Type identifies the kind of personally identifiable data held in a column.
type Type string

const (
	Email      Type = "EMAIL"
	Phone      Type = "PHONE"
	MobileAdID Type = "MOBILE_AD_ID"
	GAID       Type = "GAID"
	IDFA       Type = "IDFA"
)

var allTypes = map[Type]struct{}{
	Email:      {},
	Phone:      {},
	MobileAdID: {},
	GAID:       {},
	IDFA:       {},
}

func (t Type) Valid() bool {
	_, ok := allTypes[t]
	return ok
}

// SchemaColumn is the column name a hashed field is published under, e.g. EMAIL_SHA256.
func (t Type) SchemaColumn() string {
	return string(t) + "_SHA256"
}

// FieldSpec binds an input column to the kind of PII it contains. Supplied once per
// job invocation via the pii_fields argument.
type FieldSpec struct {
	ColumnName string `json:"column_name"`
	Type       Type   `json:"pii_type"`
}

// ParseFieldSpecs parses the JSON array passed through the pii_fields job argument.
// An empty argument yields no specs, which turns the transform into a plain copy
// of the normalized string columns.
func ParseFieldSpecs(raw string) ([]FieldSpec, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var specs []FieldSpec
	if err := jsonrs.Unmarshal([]byte(raw), &specs); err != nil {
		return nil, fmt.Errorf("parsing pii_fields: %w", err)
	}
	for _, spec := range specs {
		if spec.ColumnName == "" {
			return nil, fmt.Errorf("pii_fields entry is missing column_name")
		}
		if !spec.Type.Valid() {
			return nil, fmt.Errorf("pii_fields entry %q has unsupported pii_type %q", spec.ColumnName, spec.Type)
		}
	}
	return specs, nil
}

var nonDigits = regexp.MustCompile(`[^0-9]+`)

// NormalizeString applies the normalization every string field receives before any
// per-type transform: unicode compatibility decomposition plus whitespace trimming.
func NormalizeString(value string) string {
	return strings.TrimSpace(norm.NFKD.String(value))
}

// Transform applies the per-type normalization to an already NormalizeString'ed value.
func Transform(t Type, value string) string {
	switch t {
	case Phone:
		return strings.TrimLeft(nonDigits.ReplaceAllString(value, ""), "0")
	case MobileAdID, GAID, IDFA:
		return strings.ToLower(value)
	default:
		return value
	}
}

// Normalize is the full normalization pipeline for a raw PII value. Idempotent.
func Normalize(t Type, value string) string {
	return Transform(t, NormalizeString(value))
}

// HashValue returns the lowercase hex SHA-256 digest of the UTF-8 encoded value.
func HashValue(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}
