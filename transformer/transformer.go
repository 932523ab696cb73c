package transformer

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/rudderlabs/audience-uploader/pii"
	"github.com/rudderlabs/audience-uploader/services/objectstore"
)

// ErrMissingPIIColumn is returned when a pii_fields entry names a column that is
// absent from the input schema or not string-typed. The job fails fast rather than
// uploading incomplete hashed data.
var ErrMissingPIIColumn = errors.New("pii field column is not a string column of the input")

// JobArgs is the transform stage's argument contract. All fields except PIIFields are
// required; validation happens at process startup before any output is written.
type JobArgs struct {
	SourceBucket string
	SourceKey    string
	OutputBucket string
	SegmentName  string
	PIIFields    []pii.FieldSpec
}

// OutputKey is the source key with its final extension removed; it seeds every output
// file name the stage writes.
func (a JobArgs) OutputKey() string {
	return strings.TrimSuffix(a.SourceKey, path.Ext(a.SourceKey))
}

// LoadTable streams the newline-delimited JSON export from the object store.
func LoadTable(ctx context.Context, store objectstore.ObjectStore, bucket, key string) (*Table, error) {
	body, err := store.Get(ctx, bucket, key)
	if err != nil {
		return nil, fmt.Errorf("reading source object: %w", err)
	}
	defer func() { _ = body.Close() }()
	table, err := ParseNDJSON(body)
	if err != nil {
		return nil, fmt.Errorf("parsing source object %s/%s: %w", bucket, key, err)
	}
	return table, nil
}

// NormalizeAndHash normalizes every string column, applies the per-type PII
// transforms, replaces each PII column's values with their SHA-256 digests and
// renames the column to its schema name (<PII_TYPE>_SHA256).
func NormalizeAndHash(table *Table, specs []pii.FieldSpec) error {
	for _, spec := range specs {
		if !table.IsStringColumn(spec.ColumnName) {
			return fmt.Errorf("%w: %q", ErrMissingPIIColumn, spec.ColumnName)
		}
	}

	for _, column := range table.StringColumns() {
		for _, row := range table.Rows {
			if value, ok := row[column]; ok && value.Kind == KindString {
				row[column] = String(pii.NormalizeString(value.Str))
			}
		}
	}

	for _, spec := range specs {
		for _, row := range table.Rows {
			value, ok := row[spec.ColumnName]
			if !ok || value.Kind != KindString {
				continue
			}
			normalized := pii.Transform(spec.Type, value.Str)
			row[spec.ColumnName] = String(pii.HashValue(normalized))
		}
		table.RenameColumn(spec.ColumnName, spec.Type.SchemaColumn())
	}
	return nil
}

// SplitRows partitions rows into n near-equal consecutive chunks, the first rows%n
// chunks holding one extra row. The union of all chunks is exactly the input.
func SplitRows[T any](rows []T, n int) [][]T {
	if n <= 0 {
		n = 1
	}
	if n > len(rows) && len(rows) > 0 {
		n = len(rows)
	}
	chunks := make([][]T, 0, n)
	base := len(rows) / n
	extra := len(rows) % n
	offset := 0
	for i := 0; i < n; i++ {
		size := base
		if i < extra {
			size++
		}
		chunks = append(chunks, rows[offset:offset+size])
		offset += size
	}
	return chunks
}

// PartitionSuffix formats a 1-based partition index zero-padded to the decimal width
// of the partition count, so lexicographic and numeric ordering agree.
func PartitionSuffix(index, total int) string {
	digits := 1
	for total >= 10 {
		total /= 10
		digits++
	}
	return fmt.Sprintf("%0*d", digits, index)
}
