package snap

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/csv"
	"fmt"

	"github.com/samber/lo"

	"github.com/rudderlabs/rudder-go-kit/config"
	"github.com/rudderlabs/rudder-go-kit/logger"
	"github.com/rudderlabs/rudder-go-kit/stats"

	"github.com/rudderlabs/audience-uploader/pii"
	"github.com/rudderlabs/audience-uploader/services/objectstore"
	"github.com/rudderlabs/audience-uploader/transformer"
)

// Snap's segment-users endpoint accepts at most 100k identifiers per request, so the
// transform never writes a partition larger than that.
const defaultMaxRecordsPerFile = 100_000

type hashedRecord struct {
	Schema string
	Hash   string
}

// Transformer reshapes a clean-room export into Snap's long-form hashed identifier
// files: one row per (input row x hashed field), partitioned by row count.
type Transformer struct {
	logger       logger.Logger
	statsFactory stats.Stats
	store        objectstore.ObjectStore
	maxRecords   int
}

func New(conf *config.Config, log logger.Logger, statsFactory stats.Stats, store objectstore.ObjectStore) *Transformer {
	return &Transformer{
		logger:       log.Child("transformer").Child("snap"),
		statsFactory: statsFactory,
		store:        store,
		maxRecords:   conf.GetInt("Transformer.Snap.maxRecordsPerFile", defaultMaxRecordsPerFile),
	}
}

// supportedTypes is the subset of PII types Snap's segment-users endpoint accepts.
var supportedTypes = map[pii.Type]struct{}{
	pii.Email:      {},
	pii.Phone:      {},
	pii.MobileAdID: {},
}

func (t *Transformer) Run(ctx context.Context, args transformer.JobArgs) error {
	for _, spec := range args.PIIFields {
		if _, ok := supportedTypes[spec.Type]; !ok {
			return fmt.Errorf("pii type %s is not supported for snap", spec.Type)
		}
	}

	t.logger.Infof("reading input file from s3://%s/%s", args.SourceBucket, args.SourceKey)
	table, err := transformer.LoadTable(ctx, t.store, args.SourceBucket, args.SourceKey)
	if err != nil {
		return err
	}
	if err := transformer.NormalizeAndHash(table, args.PIIFields); err != nil {
		return err
	}

	records := melt(table, args.PIIFields)
	if len(records) == 0 {
		t.logger.Warnf("no hashed records produced for segment %s from %s", args.SegmentName, args.SourceKey)
		return nil
	}

	numChunks := (len(records) + t.maxRecords - 1) / t.maxRecords
	chunks := transformer.SplitRows(records, numChunks)
	for i, chunk := range chunks {
		body, err := encodePartition(chunk, args.SegmentName)
		if err != nil {
			return err
		}
		key := fmt.Sprintf("output/snap/%s/%s%s.csv.gz",
			args.SegmentName, args.OutputKey(), transformer.PartitionSuffix(i+1, len(chunks)))
		if err := t.store.Put(ctx, args.OutputBucket, key, body); err != nil {
			return err
		}
		t.logger.Infof("wrote %d records to s3://%s/%s", len(chunk), args.OutputBucket, key)
	}

	t.statsFactory.NewTaggedStat("transformer_output_records", stats.CountType, map[string]string{
		"module":   "transformer",
		"platform": "snap",
	}).Count(len(records))
	return nil
}

// melt reshapes from wide to long form, column-major: all rows of the first hashed
// column, then the next. Rows with no value for a hashed column contribute nothing.
func melt(table *transformer.Table, specs []pii.FieldSpec) []hashedRecord {
	schemas := lo.Map(specs, func(spec pii.FieldSpec, _ int) string {
		return spec.Type.SchemaColumn()
	})
	records := make([]hashedRecord, 0, len(table.Rows)*len(schemas))
	for _, schema := range schemas {
		for _, row := range table.Rows {
			if value, ok := row[schema]; ok && value.Kind == transformer.KindString {
				records = append(records, hashedRecord{Schema: schema, Hash: value.Str})
			}
		}
	}
	return records
}

func encodePartition(records []hashedRecord, segmentName string) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	w := csv.NewWriter(gz)
	rows := make([][]string, 0, len(records)+1)
	rows = append(rows, []string{"schema", "hash", "segment_name"})
	for _, record := range records {
		rows = append(rows, []string{record.Schema, record.Hash, segmentName})
	}
	if err := w.WriteAll(rows); err != nil {
		return nil, fmt.Errorf("writing partition csv: %w", err)
	}
	if err := gz.Close(); err != nil {
		return nil, fmt.Errorf("compressing partition: %w", err)
	}
	return buf.Bytes(), nil
}
