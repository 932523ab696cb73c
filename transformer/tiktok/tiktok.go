package tiktok

import (
	"context"
	"fmt"
	"strings"

	"github.com/rudderlabs/rudder-go-kit/bytesize"
	"github.com/rudderlabs/rudder-go-kit/config"
	"github.com/rudderlabs/rudder-go-kit/logger"
	"github.com/rudderlabs/rudder-go-kit/stats"

	"github.com/rudderlabs/audience-uploader/pii"
	"github.com/rudderlabs/audience-uploader/services/objectstore"
	"github.com/rudderlabs/audience-uploader/transformer"
)

// TikTok's custom audience file upload endpoint rejects files of 50 MiB or more.
const defaultMaxFileSize = 50 * bytesize.MB

// Transformer writes one headerless single-column file set per hashed PII column, so
// downstream uploads for one calculate type never wait on another.
type Transformer struct {
	logger       logger.Logger
	statsFactory stats.Stats
	store        objectstore.ObjectStore
	maxFileSize  int64
}

func New(conf *config.Config, log logger.Logger, statsFactory stats.Stats, store objectstore.ObjectStore) *Transformer {
	return &Transformer{
		logger:       log.Child("transformer").Child("tiktok"),
		statsFactory: statsFactory,
		store:        store,
		maxFileSize:  conf.GetInt64("Transformer.TikTok.maxFileSizeBytes", defaultMaxFileSize),
	}
}

// supportedTypes is the subset of PII types TikTok's custom audience files accept.
var supportedTypes = map[pii.Type]struct{}{
	pii.Email: {},
	pii.Phone: {},
	pii.GAID:  {},
	pii.IDFA:  {},
}

func (t *Transformer) Run(ctx context.Context, args transformer.JobArgs) error {
	for _, spec := range args.PIIFields {
		if _, ok := supportedTypes[spec.Type]; !ok {
			return fmt.Errorf("pii type %s is not supported for tiktok", spec.Type)
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

	// Only the hashed columns are retained; every other column is dropped.
	total := 0
	for _, spec := range args.PIIFields {
		schema := spec.Type.SchemaColumn()
		count, err := t.writeColumn(ctx, table, schema, args)
		if err != nil {
			return fmt.Errorf("writing %s output: %w", schema, err)
		}
		total += count
	}

	t.statsFactory.NewTaggedStat("transformer_output_records", stats.CountType, map[string]string{
		"module":   "transformer",
		"platform": "tiktok",
	}).Count(total)
	return nil
}

func (t *Transformer) writeColumn(ctx context.Context, table *transformer.Table, schema string, args transformer.JobArgs) (int, error) {
	hashes := make([]string, 0, len(table.Rows))
	for _, row := range table.Rows {
		if value, ok := row[schema]; ok && value.Kind == transformer.KindString {
			hashes = append(hashes, value.Str)
		}
	}
	if len(hashes) == 0 {
		t.logger.Warnf("%s produced no hashes for segment %s", schema, args.SegmentName)
		return 0, nil
	}

	// The column is staged to a temporary object first; its measured size decides
	// whether the real output is written whole or split into numbered partitions.
	tmpKey := fmt.Sprintf("transform_tmp/%s/%s.csv", schema, args.OutputKey())
	if err := t.store.Put(ctx, args.OutputBucket, tmpKey, encodeColumn(hashes)); err != nil {
		return 0, err
	}
	defer func() {
		if err := t.store.Delete(ctx, args.OutputBucket, tmpKey); err != nil {
			t.logger.Errorf("deleting temporary object %s: %v", tmpKey, err)
		}
	}()

	size, err := t.store.Size(ctx, args.OutputBucket, tmpKey)
	if err != nil {
		return 0, err
	}

	outputPrefix := fmt.Sprintf("output/tiktok/%s/%s/%s", args.SegmentName, strings.ToLower(schema), args.OutputKey())
	if size >= t.maxFileSize {
		numChunks := int((size + t.maxFileSize - 1) / t.maxFileSize)
		chunks := transformer.SplitRows(hashes, numChunks)
		for i, chunk := range chunks {
			key := outputPrefix + transformer.PartitionSuffix(i+1, len(chunks)) + ".csv"
			if err := t.store.Put(ctx, args.OutputBucket, key, encodeColumn(chunk)); err != nil {
				return 0, err
			}
			t.logger.Infof("wrote %d hashes to s3://%s/%s", len(chunk), args.OutputBucket, key)
		}
		return len(hashes), nil
	}

	key := outputPrefix + ".csv"
	if err := t.store.Put(ctx, args.OutputBucket, key, encodeColumn(hashes)); err != nil {
		return 0, err
	}
	t.logger.Infof("wrote %d hashes to s3://%s/%s", len(hashes), args.OutputBucket, key)
	return len(hashes), nil
}

// encodeColumn renders a headerless, index-less single-column CSV.
func encodeColumn(hashes []string) []byte {
	return []byte(strings.Join(hashes, "\n") + "\n")
}
