package snap

import (
	"compress/gzip"
	"context"
	"encoding/csv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rudderlabs/rudder-go-kit/config"
	"github.com/rudderlabs/rudder-go-kit/logger"
	"github.com/rudderlabs/rudder-go-kit/stats"

	"github.com/rudderlabs/audience-uploader/pii"
	"github.com/rudderlabs/audience-uploader/services/objectstore"
	"github.com/rudderlabs/audience-uploader/transformer"
)

const testExport = `{"e-mail":"a@example.com","phone_number":"555-0001","id":1}
{"e-mail":"b@example.com","phone_number":"555-0002","id":2}
{"e-mail":"c@example.com","phone_number":"555-0003","id":3}
`

func testArgs() transformer.JobArgs {
	return transformer.JobArgs{
		SourceBucket: "source",
		SourceKey:    "mydata.json",
		OutputBucket: "output",
		SegmentName:  "myaudience",
		PIIFields: []pii.FieldSpec{
			{ColumnName: "e-mail", Type: pii.Email},
			{ColumnName: "phone_number", Type: pii.Phone},
		},
	}
}

func readPartition(t *testing.T, store *objectstore.MemoryStore, key string) [][]string {
	t.Helper()
	object, err := store.Get(context.Background(), "output", key)
	require.NoError(t, err)
	defer func() { _ = object.Close() }()
	gz, err := gzip.NewReader(object)
	require.NoError(t, err)
	rows, err := csv.NewReader(gz).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestTransformEndToEnd(t *testing.T) {
	ctx := context.Background()
	store := objectstore.NewMemoryStore()
	require.NoError(t, store.Put(ctx, "source", "mydata.json", []byte(testExport)))

	tr := New(config.New(), logger.NOP, stats.NOP, store)
	require.NoError(t, tr.Run(ctx, testArgs()))

	objects, err := store.ListWithPrefix(ctx, "output", "output/snap/myaudience/")
	require.NoError(t, err)
	require.Len(t, objects, 1)
	require.Equal(t, "output/snap/myaudience/mydata1.csv.gz", objects[0].Key)

	rows := readPartition(t, store, objects[0].Key)
	require.Equal(t, []string{"schema", "hash", "segment_name"}, rows[0])
	// 2 pii fields x 3 rows = 6 hashed records, column-major
	require.Len(t, rows[1:], 6)
	for i, row := range rows[1:4] {
		require.Equal(t, "EMAIL_SHA256", row[0], "row %d", i)
		require.Equal(t, "myaudience", row[2])
	}
	for _, row := range rows[4:] {
		require.Equal(t, "PHONE_SHA256", row[0])
	}
	require.Equal(t, pii.HashValue("a@example.com"), rows[1][1])
	require.Equal(t, pii.HashValue("5550001"), rows[4][1])
}

func TestTransformPartitionsByRowCount(t *testing.T) {
	ctx := context.Background()
	store := objectstore.NewMemoryStore()
	require.NoError(t, store.Put(ctx, "source", "mydata.json", []byte(testExport)))

	conf := config.New()
	conf.Set("Transformer.Snap.maxRecordsPerFile", 4)
	tr := New(conf, logger.NOP, stats.NOP, store)
	require.NoError(t, tr.Run(ctx, testArgs()))

	objects, err := store.ListWithPrefix(ctx, "output", "output/snap/myaudience/")
	require.NoError(t, err)
	require.Len(t, objects, 2)
	require.Equal(t, "output/snap/myaudience/mydata1.csv.gz", objects[0].Key)
	require.Equal(t, "output/snap/myaudience/mydata2.csv.gz", objects[1].Key)

	total := 0
	for _, object := range objects {
		rows := readPartition(t, store, object.Key)
		require.LessOrEqual(t, len(rows)-1, 4, "partition exceeds the row limit")
		total += len(rows) - 1
	}
	require.Equal(t, 6, total, "partitions must cover every record exactly once")
}

func TestTransformUnsupportedType(t *testing.T) {
	ctx := context.Background()
	store := objectstore.NewMemoryStore()
	require.NoError(t, store.Put(ctx, "source", "mydata.json", []byte(testExport)))

	args := testArgs()
	args.PIIFields = []pii.FieldSpec{{ColumnName: "gaid", Type: pii.GAID}}
	tr := New(config.New(), logger.NOP, stats.NOP, store)
	require.Error(t, tr.Run(ctx, args))
}

func TestTransformMissingColumnFailsJob(t *testing.T) {
	ctx := context.Background()
	store := objectstore.NewMemoryStore()
	require.NoError(t, store.Put(ctx, "source", "mydata.json", []byte(testExport)))

	args := testArgs()
	args.PIIFields = append(args.PIIFields, pii.FieldSpec{ColumnName: "missing", Type: pii.MobileAdID})
	tr := New(config.New(), logger.NOP, stats.NOP, store)
	require.ErrorIs(t, tr.Run(ctx, args), transformer.ErrMissingPIIColumn)

	objects, err := store.ListWithPrefix(ctx, "output", "output/")
	require.NoError(t, err)
	require.Empty(t, objects, "no partial output on configuration errors")
}
