package transformer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseNDJSON(t *testing.T) {
	input := `{"email":"a@example.com","phone":"555-0001","age":31,"active":true}
{"email":"b@example.com","phone":"555-0002","age":42,"note":null}

{"email":"c@example.com","phone":"555-0003","age":27}
`
	table, err := ParseNDJSON(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, table.Rows, 3)
	require.Equal(t, []string{"email", "phone", "age", "active", "note"}, table.Columns)

	require.Equal(t, String("a@example.com"), table.Rows[0]["email"])
	require.Equal(t, Number(31), table.Rows[0]["age"])
	require.Equal(t, Bool(true), table.Rows[0]["active"])
	require.Equal(t, Null(), table.Rows[1]["note"])

	_, ok := table.Rows[2]["active"]
	require.False(t, ok, "columns absent from a line should be missing from its row")
}

func TestParseNDJSONRejectsNonObjects(t *testing.T) {
	_, err := ParseNDJSON(strings.NewReader(`["not","an","object"]`))
	require.Error(t, err)
}

func TestIsStringColumn(t *testing.T) {
	input := `{"email":"a@example.com","age":31,"mixed":"x","sparse":null}
{"email":"b@example.com","age":42,"mixed":7}
`
	table, err := ParseNDJSON(strings.NewReader(input))
	require.NoError(t, err)

	require.True(t, table.IsStringColumn("email"))
	require.False(t, table.IsStringColumn("age"))
	require.False(t, table.IsStringColumn("mixed"))
	// all-null columns count as string-compatible but carry no values
	require.True(t, table.IsStringColumn("sparse"))
	require.False(t, table.IsStringColumn("missing"))
	require.Equal(t, []string{"email", "sparse"}, table.StringColumns())
}

func TestRenameColumn(t *testing.T) {
	input := `{"email":"a@example.com","other":"x"}` + "\n"
	table, err := ParseNDJSON(strings.NewReader(input))
	require.NoError(t, err)

	table.RenameColumn("email", "EMAIL_SHA256")
	require.Equal(t, []string{"EMAIL_SHA256", "other"}, table.Columns)
	require.True(t, table.HasColumn("EMAIL_SHA256"))
	require.False(t, table.HasColumn("email"))
	require.Equal(t, String("a@example.com"), table.Rows[0]["EMAIL_SHA256"])
}
