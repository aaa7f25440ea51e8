package catalog

import (
	"testing"

	"github.com/steelcutops/cmdsql/cmdsql/columnar"
	"github.com/steelcutops/cmdsql/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRegistry(t *testing.T) {
	r := Default()

	ps, err := r.Lookup("ps")
	require.NoError(t, err)
	assert.Equal(t, []string{"ps", "aux"}, ps.Argv)
	assert.Equal(t, "ps", ps.ParserID)
	assert.Equal(t, Array, ps.Shape)
	assert.Equal(t, 11, ps.Schema.NumFields())

	up, err := r.Lookup("UPTIME")
	require.NoError(t, err)
	assert.Equal(t, Single, up.Shape)

	assert.Contains(t, r.Names(), "who")
	assert.True(t, r.Has("df"))
}

func TestLookupUnknownTable(t *testing.T) {
	_, err := Default().Lookup("nosuch")
	require.Error(t, err)
	assert.True(t, common.IsKind(err, common.UnknownTable))
}

func TestNewRegistryRejectsDuplicates(t *testing.T) {
	s := CommandSpec{Name: "x", Argv: []string{"true"}, ParserID: "x", Schema: columnar.NewSchema(utf8("a"))}
	_, err := NewRegistry(s, s)
	assert.Error(t, err)

	bad := s
	bad.Schema = columnar.NewSchema(utf8("a"), utf8("a"))
	_, err = NewRegistry(bad)
	assert.Error(t, err)
}

func TestWithCustom(t *testing.T) {
	no := false
	r, err := WithCustom([]TableDef{{
		Name:  "Lsblk",
		Argv:  []string{"lsblk", "-b"},
		Shape: "array",
		Columns: []ColumnDef{
			{Name: "name", Type: "utf8", Nullable: &no},
			{Name: "size", Type: "int64"},
		},
	}})
	require.NoError(t, err)

	s, err := r.Lookup("lsblk")
	require.NoError(t, err)
	assert.Equal(t, "lsblk", s.ParserID)
	assert.Equal(t, Array, s.Shape)
	assert.False(t, s.Schema.Fields[0].Nullable)
	assert.True(t, s.Schema.Fields[1].Nullable)

	_, err = WithCustom([]TableDef{{Name: "ps", Argv: []string{"ps"}, Columns: []ColumnDef{{Name: "a", Type: "utf8"}}}})
	assert.Error(t, err)

	_, err = WithCustom([]TableDef{{Name: "bad", Argv: []string{"x"}, Shape: "tree", Columns: []ColumnDef{{Name: "a", Type: "utf8"}}}})
	assert.Error(t, err)
}
