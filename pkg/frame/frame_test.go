package frame

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsUndeclaredColumns(t *testing.T) {
	_, err := New([]Column{{Name: "a"}}, []Row{{"a": 1, "b": 2}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSchemaMismatch))
}

func TestNewRejectsDuplicateColumns(t *testing.T) {
	_, err := New([]Column{{Name: "a"}, {Name: "a"}}, nil)
	assert.ErrorIs(t, err, ErrSchemaMismatch)
}

func TestSelect(t *testing.T) {
	tbl := wideFixture(t)
	out, err := tbl.Select("B", "name")
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "name"}, out.ColumnNames())
	assert.Equal(t, Row{"B": 2.0, "name": "X"}, out.Rows[0])

	_, err = tbl.Select("nope")
	assert.ErrorIs(t, err, ErrSchemaMismatch)
}

func TestDistinctKeepsFirstAppearanceOrder(t *testing.T) {
	values, err := wideFixture(t).Distinct("stain")
	require.NoError(t, err)
	assert.Equal(t, []any{"positive", "negative"}, values)
}

func TestFloats(t *testing.T) {
	tbl, err := New([]Column{{Name: "v"}}, []Row{{"v": 1}, {"v": "2.5"}, {"v": true}, {}})
	require.NoError(t, err)
	got, err := tbl.Floats("v")
	require.NoError(t, err)
	assert.Equal(t, 1.0, got[0])
	assert.Equal(t, 2.5, got[1])
	assert.True(t, math.IsNaN(got[2]))
	assert.True(t, math.IsNaN(got[3]))
}

func TestCloneIsDeep(t *testing.T) {
	tbl := wideFixture(t)
	dup := tbl.Clone()
	dup.Rows[0]["name"] = "changed"
	dup.Columns[0].Name = "changed"
	assert.Equal(t, "X", tbl.Rows[0]["name"])
	assert.Equal(t, "name", tbl.Columns[0].Name)
}

func TestFormatFixed(t *testing.T) {
	assert.Equal(t, "0.001", FormatFixed(0.001, 3))
	assert.Equal(t, "870.000", FormatFixed(870.0, 3))
	assert.Equal(t, "600.000", FormatFixed(600, 3))
	assert.Equal(t, "Penicillin", FormatFixed("Penicillin", 3))
	assert.Equal(t, "", FormatFixed(nil, 3))
}

func TestFormatFixedNonFinite(t *testing.T) {
	assert.NotPanics(t, func() {
		assert.Equal(t, "+Inf", FormatFixed(math.Inf(1), 3))
		assert.Equal(t, "-Inf", FormatFixed(math.Inf(-1), 3))
		assert.Equal(t, "NaN", FormatFixed(math.NaN(), 3))
		assert.Equal(t, "Inf", FormatFixed("Inf", 3))
	})
}

func TestFormatCell(t *testing.T) {
	assert.Equal(t, "0.001", FormatCell(0.001))
	assert.Equal(t, "870", FormatCell(870.0))
	assert.Equal(t, "positive", FormatCell("positive"))
}
