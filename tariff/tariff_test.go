package tariff

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smscard-gateway/billing"
	"smscard-gateway/coding"
)

func TestParse(t *testing.T) {
	tr, err := Parse(strings.NewReader(`
cost_per_unit: "0.0075"
limits:
  ucs2: {single: 70, concat: 66}
`))
	require.NoError(t, err)
	assert.Equal(t, billing.Rate(7500), tr.CostPerUnit)
	assert.Equal(t, coding.Limits{Single: 70, Concat: 66}, tr.Limits[coding.Unicode])
	assert.Equal(t, coding.Limits{Single: 160, Concat: 153}, tr.Limits[coding.GSM])
}

func TestParseEmpty(t *testing.T) {
	tr, err := Parse(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, Default(), tr)
}

func TestParseErrors(t *testing.T) {
	_, err := Parse(strings.NewReader(`limits: {EBCDIC: {single: 1, concat: 1}}`))
	assert.ErrorIs(t, err, coding.ErrInvalidEncoding)

	_, err = Parse(strings.NewReader(`limits: {GSM: {single: 0, concat: 20}}`))
	assert.ErrorIs(t, err, coding.ErrInvalidLimits)

	for _, rate := range []string{`"-1"`, `.inf`, `"NaN"`, `1e30`} {
		_, err = Parse(strings.NewReader("cost_per_unit: " + rate))
		assert.ErrorIs(t, err, billing.ErrInvalidRate, rate)
	}
}

func TestParseUnquotedRate(t *testing.T) {
	tr, err := Parse(strings.NewReader("cost_per_unit: 0.02\n"))
	require.NoError(t, err)
	assert.Equal(t, billing.Rate(20_000), tr.CostPerUnit)
}

func TestLoad(t *testing.T) {
	_, err := Load("")
	assert.ErrorIs(t, err, ErrEmptyPath)

	path := filepath.Join(t.TempDir(), "tariff.yaml")
	require.NoError(t, os.WriteFile(path, []byte("cost_per_unit: \"0.1\"\n"), 0o600))
	tr, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, billing.Rate(100_000), tr.CostPerUnit)
}
