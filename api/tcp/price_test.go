package tcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePrice(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"184.250", 184_250},
		{"0.001", 1},
		{"100", 100_000},
		{"99.1", 99_100},
	}
	for _, c := range cases {
		got, err := ParsePrice(c.in)
		require.NoError(t, err, c.in)
		assert.Equal(t, c.want, got, c.in)
	}
}

func TestParsePriceRejects(t *testing.T) {
	for _, in := range []string{"", "abc", "0", "-1.5", "0.0001", "1.2345"} {
		_, err := ParsePrice(in)
		assert.Error(t, err, in)
	}
}

func TestFormatPrice(t *testing.T) {
	assert.Equal(t, "184.250", FormatPrice(184_250))
	assert.Equal(t, "0.001", FormatPrice(1))
	assert.Equal(t, "100.000", FormatPrice(100_000))
}

func TestParseFormatStable(t *testing.T) {
	got, err := ParsePrice(FormatPrice(57_301))
	require.NoError(t, err)
	assert.Equal(t, int64(57_301), got)
}
