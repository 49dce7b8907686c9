package colorutil

import (
	"image/color"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseHex(t *testing.T) {
	c, err := ParseHex("#32cd32")
	require.NoError(t, err)
	require.Equal(t, Lime, c)

	c, err = ParseHex("ff000080")
	require.NoError(t, err)
	require.Equal(t, color.RGBA{R: 255, A: 128}, c)

	_, err = ParseHex("#abc")
	require.Error(t, err)
	_, err = ParseHex("#zzzzzz")
	require.Error(t, err)
}

func TestHexRoundTrip(t *testing.T) {
	c, err := ParseHex(Hex(Orange))
	require.NoError(t, err)
	require.Equal(t, Orange, c)
}

func TestPaletteColorWraps(t *testing.T) {
	require.Equal(t, PaletteColor(0), PaletteColor(len(Palette)))
	require.Equal(t, PaletteColor(1), PaletteColor(-1))
}
