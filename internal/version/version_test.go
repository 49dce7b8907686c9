package version

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestString(t *testing.T) {
	require.Equal(t, "Box Annotator v"+Version, String())

	GitCommit, BuildTime = "abc123", "2026-01-01"
	t.Cleanup(func() { GitCommit, BuildTime = "unknown", "unknown" })
	require.Equal(t, "Box Annotator v"+Version+" (abc123, built 2026-01-01)", String())
}
