package daemon

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wasmind-run/fabric/internal/build"
)

func TestExpandHomeLeavesAbsolutePathsAlone(t *testing.T) {
	t.Parallel()

	require.Equal(t, "/var/lib/fabric", expandHome("/var/lib/fabric"))
	require.Equal(t, "", expandHome(""))
}

func TestExpandHomeExpandsTilde(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	got := expandHome("~/.fabric/cache")
	require.Equal(t, home+"/.fabric/cache", got)
}

func TestExpandHomeExpandsEnvVars(t *testing.T) {
	t.Setenv("FABRIC_TEST_DIR", "/tmp/fabric-test")

	got := expandHome("$FABRIC_TEST_DIR/cache")
	require.Equal(t, "/tmp/fabric-test/cache", got)
}

func TestHostInfoReportsVersions(t *testing.T) {
	t.Parallel()

	info := hostInfo()
	require.Equal(t, build.Version(), info["fabric_version"])
	require.Equal(t, build.GoVersion, info["go_version"])
}

func TestCommitInfoFallsBackWhenEmpty(t *testing.T) {
	original := build.Commit
	defer func() { build.Commit = original }()

	build.Commit = ""
	require.Equal(t, "dev", commitInfo())

	build.Commit = "abc1234"
	require.Equal(t, "abc1234", commitInfo())
}
