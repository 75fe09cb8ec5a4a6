package envfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_LaterFilesOverride(t *testing.T) {
	dir := t.TempDir()
	base := writeFile(t, dir, "base.env", "PORT=2333\nPASSWORD=hunter2\n")
	extra := writeFile(t, dir, "extra.env", "PORT=9999\nDEBUG=true\n")

	env, err := Load([]string{base, extra})
	require.NoError(t, err)
	require.Equal(t, map[string]string{
		"PORT":     "9999",
		"PASSWORD": "hunter2",
		"DEBUG":    "true",
	}, env)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load([]string{filepath.Join(t.TempDir(), "nope.env")})
	require.Error(t, err)
	require.Contains(t, err.Error(), "open env file")
}

func TestLoad_MalformedFile(t *testing.T) {
	dir := t.TempDir()
	bad := writeFile(t, dir, "bad.env", "not a key value line\n")

	_, err := Load([]string{bad})
	require.Error(t, err)
	require.Contains(t, err.Error(), "parse env file")
}

func TestLoad_Empty(t *testing.T) {
	env, err := Load(nil)
	require.NoError(t, err)
	require.Empty(t, env)
}

func TestMerge_DoesNotMutate(t *testing.T) {
	base := map[string]string{"A": "1", "B": "2"}
	override := map[string]string{"B": "3", "C": "4"}

	out := Merge(base, override)
	require.Equal(t, map[string]string{"A": "1", "B": "3", "C": "4"}, out)
	require.Equal(t, "2", base["B"])
}

func TestFlatten_SortedPairs(t *testing.T) {
	out := Flatten(map[string]string{"ZZ": "last", "AA": "first", "MM": "mid"})
	require.Equal(t, []string{"AA=first", "MM=mid", "ZZ=last"}, out)
}
