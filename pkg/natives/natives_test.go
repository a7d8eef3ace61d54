package natives

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/septvm/septvm/pkg/heap"
	"github.com/septvm/septvm/pkg/object"
)

func TestDiscoverListsOnlySharedObjectsSorted(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"zeta.so", "alpha.so", "readme.txt", "beta.SO"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("not a real plugin"), 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.so"), 0o755))

	got, err := Discover(dir)
	require.NoError(t, err)

	require.Equal(t, []string{
		filepath.Join(dir, "alpha.so"),
		filepath.Join(dir, "zeta.so"),
	}, got, "non-.so files, directories named *.so, and case-mismatched extensions are excluded")
}

func TestDiscoverMissingDirectoryIsAnError(t *testing.T) {
	_, err := Discover(filepath.Join(t.TempDir(), "does-not-exist"))
	require.Error(t, err)
	require.True(t, os.IsNotExist(err))
}

func TestLoadAllToleratesMissingDirectory(t *testing.T) {
	mgr := heap.NewManager(heap.DefaultThreshold)
	scope := object.New(mgr)

	err := LoadAll(filepath.Join(t.TempDir(), "no-natives-here"), scope)
	require.NoError(t, err, "an absent native-module directory is not an error, natives are optional")
}

func TestLoadAllPropagatesNonExistErrors(t *testing.T) {
	mgr := heap.NewManager(heap.DefaultThreshold)
	scope := object.New(mgr)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bogus.so"), []byte("not an elf"), 0o644))

	err := LoadAll(dir, scope)
	require.Error(t, err, "a .so that cannot actually be opened as a Go plugin must surface as an error")
}

func TestLoadRejectsUnopenableFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bogus.so")
	require.NoError(t, os.WriteFile(path, []byte("not an elf"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}
