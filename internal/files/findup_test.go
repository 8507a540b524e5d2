package files

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindUp(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b", "c")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	script := filepath.Join(root, "a", "example_script.js")
	require.NoError(t, os.WriteFile(script, []byte("1+1"), 0o644))

	found, err := FindUp("example_script.js", nested)
	require.NoError(t, err)
	assert.Equal(t, script, found)

	_, err = FindUp("missing_script.js", nested)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFindUpSkipsDirectories(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "x", "example_script.js"), 0o755))

	_, err := FindUp("example_script.js", filepath.Join(root, "x"))
	assert.ErrorIs(t, err, ErrNotFound)
}
