package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matzehuels/ogloc/pkg/errors"
)

func TestReadNamesList(t *testing.T) {
	names, err := readNames("serde, tokio,rand", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"serde", "tokio", "rand"}, names)

	names, err = readNames("serde", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"serde"}, names)
}

func TestReadNamesStdin(t *testing.T) {
	in := strings.NewReader("serde\n\n# comment\n  tokio  \nNot A Name\n")
	names, err := readNames("-", in)
	require.NoError(t, err)
	assert.Equal(t, []string{"serde", "tokio", "Not A Name"}, names)
}

func TestReadNamesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "names.txt")
	require.NoError(t, os.WriteFile(path, []byte("# crates\nserde\nrand\n"), 0o644))

	names, err := readNames(path, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"serde", "rand"}, names)
}

func TestReadNamesErrors(t *testing.T) {
	_, err := readNames("", nil)
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput))

	_, err = readNames(filepath.Join(t.TempDir(), "missing.txt"), nil)
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput))
}

func TestDedupe(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, dedupe([]string{"a", "b", "a", "c", "b"}))
	assert.Empty(t, dedupe(nil))
}

func TestPreloadFilter(t *testing.T) {
	all := preloadFilter("all")
	assert.True(t, all.Matches("anything"))

	sel := preloadFilter("serde, rand")
	assert.True(t, sel.Matches("serde"))
	assert.True(t, sel.Matches("rand"))
	assert.False(t, sel.Matches("tokio"))
}
