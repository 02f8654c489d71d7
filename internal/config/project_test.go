package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadProjectMissingFile(t *testing.T) {
	p, err := LoadProject(t.TempDir())
	require.NoError(t, err)
	assert.False(t, p.Trace)
	assert.Empty(t, p.Args)
}

func TestLoadProject(t *testing.T) {
	dir := t.TempDir()
	content := `
trace: true
dump_bytecode: false
stack_size: 4096
args:
  - --verbose
  - input.txt
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ProjectFileName), []byte(content), 0o644))

	p, err := LoadProject(dir)
	require.NoError(t, err)
	assert.True(t, p.Trace)
	assert.False(t, p.DumpBytecode)
	assert.Equal(t, 4096, p.StackSize)
	assert.Equal(t, []string{"--verbose", "input.txt"}, p.Args)
}

func TestLoadProjectInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ProjectFileName), []byte("trace: [unclosed"), 0o644))
	_, err := LoadProject(dir)
	assert.Error(t, err)
}

func TestSourceExtHelpers(t *testing.T) {
	assert.Equal(t, "main", TrimSourceExt("main.hk"))
	assert.Equal(t, "main", TrimSourceExt("main.hemlock"))
	assert.Equal(t, "main.go", TrimSourceExt("main.go"))
	assert.True(t, HasSourceExt("x.hk"))
	assert.False(t, HasSourceExt("x.txt"))
}
