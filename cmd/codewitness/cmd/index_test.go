package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexCmd_IndexesProjectWithoutEmbedder(t *testing.T) {
	tmpDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(tmpDir, ".git"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "main.go"), []byte("package main\n\nfunc main() {}\n"), 0644))
	t.Setenv("CODEWITNESS_DATA_DIR", filepath.Join(tmpDir, ".codewitness"))

	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"index", tmpDir})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "indexed")
}

func TestIndexCmd_HasForceFlag(t *testing.T) {
	cmd := NewRootCmd()

	indexCmd, _, err := cmd.Find([]string{"index"})
	require.NoError(t, err)

	flag := indexCmd.Flags().Lookup("force")
	assert.NotNil(t, flag)
	assert.Equal(t, "false", flag.DefValue)
}
