package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusCmd_ReportsZeroCountsOnFreshStore(t *testing.T) {
	tmpDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(tmpDir, ".git"), 0755))
	t.Setenv("CODEWITNESS_DATA_DIR", filepath.Join(tmpDir, ".codewitness"))

	oldDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(tmpDir))
	defer func() { _ = os.Chdir(oldDir) }()

	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"status", "--json"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), `"chunks": 0`)
	assert.Contains(t, out.String(), `"vector_status"`)
}

func TestStatusCmd_HasJSONFlag(t *testing.T) {
	cmd := NewRootCmd()

	statusCmd, _, err := cmd.Find([]string{"status"})
	require.NoError(t, err)

	flag := statusCmd.Flags().Lookup("json")
	assert.NotNil(t, flag)
}
