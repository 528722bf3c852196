package devenv

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolvePathPassthrough(t *testing.T) {
	path, err := ResolvePath("downloads/receipts.db")
	require.NoError(t, err)
	require.Equal(t, "downloads/receipts.db", path)
}

func TestResolvePathDevState(t *testing.T) {
	root, err := GetWorkspaceRoot()
	require.NoError(t, err)

	path, err := ResolvePath("<dev_state>/receipts.db")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(root, "dev", ".state", "receipts.db"), path)
}
