package configlibsql

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpenLocalFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "index.db")
	db, err := Struct{File: path}.OpenDB()
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec("create table t (v integer)")
	require.NoError(t, err)
	_, err = os.Stat(path)
	require.NoError(t, err)
}

func TestOpenNothing(t *testing.T) {
	_, err := Struct{}.OpenDB()
	require.Error(t, err)
}
