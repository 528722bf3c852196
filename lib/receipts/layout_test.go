package receipts

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"thsr-receipts/lib/thsr"

	"github.com/stretchr/testify/require"
)

func query(t *testing.T, date, from, to, ticket string) thsr.Query {
	q, err := thsr.Params{Date: date, From: from, To: to, Ticket: ticket}.Query()
	require.NoError(t, err)
	return q
}

func TestLayoutPath(t *testing.T) {
	layout := Layout{Root: "downloads", Folder: "高鐵"}
	q := query(t, "2024-03-15", "台北", "左營", "08-2-12-3-045-0123")

	require.Equal(t,
		filepath.Join("downloads", "高鐵", "2024-03", "THSR_2024-03-15_台北-左營_0821230450123.pdf"),
		layout.Path(q),
	)
	require.Equal(t, "高鐵/2024-03", layout.RelFolder(q))
}

func TestLayoutSave(t *testing.T) {
	layout := Layout{Root: filepath.Join(t.TempDir(), "downloads"), Folder: "公務出差"}
	q := query(t, "2024-03-15", "台北", "左營", "123")

	path, err := layout.Save(q, strings.NewReader("%PDF-1.4 one"))
	require.NoError(t, err)
	require.Equal(t, layout.Path(q), path)

	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "%PDF-1.4 one", string(contents))

	// saving again replaces the receipt and leaves no partial files around
	_, err = layout.Save(q, strings.NewReader("%PDF-1.4 two"))
	require.NoError(t, err)
	contents, err = os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "%PDF-1.4 two", string(contents))

	files, err := os.ReadDir(layout.MonthDir(q))
	require.NoError(t, err)
	require.Len(t, files, 1)
}

func TestLayoutValidate(t *testing.T) {
	require.NoError(t, Layout{Root: "downloads", Folder: "公務出差"}.Validate())

	root := filepath.Join(t.TempDir(), "downloads")
	q := query(t, "2024-03-15", "台北", "左營", "123")
	for _, folder := range []string{"", " ", ".", "..", "a/b", `a\b`, "../outside"} {
		layout := Layout{Root: root, Folder: folder}
		require.ErrorIs(t, layout.Validate(), ErrInvalidFolder, folder)

		_, err := layout.Save(q, strings.NewReader("%PDF-1.4"))
		require.ErrorIs(t, err, ErrInvalidFolder, folder)
	}

	_, err := os.Stat(root)
	require.True(t, os.IsNotExist(err))
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("connection reset")
}

func TestLayoutSaveFailure(t *testing.T) {
	layout := Layout{Root: t.TempDir(), Folder: "高鐵"}
	q := query(t, "2024-03-15", "台北", "左營", "123")

	_, err := layout.Save(q, failingReader{})
	require.Error(t, err)

	files, err := os.ReadDir(layout.MonthDir(q))
	require.NoError(t, err)
	require.Empty(t, files)
}

func TestLayoutWalk(t *testing.T) {
	root := t.TempDir()
	layout := Layout{Root: root, Folder: "高鐵"}

	for _, q := range []thsr.Query{
		query(t, "2024-03-15", "台北", "左營", "1"),
		query(t, "2024-04-01", "新竹", "台中", "2"),
	} {
		_, err := layout.Save(q, strings.NewReader("%PDF-"))
		require.NoError(t, err)
	}
	other := Layout{Root: root, Folder: "personal"}
	_, err := other.Save(query(t, "2024-03-20", "板橋", "嘉義", "3"), strings.NewReader("%PDF-"))
	require.NoError(t, err)

	// noise that should be skipped
	require.NoError(t, os.WriteFile(filepath.Join(root, "receipts.db"), nil, 0600))
	require.NoError(t, os.WriteFile(filepath.Join(root, "高鐵", "2024-03", "notes.txt"), nil, 0600))

	entries, err := layout.Walk()
	require.NoError(t, err)
	require.Len(t, entries, 3)

	require.Equal(t, "高鐵/2024-04/THSR_2024-04-01_新竹-台中_2.pdf", entries[0].RelPath)
	require.Equal(t, "personal/2024-03/THSR_2024-03-20_板橋-嘉義_3.pdf", entries[1].RelPath)
	require.Equal(t, "personal", entries[1].Folder)
	require.Equal(t, "2024-03", entries[2].Month)
	require.Equal(t, "台北", entries[2].Receipt.From)
	require.Equal(t, int64(5), entries[2].Size)
}

func TestLayoutWalkMissingRoot(t *testing.T) {
	layout := Layout{Root: filepath.Join(t.TempDir(), "missing")}
	entries, err := layout.Walk()
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestLayoutOpen(t *testing.T) {
	layout := Layout{Root: t.TempDir(), Folder: "高鐵"}
	q := query(t, "2024-03-15", "台北", "左營", "1")
	_, err := layout.Save(q, strings.NewReader("%PDF-"))
	require.NoError(t, err)

	f, err := layout.Open("高鐵/2024-03/" + q.FileName())
	require.NoError(t, err)
	f.Close()

	_, err = layout.Open("../etc/passwd")
	require.ErrorIs(t, err, fs.ErrInvalid)
	_, err = layout.Open("高鐵/../../secret")
	require.ErrorIs(t, err, fs.ErrInvalid)
}
