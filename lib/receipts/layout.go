package receipts

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"thsr-receipts/lib/thsr"
	"time"

	"github.com/mazen160/go-random"
)

const DefaultRoot = "downloads"
const DefaultFolder = "高鐵"

// Layout decides where receipts live: <Root>/<Folder>/<YYYY-MM>/<file name>
type Layout struct {
	Root   string
	Folder string
}

// ErrInvalidFolder is returned for folders that are not a single path
// element below Root.
var ErrInvalidFolder = errors.New("folder must be a single directory name")

// Validate checks that Folder is one directory name, receipts filed any
// deeper are invisible to Walk.
func (l Layout) Validate() error {
	folder := strings.TrimSpace(l.Folder)
	if folder == "" || folder == "." || folder == ".." || strings.ContainsAny(l.Folder, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidFolder, l.Folder)
	}
	return nil
}

func (l Layout) MonthDir(q thsr.Query) string {
	return filepath.Join(l.Root, l.Folder, q.MonthKey())
}

func (l Layout) Path(q thsr.Query) string {
	return filepath.Join(l.MonthDir(q), q.FileName())
}

// RelFolder is the receipt's folder relative to Root, as reported to users.
func (l Layout) RelFolder(q thsr.Query) string {
	return filepath.ToSlash(filepath.Join(l.Folder, q.MonthKey()))
}

// Prepare creates the month directory and returns the receipt's target path.
func (l Layout) Prepare(q thsr.Query) (string, error) {
	err := l.Validate()
	if err != nil {
		return "", err
	}
	dir := l.MonthDir(q)
	err = os.MkdirAll(dir, 0755)
	if err != nil {
		return "", fmt.Errorf("create folder %s: %w", dir, err)
	}
	return filepath.Join(dir, q.FileName()), nil
}

// Save writes the receipt into its month directory, an existing receipt for
// the same query is replaced. The file only appears once fully written.
func (l Layout) Save(q thsr.Query, contents io.Reader) (string, error) {
	target, err := l.Prepare(q)
	if err != nil {
		return "", err
	}

	suffix, err := random.String(8)
	if err != nil {
		return "", err
	}
	partial := filepath.Join(filepath.Dir(target), fmt.Sprintf(".%s.%s.part", filepath.Base(target), suffix))

	f, err := os.OpenFile(partial, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return "", err
	}
	_, err = io.Copy(f, contents)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(partial)
		return "", fmt.Errorf("write %s: %w", target, err)
	}

	err = os.Rename(partial, target)
	if err != nil {
		os.Remove(partial)
		return "", err
	}
	return target, nil
}

type Entry struct {
	// RelPath is slash separated and relative to Root.
	RelPath string
	Folder  string
	Month   string
	Name    string
	Size    int64
	ModTime time.Time
	Receipt thsr.Name
}

var monthRegex = regexp.MustCompile(`^\d{4}-\d{2}$`)

// Walk lists every receipt under Root, across all folders. Files that do
// not follow the receipt layout are skipped.
func (l Layout) Walk() ([]Entry, error) {
	var entries []Entry
	err := filepath.WalkDir(l.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == l.Root && os.IsNotExist(err) {
				return fs.SkipAll
			}
			return err
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(l.Root, path)
		if err != nil {
			return err
		}
		parts := strings.Split(filepath.ToSlash(rel), "/")
		if len(parts) != 3 || !monthRegex.MatchString(parts[1]) {
			return nil
		}
		receipt, ok := thsr.ParseFileName(parts[2])
		if !ok {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			slog.Warn("failed to stat receipt", "path", path, "err", err)
			return nil
		}

		entries = append(entries, Entry{
			RelPath: strings.Join(parts, "/"),
			Folder:  parts[0],
			Month:   parts[1],
			Name:    parts[2],
			Size:    info.Size(),
			ModTime: info.ModTime(),
			Receipt: receipt,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.Receipt.Date.Equal(b.Receipt.Date) {
			return a.Receipt.Date.After(b.Receipt.Date)
		}
		return a.RelPath < b.RelPath
	})
	return entries, nil
}

// Open opens a receipt by its slash separated path relative to Root,
// paths leaving Root are rejected.
func (l Layout) Open(relPath string) (*os.File, error) {
	cleaned := filepath.FromSlash(strings.TrimPrefix(relPath, "/"))
	if !fs.ValidPath(filepath.ToSlash(cleaned)) {
		return nil, fs.ErrInvalid
	}
	return os.Open(filepath.Join(l.Root, cleaned))
}
