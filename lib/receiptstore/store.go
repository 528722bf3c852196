package receiptstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	configlibsql "thsr-receipts/lib/configutil/libsql"
	"thsr-receipts/lib/receipts"
	"thsr-receipts/lib/receiptstore/db"
	"thsr-receipts/lib/telemetry"
	"thsr-receipts/lib/thsr"
	"thsr-receipts/lib/timezone"
	"time"

	"go.opentelemetry.io/otel/attribute"

	_ "modernc.org/sqlite"
)

var tracer = telemetry.Tracer("thsr.lib.receiptstore")

var ErrNotFound = fmt.Errorf("receipt is not in the index")

// Store indexes downloaded receipts along with their expense claim state.
type Store struct {
	db  *sql.DB
	qry *db.Queries
}

// Open applies the schema to `database` and wraps it.
func Open(ctx context.Context, database *sql.DB) (Store, error) {
	_, err := database.ExecContext(ctx, db.Schema)
	if err != nil {
		return Store{}, fmt.Errorf("apply schema: %w", err)
	}
	return Store{db: database, qry: db.New(database)}, nil
}

// IndexFile is the default index location inside the downloads root.
const IndexFile = "receipts.db"

// OpenIndex opens the index database described by `config`, an empty
// config means the IndexFile next to the receipts under `root`.
func OpenIndex(ctx context.Context, config configlibsql.Struct, root string) (Store, error) {
	if config.File == "" && config.Url == "" {
		config.File = filepath.Join(root, IndexFile)
	}
	database, err := config.OpenDB()
	if err != nil {
		return Store{}, fmt.Errorf("open index: %w", err)
	}
	store, err := Open(ctx, database)
	if err != nil {
		database.Close()
		return Store{}, err
	}
	return store, nil
}

func (s Store) Close() error {
	return s.db.Close()
}

type Record struct {
	Path       string
	Folder     string
	Month      string
	TravelDate time.Time
	From       string
	To         string
	Identifier string
	QueryType  thsr.QueryType
	Downloaded time.Time
	Claimed    bool
	ClaimedAt  time.Time
	Note       string
}

func recordFromRow(row db.Receipt) Record {
	travelDate, _ := timezone.ParseDate(row.TravelDate)
	r := Record{
		Path:       row.Path,
		Folder:     row.Folder,
		Month:      row.Month,
		TravelDate: travelDate,
		From:       row.Origin,
		To:         row.Destination,
		Identifier: row.Identifier,
		QueryType:  thsr.QueryType(row.QueryType),
		Downloaded: time.Unix(row.DownloadedAt, 0).In(timezone.Location),
		Claimed:    row.Claimed,
		Note:       row.Note,
	}
	if row.ClaimedAt.Valid {
		r.ClaimedAt = time.Unix(row.ClaimedAt.Int64, 0).In(timezone.Location)
	}
	return r
}

// Record adds a freshly downloaded receipt, re-downloading a receipt keeps
// its claim state.
func (s Store) Record(ctx context.Context, layout receipts.Layout, q thsr.Query) error {
	ctx, span := tracer.Start(ctx, "Record")
	defer span.End()

	relPath := layout.RelFolder(q) + "/" + q.FileName()
	span.SetAttributes(attribute.String("path", relPath))

	return s.qry.UpsertReceipt(ctx, db.UpsertReceiptParams{
		Path:         relPath,
		Folder:       layout.Folder,
		Month:        q.MonthKey(),
		TravelDate:   q.DateString(),
		Origin:       q.From,
		Destination:  q.To,
		Identifier:   q.Identifier(),
		QueryType:    string(q.Type()),
		DownloadedAt: timezone.Now().Unix(),
	})
}

func (s Store) Get(ctx context.Context, path string) (Record, error) {
	row, err := s.qry.GetReceipt(ctx, path)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, err
	}
	return recordFromRow(row), nil
}

// List returns every indexed receipt, or only the ones of a YYYY-MM month
// when `month` is not empty.
func (s Store) List(ctx context.Context, month string) ([]Record, error) {
	var rows []db.Receipt
	var err error
	if month == "" {
		rows, err = s.qry.GetReceipts(ctx)
	} else {
		rows, err = s.qry.GetReceiptsInMonth(ctx, month)
	}
	if err != nil {
		return nil, err
	}

	records := make([]Record, len(rows))
	for i, row := range rows {
		records[i] = recordFromRow(row)
	}
	return records, nil
}

func (s Store) SetClaimed(ctx context.Context, path string, claimed bool, note string) error {
	ctx, span := tracer.Start(ctx, "SetClaimed")
	defer span.End()

	var claimedAt sql.NullInt64
	if claimed {
		claimedAt = sql.NullInt64{Int64: timezone.Now().Unix(), Valid: true}
	}
	affected, err := s.qry.SetClaimed(ctx, db.SetClaimedParams{
		Claimed:   claimed,
		ClaimedAt: claimedAt,
		Note:      note,
		Path:      path,
	})
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Sync indexes receipts that exist on disk but were never recorded (for
// example files copied in by hand) and drops rows whose file is gone.
func (s Store) Sync(ctx context.Context, entries []receipts.Entry) error {
	ctx, span := tracer.Start(ctx, "Sync")
	defer span.End()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	txqry := s.qry.WithTx(tx)

	existing, err := txqry.GetReceipts(ctx)
	if err != nil {
		return err
	}
	onDisk := make(map[string]struct{}, len(entries))
	indexed := make(map[string]struct{}, len(existing))
	for _, row := range existing {
		indexed[row.Path] = struct{}{}
	}

	for _, e := range entries {
		onDisk[e.RelPath] = struct{}{}
		if _, ok := indexed[e.RelPath]; ok {
			continue
		}
		err = txqry.UpsertReceipt(ctx, db.UpsertReceiptParams{
			Path:         e.RelPath,
			Folder:       e.Folder,
			Month:        e.Month,
			TravelDate:   e.Receipt.Date.Format(time.DateOnly),
			Origin:       e.Receipt.From,
			Destination:  e.Receipt.To,
			Identifier:   e.Receipt.Identifier,
			QueryType:    "",
			DownloadedAt: e.ModTime.Unix(),
		})
		if err != nil {
			return err
		}
	}

	for path := range indexed {
		if _, ok := onDisk[path]; ok {
			continue
		}
		err = txqry.DeleteReceipt(ctx, path)
		if err != nil {
			return err
		}
	}

	span.SetAttributes(attribute.Int("entries", len(entries)))
	return tx.Commit()
}
