package db

import (
	"context"
	"database/sql"
)

type Receipt struct {
	Path         string
	Folder       string
	Month        string
	TravelDate   string
	Origin       string
	Destination  string
	Identifier   string
	QueryType    string
	DownloadedAt int64
	Claimed      bool
	ClaimedAt    sql.NullInt64
	Note         string
}

const receiptColumns = `path, folder, month, travelDate, origin, destination, identifier, queryType, downloadedAt, claimed, claimedAt, note`

func scanReceipt(row interface{ Scan(...interface{}) error }) (Receipt, error) {
	var i Receipt
	err := row.Scan(
		&i.Path,
		&i.Folder,
		&i.Month,
		&i.TravelDate,
		&i.Origin,
		&i.Destination,
		&i.Identifier,
		&i.QueryType,
		&i.DownloadedAt,
		&i.Claimed,
		&i.ClaimedAt,
		&i.Note,
	)
	return i, err
}

const upsertReceipt = `-- name: UpsertReceipt :exec
insert into Receipt(path, folder, month, travelDate, origin, destination, identifier, queryType, downloadedAt)
values (?, ?, ?, ?, ?, ?, ?, ?, ?)
on conflict(path) do update set
    folder = excluded.folder,
    month = excluded.month,
    travelDate = excluded.travelDate,
    origin = excluded.origin,
    destination = excluded.destination,
    identifier = excluded.identifier,
    queryType = excluded.queryType,
    downloadedAt = excluded.downloadedAt
`

type UpsertReceiptParams struct {
	Path         string
	Folder       string
	Month        string
	TravelDate   string
	Origin       string
	Destination  string
	Identifier   string
	QueryType    string
	DownloadedAt int64
}

func (q *Queries) UpsertReceipt(ctx context.Context, arg UpsertReceiptParams) error {
	_, err := q.db.ExecContext(ctx, upsertReceipt,
		arg.Path,
		arg.Folder,
		arg.Month,
		arg.TravelDate,
		arg.Origin,
		arg.Destination,
		arg.Identifier,
		arg.QueryType,
		arg.DownloadedAt,
	)
	return err
}

const getReceipt = `-- name: GetReceipt :one
select ` + receiptColumns + ` from Receipt where path = ?
`

func (q *Queries) GetReceipt(ctx context.Context, path string) (Receipt, error) {
	row := q.db.QueryRowContext(ctx, getReceipt, path)
	return scanReceipt(row)
}

const getReceipts = `-- name: GetReceipts :many
select ` + receiptColumns + ` from Receipt
order by travelDate desc, path asc
`

func (q *Queries) GetReceipts(ctx context.Context) ([]Receipt, error) {
	return q.queryReceipts(ctx, getReceipts)
}

const getReceiptsInMonth = `-- name: GetReceiptsInMonth :many
select ` + receiptColumns + ` from Receipt
where month = ?
order by travelDate desc, path asc
`

func (q *Queries) GetReceiptsInMonth(ctx context.Context, month string) ([]Receipt, error) {
	return q.queryReceipts(ctx, getReceiptsInMonth, month)
}

func (q *Queries) queryReceipts(ctx context.Context, query string, args ...interface{}) ([]Receipt, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Receipt
	for rows.Next() {
		i, err := scanReceipt(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const setClaimed = `-- name: SetClaimed :execrows
update Receipt set claimed = ?, claimedAt = ?, note = ?
where path = ?
`

type SetClaimedParams struct {
	Claimed   bool
	ClaimedAt sql.NullInt64
	Note      string
	Path      string
}

func (q *Queries) SetClaimed(ctx context.Context, arg SetClaimedParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, setClaimed,
		arg.Claimed,
		arg.ClaimedAt,
		arg.Note,
		arg.Path,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const deleteReceipt = `-- name: DeleteReceipt :exec
delete from Receipt where path = ?
`

func (q *Queries) DeleteReceipt(ctx context.Context, path string) error {
	_, err := q.db.ExecContext(ctx, deleteReceipt, path)
	return err
}
