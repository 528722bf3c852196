package receiptstore

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	configlibsql "thsr-receipts/lib/configutil/libsql"
	"thsr-receipts/lib/receipts"
	"thsr-receipts/lib/testutil"
	"thsr-receipts/lib/thsr"

	"github.com/stretchr/testify/require"
)

func setupStore(t *testing.T) Store {
	res, cleanup := testutil.SetupService(t, testutil.ServiceParams{Name: "receiptstore"})
	t.Cleanup(cleanup)

	store, err := Open(context.Background(), res.DB)
	require.NoError(t, err)
	return store
}

func mustQuery(t *testing.T, params thsr.Params) thsr.Query {
	q, err := params.Query()
	require.NoError(t, err)
	return q
}

func TestRecordAndList(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)
	layout := receipts.Layout{Root: "downloads", Folder: "高鐵"}

	march := mustQuery(t, thsr.Params{Date: "2024-03-15", From: "台北", To: "左營", Ticket: "0821230450123"})
	april := mustQuery(t, thsr.Params{Date: "2024-04-02", From: "新竹", To: "台中", Booking: "ab12"})

	require.NoError(t, store.Record(ctx, layout, march))
	require.NoError(t, store.Record(ctx, layout, april))
	// recording twice keeps a single row
	require.NoError(t, store.Record(ctx, layout, march))

	all, err := store.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, "高鐵/2024-04/THSR_2024-04-02_新竹-台中_AB12.pdf", all[0].Path)
	require.Equal(t, thsr.QueryBooking, all[0].QueryType)
	require.Equal(t, "台北", all[1].From)
	require.Equal(t, "左營", all[1].To)
	require.True(t, march.Date.Equal(all[1].TravelDate))
	require.False(t, all[1].Claimed)

	inMarch, err := store.List(ctx, "2024-03")
	require.NoError(t, err)
	require.Len(t, inMarch, 1)
	require.Equal(t, "0821230450123", inMarch[0].Identifier)
}

func TestSetClaimed(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)
	layout := receipts.Layout{Root: "downloads", Folder: "高鐵"}
	q := mustQuery(t, thsr.Params{Date: "2024-03-15", From: "台北", To: "左營", Ticket: "1"})
	require.NoError(t, store.Record(ctx, layout, q))

	path := "高鐵/2024-03/" + q.FileName()
	require.NoError(t, store.SetClaimed(ctx, path, true, "March travel report"))

	record, err := store.Get(ctx, path)
	require.NoError(t, err)
	require.True(t, record.Claimed)
	require.False(t, record.ClaimedAt.IsZero())
	require.Equal(t, "March travel report", record.Note)

	// downloading again must not reset the claim
	require.NoError(t, store.Record(ctx, layout, q))
	record, err = store.Get(ctx, path)
	require.NoError(t, err)
	require.True(t, record.Claimed)

	require.NoError(t, store.SetClaimed(ctx, path, false, ""))
	record, err = store.Get(ctx, path)
	require.NoError(t, err)
	require.False(t, record.Claimed)
	require.True(t, record.ClaimedAt.IsZero())

	require.ErrorIs(t, store.SetClaimed(ctx, "missing.pdf", true, ""), ErrNotFound)
	_, err = store.Get(ctx, "missing.pdf")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSync(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)
	layout := receipts.Layout{Root: t.TempDir(), Folder: "高鐵"}

	kept := mustQuery(t, thsr.Params{Date: "2024-03-15", From: "台北", To: "左營", Ticket: "1"})
	removed := mustQuery(t, thsr.Params{Date: "2024-03-16", From: "左營", To: "台北", Ticket: "2"})
	manual := mustQuery(t, thsr.Params{Date: "2024-05-01", From: "桃園", To: "台南", Ticket: "3"})

	for _, q := range []thsr.Query{kept, removed, manual} {
		_, err := layout.Save(q, strings.NewReader("%PDF-"))
		require.NoError(t, err)
	}
	require.NoError(t, store.Record(ctx, layout, kept))
	require.NoError(t, store.Record(ctx, layout, removed))
	require.NoError(t, store.SetClaimed(ctx, "高鐵/2024-03/"+kept.FileName(), true, ""))

	require.NoError(t, os.Remove(layout.Path(removed)))

	entries, err := layout.Walk()
	require.NoError(t, err)
	require.NoError(t, store.Sync(ctx, entries))

	all, err := store.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, "高鐵/2024-05/"+manual.FileName(), all[0].Path)
	require.Equal(t, "桃園", all[0].From)
	require.Equal(t, "高鐵/2024-03/"+kept.FileName(), all[1].Path)
	require.True(t, all[1].Claimed)
}

func TestOpenIndexDefaultsToRoot(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()

	store, err := OpenIndex(ctx, configlibsql.Struct{}, root)
	require.NoError(t, err)
	defer store.Close()

	layout := receipts.Layout{Root: root, Folder: "高鐵"}
	q := mustQuery(t, thsr.Params{Date: "2024-03-15", From: "台北", To: "左營", Ticket: "1"})
	require.NoError(t, store.Record(ctx, layout, q))

	_, err = os.Stat(filepath.Join(root, IndexFile))
	require.NoError(t, err)

	// the index file sits outside the receipt layout
	entries, err := layout.Walk()
	require.NoError(t, err)
	require.Empty(t, entries)
}
