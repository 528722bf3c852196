package organizer

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"thsr-receipts/lib/receipts"
	"thsr-receipts/lib/receiptstore"
	"thsr-receipts/lib/testutil"
	"thsr-receipts/lib/thsr"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

const fakePdf = "%PDF-1.4\nreceipt"

type fixture struct {
	server *httptest.Server
	store  receiptstore.Store
	root   string
}

func setup(t *testing.T) fixture {
	res, cleanup := testutil.SetupService(t, testutil.ServiceParams{Name: "services:organizer"})
	t.Cleanup(cleanup)

	store, err := receiptstore.Open(context.Background(), res.DB)
	require.NoError(t, err)

	root := t.TempDir()
	layout := receipts.Layout{Root: root, Folder: "高鐵"}
	for _, params := range []thsr.Params{
		{Date: "2024-03-15", From: "台北", To: "左營", Ticket: "1"},
		{Date: "2024-03-20", From: "左營", To: "台北", Ticket: "2"},
		{Date: "2024-04-02", From: "新竹", To: "台中", Booking: "ab12"},
	} {
		q, err := params.Query()
		require.NoError(t, err)
		_, err = layout.Save(q, strings.NewReader(fakePdf))
		require.NoError(t, err)
		require.NoError(t, store.Record(context.Background(), layout, q))
	}
	// not a receipt, must be ignored
	require.NoError(t, os.WriteFile(filepath.Join(root, "高鐵", "2024-03", "notes.txt"), []byte("hi"), 0644))

	service := NewService(Options{Root: root, Store: store})
	server := httptest.NewServer(service.Handler())
	t.Cleanup(server.Close)

	return fixture{server: server, store: store, root: root}
}

func getJson[T any](t *testing.T, url string) T {
	res, err := http.Get(url)
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	var out T
	require.NoError(t, json.NewDecoder(res.Body).Decode(&out))
	return out
}

type monthsResponse struct {
	Months []Month `json:"months"`
}

func TestListReceipts(t *testing.T) {
	f := setup(t)

	res := getJson[monthsResponse](t, f.server.URL+"/api/receipts")
	require.Len(t, res.Months, 2)
	require.Equal(t, "2024-04", res.Months[0].Month)
	require.Equal(t, "2024-03", res.Months[1].Month)

	march := res.Months[1]
	require.Equal(t, 2, march.Count)
	require.Len(t, march.Receipts, 2)
	require.Equal(t, "2024-03-20", march.Receipts[0].Date)
	require.Equal(t, "高鐵/2024-03/THSR_2024-03-15_台北-左營_1.pdf", march.Receipts[1].Path)
	require.Equal(t, "高鐵", march.Receipts[1].Folder)
	require.Equal(t, int64(len(fakePdf)), march.Receipts[1].Size)
	require.False(t, march.Receipts[1].Claimed)

	filtered := getJson[monthsResponse](t, f.server.URL+"/api/receipts?month=2024-04")
	require.Len(t, filtered.Months, 1)
	require.Equal(t, "AB12", filtered.Months[0].Receipts[0].Identifier)

	other := getJson[monthsResponse](t, f.server.URL+"/api/receipts?folder=other")
	require.Empty(t, other.Months)
}

func postClaim(t *testing.T, f fixture, body string) *http.Response {
	res, err := http.Post(f.server.URL+"/api/receipts/claim", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { res.Body.Close() })
	return res
}

func TestClaim(t *testing.T) {
	f := setup(t)
	path := "高鐵/2024-03/THSR_2024-03-15_台北-左營_1.pdf"

	res := postClaim(t, f, `{"path": "`+path+`", "claimed": true, "note": "March report"}`)
	require.Equal(t, http.StatusOK, res.StatusCode)

	var claimed ClaimRequest
	require.NoError(t, json.NewDecoder(res.Body).Decode(&claimed))
	expected := ClaimRequest{Path: path, Claimed: true, Note: "March report"}
	if diff := cmp.Diff(expected, claimed); diff != "" {
		t.Fatalf("unexpected claim (-want +got):\n%s", diff)
	}

	months := getJson[monthsResponse](t, f.server.URL+"/api/months")
	require.Equal(t, []Month{
		{Month: "2024-04", Count: 1, Claimed: 0},
		{Month: "2024-03", Count: 2, Claimed: 1},
	}, months.Months)

	list := getJson[monthsResponse](t, f.server.URL+"/api/receipts?month=2024-03")
	receipt := list.Months[0].Receipts[1]
	require.True(t, receipt.Claimed)
	require.NotEmpty(t, receipt.ClaimedAt)
	require.Equal(t, "March report", receipt.Note)
}

func TestClaimErrors(t *testing.T) {
	f := setup(t)

	require.Equal(t, http.StatusBadRequest, postClaim(t, f, `{`).StatusCode)
	require.Equal(t, http.StatusBadRequest, postClaim(t, f, `{"path": "../secret.pdf", "claimed": true}`).StatusCode)
	require.Equal(t, http.StatusNotFound, postClaim(t, f, `{"path": "高鐵/2024-01/missing.pdf", "claimed": true}`).StatusCode)
}

func TestClaimUnindexedReceipt(t *testing.T) {
	f := setup(t)

	layout := receipts.Layout{Root: f.root, Folder: "出差"}
	q, err := thsr.Params{Date: "2024-05-01", From: "桃園", To: "台南", Ticket: "3"}.Query()
	require.NoError(t, err)
	_, err = layout.Save(q, strings.NewReader(fakePdf))
	require.NoError(t, err)

	res := postClaim(t, f, `{"path": "出差/2024-05/`+q.FileName()+`", "claimed": true}`)
	require.Equal(t, http.StatusOK, res.StatusCode)

	record, err := f.store.Get(context.Background(), "出差/2024-05/"+q.FileName())
	require.NoError(t, err)
	require.True(t, record.Claimed)
	require.Equal(t, "桃園", record.From)
}

func TestDownload(t *testing.T) {
	f := setup(t)

	list := getJson[monthsResponse](t, f.server.URL+"/api/receipts?month=2024-04")
	res, err := http.Get(f.server.URL + list.Months[0].Receipts[0].Url)
	require.NoError(t, err)
	defer res.Body.Close()

	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Equal(t, "application/pdf", res.Header.Get("Content-Type"))
	require.Contains(t, res.Header.Get("Content-Disposition"), "inline")
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	require.Equal(t, fakePdf, string(body))
}

func TestDownloadMissing(t *testing.T) {
	f := setup(t)

	for _, target := range []string{
		"/downloads/高鐵/2024-04/missing.pdf",
		"/downloads/高鐵/2024-04",
	} {
		res, err := http.Get(f.server.URL + target)
		require.NoError(t, err)
		res.Body.Close()
		require.Equal(t, http.StatusNotFound, res.StatusCode, target)
	}
}

func TestDownloadStaysInRoot(t *testing.T) {
	f := setup(t)
	outside := filepath.Join(filepath.Dir(f.root), "outside.pdf")
	require.NoError(t, os.WriteFile(outside, []byte(fakePdf), 0644))
	t.Cleanup(func() { os.Remove(outside) })

	req := httptest.NewRequest(http.MethodGet, "/downloads/x", nil)
	req.SetPathValue("path", "../outside.pdf")
	rec := httptest.NewRecorder()
	NewService(Options{Root: f.root, Store: f.store}).handleDownload(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestManifest(t *testing.T) {
	f := setup(t)

	res, err := http.Get(f.server.URL + "/manifest.webmanifest")
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, "application/manifest+json", res.Header.Get("Content-Type"))

	var out Manifest
	require.NoError(t, json.NewDecoder(res.Body).Decode(&out))
	require.Equal(t, "standalone", out.Display)
	require.Equal(t, "/", out.StartUrl)
	require.NotEmpty(t, out.Icons)
}

func TestIndexAndHealth(t *testing.T) {
	f := setup(t)

	for _, target := range []string{"/", "/healthz", "/icon.svg"} {
		res, err := http.Get(f.server.URL + target)
		require.NoError(t, err)
		res.Body.Close()
		require.Equal(t, http.StatusOK, res.StatusCode, target)
	}
}

func TestSyncDaemonStopsWithContext(t *testing.T) {
	f := setup(t)
	require.NoError(t, os.Remove(filepath.Join(f.root, "高鐵", "2024-04", "THSR_2024-04-02_新竹-台中_AB12.pdf")))

	service := NewService(Options{Root: f.root, Store: f.store, SyncInterval: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		service.SyncDaemon(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		records, err := f.store.List(context.Background(), "2024-04")
		return err == nil && len(records) == 0
	}, time.Second*5, time.Millisecond*20)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second * 5):
		t.Fatal("sync daemon did not stop")
	}
}
