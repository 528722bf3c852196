package organizer

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"path"
	"sort"
	"strings"
	"thsr-receipts/lib/receipts"
	"thsr-receipts/lib/receiptstore"
	"thsr-receipts/lib/telemetry"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = telemetry.Tracer("thsr.services.organizer")

type Options struct {
	// Root is the downloads folder the receipt fetcher writes to.
	Root  string
	Store receiptstore.Store
	// SyncInterval is how often the index is reconciled with the disk,
	// zero disables the background sync.
	SyncInterval time.Duration
}

type Service struct {
	layout       receipts.Layout
	store        receiptstore.Store
	syncInterval time.Duration
}

func NewService(opts Options) Service {
	return Service{
		layout:       receipts.Layout{Root: opts.Root},
		store:        opts.Store,
		syncInterval: opts.SyncInterval,
	}
}

// Handler routes every endpoint of the organizer.
func (s Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/receipts", s.handleReceipts)
	mux.HandleFunc("GET /api/months", s.handleMonths)
	mux.HandleFunc("POST /api/receipts/claim", s.handleClaim)
	mux.HandleFunc("GET /downloads/{path...}", s.handleDownload)
	mux.HandleFunc("GET /manifest.webmanifest", handleManifest)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("GET /", staticHandler())
	return mux
}

type Receipt struct {
	Path       string    `json:"path"`
	Url        string    `json:"url"`
	Folder     string    `json:"folder"`
	Month      string    `json:"month"`
	Name       string    `json:"name"`
	Date       string    `json:"date"`
	From       string    `json:"from"`
	To         string    `json:"to"`
	Identifier string    `json:"identifier"`
	Size       int64     `json:"size"`
	ModifiedAt time.Time `json:"modifiedAt"`
	Claimed    bool      `json:"claimed"`
	ClaimedAt  string    `json:"claimedAt,omitempty"`
	Note       string    `json:"note,omitempty"`
}

type Month struct {
	Month    string    `json:"month"`
	Count    int       `json:"count"`
	Claimed  int       `json:"claimed"`
	Receipts []Receipt `json:"receipts,omitempty"`
}

func downloadUrl(relPath string) string {
	segments := strings.Split(relPath, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return "/downloads/" + strings.Join(segments, "/")
}

func newReceipt(e receipts.Entry, record receiptstore.Record, indexed bool) Receipt {
	r := Receipt{
		Path:       e.RelPath,
		Url:        downloadUrl(e.RelPath),
		Folder:     e.Folder,
		Month:      e.Month,
		Name:       e.Name,
		Date:       e.Receipt.Date.Format(time.DateOnly),
		From:       e.Receipt.From,
		To:         e.Receipt.To,
		Identifier: e.Receipt.Identifier,
		Size:       e.Size,
		ModifiedAt: e.ModTime,
	}
	if indexed {
		r.Claimed = record.Claimed
		r.Note = record.Note
		if record.Claimed && !record.ClaimedAt.IsZero() {
			r.ClaimedAt = record.ClaimedAt.Format(time.RFC3339)
		}
	}
	return r
}

// months walks the downloads folder and merges each receipt with its index
// row, months are ordered newest first.
func (s Service) months(ctx context.Context, folder string) ([]Month, error) {
	ctx, span := tracer.Start(ctx, "months")
	defer span.End()

	entries, err := s.layout.Walk()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to walk downloads")
		return nil, err
	}
	records, err := s.store.List(ctx, "")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list index")
		return nil, err
	}
	byPath := make(map[string]receiptstore.Record, len(records))
	for _, r := range records {
		byPath[r.Path] = r
	}

	var months []Month
	index := map[string]int{}
	for _, e := range entries {
		if folder != "" && e.Folder != folder {
			continue
		}
		record, indexed := byPath[e.RelPath]
		receipt := newReceipt(e, record, indexed)

		i, ok := index[e.Month]
		if !ok {
			i = len(months)
			index[e.Month] = i
			months = append(months, Month{Month: e.Month})
		}
		months[i].Receipts = append(months[i].Receipts, receipt)
		months[i].Count++
		if receipt.Claimed {
			months[i].Claimed++
		}
	}
	span.SetAttributes(attribute.Int("receipts", len(entries)))
	return orderMonths(months), nil
}

// orderMonths sorts newest first, receipts keep the order Walk gave them.
func orderMonths(months []Month) []Month {
	sort.SliceStable(months, func(i, j int) bool {
		return months[i].Month > months[j].Month
	})
	return months
}

func writeJson(w http.ResponseWriter, status int, value any) {
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
	}
	w.WriteHeader(status)
	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)
	err := encoder.Encode(value)
	if err != nil {
		slog.Warn("failed to write response", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJson(w, status, map[string]string{"error": message})
}

func (s Service) handleReceipts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	months, err := s.months(ctx, r.URL.Query().Get("folder"))
	if err != nil {
		slog.ErrorContext(ctx, "failed to list receipts", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to list receipts")
		return
	}

	if month := r.URL.Query().Get("month"); month != "" {
		filtered := []Month{}
		for _, m := range months {
			if m.Month == month {
				filtered = append(filtered, m)
			}
		}
		months = filtered
	}
	if months == nil {
		months = []Month{}
	}
	writeJson(w, http.StatusOK, map[string]any{"months": months})
}

func (s Service) handleMonths(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	months, err := s.months(ctx, r.URL.Query().Get("folder"))
	if err != nil {
		slog.ErrorContext(ctx, "failed to list months", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to list months")
		return
	}
	summary := make([]Month, len(months))
	for i, m := range months {
		summary[i] = Month{Month: m.Month, Count: m.Count, Claimed: m.Claimed}
	}
	writeJson(w, http.StatusOK, map[string]any{"months": summary})
}

type ClaimRequest struct {
	Path    string `json:"path"`
	Claimed bool   `json:"claimed"`
	Note    string `json:"note"`
}

func (s Service) handleClaim(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "handleClaim")
	defer span.End()

	var req ClaimRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	err := decoder.Decode(&req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Path = strings.TrimPrefix(req.Path, "/")
	if req.Path == "" || !fs.ValidPath(req.Path) {
		writeError(w, http.StatusBadRequest, "invalid receipt path")
		return
	}
	span.SetAttributes(attribute.String("path", req.Path), attribute.Bool("claimed", req.Claimed))

	err = s.store.SetClaimed(ctx, req.Path, req.Claimed, req.Note)
	if errors.Is(err, receiptstore.ErrNotFound) {
		// receipts copied in by hand are only indexed once synced
		err = s.Sync(ctx)
		if err == nil {
			err = s.store.SetClaimed(ctx, req.Path, req.Claimed, req.Note)
		}
	}
	if errors.Is(err, receiptstore.ErrNotFound) {
		writeError(w, http.StatusNotFound, "receipt not found")
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to update claim")
		slog.ErrorContext(ctx, "failed to update claim", "path", req.Path, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to update claim")
		return
	}

	record, err := s.store.Get(ctx, req.Path)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read receipt")
		return
	}
	response := ClaimRequest{Path: record.Path, Claimed: record.Claimed, Note: record.Note}
	writeJson(w, http.StatusOK, response)
}

func (s Service) handleDownload(w http.ResponseWriter, r *http.Request) {
	relPath := r.PathValue("path")
	f, err := s.layout.Open(relPath)
	if errors.Is(err, fs.ErrInvalid) {
		http.Error(w, "invalid path", http.StatusBadRequest)
		return
	}
	if errors.Is(err, fs.ErrNotExist) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to open download", "path", relPath, "err", err)
		http.Error(w, "failed to open file", http.StatusInternalServerError)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		http.NotFound(w, r)
		return
	}

	name := path.Base(relPath)
	contentType := mime.TypeByExtension(path.Ext(name))
	if strings.EqualFold(path.Ext(name), ".pdf") {
		contentType = "application/pdf"
	}
	if contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	w.Header().Set("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": name}))
	http.ServeContent(w, r, name, info.ModTime(), f)
}

// Sync reconciles the index with the receipts on disk.
func (s Service) Sync(ctx context.Context) error {
	entries, err := s.layout.Walk()
	if err != nil {
		return err
	}
	return s.store.Sync(ctx, entries)
}

// SyncDaemon keeps the index in sync until ctx is done.
func (s Service) SyncDaemon(ctx context.Context) {
	if s.syncInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.syncInterval)
	defer ticker.Stop()
	for {
		err := s.Sync(ctx)
		if err != nil {
			slog.WarnContext(ctx, "failed to sync receipt index", "err", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
