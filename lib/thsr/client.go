package thsr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"thsr-receipts/lib/htmlutil"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const DefaultBaseUrl = "https://www.thsrc.com.tw/tw/ReceiptQuery"

// DefaultDateLayout is how the travel date is typed into the form.
const DefaultDateLayout = "2006/01/02"

var ErrNoDownloadLink = fmt.Errorf("no receipt download link on the results page")
var ErrNotReceipt = fmt.Errorf("downloaded content is not a receipt")

// StepError records which step of the form flow failed.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %s", e.Step, e.Err.Error())
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// QueryRejectedError is returned when the carrier answers the query with an
// error message instead of a receipt.
type QueryRejectedError struct {
	Message string
}

func (e *QueryRejectedError) Error() string {
	return fmt.Sprintf("query rejected: %s", e.Message)
}

type ClientOptions struct {
	BaseUrl    string
	DateLayout string
	Selectors  Selectors
	// nil means DefaultTimings
	Timings *Timings
	// nil means a client created by NewHttpClient
	Http *resty.Client
}

type Client struct {
	page       Page
	baseUrl    string
	dateLayout string
	sel        Selectors
	timings    Timings
	http       *resty.Client
}

func NewClient(page Page, opts ClientOptions) *Client {
	c := &Client{
		page:       page,
		baseUrl:    opts.BaseUrl,
		dateLayout: opts.DateLayout,
		sel:        opts.Selectors,
		timings:    DefaultTimings,
		http:       opts.Http,
	}
	if c.baseUrl == "" {
		c.baseUrl = DefaultBaseUrl
	}
	if c.dateLayout == "" {
		c.dateLayout = DefaultDateLayout
	}
	if c.sel == (Selectors{}) {
		c.sel = DefaultSelectors
	}
	if opts.Timings != nil {
		c.timings = *opts.Timings
	}
	if c.http == nil {
		c.http = NewHttpClient(true)
	}
	return c
}

func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Fetch fills in and submits the receipt query form, then retrieves the
// receipt the results page links to. The caller must close the returned reader.
func (c *Client) Fetch(ctx context.Context, q Query) (io.ReadCloser, error) {
	ctx, span := tracer.Start(ctx, "Fetch")
	defer span.End()
	span.SetAttributes(
		attribute.String("date", q.DateString()),
		attribute.String("query_type", string(q.Type())),
	)

	body, err := c.fetch(ctx, q)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch receipt")
		return nil, err
	}
	return body, nil
}

func (c *Client) fetch(ctx context.Context, q Query) (io.ReadCloser, error) {
	slog.InfoContext(ctx, "opening receipt query page", "url", c.baseUrl)
	err := c.page.Navigate(c.baseUrl, c.timings.NavigationTimeout)
	if err != nil {
		return nil, &StepError{Step: "navigate", Err: err}
	}
	err = c.page.WaitVisible(c.sel.Date, c.timings.NavigationTimeout)
	if err != nil {
		return nil, &StepError{Step: "navigate", Err: err}
	}

	err = c.fillForm(ctx, q)
	if err != nil {
		return nil, &StepError{Step: "fill form", Err: err}
	}

	slog.InfoContext(ctx, "submitting query", "type", q.Type())
	err = c.page.Click(c.sel.Submit)
	if err != nil {
		return nil, &StepError{Step: "submit", Err: err}
	}
	err = pause(ctx, c.timings.SubmitPause)
	if err != nil {
		return nil, &StepError{Step: "submit", Err: err}
	}

	err = c.page.WaitVisible(c.sel.DownloadLink, c.timings.ResultsTimeout)
	if err != nil {
		if rejected := c.rejection(); rejected != nil {
			return nil, &StepError{Step: "wait for results", Err: rejected}
		}
		return nil, &StepError{Step: "wait for results", Err: err}
	}

	body, err := c.download(ctx)
	if err != nil {
		return nil, &StepError{Step: "download", Err: err}
	}
	return body, nil
}

func (c *Client) fillForm(ctx context.Context, q Query) error {
	err := c.page.Fill(c.sel.Date, q.Date.Format(c.dateLayout))
	if err != nil {
		return fmt.Errorf("date: %w", err)
	}
	err = pause(ctx, c.timings.StepPause)
	if err != nil {
		return err
	}

	for _, station := range []struct {
		selector string
		name     string
	}{
		{selector: c.sel.From, name: q.From},
		{selector: c.sel.To, name: q.To},
	} {
		code := StationCode(station.name)
		if _, known := LookupStation(station.name); !known {
			suggestion, score := SuggestStation(station.name)
			slog.WarnContext(
				ctx, "unknown station, using default",
				"station", station.name,
				"default_code", DefaultStationCode,
				slog.Group("closest", "name", suggestion.Name, "score", score),
			)
		}
		err = c.page.Select(station.selector, code)
		if err != nil {
			return fmt.Errorf("station %s: %w", station.name, err)
		}
	}
	err = pause(ctx, c.timings.StepPause)
	if err != nil {
		return err
	}

	typeSelector := c.sel.TicketType
	inputSelector := c.sel.TicketNumber
	if q.Type() == QueryBooking {
		typeSelector = c.sel.BookingType
		inputSelector = c.sel.BookingCode
	}
	err = c.page.Click(typeSelector)
	if err != nil {
		return fmt.Errorf("query type: %w", err)
	}
	err = c.page.WaitVisible(inputSelector, c.timings.NavigationTimeout)
	if err != nil {
		return fmt.Errorf("identifier input: %w", err)
	}
	err = c.page.Fill(inputSelector, q.Identifier())
	if err != nil {
		return fmt.Errorf("identifier: %w", err)
	}
	return pause(ctx, c.timings.StepPause)
}

func (c *Client) document() (*goquery.Document, error) {
	contents, err := c.page.HTML()
	if err != nil {
		return nil, err
	}
	return goquery.NewDocumentFromReader(strings.NewReader(contents))
}

// rejection looks for the carrier's error message on the current page.
func (c *Client) rejection() error {
	if c.sel.ErrorMessage == "" {
		return nil
	}
	doc, err := c.document()
	if err != nil {
		return nil
	}
	message := htmlutil.CleanText(doc.Find(c.sel.ErrorMessage).First().Text())
	if message == "" {
		return nil
	}
	return &QueryRejectedError{Message: message}
}

func (c *Client) download(ctx context.Context) (io.ReadCloser, error) {
	doc, err := c.document()
	if err != nil {
		return nil, err
	}
	anchors := htmlutil.GetAnchors(ctx, doc.Find(c.sel.DownloadLink))
	if len(anchors) == 0 {
		return nil, ErrNoDownloadLink
	}

	link, ok := c.resolveLink(anchors[0].Href)
	if ok {
		slog.InfoContext(ctx, "downloading receipt", "url", link)
		cookies, err := c.page.Cookies()
		if err != nil {
			return nil, err
		}
		return c.downloadDirect(ctx, link, cookies)
	}

	slog.InfoContext(ctx, "download link is scripted, waiting for the browser download")
	path, err := c.page.WaitDownload(func() error {
		return c.page.Click(c.sel.DownloadLink)
	}, c.timings.DownloadTimeout)
	if err != nil {
		return nil, err
	}
	return openDownloaded(path)
}

// resolveLink resolves an anchor href against the current page, only
// http(s) links can be fetched outside the browser.
func (c *Client) resolveLink(href string) (string, bool) {
	if href == "" || strings.HasPrefix(href, "#") {
		return "", false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	if ref.Scheme != "" && ref.Scheme != "http" && ref.Scheme != "https" {
		return "", false
	}

	current, err := c.page.URL()
	if err != nil || current == "" {
		current = c.baseUrl
	}
	base, err := url.Parse(current)
	if err != nil {
		return "", false
	}
	resolved := base.ResolveReference(ref)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return "", false
	}
	return resolved.String(), true
}

type removeOnClose struct {
	*os.File
}

func (f removeOnClose) Close() error {
	err := f.File.Close()
	return errors.Join(err, os.Remove(f.Name()))
}

func openDownloaded(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	header := make([]byte, len(pdfMagic))
	n, _ := io.ReadFull(f, header)
	if !bytes.Equal(header[:n], pdfMagic) {
		f.Close()
		return nil, fmt.Errorf("%w: %s", ErrNotReceipt, filepath.Base(path))
	}
	_, err = f.Seek(0, io.SeekStart)
	if err != nil {
		f.Close()
		return nil, err
	}
	return removeOnClose{File: f}, nil
}
