package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"thsr-receipts/lib/telemetry"
	"time"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

var tracer = telemetry.Tracer("thsr.lib.browser")

var ErrDownloadCanceled = fmt.Errorf("download was canceled by the browser")

type Options struct {
	Headless bool
	// Timeout applies to primitives called without their own timeout.
	Timeout time.Duration
	// DownloadDir is where the browser saves downloads, a temporary
	// directory owned by the session is used when empty.
	DownloadDir string
	UserAgent   string
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = time.Second * 30
	}
	return o
}

type downloadEvent struct {
	guid  string
	state browser.DownloadProgressState
}

// Session is a single browser tab.
type Session struct {
	ctx         context.Context
	cancel      context.CancelFunc
	opts        Options
	downloadDir string
	ownsDir     bool
	downloads   chan downloadEvent
}

// Open launches a browser, the session lives until Close or until ctx is done.
func Open(ctx context.Context, opts Options) (*Session, error) {
	ctx, span := tracer.Start(ctx, "Open")
	defer span.End()

	opts = opts.withDefaults()

	downloadDir := opts.DownloadDir
	ownsDir := false
	if downloadDir == "" {
		var err error
		downloadDir, err = os.MkdirTemp("", "thsr-download-")
		if err != nil {
			return nil, err
		}
		ownsDir = true
	} else {
		err := os.MkdirAll(downloadDir, 0755)
		if err != nil {
			return nil, err
		}
	}
	downloadDir, err := filepath.Abs(downloadDir)
	if err != nil {
		return nil, err
	}

	allocOpts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
	)
	if opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
	}
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocOpts...)
	tabCtx, cancelTab := chromedp.NewContext(
		allocCtx,
		chromedp.WithLogf(func(format string, args ...any) {
			slog.Debug(fmt.Sprintf(format, args...), "source", "chromedp")
		}),
	)

	cancel := func() {
		cancelTab()
		cancelAlloc()
	}
	s := &Session{
		ctx:         tabCtx,
		cancel:      cancel,
		opts:        opts,
		downloadDir: downloadDir,
		ownsDir:     ownsDir,
		downloads:   make(chan downloadEvent, 16),
	}

	chromedp.ListenTarget(tabCtx, func(ev any) {
		progress, ok := ev.(*browser.EventDownloadProgress)
		if !ok {
			return
		}
		if progress.State == browser.DownloadProgressStateInProgress {
			return
		}
		select {
		case s.downloads <- downloadEvent{guid: progress.GUID, state: progress.State}:
		default:
			slog.Warn("dropped download event", "guid", progress.GUID)
		}
	})

	// the first Run starts the browser
	err = chromedp.Run(
		tabCtx,
		browser.SetDownloadBehavior(browser.SetDownloadBehaviorBehaviorAllowAndName).
			WithDownloadPath(downloadDir).
			WithEventsEnabled(true),
	)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	slog.DebugContext(ctx, "browser launched", "headless", opts.Headless, "download_dir", downloadDir)
	return s, nil
}

// Close shuts the browser down and removes the session's own download
// directory.
func (s *Session) Close() error {
	s.cancel()
	if s.ownsDir {
		return os.RemoveAll(s.downloadDir)
	}
	return nil
}

func (s *Session) run(timeout time.Duration, actions ...chromedp.Action) error {
	if timeout <= 0 {
		timeout = s.opts.Timeout
	}
	ctx, cancel := context.WithTimeout(s.ctx, timeout)
	defer cancel()
	return chromedp.Run(ctx, actions...)
}

func (s *Session) Navigate(url string, timeout time.Duration) error {
	return s.run(timeout, chromedp.Navigate(url))
}

func (s *Session) WaitVisible(selector string, timeout time.Duration) error {
	return s.run(timeout, chromedp.WaitVisible(selector, chromedp.ByQuery))
}

func dispatchEvents(selector string, events ...string) chromedp.Action {
	quoted, _ := json.Marshal(selector)
	return chromedp.ActionFunc(func(ctx context.Context) error {
		for _, name := range events {
			var dispatched bool
			err := chromedp.Evaluate(
				fmt.Sprintf(`document.querySelector(%s).dispatchEvent(new Event(%q, {bubbles: true}))`, quoted, name),
				&dispatched,
			).Do(ctx)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// Fill replaces the value of an input and fires the events a user typing
// into it would.
func (s *Session) Fill(selector, value string) error {
	return s.run(
		0,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.SetValue(selector, value, chromedp.ByQuery),
		dispatchEvents(selector, "input", "change"),
	)
}

// Select picks the option of a <select> by its value.
func (s *Session) Select(selector, value string) error {
	return s.run(
		0,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.SetValue(selector, value, chromedp.ByQuery),
		dispatchEvents(selector, "change"),
	)
}

func (s *Session) Click(selector string) error {
	return s.run(0, chromedp.Click(selector, chromedp.ByQuery))
}

func (s *Session) HTML() (string, error) {
	var out string
	err := s.run(0, chromedp.OuterHTML("html", &out, chromedp.ByQuery))
	return out, err
}

func (s *Session) URL() (string, error) {
	var out string
	err := s.run(0, chromedp.Location(&out))
	return out, err
}

func (s *Session) Cookies() ([]*http.Cookie, error) {
	var cookies []*network.Cookie
	err := s.run(0, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = network.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return nil, err
	}
	return convertCookies(cookies), nil
}

func convertCookies(cookies []*network.Cookie) []*http.Cookie {
	out := make([]*http.Cookie, len(cookies))
	for i, c := range cookies {
		out[i] = &http.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HttpOnly: c.HTTPOnly,
		}
		if c.Expires > 0 {
			out[i].Expires = time.Unix(int64(c.Expires), 0)
		}
	}
	return out
}

func (s *Session) Pause(d time.Duration) error {
	return s.run(d+s.opts.Timeout, chromedp.Sleep(d))
}

// WaitDownload runs trigger and waits for the next download to finish,
// the file is named after the download's GUID inside the download directory.
func (s *Session) WaitDownload(trigger func() error, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		timeout = s.opts.Timeout
	}

	// discard events of earlier downloads
	for drained := false; !drained; {
		select {
		case <-s.downloads:
		default:
			drained = true
		}
	}

	err := trigger()
	if err != nil {
		return "", err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case ev := <-s.downloads:
		if ev.state != browser.DownloadProgressStateCompleted {
			return "", ErrDownloadCanceled
		}
		return filepath.Join(s.downloadDir, ev.guid), nil
	case <-timer.C:
		return "", fmt.Errorf("wait for download: %w", context.DeadlineExceeded)
	case <-s.ctx.Done():
		return "", s.ctx.Err()
	}
}
