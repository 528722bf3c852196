package commands

import (
	"context"
	"fmt"
	"log/slog"
	"thsr-receipts/lib/browser"
	"thsr-receipts/lib/mailer"
	"thsr-receipts/lib/receipts"
	"thsr-receipts/lib/receiptstore"
	"thsr-receipts/lib/restyutil"
	"thsr-receipts/lib/thsr"

	"github.com/spf13/cobra"
)

func (a *app) runFetch(cmd *cobra.Command, f *flags) error {
	rep := reporter{json: f.json, stdout: a.stdout, stderr: a.stderr}

	result, err := a.fetch(cmd, f, rep)
	if err != nil {
		slog.Debug("fetch failed", "err", err)
		rep.failure(err)
		return errReported
	}
	rep.success(result)
	return nil
}

func (a *app) fetch(cmd *cobra.Command, f *flags, rep reporter) (result Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("unexpected failure: %v", r)
		}
	}()
	ctx := cmd.Context()

	q, err := thsr.Params{
		Date:    f.date,
		From:    f.from,
		To:      f.to,
		Ticket:  f.ticket,
		Booking: f.booking,
	}.Query()
	if err != nil {
		return Result{}, err
	}

	cfg, err := loadConfig(f.config)
	if err != nil {
		return Result{}, fmt.Errorf("read config: %w", err)
	}
	root, folder := f.layout(cmd, cfg)
	layout := receipts.Layout{Root: root, Folder: folder}
	err = layout.Validate()
	if err != nil {
		return Result{}, err
	}

	rep.status("Querying receipt for %s %s -> %s (%s %s)", q.DateString(), q.From, q.To, q.Type(), q.Identifier())

	if f.verbose {
		out, err := restyutil.NewFilesystemOutput(".dev/resty/thsr")
		if err != nil {
			slog.WarnContext(ctx, "failed to prepare http dump directory", "err", err)
		} else {
			thsr.SetRestyInstrumentOutput(out)
		}
	}

	page, err := a.open(ctx, browser.Options{
		Headless:  f.headless,
		UserAgent: thsr.UserAgent,
		Timeout:   thsr.DefaultTimings.NavigationTimeout,
	})
	if err != nil {
		return Result{}, fmt.Errorf("open browser: %w", err)
	}
	defer func() {
		closeErr := page.Close()
		if closeErr != nil {
			slog.WarnContext(ctx, "failed to close browser", "err", closeErr)
		}
	}()

	client := thsr.NewClient(page, thsr.ClientOptions{
		BaseUrl:    cfg.BaseUrl,
		DateLayout: cfg.DateLayout,
		Selectors:  cfg.Selectors,
		Timings:    a.timings,
		Http:       a.http,
	})
	body, err := client.Fetch(ctx, q)
	if err != nil {
		return Result{}, err
	}
	defer body.Close()

	path, err := layout.Save(q, body)
	if err != nil {
		return Result{}, err
	}

	a.index(ctx, cfg, layout, q)

	mailTo := cfg.MailTo
	if f.mailTo != "" {
		mailTo = f.mailTo
	}
	if mailTo != "" {
		err = mailer.NewMailer(cfg.Smtp).SendReceipt(ctx, mailTo, q, path)
		if err != nil {
			slog.WarnContext(ctx, "failed to mail receipt", "to", mailTo, "err", err)
		} else {
			rep.status("Mailed receipt to %s", mailTo)
		}
	}

	return Result{
		FilePath: path,
		FileName: q.FileName(),
		Folder:   layout.RelFolder(q),
	}, nil
}

// index records the receipt, a broken index never fails a download.
func (a *app) index(ctx context.Context, cfg Config, layout receipts.Layout, q thsr.Query) {
	store, err := receiptstore.OpenIndex(ctx, cfg.Index, layout.Root)
	if err != nil {
		slog.WarnContext(ctx, "failed to open receipt index", "err", err)
		return
	}
	defer store.Close()

	err = store.Record(ctx, layout, q)
	if err != nil {
		slog.WarnContext(ctx, "failed to record receipt", "err", err)
	}
}
