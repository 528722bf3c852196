package commands

import (
	"fmt"
	"log/slog"
	"thsr-receipts/lib/receipts"
	"thsr-receipts/lib/receiptstore"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func newListCmd(a *app, f *flags) *cobra.Command {
	var month string

	cmd := &cobra.Command{
		Use:   "list [--month YYYY-MM]",
		Short: "Lists the downloaded receipts and whether they were claimed.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := loadConfig(f.config)
			if err != nil {
				return fmt.Errorf("read config: %w", err)
			}
			root, folder := f.layout(cmd, cfg)
			layout := receipts.Layout{Root: root, Folder: folder}

			store, err := receiptstore.OpenIndex(ctx, cfg.Index, root)
			if err != nil {
				return err
			}
			defer store.Close()

			entries, err := layout.Walk()
			if err != nil {
				return err
			}
			err = store.Sync(ctx, entries)
			if err != nil {
				slog.WarnContext(ctx, "failed to sync receipt index", "err", err)
			}

			records, err := store.List(ctx, month)
			if err != nil {
				return err
			}

			t := newTable(a.stdout)
			t.AppendHeader(table.Row{"Month", "Date", "From", "To", "Identifier", "Claimed", "Note", "Path"})
			claimed := 0
			for _, r := range records {
				mark := ""
				if r.Claimed {
					mark = "✓"
					claimed++
				}
				t.AppendRow(table.Row{
					r.Month,
					r.TravelDate.Format("2006-01-02"),
					r.From,
					r.To,
					r.Identifier,
					mark,
					r.Note,
					r.Path,
				})
			}
			t.AppendFooter(table.Row{"", "", "", "", "Total", fmt.Sprintf("%d/%d", claimed, len(records))})
			t.Render()
			return nil
		},
	}
	cmd.Flags().StringVar(&month, "month", "", "Only list receipts of this month, YYYY-MM.")
	return cmd
}
