package commands

import (
	"thsr-receipts/lib/thsr"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func newStationsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stations",
		Short: "Lists the stations and the codes the query form uses for them.",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			t := newTable(a.stdout)
			t.AppendHeader(table.Row{"Code", "Station", "English"})
			for _, s := range thsr.Stations {
				t.AppendRow(table.Row{s.Code, s.Name, s.English})
			}
			t.Render()
		},
	}
}
