package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"thsr-receipts/lib/browser"
	"thsr-receipts/lib/receipts"
	"thsr-receipts/lib/telemetry"
	"thsr-receipts/lib/thsr"

	"github.com/go-resty/resty/v2"
	"github.com/spf13/cobra"
)

// errReported means the failure was already printed in the requested format.
var errReported = errors.New("reported")

type session interface {
	thsr.Page
	Close() error
}

type app struct {
	stdout io.Writer
	stderr io.Writer
	open   func(ctx context.Context, opts browser.Options) (session, error)
	// nil fields fall back to the thsr client's defaults
	timings *thsr.Timings
	http    *resty.Client
}

func openBrowser(ctx context.Context, opts browser.Options) (session, error) {
	return browser.Open(ctx, opts)
}

type flags struct {
	config  string
	out     string
	folder  string
	verbose bool

	date     string
	from     string
	to       string
	ticket   string
	booking  string
	headless bool
	json     bool
	mailTo   string
}

func newRootCmd(a *app) *cobra.Command {
	f := &flags{}

	cmd := &cobra.Command{
		Use:   "thsr-receipt",
		Short: "thsr-receipt downloads Taiwan High Speed Rail receipts into monthly folders.",
		Example: `  thsr-receipt --date=2024-03-15 --from=台北 --to=左營 --ticket=0821230450123
  thsr-receipt --date=2024-03-15 --from=台北 --to=左營 --booking=AB12CD34 --json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			telemetry.InitSlog(f.verbose)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runFetch(cmd, f)
		},
	}

	persistent := cmd.PersistentFlags()
	persistent.StringVar(&f.config, "config", "config.json5", "The configuration file.")
	persistent.StringVar(&f.out, "out", "downloads", "The root directory receipts are saved under, overrides the config.")
	persistent.StringVar(&f.folder, "folder", "", "The category folder receipts are filed under, overrides the config.")
	persistent.BoolVarP(&f.verbose, "verbose", "v", false, "Log debug information and dump http messages to .dev/resty.")

	local := cmd.Flags()
	local.StringVar(&f.date, "date", "", "The travel date, YYYY-MM-DD.")
	local.StringVar(&f.from, "from", "", "The origin station.")
	local.StringVar(&f.to, "to", "", "The destination station.")
	local.StringVar(&f.ticket, "ticket", "", "The ticket number, non-digits are ignored.")
	local.StringVar(&f.booking, "booking", "", "The booking code, used when no ticket number is given.")
	local.BoolVar(&f.headless, "headless", true, "Run the browser without a window.")
	local.BoolVar(&f.json, "json", false, "Print a single line of JSON describing the result.")
	local.StringVar(&f.mailTo, "mail-to", "", "Mail the receipt to this address, overrides the config.")

	cmd.AddCommand(newStationsCmd(a))
	cmd.AddCommand(newListCmd(a, f))
	return cmd
}

// layout picks the receipt layout, flags win over the config.
func (f *flags) layout(cmd *cobra.Command, cfg Config) (root, folder string) {
	root = cfg.Downloads
	if cmd.Flags().Changed("out") || root == "" {
		root = f.out
	}
	folder = cfg.Folder
	if f.folder != "" {
		folder = f.folder
	}
	if folder == "" {
		folder = receipts.DefaultFolder
	}
	return root, folder
}

func run(ctx context.Context, a *app, args []string) int {
	cmd := newRootCmd(a)
	cmd.SetArgs(args)
	cmd.SetOut(a.stdout)
	cmd.SetErr(a.stderr)

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	if errors.Is(err, errReported) {
		return 1
	}
	if jsonRequested(args) {
		reporter{json: true, stdout: a.stdout, stderr: a.stderr}.failure(err)
		return 1
	}
	fmt.Fprintf(a.stderr, "Error: %s\n", err.Error())
	return 1
}

// jsonRequested looks for --json in the raw arguments, for errors raised
// before cobra got to bind the flags.
func jsonRequested(args []string) bool {
	for _, arg := range args {
		if arg == "--" {
			return false
		}
		if arg == "--json" {
			return true
		}
		value, ok := strings.CutPrefix(arg, "--json=")
		if ok {
			enabled, err := strconv.ParseBool(value)
			return err == nil && enabled
		}
	}
	return false
}

// ExecuteContext runs the command line and returns the exit code.
func ExecuteContext(ctx context.Context) int {
	return run(ctx, &app{
		stdout: os.Stdout,
		stderr: os.Stderr,
		open:   openBrowser,
	}, os.Args[1:])
}
