package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"expensecal/internal/backend"
	"expensecal/internal/calendar"
	"expensecal/internal/cli"
	"expensecal/internal/config"
	"expensecal/internal/core"
	applog "expensecal/internal/log"
	"expensecal/internal/services"
	"expensecal/internal/storage"
)

// app is the state shared by the subcommands once the backend is open.
type app struct {
	cfg      *config.Config
	logger   *applog.Logger
	backend  *backend.Result
	txs      *services.TransactionService
	calendar *services.CalendarService
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "expensecalctl",
		Short:         "Manage recurring expenses",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Annotations["backend"] == "none" {
				return nil
			}
			return a.open(cmd.Context())
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.close()
		},
	}

	root.AddCommand(
		newAddCmd(a),
		newListCmd(a),
		newDeleteCmd(a),
		newOccurrencesCmd(a),
		newExportICSCmd(a),
		newRemindCmd(a),
		newMigrateCmd(),
	)
	return root
}

func (a *app) open(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cli.LoadEnvFile()
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = applog.New(applog.Config{Level: slog.LevelWarn, Component: applog.ComponentCLI, Output: os.Stderr})

	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return err
	}
	a.backend, err = backend.NewFactory(a.logger.Logger).CreateBackend(ctx, bcfg)
	if err != nil {
		return err
	}
	a.calendar = services.NewCalendarService(a.backend.Store, cfg.CalendarCacheSize, cfg.CalendarCacheTTL)
	a.txs = services.NewTransactionService(a.backend.Store, a.backend.Publisher, a.calendar.Invalidate)
	return nil
}

func (a *app) close() error {
	if a.backend == nil || a.backend.Cleanup == nil {
		return nil
	}
	err := a.backend.Cleanup()
	a.backend = nil
	return err
}

func newAddCmd(a *app) *cobra.Command {
	in := core.TransactionInput{}
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a recurring expense",
		Example: `  expensecalctl add --title Netflix --amount 15.49 --day 15
  expensecalctl add --title Insurance --amount 420 --category insurance --recurring yearly --starting-month 2
  expensecalctl add --title Dentist --amount 80 --category health --recurring custom --every 6`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tx, err := a.txs.Create(cmd.Context(), in)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added #%d %s: %s, %s\n", tx.ID, tx.Title, tx.Amount, tx.Schedule)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&in.Title, "title", "", "expense title")
	f.StringVar(&in.Amount, "amount", "", "amount, e.g. 15.49 or 15,49")
	f.StringVar(&in.Category, "category", string(core.DefaultCategory), "category")
	f.StringVar(&in.DayOfMonth, "day", "1", "day of month (1-31)")
	f.StringVar(&in.RecurringType, "recurring", string(core.Monthly), "weekly, fortnightly, monthly, yearly or custom")
	f.StringVar(&in.CustomRecurringMonths, "every", "", "interval in months for custom schedules")
	f.StringVar(&in.StartingMonth, "starting-month", "0", "first month, 0 for January")
	f.StringVar(&in.Logo, "logo", "", "logo URL")
	f.IntVar(&in.ReferenceYear, "year", 0, "reference year, defaults to the current year")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored expenses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			txs, err := a.txs.List(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tTITLE\tAMOUNT\tCATEGORY\tSCHEDULE")
			for _, tx := range txs {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", tx.ID, tx.Title, tx.Amount, tx.Category, tx.Schedule)
			}
			return tw.Flush()
		},
	}
}

func newDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete an expense and all its occurrences",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id < 1 {
				return fmt.Errorf("invalid id %q", args[0])
			}
			tx, err := a.txs.Delete(cmd.Context(), id)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted #%d %s\n", tx.ID, tx.Title)
			return nil
		},
	}
}

func newOccurrencesCmd(a *app) *cobra.Command {
	var fromFlag, toFlag string
	cmd := &cobra.Command{
		Use:   "occurrences",
		Short: "List occurrences in a date range",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			from, to, err := dateRange(fromFlag, toFlag, time.Now())
			if err != nil {
				return err
			}
			entries, err := a.calendar.Occurrences(cmd.Context(), from, to)
			if err != nil {
				return err
			}
			return printEntries(cmd.OutOrStdout(), entries)
		},
	}
	cmd.Flags().StringVar(&fromFlag, "from", "", "first day, YYYY-MM-DD (default: first of this month)")
	cmd.Flags().StringVar(&toFlag, "to", "", "last day, YYYY-MM-DD (default: end of the month of --from)")
	return cmd
}

func dateRange(fromFlag, toFlag string, now time.Time) (time.Time, time.Time, error) {
	from := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	if fromFlag != "" {
		d, err := time.Parse(time.DateOnly, fromFlag)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --from %q: want YYYY-MM-DD", fromFlag)
		}
		from = d
	}
	to := time.Date(from.Year(), from.Month()+1, 0, 0, 0, 0, 0, time.UTC)
	if toFlag != "" {
		d, err := time.Parse(time.DateOnly, toFlag)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --to %q: want YYYY-MM-DD", toFlag)
		}
		to = d
	}
	return from, to, nil
}

func printEntries(w io.Writer, entries []calendar.Entry) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DATE\tTITLE\tAMOUNT\tCATEGORY")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.Date.Format(time.DateOnly), e.Title, e.Amount(), e.Category)
	}
	fmt.Fprintf(tw, "\tTotal\t%s\t\n", calendar.Total(entries))
	return tw.Flush()
}

func newExportICSCmd(a *app) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export-ics",
		Short: "Write every expense as an iCalendar feed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if output == "" || output == "-" {
				return a.calendar.WriteICS(cmd.Context(), cmd.OutOrStdout())
			}
			f, err := os.Create(output)
			if err != nil {
				return err
			}
			if err := a.calendar.WriteICS(cmd.Context(), f); err != nil {
				f.Close()
				return err
			}
			return f.Close()
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "-", "file to write, - for stdout")
	return cmd
}

func newRemindCmd(a *app) *cobra.Command {
	var at string
	cmd := &cobra.Command{
		Use:   "remind",
		Short: "Log the reminders that are due, without publishing them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			now := time.Now()
			if at != "" {
				d, err := time.Parse(time.DateOnly, at)
				if err != nil {
					return fmt.Errorf("invalid --at %q: want YYYY-MM-DD", at)
				}
				now = d
			}
			p := services.NewReminderProcessor(a.backend.Store, nil, services.DefaultLeadTimes(a.cfg.ReminderLookaheadDays))
			res, err := p.ProcessDue(cmd.Context(), now)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sent %d, skipped %d, failed %d\n", res.Sent, res.Skipped, res.Failed)
			return nil
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "pretend today is this date, YYYY-MM-DD")
	return cmd
}

func newMigrateCmd() *cobra.Command {
	var dbPath string
	cmd := &cobra.Command{
		Use:         "migrate",
		Short:       "Apply SQLite schema migrations",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{"backend": "none"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if dbPath == "" {
				cli.LoadEnvFile()
				cfg, err := config.Load()
				if err != nil {
					return err
				}
				dbPath = cfg.SQLiteDBPath
			}
			if err := storage.RunMigrations(dbPath); err != nil {
				return err
			}
			v, dirty, err := storage.SchemaVersion(dbPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s at schema version %d (dirty: %t)\n", dbPath, v, dirty)
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "database path (default: SQLITE_DB_PATH)")
	return cmd
}
