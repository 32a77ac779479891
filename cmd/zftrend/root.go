package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"zftrend/internal/calendar"
	"zftrend/internal/model"
	"zftrend/internal/scheduler"
)

func newRootCmd(log zerolog.Logger) *cobra.Command {
	root := &cobra.Command{
		Use:           "zftrend",
		Short:         "Taiwan stock trend screener",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	withApp := func(fn func(ctx context.Context, a *app) error) func(cmd *cobra.Command, args []string) error {
		return func(cmd *cobra.Command, args []string) error {
			a, err := newApp(log)
			if err != nil {
				return err
			}
			defer a.Close()
			return fn(cmd.Context(), a)
		}
	}

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Bootstrap the stock universe, price history and market index",
		RunE: withApp(func(ctx context.Context, a *app) error {
			summary, err := a.runner.Init(ctx, time.Now(), a.cfg.HistoryDays)
			if err != nil {
				return err
			}
			printSummary(summary)
			return nil
		}),
	}

	var force bool
	dailyCmd := &cobra.Command{
		Use:   "daily [date]",
		Short: "Ingest and screen one trading day (default: latest session)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := calendar.LatestTradingDay(time.Now())
			if len(args) == 1 {
				var err error
				if target, err = time.Parse(model.DateFormat, args[0]); err != nil {
					return fmt.Errorf("parse date %q: %w", args[0], err)
				}
			}
			a, err := newApp(log)
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.runner.Daily(cmd.Context(), target, force)
			if err != nil {
				return err
			}
			printReport(report)
			return nil
		},
	}
	dailyCmd.Flags().BoolVar(&force, "force", false, "run even on a non-trading day")

	monthlyCmd := &cobra.Command{
		Use:   "monthly",
		Short: "Refresh the stock universe",
		RunE: withApp(func(ctx context.Context, a *app) error {
			n, err := a.runner.Monthly(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("stock universe refreshed: %d stocks\n", n)
			return nil
		}),
	}

	backfillCmd := &cobra.Command{
		Use:   "backfill <days>",
		Short: "Load price history for every stored stock",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			days, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("parse days %q: %w", args[0], err)
			}
			a, err := newApp(log)
			if err != nil {
				return err
			}
			defer a.Close()

			summary, err := a.runner.Backfill(cmd.Context(), time.Now(), days)
			if err != nil {
				return err
			}
			printSummary(summary)
			return nil
		},
	}

	healthCmd := &cobra.Command{
		Use:   "health",
		Short: "Probe the store, exporter and data providers",
		RunE: withApp(func(ctx context.Context, a *app) error {
			failed := 0
			for _, c := range a.runner.Health(ctx, time.Now()) {
				status := "ok"
				if !c.OK {
					status = "FAIL"
					failed++
				}
				if c.Detail != "" {
					fmt.Printf("%-10s %s (%s)\n", c.Name, status, c.Detail)
				} else {
					fmt.Printf("%-10s %s\n", c.Name, status)
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d health check(s) failed", failed)
			}
			return nil
		}),
	}

	scheduleCmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run the cron scheduler until interrupted",
		RunE: withApp(func(ctx context.Context, a *app) error {
			sched := scheduler.New(ctx, a.runner, log)
			if err := sched.RegisterAll(a.cfg.Schedule.DailyCron, a.cfg.Schedule.MonthlyCron); err != nil {
				return err
			}
			sched.Start()
			defer sched.Stop()

			log.Info().Str("daily", a.cfg.Schedule.DailyCron).
				Str("monthly", a.cfg.Schedule.MonthlyCron).Msg("scheduler running")
			<-ctx.Done()
			return nil
		}),
	}

	root.AddCommand(initCmd, dailyCmd, monthlyCmd, backfillCmd, healthCmd, scheduleCmd)
	return root
}

func printSummary(s model.IngestSummary) {
	fmt.Printf("range %s..%s: %d/%d stocks succeeded, %d bars written\n",
		s.From.Format(model.DateFormat), s.To.Format(model.DateFormat),
		s.Succeeded, s.Requested, s.BarsWritten)
	for _, f := range s.Failures {
		fmt.Printf("  failed %s: %s\n", f.StockID, f.Reason)
	}
}

func printReport(r *model.RunReport) {
	if r.Skipped {
		fmt.Printf("%s skipped: %s\n", r.Date.Format(model.DateFormat), r.Reason)
		return
	}
	fmt.Printf("%s: screened %d stocks (%d failed), trend matches %d, three-line matches %d\n",
		r.Date.Format(model.DateFormat), r.StocksScreened, r.StocksFailed,
		r.Matches[model.FilterTrend], r.Matches[model.FilterThreeLine])
	for _, f := range r.Failures {
		fmt.Printf("  failed %s: %s\n", f.StockID, f.Reason)
	}
}
