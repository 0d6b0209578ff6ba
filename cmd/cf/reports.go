package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"crowdfill/internal/credibility"
	"crowdfill/internal/domain"
	"crowdfill/internal/engine"
	"crowdfill/internal/repo"
)

func payoutsCmd() *cobra.Command {
	var f repo.PayoutFilters
	cmd := &cobra.Command{
		Use:   "payouts",
		Short: "Show what workers earned",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				st, err := e.Payouts(ctx, f)
				if err != nil {
					return err
				}
				return printJSONOrTable(st, table.Row{"Worker", "Job", "Claim", "Source", "Amount", "At"}, func(tw table.Writer) {
					for _, p := range st.Payouts {
						tw.AppendRow(table.Row{p.WorkerID, p.JobID, p.ClaimID, p.Source, p.Amount.StringFixed(2), p.CreatedAt})
					}
					tw.AppendFooter(table.Row{"", "", "", "Total", st.Total.StringFixed(2), ""})
				})
			})
		},
	}
	cmd.Flags().StringVar(&f.WorkerID, "worker", "", "filter by worker")
	cmd.Flags().StringVar(&f.JobID, "job", "", "filter by job")
	cmd.Flags().IntVar(&f.Limit, "limit", 200, "max payouts listed")
	return cmd
}

func credibilityCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "credibility", Short: "Reporter credibility"}
	cmd.AddCommand(credibilitySetCmd(), credibilityShowCmd(), credibilityPrioritizeCmd())
	return cmd
}

func printScore(s credibility.Score) error {
	return printJSONOrTable(s, table.Row{"Worker", "Level", "Sample", "False", "Confirmed", "Can report"}, func(tw table.Writer) {
		tw.AppendRow(table.Row{s.WorkerID, s.Level, s.Sample, fmt.Sprintf("%.2f", s.FalseRatio), fmt.Sprintf("%.2f", s.ConfirmedRatio), s.CanReport})
	})
}

func credibilitySetCmd() *cobra.Command {
	var stats domain.WorkerReportStats
	var bannedUntil string
	cmd := &cobra.Command{
		Use:   "set <worker-id>",
		Short: "Store a worker's report review tallies",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stats.WorkerID = args[0]
			stats.ReportBannedUntil = optionalString(bannedUntil)
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if _, err := e.PutReportStats(ctx, stats, actorID()); err != nil {
					return err
				}
				s, err := e.ReporterCredibility(ctx, args[0])
				if err != nil {
					return err
				}
				return printScore(s)
			})
		},
	}
	cmd.Flags().IntVar(&stats.TotalReports, "total", 0, "reports filed")
	cmd.Flags().IntVar(&stats.ConfirmedReports, "confirmed", 0, "reports upheld")
	cmd.Flags().IntVar(&stats.DismissedReports, "dismissed", 0, "reports dismissed")
	cmd.Flags().IntVar(&stats.FalseReports, "false", 0, "reports found false")
	cmd.Flags().BoolVar(&stats.CanReport, "can-report", true, "whether the worker may report")
	cmd.Flags().StringVar(&bannedUntil, "banned-until", "", "RFC3339 end of a reporting ban")
	return cmd
}

func credibilityShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <worker-id>",
		Short: "Classify a reporter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.ReporterCredibility(ctx, args[0])
				if err != nil {
					return err
				}
				return printScore(s)
			})
		},
	}
}

func credibilityPrioritizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "prioritize <reports.json>",
		Short: "Order pending reports for review",
		Long:  `The file holds [{"id", "reporter_id", "created_at"}]. Trusted reporters come first, suspicious ones last.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var reports []credibility.Report
			if err := json.Unmarshal(data, &reports); err != nil {
				return fmt.Errorf("parse %s: %w", args[0], err)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				ranked, err := e.PrioritizeReports(ctx, reports)
				if err != nil {
					return err
				}
				return printJSONOrTable(ranked, table.Row{"#", "Report", "Reporter", "Level", "Created"}, func(tw table.Writer) {
					for i, r := range ranked {
						tw.AppendRow(table.Row{i + 1, r.ID, r.ReporterID, r.Score.Level, r.CreatedAt})
					}
				})
			})
		},
	}
}

func logCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "log", Short: "Event log"}
	var n int
	var f repo.EventFilters
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Show the latest events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				events, err := e.ListEvents(ctx, n, 0, f)
				if err != nil {
					return err
				}
				if events == nil {
					events = []domain.Event{}
				}
				return printJSONOrTable(events, table.Row{"ID", "TS", "Type", "Entity", "Actor", "Payload"}, func(tw table.Writer) {
					for _, ev := range events {
						tw.AppendRow(table.Row{ev.ID, ev.TS, ev.Type, ev.EntityKind + ":" + ev.EntityID, ev.ActorID, ev.Payload})
					}
				})
			})
		},
	}
	tail.Flags().IntVarP(&n, "n", "n", 20, "number of events")
	tail.Flags().StringVar(&f.Type, "type", "", "filter by event type")
	tail.Flags().StringVar(&f.OrderID, "order", "", "filter by order")
	tail.Flags().StringVar(&f.EntityKind, "entity-kind", "", "filter by entity kind")
	tail.Flags().StringVar(&f.EntityID, "entity-id", "", "filter by entity id")
	cmd.AddCommand(tail)
	return cmd
}
