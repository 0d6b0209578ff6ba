package main

import (
	"context"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"crowdfill/internal/domain"
	"crowdfill/internal/engine"
	"crowdfill/internal/repo"
)

func printJobs(jobs []domain.Job) error {
	var v any = jobs
	if len(jobs) == 1 {
		v = jobs[0]
	}
	return printJSONOrTable(v, table.Row{"ID", "Item", "Team", "Qty", "Done", "Price", "Status", "Source"}, func(tw table.Writer) {
		for _, j := range jobs {
			tw.AppendRow(table.Row{j.ID, j.ItemID, j.TeamID, j.Quantity, j.CompletedQuantity, j.PricePerUnit.StringFixed(2), j.Status, j.Source})
		}
	})
}

func printSettlement(s domain.Settlement) error {
	return printJSONOrTable(s, table.Row{"Claim", "Worker", "Status", "Qty", "Amount"}, func(tw table.Writer) {
		tw.SetTitle(fmt.Sprintf("job %s settlement (was %s) at %s/unit", s.JobID, s.StatusAtCancel, s.PricePerUnit.StringFixed(2)))
		for _, l := range s.Lines {
			tw.AppendRow(table.Row{l.ClaimID, l.WorkerID, l.ClaimStatus, l.Quantity, l.Amount.StringFixed(2)})
		}
		tw.AppendFooter(table.Row{"", "", "", "Total", s.Total.StringFixed(2)})
	})
}

func jobCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "job", Short: "Manage team jobs"}
	cmd.AddCommand(jobListCmd(), jobShowCmd(), jobEditCmd(), jobDeleteCmd(), jobAdvanceCmd(),
		jobCancelCmd(), jobReassignCmd(), jobSettlementCmd())
	return cmd
}

func jobListCmd() *cobra.Command {
	var f repo.JobFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				jobs, err := e.ListJobs(ctx, f)
				if err != nil {
					return err
				}
				if jobs == nil {
					jobs = []domain.Job{}
				}
				return printJSONOrTable(jobs, table.Row{"ID", "Item", "Team", "Qty", "Done", "Price", "Status", "Source"}, func(tw table.Writer) {
					for _, j := range jobs {
						tw.AppendRow(table.Row{j.ID, j.ItemID, j.TeamID, j.Quantity, j.CompletedQuantity, j.PricePerUnit.StringFixed(2), j.Status, j.Source})
					}
				})
			})
		},
	}
	cmd.Flags().StringVar(&f.ItemID, "item", "", "filter by item")
	cmd.Flags().StringVar(&f.OrderID, "order", "", "filter by order")
	cmd.Flags().StringVar(&f.TeamID, "team", "", "filter by team")
	cmd.Flags().StringVar(&f.Status, "status", "", "filter by status")
	cmd.Flags().IntVar(&f.Limit, "limit", 100, "max jobs")
	return cmd
}

func jobShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <job-id>",
		Short: "Show a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				job, err := e.GetJob(ctx, args[0])
				if err != nil {
					return err
				}
				return printJobs([]domain.Job{job})
			})
		},
	}
}

func jobEditCmd() *cobra.Command {
	var quantity int
	var price, instructions, deadline string
	cmd := &cobra.Command{
		Use:   "edit <job-id>",
		Short: "Change a pending job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := engine.EditJobOptions{JobID: args[0], ActorID: actorID()}
			if cmd.Flags().Changed("quantity") {
				opts.Quantity = &quantity
			}
			p, err := optionalMoney(cmd, "price", price)
			if err != nil {
				return err
			}
			opts.PricePerUnit = p
			if cmd.Flags().Changed("instructions") {
				opts.Instructions = &instructions
			}
			if cmd.Flags().Changed("deadline") {
				opts.Deadline = &deadline
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				job, err := e.EditJob(ctx, opts)
				if err != nil {
					return err
				}
				return printJobs([]domain.Job{job})
			})
		},
	}
	cmd.Flags().IntVar(&quantity, "quantity", 0, "new quantity")
	cmd.Flags().StringVar(&price, "price", "", "new price per unit")
	cmd.Flags().StringVar(&instructions, "instructions", "", "new instructions")
	cmd.Flags().StringVar(&deadline, "deadline", "", "new RFC3339 deadline, empty clears it")
	return cmd
}

func jobDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <job-id>",
		Short: "Delete a pending job and free its quantity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.DeleteJob(ctx, args[0], actorID()); err != nil {
					return err
				}
				return printJSONOrTable(map[string]string{"deleted": args[0]}, table.Row{"Deleted"}, func(tw table.Writer) {
					tw.AppendRow(table.Row{args[0]})
				})
			})
		},
	}
}

func jobAdvanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "advance <job-id>",
		Short: "Move an in-progress job to pending_review",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				job, err := e.AdvanceToReview(ctx, args[0], actorID())
				if err != nil {
					return err
				}
				return printJobs([]domain.Job{job})
			})
		},
	}
}

func jobCancelCmd() *cobra.Command {
	var reason, expected string
	var preview bool
	cmd := &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Cancel a job and settle logged work",
		Long:  "With --preview nothing changes and the settlement that would be paid is shown. Pass its total back as --expected-total to refuse the cancel if the amount moved in between.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if preview {
					s, err := e.PreviewCancellation(ctx, args[0])
					if err != nil {
						return err
					}
					return printSettlement(s)
				}
				if reason == "" {
					return fmt.Errorf("--reason required")
				}
				exp, err := optionalMoney(cmd, "expected-total", expected)
				if err != nil {
					return err
				}
				res, err := e.CancelJob(ctx, engine.CancelJobOptions{JobID: args[0], Reason: reason, ExpectedTotal: exp, ActorID: actorID()})
				if err != nil {
					return err
				}
				if isJSON() {
					return printJSON(res)
				}
				return printSettlement(res.Settlement)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "cancellation reason")
	cmd.Flags().StringVar(&expected, "expected-total", "", "previewed settlement total")
	cmd.Flags().BoolVar(&preview, "preview", false, "show the settlement without cancelling")
	return cmd
}

func jobReassignCmd() *cobra.Command {
	var team, price, reason string
	cmd := &cobra.Command{
		Use:   "reassign <job-id>",
		Short: "Move a job's unclaimed quantity to another team",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := optionalMoney(cmd, "price", price)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.Reassign(ctx, engine.ReassignOptions{JobID: args[0], TeamID: team, PricePerUnit: p, Reason: reason, ActorID: actorID()})
				if err != nil {
					return err
				}
				if isJSON() {
					return printJSON(res)
				}
				return printJobs([]domain.Job{res.Previous, res.Job})
			})
		},
	}
	cmd.Flags().StringVar(&team, "team", "", "new team")
	cmd.Flags().StringVar(&price, "price", "", "price per unit (defaults to the old job's)")
	cmd.Flags().StringVar(&reason, "reason", "", "why the job moves")
	_ = cmd.MarkFlagRequired("team")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}

func jobSettlementCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "settlement <job-id>",
		Short: "Show the settlement paid for a cancelled job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.GetSettlement(ctx, args[0])
				if err != nil {
					return err
				}
				return printSettlement(s)
			})
		},
	}
}

func printClaims(claims []domain.Claim) error {
	var v any = claims
	if len(claims) == 1 {
		v = claims[0]
	}
	return printJSONOrTable(v, table.Row{"ID", "Job", "Worker", "Qty", "Actual", "Earn", "Status"}, func(tw table.Writer) {
		for _, c := range claims {
			tw.AppendRow(table.Row{c.ID, c.JobID, c.WorkerID, c.Quantity, c.ActualQuantity, c.EarnAmount.StringFixed(2), c.Status})
		}
	})
}

func claimCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "claim", Short: "Worker claims on jobs"}
	cmd.AddCommand(claimCreateCmd(), claimListCmd(), claimShowCmd(), claimProgressCmd(), claimSubmitCmd(),
		claimReviewCmd("approve"), claimReviewCmd("reject"))
	return cmd
}

func claimCreateCmd() *cobra.Command {
	var worker string
	var quantity int
	cmd := &cobra.Command{
		Use:   "create <job-id>",
		Short: "Reserve part of a job for a worker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if worker == "" {
				worker = actorID()
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.CreateClaim(ctx, engine.CreateClaimOptions{JobID: args[0], WorkerID: worker, Quantity: quantity, ActorID: actorID()})
				if err != nil {
					return err
				}
				return printClaims([]domain.Claim{c})
			})
		},
	}
	cmd.Flags().StringVar(&worker, "worker", "", "worker id (defaults to --actor-id)")
	cmd.Flags().IntVar(&quantity, "quantity", 0, "units to reserve")
	_ = cmd.MarkFlagRequired("quantity")
	return cmd
}

func claimListCmd() *cobra.Command {
	var f repo.ClaimFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List claims",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				claims, err := e.ListClaims(ctx, f)
				if err != nil {
					return err
				}
				if claims == nil {
					claims = []domain.Claim{}
				}
				if isJSON() {
					return printJSON(claims)
				}
				return printClaims(claims)
			})
		},
	}
	cmd.Flags().StringVar(&f.JobID, "job", "", "filter by job")
	cmd.Flags().StringVar(&f.WorkerID, "worker", "", "filter by worker")
	cmd.Flags().StringVar(&f.Status, "status", "", "filter by status")
	cmd.Flags().IntVar(&f.Limit, "limit", 100, "max claims")
	return cmd
}

func claimShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <claim-id>",
		Short: "Show a claim",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.GetClaim(ctx, args[0])
				if err != nil {
					return err
				}
				return printClaims([]domain.Claim{c})
			})
		},
	}
}

func claimProgressCmd() *cobra.Command {
	var actual int
	cmd := &cobra.Command{
		Use:   "progress <claim-id>",
		Short: "Log how many units are done",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.ReportProgress(ctx, engine.ProgressOptions{ClaimID: args[0], ActualQuantity: actual, ActorID: actorID()})
				if err != nil {
					return err
				}
				return printClaims([]domain.Claim{c})
			})
		},
	}
	cmd.Flags().IntVar(&actual, "done", 0, "units done so far")
	_ = cmd.MarkFlagRequired("done")
	return cmd
}

func claimSubmitCmd() *cobra.Command {
	var actual int
	cmd := &cobra.Command{
		Use:   "submit <claim-id>",
		Short: "Submit a claim for review",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := engine.SubmitClaimOptions{ClaimID: args[0], ActorID: actorID()}
			if cmd.Flags().Changed("done") {
				opts.ActualQuantity = &actual
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.SubmitClaim(ctx, opts)
				if err != nil {
					return err
				}
				return printClaims([]domain.Claim{c})
			})
		},
	}
	cmd.Flags().IntVar(&actual, "done", 0, "units done (defaults to logged progress)")
	return cmd
}

func claimReviewCmd(verb string) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   verb + " <claim-id>",
		Short: verb + " a submitted claim",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := engine.ReviewClaimOptions{ClaimID: args[0], Reason: reason, ActorID: actorID()}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				review := e.ApproveClaim
				if verb == "reject" {
					review = e.RejectClaim
				}
				c, err := review(ctx, opts)
				if err != nil {
					return err
				}
				return printClaims([]domain.Claim{c})
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "review note (required to reject)")
	return cmd
}
