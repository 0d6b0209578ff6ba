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

func printPost(p domain.OutsourcePost) error {
	return printJSONOrTable(p, table.Row{"Bid", "Team", "Price", "Status", "Note"}, func(tw table.Writer) {
		tw.SetTitle(fmt.Sprintf("post %s: %d units of item %s at %s suggested (%s)",
			p.ID, p.Quantity, p.ItemID, p.SuggestedPricePerUnit.StringFixed(2), p.Status))
		for _, b := range p.Bids {
			tw.AppendRow(table.Row{b.ID, b.TeamID, b.PricePerUnit.StringFixed(2), b.Status, b.Note})
		}
	})
}

func postCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "post", Short: "Outsourcing posts"}
	cmd.AddCommand(postCreateCmd(), postListCmd(), postShowCmd(), postCancelCmd())
	return cmd
}

func postCreateCmd() *cobra.Command {
	var quantity int
	var price, deadline string
	cmd := &cobra.Command{
		Use:   "create <item-id>",
		Short: "Offer free item quantity to outside teams",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := parseMoney("price", price)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				post, err := e.PostOutsource(ctx, engine.PostOptions{
					ItemID: args[0], Quantity: quantity, SuggestedPricePerUnit: p,
					Deadline: optionalString(deadline), ActorID: actorID(),
				})
				if err != nil {
					return err
				}
				return printPost(post)
			})
		},
	}
	cmd.Flags().IntVar(&quantity, "quantity", 0, "units to offer")
	cmd.Flags().StringVar(&price, "price", "", "suggested price per unit")
	cmd.Flags().StringVar(&deadline, "deadline", "", "RFC3339 deadline")
	_ = cmd.MarkFlagRequired("quantity")
	_ = cmd.MarkFlagRequired("price")
	return cmd
}

func postListCmd() *cobra.Command {
	var f repo.PostFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List outsourcing posts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				posts, err := e.ListPosts(ctx, f)
				if err != nil {
					return err
				}
				if posts == nil {
					posts = []domain.OutsourcePost{}
				}
				return printJSONOrTable(posts, table.Row{"ID", "Item", "Qty", "Suggested", "Status", "Job"}, func(tw table.Writer) {
					for _, p := range posts {
						tw.AppendRow(table.Row{p.ID, p.ItemID, p.Quantity, p.SuggestedPricePerUnit.StringFixed(2), p.Status, deref(p.JobID)})
					}
				})
			})
		},
	}
	cmd.Flags().StringVar(&f.ItemID, "item", "", "filter by item")
	cmd.Flags().StringVar(&f.Status, "status", "", "open, accepted or cancelled")
	cmd.Flags().IntVar(&f.Limit, "limit", 100, "max posts")
	return cmd
}

func postShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <post-id>",
		Short: "Show a post and its bids",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.GetPost(ctx, args[0])
				if err != nil {
					return err
				}
				return printPost(p)
			})
		},
	}
}

func postCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <post-id>",
		Short: "Withdraw an open post",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.CancelPost(ctx, args[0], actorID())
				if err != nil {
					return err
				}
				return printPost(p)
			})
		},
	}
}

func bidCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "bid", Short: "Bid on outsourcing posts"}
	cmd.AddCommand(bidPlaceCmd(), bidAcceptCmd())
	return cmd
}

func bidPlaceCmd() *cobra.Command {
	var team, price, note string
	cmd := &cobra.Command{
		Use:   "place <post-id>",
		Short: "Place or replace a team's bid",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := parseMoney("price", price)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				b, err := e.PlaceBid(ctx, engine.BidOptions{PostID: args[0], TeamID: team, PricePerUnit: p, Note: note, ActorID: actorID()})
				if err != nil {
					return err
				}
				return printJSONOrTable(b, table.Row{"Bid", "Post", "Team", "Price", "Status"}, func(tw table.Writer) {
					tw.AppendRow(table.Row{b.ID, b.PostID, b.TeamID, b.PricePerUnit.StringFixed(2), b.Status})
				})
			})
		},
	}
	cmd.Flags().StringVar(&team, "team", "", "bidding team")
	cmd.Flags().StringVar(&price, "price", "", "price per unit")
	cmd.Flags().StringVar(&note, "note", "", "note for the seller")
	_ = cmd.MarkFlagRequired("team")
	_ = cmd.MarkFlagRequired("price")
	return cmd
}

func bidAcceptCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "accept <bid-id>",
		Short: "Accept a bid and create the job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.AcceptBid(ctx, args[0], actorID())
				if err != nil {
					return err
				}
				if isJSON() {
					return printJSON(res)
				}
				return printJobs([]domain.Job{res.Job})
			})
		},
	}
}
