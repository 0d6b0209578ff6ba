package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"crowdfill/internal/domain"
	"crowdfill/internal/engine"
	"crowdfill/internal/repo"
)

// orderFile is the JSON accepted by `cf order import`.
type orderFile struct {
	ID       string `json:"id"`
	SellerID string `json:"seller_id"`
	Items    []struct {
		ID          string          `json:"id"`
		Service     string          `json:"service"`
		Target      string          `json:"target"`
		ServiceMode string          `json:"service_mode"`
		Quantity    int             `json:"quantity"`
		UnitPrice   decimal.Decimal `json:"unit_price"`
		CostPerUnit decimal.Decimal `json:"cost_per_unit"`
	} `json:"items"`
}

func (f orderFile) options(actor string) engine.ImportOrderOptions {
	opts := engine.ImportOrderOptions{ID: f.ID, SellerID: f.SellerID, ActorID: actor}
	for _, it := range f.Items {
		opts.Items = append(opts.Items, engine.ImportItem{
			ID:          it.ID,
			Service:     it.Service,
			Target:      it.Target,
			ServiceMode: domain.ServiceMode(strings.ToLower(it.ServiceMode)),
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			CostPerUnit: it.CostPerUnit,
		})
	}
	return opts
}

func readOrderFile(path string) (orderFile, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return orderFile{}, err
	}
	var f orderFile
	if err := json.Unmarshal(data, &f); err != nil {
		return orderFile{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return f, nil
}

func orderCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "order", Short: "Import and inspect orders"}
	cmd.AddCommand(orderImportCmd(), orderShowCmd(), orderListCmd(), orderCancelCmd())
	return cmd
}

func orderImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.json|->",
		Short: "Import a paid order",
		Long:  `The file holds {"id", "seller_id", "items": [{"service", "target", "service_mode": "bot|human", "quantity", "unit_price", "cost_per_unit"}]}. Re-importing an id returns the stored order.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := readOrderFile(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				order, err := e.ImportOrder(ctx, f.options(actorID()))
				if err != nil {
					return err
				}
				return printOrder(order)
			})
		},
	}
}

func printOrder(o domain.Order) error {
	return printJSONOrTable(o, table.Row{"Item", "Mode", "Service", "Qty", "Done", "Unit", "Cost", "Dispatch"}, func(tw table.Writer) {
		tw.SetTitle(fmt.Sprintf("order %s (%s) seller %s", o.ID, o.Status, o.SellerID))
		for _, it := range o.Items {
			tw.AppendRow(table.Row{it.ID, it.ServiceMode, it.Service, it.Quantity, it.CompletedQuantity,
				it.UnitPrice.StringFixed(2), it.CostPerUnit.StringFixed(2), it.DispatchStatus})
		}
	})
}

func orderShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <order-id>",
		Short: "Show an order and its items",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				o, err := e.GetOrder(ctx, args[0])
				if err != nil {
					return err
				}
				return printOrder(o)
			})
		},
	}
}

func orderListCmd() *cobra.Command {
	var status string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List orders, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				orders, err := e.ListOrders(ctx, status, repo.Page{Limit: limit})
				if err != nil {
					return err
				}
				return printJSONOrTable(orders, table.Row{"ID", "Seller", "Status", "Items", "Created"}, func(tw table.Writer) {
					for _, o := range orders {
						tw.AppendRow(table.Row{o.ID, o.SellerID, o.Status, len(o.Items), o.CreatedAt})
					}
				})
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "processing, completed or cancelled")
	cmd.Flags().IntVar(&limit, "limit", 50, "max orders")
	return cmd
}

func orderCancelCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "cancel <order-id>",
		Short: "Cancel an order and settle its live jobs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				o, err := e.CancelOrder(ctx, args[0], reason, actorID())
				if err != nil {
					return err
				}
				return printOrder(o)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "cancellation reason")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}

func itemCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "item", Short: "Allocate order items to teams"}
	cmd.AddCommand(itemShowCmd(), itemAssignCmd(), itemSplitCmd(), itemRetryDispatchCmd())
	return cmd
}

func itemShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <item-id>",
		Short: "Show an item with its allocation and jobs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.GetItem(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(s, table.Row{"Job", "Team", "Qty", "Done", "Price", "Status", "Source"}, func(tw table.Writer) {
					tw.SetTitle(fmt.Sprintf("item %s: %d ordered, %d completed, %d assigned, %d posted, %d free",
						s.Item.ID, s.Item.Quantity, s.Item.CompletedQuantity, s.Assigned, s.Posted, s.AvailableToAssign))
					for _, j := range s.Jobs {
						tw.AppendRow(table.Row{j.ID, j.TeamID, j.Quantity, j.CompletedQuantity, j.PricePerUnit.StringFixed(2), j.Status, j.Source})
					}
				})
			})
		},
	}
}

func itemAssignCmd() *cobra.Command {
	var team, price, instructions, deadline string
	cmd := &cobra.Command{
		Use:   "assign <item-id>",
		Short: "Give all free quantity to one team",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := engine.AssignOptions{ItemID: args[0], TeamID: team, Instructions: instructions, Deadline: optionalString(deadline), ActorID: actorID()}
			if price != "" {
				p, err := parseMoney("price", price)
				if err != nil {
					return err
				}
				opts.PricePerUnit = p
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				job, err := e.AssignDirect(ctx, opts)
				if err != nil {
					return err
				}
				return printJobs([]domain.Job{job})
			})
		},
	}
	cmd.Flags().StringVar(&team, "team", "", "team id")
	cmd.Flags().StringVar(&price, "price", "", "price per unit (defaults to the item's cost)")
	cmd.Flags().StringVar(&instructions, "instructions", "", "instructions for the team")
	cmd.Flags().StringVar(&deadline, "deadline", "", "RFC3339 deadline")
	_ = cmd.MarkFlagRequired("team")
	return cmd
}

// parseSplitPart reads team:quantity[:price].
func parseSplitPart(s string) (engine.SplitPart, error) {
	fields := strings.Split(s, ":")
	if len(fields) < 2 || len(fields) > 3 || fields[0] == "" {
		return engine.SplitPart{}, fmt.Errorf("part %q must be team:quantity[:price]", s)
	}
	qty, err := strconv.Atoi(fields[1])
	if err != nil {
		return engine.SplitPart{}, fmt.Errorf("part %q: bad quantity", s)
	}
	part := engine.SplitPart{TeamID: fields[0], Quantity: qty}
	if len(fields) == 3 {
		part.PricePerUnit, err = parseMoney("part", fields[2])
		if err != nil {
			return engine.SplitPart{}, err
		}
	}
	return part, nil
}

func itemSplitCmd() *cobra.Command {
	var parts []string
	var instructions, deadline string
	cmd := &cobra.Command{
		Use:   "split <item-id>",
		Short: "Split free quantity across teams, all or nothing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := engine.SplitOptions{ItemID: args[0], Instructions: instructions, Deadline: optionalString(deadline), ActorID: actorID()}
			for _, raw := range parts {
				p, err := parseSplitPart(raw)
				if err != nil {
					return err
				}
				opts.Parts = append(opts.Parts, p)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				jobs, err := e.Split(ctx, opts)
				if err != nil {
					return err
				}
				return printJobs(jobs)
			})
		},
	}
	cmd.Flags().StringArrayVar(&parts, "part", nil, "team:quantity[:price], repeatable")
	cmd.Flags().StringVar(&instructions, "instructions", "", "instructions for every team")
	cmd.Flags().StringVar(&deadline, "deadline", "", "RFC3339 deadline")
	_ = cmd.MarkFlagRequired("part")
	return cmd
}

func itemRetryDispatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "retry-dispatch <item-id>",
		Short: "Send a failed bot item to the automation service again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				it, err := e.RetryDispatch(ctx, args[0], actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(it, table.Row{"Item", "Dispatch"}, func(tw table.Writer) {
					tw.AppendRow(table.Row{it.ID, it.DispatchStatus})
				})
			})
		},
	}
}

func dispatchCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "dispatch", Short: "Bot dispatch bookkeeping"}
	var all bool
	failures := &cobra.Command{
		Use:   "failures",
		Short: "List bot items the automation service did not accept",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				list, err := e.ListDispatchFailures(ctx, all)
				if err != nil {
					return err
				}
				return printJSONOrTable(list, table.Row{"Item", "Order", "Attempts", "Error", "At", "Resolved"}, func(tw table.Writer) {
					for _, f := range list {
						tw.AppendRow(table.Row{f.ItemID, f.OrderID, f.Attempts, f.Error, f.CreatedAt, deref(f.ResolvedAt)})
					}
				})
			})
		},
	}
	failures.Flags().BoolVar(&all, "all", false, "include resolved failures")
	cmd.AddCommand(failures)
	return cmd
}
