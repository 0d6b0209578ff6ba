package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"crowdfill/internal/app"
	"crowdfill/internal/config"
	"crowdfill/internal/db"
	"crowdfill/internal/engine"
)

var rootCmd = &cobra.Command{
	Use:   "cf",
	Short: "Crowdfill CLI",
	Long: `Crowdfill splits paid order items into jobs for worker teams and settles what they earn.
Core concepts:
- Order item: one paid line with a quantity. Bot items go to the automation service, human items become jobs.
- Job: part of an item given to one team at a price per unit (pending -> in_progress -> pending_review -> completed, or cancelled).
- Claim: a worker's share of a job (claimed -> submitted -> approved/rejected). Approved units count toward the item.
- Outsourcing post: free quantity offered to outside teams; accepting a bid turns it into a job.
- Settlement: what a cancelled job still pays for logged or submitted work. Paid once.
- Event log: every change, view with 'cf log tail'.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("CROWDFILL")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier recorded on events")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(orderCmd())
	rootCmd.AddCommand(itemCmd())
	rootCmd.AddCommand(jobCmd())
	rootCmd.AddCommand(claimCmd())
	rootCmd.AddCommand(postCmd())
	rootCmd.AddCommand(bidCmd())
	rootCmd.AddCommand(payoutsCmd())
	rootCmd.AddCommand(credibilityCmd())
	rootCmd.AddCommand(dispatchCmd())
	rootCmd.AddCommand(logCmd())
}

func actorID() string {
	return viper.GetString("actor-id")
}

func openApp(ctx context.Context) (*app.App, error) {
	workspace := viper.GetString("workspace")
	cfg, err := config.Load(workspace)
	if err != nil {
		return nil, err
	}
	if err := config.InitLogger(cfg.Log); err != nil {
		return nil, err
	}
	return app.OpenWithConfig(ctx, workspace, cfg)
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a.Engine)
}

// printJSONOrTable prints v as JSON, or as a table when rows is set and
// --json is off.
func printJSONOrTable(v any, header table.Row, rows func(tw table.Writer)) error {
	if viper.GetBool("json") || rows == nil {
		return printJSON(v)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(header)
	rows(tw)
	tw.Render()
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseMoney(flag, s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("--%s must be a decimal amount, got %q", flag, s)
	}
	return d, nil
}

func optionalMoney(cmd *cobra.Command, flag, s string) (*decimal.Decimal, error) {
	if !cmd.Flags().Changed(flag) {
		return nil, nil
	}
	d, err := parseMoney(flag, s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func isJSON() bool {
	return viper.GetBool("json")
}
