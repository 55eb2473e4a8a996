package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/iho/storeledger/internal/adapter/http/dto"
	"github.com/iho/storeledger/internal/domain"
	"github.com/iho/storeledger/internal/infrastructure/auth"
	"github.com/iho/storeledger/internal/usecase"
)

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	c := &apiClient{}

	rootCmd := &cobra.Command{
		Use:           "storeledger-cli",
		Short:         "Store ledger operator CLI",
		Long:          `Operator commands for the installment ledger and cash sessions.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetOut(out)

	rootCmd.PersistentFlags().StringVar(&c.baseURL, "url", "http://localhost:8080", "Base URL of the ledger API")
	rootCmd.PersistentFlags().DurationVar(&c.timeout, "timeout", 10*time.Second, "Request timeout")
	rootCmd.PersistentFlags().StringVar(&c.token, "token", os.Getenv("STORELEDGER_TOKEN"), "Bearer token")
	rootCmd.PersistentFlags().StringVar(&c.actor, "actor", "", "Operator id when authentication is disabled")

	rootCmd.AddCommand(sweepCmd(c), ledgerCmd(c), sessionCmd(c), tokenCmd())
	return rootCmd
}

func sweepCmd(c *apiClient) *cobra.Command {
	var asOf string

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Mark past-due installments as overdue",
		RunE: func(cmd *cobra.Command, args []string) error {
			req := dto.SweepRequest{}
			if asOf != "" {
				t, err := time.Parse(time.DateOnly, asOf)
				if err != nil {
					return fmt.Errorf("invalid --as-of %q: %w", asOf, err)
				}
				req.AsOf = &t
			}

			var resp dto.SweepResponse
			if err := c.do(cmd.Context(), "POST", "/api/v1/ledger/sweep", req, &resp); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Sweep as of %s: scanned=%d transitioned=%d failed=%d\n",
				resp.AsOf, resp.Scanned, resp.Transitioned, resp.Failed)
			return nil
		},
	}
	cmd.Flags().StringVar(&asOf, "as-of", "", "Business date to sweep as (YYYY-MM-DD); defaults to today")
	return cmd
}

func ledgerCmd(c *apiClient) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Ledger operations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "consistency",
		Short: "Check sale balances and session totals",
		RunE: func(cmd *cobra.Command, args []string) error {
			var report usecase.ConsistencyReport
			if err := c.do(cmd.Context(), "GET", "/api/v1/ledger/consistency", nil, &report); err != nil {
				return err
			}
			return printConsistency(cmd.OutOrStdout(), &report)
		},
	})
	return cmd
}

func printConsistency(out io.Writer, report *usecase.ConsistencyReport) error {
	fmt.Fprintf(out, "Checked %d sales and %d sessions\n", report.CheckedSales, report.CheckedSessions)
	for _, d := range report.SaleDiscrepancies {
		fmt.Fprintf(out, "  sale %s: recorded %s, installments %s (diff %s)\n",
			d.SaleID, d.Recorded, d.Calculated, d.Difference)
	}
	for _, s := range report.SessionDiscrepancies {
		recorded := "-"
		if s.Recorded != nil {
			recorded = s.Recorded.String()
		}
		fmt.Fprintf(out, "  session %s (%s): recorded %s, entries %s\n", s.SessionID, s.Status, recorded, s.Calculated)
	}
	if !report.Consistent {
		return fmt.Errorf("consistency check FAILED")
	}
	fmt.Fprintln(out, "Consistency check PASSED")
	return nil
}

func sessionCmd(c *apiClient) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Cash session reports",
	}

	var asJSON bool
	report := &cobra.Command{
		Use:   "report <session-id>",
		Short: "Print the closing report of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp dto.SessionReportResponse
			if err := c.do(cmd.Context(), "GET", "/api/v1/cash-sessions/"+args[0]+"/report", nil, &resp); err != nil {
				return err
			}
			if asJSON {
				printJSON(cmd.OutOrStdout(), resp)
				return nil
			}
			printReport(cmd.OutOrStdout(), resp.Report)
			return nil
		},
	}
	report.Flags().BoolVar(&asJSON, "json", false, "Print the report and its entries as JSON")
	cmd.AddCommand(report)

	var output string
	export := &cobra.Command{
		Use:   "export <session-id>",
		Short: "Download the closing report as a spreadsheet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := c.download(cmd.Context(), "/api/v1/cash-sessions/"+args[0]+"/report.xlsx")
			if err != nil {
				return err
			}
			path := output
			if path == "" {
				path = "cierre-" + args[0] + ".xlsx"
			}
			if err := os.WriteFile(path, body, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%d bytes)\n", path, len(body))
			return nil
		},
	}
	export.Flags().StringVarP(&output, "output", "o", "", "Output file")
	cmd.AddCommand(export)

	return cmd
}

func printReport(out io.Writer, r *domain.ClosingReport) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Session\t%s\n", r.SessionID)
	fmt.Fprintf(w, "Register\t%s\n", r.RegisterID)
	fmt.Fprintf(w, "Status\t%s\n", r.Status)
	fmt.Fprintf(w, "Opening\t%s\n", r.Opening)
	for _, t := range r.TotalsByType {
		fmt.Fprintf(w, "  %s\t%s\n", t.Type, t.Amount)
	}
	fmt.Fprintf(w, "Expected\t%s\n", r.Expected)
	if r.Counted != nil && r.Variance != nil {
		fmt.Fprintf(w, "Counted\t%s\n", *r.Counted)
		fmt.Fprintf(w, "Variance\t%s (%s%%, %s)\n", *r.Variance, r.VariancePct.StringFixed(2), r.Classification)
	}
	_ = w.Flush()
}

func tokenCmd() *cobra.Command {
	var (
		userID string
		email  string
		role   string
		secret string
		ttl    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for an operator",
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				return fmt.Errorf("a signing secret is required (--secret or JWT_SECRET)")
			}
			token, err := auth.NewJWTManager(secret, ttl).Generate(&domain.User{
				ID:    userID,
				Email: email,
				Role:  domain.Role(role),
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "Operator id")
	cmd.Flags().StringVar(&email, "email", "", "Operator email")
	cmd.Flags().StringVar(&role, "role", string(domain.RoleCashier), "Role: admin, cashier or viewer")
	cmd.Flags().StringVar(&secret, "secret", os.Getenv("JWT_SECRET"), "Signing secret")
	cmd.Flags().DurationVar(&ttl, "ttl", 12*time.Hour, "Token lifetime")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func printJSON(out io.Writer, v any) {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
