package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/patrickwarner/clickguard/internal/db"
	"github.com/patrickwarner/clickguard/internal/fraud"
)

type runFunc = func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error

type appWrapper = func(run runFunc) func(*cobra.Command, []string) error

var errAccountRequired = errors.New("--account is required")

func newPassCmd(opts *options, withApp appWrapper) *cobra.Command {
	var (
		threshold   int
		windowHours float64
		wait        time.Duration
	)
	cmd := &cobra.Command{
		Use:   "pass",
		Short: "Run a fraud pass and block the offending IPs",
		Args:  cobra.NoArgs,
	}
	cmd.Flags().IntVar(&threshold, "threshold", 0, "Click threshold override (2-10)")
	cmd.Flags().Float64Var(&windowHours, "window-hours", 0, "Window override in hours")
	cmd.Flags().DurationVar(&wait, "wait", time.Minute, "How long to wait for IP suppression")

	cmd.RunE = withApp(func(ctx context.Context, a *app, cmd *cobra.Command, _ []string) error {
		if opts.accountID == "" {
			return errAccountRequired
		}
		var po fraud.PassOptions
		if cmd.Flags().Changed("threshold") {
			po.ClickThreshold = &threshold
		}
		if cmd.Flags().Changed("window-hours") {
			po.WindowHours = &windowHours
		}
		res, err := a.engine.RunFraudPass(ctx, opts.tenantID, opts.accountID, po)
		if err != nil {
			return err
		}

		waitCtx, cancel := context.WithTimeout(ctx, wait)
		defer cancel()
		dispatched, dispatchErr := res.Dispatch.Wait(waitCtx)

		out := cmd.OutOrStdout()
		if opts.asJSON {
			return writeJSON(out, map[string]any{
				"result":      res,
				"suppression": dispatched,
				"pending":     dispatchErr != nil,
			})
		}

		fmt.Fprintf(out, "run %s: %d alerts, total cost %s, risk %s (threshold %d, window %s to %s)\n",
			res.RunID, len(res.Alerts), res.TotalCost.StringFixed(2), res.RiskLevel, res.Threshold,
			res.WindowStart.Format(time.RFC3339), res.WindowEnd.Format(time.RFC3339))
		fmt.Fprintf(out, "verdicts %d, already alerted %d, unreconciled %d\n",
			res.Verdicts, res.AlreadyAlerted, res.Unreconciled)

		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "CLICK ID\tIP\tREASON\tCOST\tCAMPAIGN")
		for _, al := range res.Alerts {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", al.ClickID, al.SourceIP, al.Reason, al.Cost.StringFixed(2), al.CampaignID)
		}
		if err := tw.Flush(); err != nil {
			return err
		}

		if dispatchErr != nil {
			fmt.Fprintln(out, "suppression still running")
			return nil
		}
		for _, r := range dispatched {
			status := "ok"
			if r.Err != nil {
				status = r.Err.Error()
			} else if len(r.Failures) > 0 {
				status = fmt.Sprintf("%d failures", len(r.Failures))
			}
			fmt.Fprintf(out, "campaign %s: blocked %d/%d IPs (%s)\n", r.CampaignID, r.Blocked, len(r.IPs), status)
		}
		return nil
	})
	return cmd
}

func newWasteCmd(opts *options, withApp appWrapper) *cobra.Command {
	var dateRange string
	cmd := &cobra.Command{
		Use:   "waste",
		Short: "List search terms that spent without converting",
		Args:  cobra.NoArgs,
	}
	cmd.Flags().StringVar(&dateRange, "range", "", "Date range (LAST_7_DAYS, LAST_14_DAYS, LAST_30_DAYS, LAST_90_DAYS, THIS_MONTH, LAST_MONTH)")

	cmd.RunE = withApp(func(ctx context.Context, a *app, cmd *cobra.Command, _ []string) error {
		if opts.accountID == "" {
			return errAccountRequired
		}
		res, err := a.engine.RunWasteAnalysis(ctx, opts.tenantID, opts.accountID, dateRange)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if opts.asJSON {
			return writeJSON(out, res)
		}

		s := res.Summary
		fmt.Fprintf(out, "%s: %d of %d search terms wasted %d clicks costing %s\n",
			res.DateRange, s.SuggestedNegatives, s.TotalSearchTerms, s.WastedClicks, s.PotentialMonthlySavings.StringFixed(2))
		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "SEARCH TERM\tCOST\tCLICKS\tAD GROUP")
		for _, sg := range res.Suggestions {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", sg.SearchTerm, sg.Cost.StringFixed(2), sg.Clicks, sg.AdGroupID)
		}
		return tw.Flush()
	})
	return cmd
}

func newApplyNegativesCmd(opts *options, withApp appWrapper) *cobra.Command {
	var adGroupID string
	cmd := &cobra.Command{
		Use:   "apply-negatives [keyword...]",
		Short: "Add negative broad-match keywords to an ad group",
		Args:  cobra.MinimumNArgs(1),
	}
	cmd.Flags().StringVar(&adGroupID, "ad-group", "", "Ad group id")
	_ = cmd.MarkFlagRequired("ad-group")

	cmd.RunE = withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
		if opts.accountID == "" {
			return errAccountRequired
		}
		applied, err := a.engine.ApplyNegativeKeywords(ctx, opts.tenantID, opts.accountID, adGroupID, args)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "added %d negative keywords to ad group %s\n", applied, adGroupID)
		return nil
	})
	return cmd
}

func newAlertsCmd(opts *options, withApp appWrapper) *cobra.Command {
	var (
		days  int
		limit int
	)
	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "List recent fraud alerts",
		Args:  cobra.NoArgs,
	}
	cmd.Flags().IntVar(&days, "days", 7, "Look back this many days")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum alerts to list")

	cmd.RunE = withApp(func(ctx context.Context, a *app, cmd *cobra.Command, _ []string) error {
		alerts, err := a.alerts.ListAlerts(ctx, db.AlertFilter{
			TenantID:     opts.tenantID,
			AdsAccountID: opts.accountID,
			Since:        time.Now().UTC().AddDate(0, 0, -days),
			Limit:        limit,
		})
		if err != nil {
			return fmt.Errorf("list alerts: %w", err)
		}
		out := cmd.OutOrStdout()
		if opts.asJSON {
			return writeJSON(out, alerts)
		}
		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "CREATED\tIP\tREASON\tCOST\tCLICK ID")
		for _, al := range alerts {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
				al.CreatedAt.Format(time.RFC3339), al.SourceIP, al.Reason, al.Cost.StringFixed(2), al.ClickID)
		}
		return tw.Flush()
	})
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
