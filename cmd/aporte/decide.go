package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/newthinker/aporte/internal/core"
	"github.com/newthinker/aporte/internal/orchestrator"
)

var (
	decideProfile  string
	decideAmount   string
	decideDate     string
	decideStrategy string
	decideJSON     bool
)

var decideCmd = &cobra.Command{
	Use:   "decide",
	Short: "Decide how to allocate one contribution",
	Long:  "Classify the current regime, allocate the contribution for a risk profile and record the explained decision",
	RunE:  runDecide,
}

func init() {
	decideCmd.Flags().StringVar(&decideProfile, "profile", "", "risk profile name (required)")
	decideCmd.Flags().StringVar(&decideAmount, "amount", "", "contribution amount (required)")
	decideCmd.Flags().StringVar(&decideDate, "date", "", "decision date YYYY-MM-DD (default today)")
	decideCmd.Flags().StringVar(&decideStrategy, "strategy", "", "rule_based or rl_assisted (default from config)")
	decideCmd.Flags().BoolVar(&decideJSON, "json", false, "print the full decision as JSON")

	decideCmd.MarkFlagRequired("profile")
	decideCmd.MarkFlagRequired("amount")

	rootCmd.AddCommand(decideCmd)
}

func runDecide(cmd *cobra.Command, args []string) error {
	amount, err := decimal.NewFromString(decideAmount)
	if err != nil {
		return fmt.Errorf("invalid amount %q: %w", decideAmount, err)
	}
	date, err := parseDate("decision", decideDate)
	if err != nil {
		return err
	}
	req := orchestrator.DecideRequest{Profile: decideProfile, Amount: amount, Date: date}
	if decideStrategy != "" {
		if req.Strategy, err = orchestrator.ParseStrategy(decideStrategy); err != nil {
			return err
		}
	}

	a, log, cleanup, err := loadApp()
	if err != nil {
		return err
	}
	defer cleanup()
	ctx, stop := commandContext(a, log)
	defer stop()
	a.LoadPolicies(ctx)

	d, err := a.Decide(ctx, req)
	if err != nil {
		return err
	}
	if decideJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(d)
	}
	printDecision(d)
	return nil
}

func printDecision(d *core.AllocationDecision) {
	fmt.Println("=== APORTE Decision ===")
	fmt.Printf("ID:       %s\n", d.ID)
	fmt.Printf("Profile:  %s\n", d.ProfileName)
	fmt.Printf("Date:     %s\n", d.Date.Format("2006-01-02"))
	fmt.Printf("Amount:   %s\n", d.ContributionAmount.StringFixed(2))
	fmt.Printf("Regime:   %s (strength %.2f)\n", d.Regime.Regime, d.Regime.Strength)
	fmt.Printf("Strategy: %s\n", d.Strategy)
	fmt.Println()

	fmt.Println("Asset classes:")
	for _, class := range core.AssetClasses {
		amount, ok := d.ClassAmounts[class]
		if !ok {
			continue
		}
		fmt.Printf("  %-14s %6.2f%%  %12s\n", class, d.Mega[class]*100, amount.StringFixed(2))
	}
	fmt.Println()

	fmt.Println("Positions:")
	keys := make([]string, 0, len(d.PositionAmounts))
	for k := range d.PositionAmounts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("  %-14s %12s\n", k, d.PositionAmounts[k].StringFixed(2))
	}
	fmt.Println()

	fmt.Println(d.Justification)
}
