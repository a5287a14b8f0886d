package main

import (
	"errors"
	"fmt"
	"math"

	"github.com/spf13/cobra"

	"github.com/newthinker/aporte/internal/app"
	"github.com/newthinker/aporte/internal/backtest"
	"github.com/newthinker/aporte/internal/core"
)

var (
	backtestProfile string
	backtestPolicy  string
	backtestFrom    string
	backtestTo      string
	backtestCapital float64
)

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Replay a profile over historical data",
	Long:  "Run a policy against historical prices and indicators and show performance statistics",
	RunE:  runBacktest,
}

func init() {
	backtestCmd.Flags().StringVar(&backtestProfile, "profile", "", "risk profile name (required)")
	backtestCmd.Flags().StringVar(&backtestPolicy, "policy", app.PolicyRuleBased, "rule_based, base_weights, hold or rl")
	backtestCmd.Flags().StringVar(&backtestFrom, "from", "", "start date YYYY-MM-DD (default from config)")
	backtestCmd.Flags().StringVar(&backtestTo, "to", "", "end date YYYY-MM-DD (default from config)")
	backtestCmd.Flags().Float64Var(&backtestCapital, "capital", 0, "initial capital (default from config)")

	backtestCmd.MarkFlagRequired("profile")

	rootCmd.AddCommand(backtestCmd)
}

func simulationRequest(profile, from, to string) (app.SimulationRequest, error) {
	start, err := parseDate("from", from)
	if err != nil {
		return app.SimulationRequest{}, err
	}
	end, err := parseDate("to", to)
	if err != nil {
		return app.SimulationRequest{}, err
	}
	if !start.IsZero() && !end.IsZero() && !end.After(start) {
		return app.SimulationRequest{}, fmt.Errorf("end date must be after start date")
	}
	return app.SimulationRequest{Profile: profile, Start: start, End: end}, nil
}

func runBacktest(cmd *cobra.Command, args []string) error {
	req, err := simulationRequest(backtestProfile, backtestFrom, backtestTo)
	if err != nil {
		return err
	}
	req.Policy = backtestPolicy
	req.InitialCapital = backtestCapital

	a, log, cleanup, err := loadApp()
	if err != nil {
		return err
	}
	defer cleanup()
	ctx, stop := commandContext(a, log)
	defer stop()

	result, err := a.Backtest(ctx, req)
	if err != nil && !errors.Is(err, core.ErrInsufficientSample) {
		return err
	}
	printResult(result)
	if err != nil {
		fmt.Println()
		fmt.Println("Too few returns for statistics:", err)
	}
	return nil
}

func printResult(r *backtest.Result) {
	fmt.Println("=== APORTE Backtest ===")
	fmt.Printf("Policy:  %s\n", r.Policy)
	fmt.Printf("Period:  %s to %s\n", r.StartDate.Format("2006-01-02"), r.EndDate.Format("2006-01-02"))
	if r.StoppedEarly {
		fmt.Println("Stopped early: drawdown limit reached")
	}
	fmt.Println()

	s := r.Stats
	fmt.Printf("Final value:       %14.2f\n", r.FinalValue)
	fmt.Printf("Cumulative return: %14s\n", percent(s.CumulativeReturn))
	fmt.Printf("Annual return:     %14s\n", percent(s.AnnualReturn))
	fmt.Printf("Volatility:        %14s\n", percent(s.Volatility))
	fmt.Printf("Max drawdown:      %14s\n", percent(s.MaxDrawdown))
	fmt.Printf("VaR:               %14s\n", percent(s.VaR))
	fmt.Printf("CVaR:              %14s\n", percent(s.CVaR))
	fmt.Printf("Sharpe:            %14s\n", ratio(s.Sharpe))
	fmt.Printf("Sortino:           %14s\n", ratio(s.Sortino))
	fmt.Printf("Calmar:            %14s\n", ratio(s.Calmar))
	fmt.Printf("Beta:              %14s\n", ratio(s.Beta))
	fmt.Printf("Stress impact:     %14s\n", percent(s.Stress.Impact))
	fmt.Printf("Trades:            %14d\n", r.Trades)
	fmt.Printf("Costs:             %14.2f\n", r.Costs)
}

func percent(v float64) string {
	return fmt.Sprintf("%.2f%%", v*100)
}

func ratio(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "undefined"
	}
	return fmt.Sprintf("%.2f", v)
}
