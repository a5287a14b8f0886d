package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	trainProfile  string
	trainEpisodes int
	trainFrom     string
	trainTo       string
	trainResume   bool
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train the RL policy of a profile",
	Long:  "Train a Q-learning agent over historical data and store its checkpoint for rl_assisted decisions",
	RunE:  runTrain,
}

func init() {
	trainCmd.Flags().StringVar(&trainProfile, "profile", "", "risk profile name (required)")
	trainCmd.Flags().IntVar(&trainEpisodes, "episodes", 0, "training episodes (default from config)")
	trainCmd.Flags().StringVar(&trainFrom, "from", "", "start date YYYY-MM-DD (default from config)")
	trainCmd.Flags().StringVar(&trainTo, "to", "", "end date YYYY-MM-DD (default from config)")
	trainCmd.Flags().BoolVar(&trainResume, "resume", false, "continue from the stored checkpoint when present")

	trainCmd.MarkFlagRequired("profile")

	rootCmd.AddCommand(trainCmd)
}

func runTrain(cmd *cobra.Command, args []string) error {
	req, err := simulationRequest(trainProfile, trainFrom, trainTo)
	if err != nil {
		return err
	}
	req.Episodes = trainEpisodes
	req.Resume = trainResume

	a, log, cleanup, err := loadApp()
	if err != nil {
		return err
	}
	defer cleanup()
	ctx, stop := commandContext(a, log)
	defer stop()

	report, err := a.Train(ctx, req)
	if err != nil {
		return err
	}

	fmt.Println("=== APORTE Training ===")
	fmt.Printf("Profile:       %s\n", trainProfile)
	fmt.Printf("Episodes:      %d\n", report.Episodes)
	fmt.Printf("Steps:         %d\n", report.Steps)
	fmt.Printf("Best episode:  %d (reward %.4f)\n", report.BestEpisode, report.BestReward)
	fmt.Printf("Mean loss:     %.6f\n", report.MeanLoss)
	fmt.Printf("Final epsilon: %.3f\n", report.FinalEpsilon)
	fmt.Printf("Duration:      %s\n", report.Duration)
	return nil
}
