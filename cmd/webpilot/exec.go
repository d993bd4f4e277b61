package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rahul/webpilot/internal/agent"
	"github.com/rahul/webpilot/internal/engine"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newExecCmd(a *app) *cobra.Command {
	var (
		planFile string
		queryID  string
	)
	cmd := &cobra.Command{
		Use:   "exec",
		Short: "Execute a plan file without asking for a plan.",
		RunE: func(cmd *cobra.Command, args []string) error {
			plan, err := loadPlan(planFile)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			eng, err := a.engine(cmd.Context(), engine.WithPublisher(console(out)))
			if err != nil {
				return err
			}
			defer eng.Close(cmd.Context())

			rec, err := eng.ExecutePlan(cmd.Context(), queryID, plan)
			if rec != nil {
				printResult(out, rec)
			}
			return err
		},
	}
	cmd.Flags().StringVarP(&planFile, "plan", "p", "", "plan file (.yaml, .yml or .json)")
	cmd.Flags().StringVar(&queryID, "id", "", "query id (default: a new UUID)")
	_ = cmd.MarkFlagRequired("plan")
	return cmd
}

// loadPlan reads a plan in YAML or JSON. JSON goes through the same
// validation as a planner response.
func loadPlan(path string) (*agent.Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan: %w", err)
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return agent.ParsePlan(data)
	}

	var plan agent.Plan
	if err := yaml.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("failed to parse plan: %w", err)
	}
	if plan.Goto == "" {
		return nil, errors.New("plan has no goto")
	}
	if plan.VisionOnly == nil {
		plan.VisionOnly = []string{}
	}
	return &plan, nil
}
