// Copyright 2025 Cloudbase Solutions SRL
//
//    Licensed under the Apache License, Version 2.0 (the "License"); you may
//    not use this file except in compliance with the License. You may obtain
//    a copy of the License at
//
//         http://www.apache.org/licenses/LICENSE-2.0
//
//    Unless required by applicable law or agreed to in writing, software
//    distributed under the License is distributed on an "AS IS" BASIS, WITHOUT
//    WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied. See the
//    License for the specific language governing permissions and limitations
//    under the License.

package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/temps-platform/control-plane/funnel"
)

var funnelCmd = &cobra.Command{
	Use:   "funnel",
	Short: "Manage funnels and compute their metrics",
}

var (
	funnelProjectID string
	funnelName      string
	funnelSteps     []string
)

var funnelCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a funnel from an ordered list of event names",
	RunE: func(c *cobra.Command, args []string) error {
		a, err := loadApp(cfgFile)
		if err != nil {
			return err
		}
		projectID, err := uuid.Parse(funnelProjectID)
		if err != nil {
			return fmt.Errorf("invalid project id: %w", err)
		}
		steps := make([]funnel.StepInput, len(funnelSteps))
		for i, name := range funnelSteps {
			steps[i] = funnel.StepInput{EventName: name}
		}
		f, err := a.funnels.Create(context.Background(), funnel.CreateRequest{
			ProjectID: projectID,
			Name:      funnelName,
			Steps:     steps,
		})
		if err != nil {
			return err
		}
		fmt.Printf("created funnel %s with %d steps\n", f.ID, len(f.Steps))
		return nil
	},
}

var (
	metricsFunnelID      string
	metricsProjectNumber int
)

var funnelMetricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Compute a funnel's step-completion metrics",
	RunE: func(c *cobra.Command, args []string) error {
		a, err := loadApp(cfgFile)
		if err != nil {
			return err
		}
		funnelID, err := uuid.Parse(metricsFunnelID)
		if err != nil {
			return fmt.Errorf("invalid funnel id: %w", err)
		}
		metrics, err := a.funnels.ComputeMetrics(context.Background(), funnel.MetricsRequest{
			FunnelID:  funnelID,
			ProjectID: metricsProjectNumber,
		})
		if err != nil {
			return err
		}
		fmt.Printf("total entries: %d, overall conversion rate: %.2f%%\n", metrics.TotalEntries, metrics.OverallConversionRate)
		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Step", "Event", "Completions", "Conversion %", "Drop-off %", "Avg time (s)"})
		for _, step := range metrics.Steps {
			t.AppendRow(table.Row{step.StepOrder, step.EventName, step.Completions, step.ConversionRate, step.DropOffRate, step.AverageTimeToCompleteSeconds})
		}
		t.Render()
		return nil
	},
}

func init() {
	funnelCreateCmd.Flags().StringVar(&funnelProjectID, "project", "", "project id")
	funnelCreateCmd.Flags().StringVar(&funnelName, "name", "", "funnel name")
	funnelCreateCmd.Flags().StringSliceVar(&funnelSteps, "step", nil, "event name for a step, repeatable in order")
	_ = funnelCreateCmd.MarkFlagRequired("project")
	_ = funnelCreateCmd.MarkFlagRequired("name")
	_ = funnelCreateCmd.MarkFlagRequired("step")

	funnelMetricsCmd.Flags().StringVar(&metricsFunnelID, "funnel", "", "funnel id")
	funnelMetricsCmd.Flags().IntVar(&metricsProjectNumber, "project", 0, "analytic-database project id")
	_ = funnelMetricsCmd.MarkFlagRequired("funnel")
	_ = funnelMetricsCmd.MarkFlagRequired("project")

	funnelCmd.AddCommand(funnelCreateCmd, funnelMetricsCmd)
}
