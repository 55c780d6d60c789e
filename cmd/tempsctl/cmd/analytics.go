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
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	timelineProjectID int
	timelineStart     string
	timelineEnd       string
)

var analyticsCmd = &cobra.Command{
	Use:   "analytics",
	Short: "Query the analytic database",
}

var analyticsTimelineCmd = &cobra.Command{
	Use:   "timeline",
	Short: "Print the auto-bucketed visits timeline for a project",
	RunE: func(c *cobra.Command, args []string) error {
		a, err := loadApp(cfgFile)
		if err != nil {
			return err
		}
		engine, err := a.analyticsEngine()
		if err != nil {
			return err
		}
		start, err := time.Parse(time.RFC3339, timelineStart)
		if err != nil {
			return fmt.Errorf("invalid --start: %w", err)
		}
		end, err := time.Parse(time.RFC3339, timelineEnd)
		if err != nil {
			return fmt.Errorf("invalid --end: %w", err)
		}
		buckets, err := engine.GetVisitsTimeline(context.Background(), timelineProjectID, nil, start, end)
		if err != nil {
			return err
		}
		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Bucket", "Visits", "Events", "Unique visitors"})
		for _, b := range buckets {
			t.AppendRow(table.Row{b.Timestamp.Format(time.RFC3339), b.Visits, b.Events, b.UniqueVisitors})
		}
		t.Render()
		return nil
	},
}

func init() {
	analyticsTimelineCmd.Flags().IntVar(&timelineProjectID, "project", 0, "analytic-database project id")
	analyticsTimelineCmd.Flags().StringVar(&timelineStart, "start", "", "RFC3339 range start")
	analyticsTimelineCmd.Flags().StringVar(&timelineEnd, "end", "", "RFC3339 range end")
	_ = analyticsTimelineCmd.MarkFlagRequired("project")
	_ = analyticsTimelineCmd.MarkFlagRequired("start")
	_ = analyticsTimelineCmd.MarkFlagRequired("end")

	analyticsCmd.AddCommand(analyticsTimelineCmd)
}
