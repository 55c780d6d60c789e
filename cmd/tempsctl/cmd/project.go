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

	"github.com/temps-platform/control-plane/project"
	"github.com/temps-platform/control-plane/store"
)

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Manage projects",
}

var (
	projectName       string
	projectDirectory  string
	projectMainBranch string
	projectPreset     string
)

var projectCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new project",
	RunE: func(c *cobra.Command, args []string) error {
		a, err := loadApp(cfgFile)
		if err != nil {
			return err
		}
		p, err := a.project.Create(context.Background(), project.CreateRequest{
			Name:       projectName,
			Directory:  projectDirectory,
			MainBranch: projectMainBranch,
			Preset:     store.Preset(projectPreset),
		})
		if err != nil {
			return err
		}
		fmt.Printf("created project %s (slug %s)\n", p.ID, p.Slug)
		return nil
	},
}

var projectListCmd = &cobra.Command{
	Use:   "list",
	Short: "List projects",
	RunE: func(c *cobra.Command, args []string) error {
		a, err := loadApp(cfgFile)
		if err != nil {
			return err
		}
		projects, err := a.store.ListProjects(context.Background())
		if err != nil {
			return err
		}
		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"ID", "Slug", "Name", "Preset", "Branch"})
		for _, p := range projects {
			t.AppendRow(table.Row{p.ID, p.Slug, p.Name, p.Preset, p.MainBranch})
		}
		t.Render()
		return nil
	},
}

var (
	triggerProjectID     string
	triggerEnvironmentID string
	triggerBranch        string
	triggerTag           string
	triggerCommit        string
)

var projectTriggerCmd = &cobra.Command{
	Use:   "trigger",
	Short: "Trigger a deployment pipeline for a project environment",
	RunE: func(c *cobra.Command, args []string) error {
		a, err := loadApp(cfgFile)
		if err != nil {
			return err
		}
		projectID, err := uuid.Parse(triggerProjectID)
		if err != nil {
			return fmt.Errorf("invalid project id: %w", err)
		}
		environmentID, err := uuid.Parse(triggerEnvironmentID)
		if err != nil {
			return fmt.Errorf("invalid environment id: %w", err)
		}
		err = a.project.TriggerPipeline(context.Background(), project.TriggerRequest{
			ProjectID:     projectID,
			EnvironmentID: environmentID,
			Branch:        triggerBranch,
			Tag:           triggerTag,
			Commit:        triggerCommit,
		})
		if err != nil {
			return err
		}
		fmt.Println("pipeline triggered")
		return nil
	},
}

func init() {
	projectCreateCmd.Flags().StringVar(&projectName, "name", "", "project name")
	projectCreateCmd.Flags().StringVar(&projectDirectory, "directory", ".", "repository subdirectory")
	projectCreateCmd.Flags().StringVar(&projectMainBranch, "main-branch", "main", "main branch")
	projectCreateCmd.Flags().StringVar(&projectPreset, "preset", string(store.PresetStatic), "preset (static, nextjs, docker, nixpacks)")
	_ = projectCreateCmd.MarkFlagRequired("name")

	projectTriggerCmd.Flags().StringVar(&triggerProjectID, "project", "", "project id")
	projectTriggerCmd.Flags().StringVar(&triggerEnvironmentID, "environment", "", "environment id")
	projectTriggerCmd.Flags().StringVar(&triggerBranch, "branch", "", "branch to deploy")
	projectTriggerCmd.Flags().StringVar(&triggerTag, "tag", "", "tag to deploy")
	projectTriggerCmd.Flags().StringVar(&triggerCommit, "commit", "", "commit sha to deploy")
	_ = projectTriggerCmd.MarkFlagRequired("project")
	_ = projectTriggerCmd.MarkFlagRequired("environment")

	projectCmd.AddCommand(projectCreateCmd, projectListCmd, projectTriggerCmd)
}
