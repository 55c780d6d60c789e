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

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	presetConnectionID string
	presetOwner        string
	presetRepo         string
	presetBranch       string
	presetDirectory    string
)

var presetCmd = &cobra.Command{
	Use:   "preset",
	Short: "Calculate a repository's build preset",
	RunE: func(c *cobra.Command, args []string) error {
		a, err := loadApp(cfgFile)
		if err != nil {
			return err
		}
		connectionID, err := uuid.Parse(presetConnectionID)
		if err != nil {
			return fmt.Errorf("invalid connection id: %w", err)
		}
		result, err := a.gitMgr.CalculateRepositoryPreset(context.Background(), connectionID, presetOwner, presetRepo, presetBranch, presetDirectory)
		if err != nil {
			return err
		}
		fmt.Printf("%s: %s (%s)", result.Path, result.Preset, result.PresetLabel)
		if result.ExposedPort != nil {
			fmt.Printf(", exposed port %d", *result.ExposedPort)
		}
		fmt.Println()
		return nil
	},
}

func init() {
	presetCmd.Flags().StringVar(&presetConnectionID, "connection", "", "git provider connection id")
	presetCmd.Flags().StringVar(&presetOwner, "owner", "", "repository owner")
	presetCmd.Flags().StringVar(&presetRepo, "repo", "", "repository name")
	presetCmd.Flags().StringVar(&presetBranch, "branch", "main", "branch to inspect")
	presetCmd.Flags().StringVar(&presetDirectory, "directory", ".", "subdirectory to inspect")
	_ = presetCmd.MarkFlagRequired("connection")
	_ = presetCmd.MarkFlagRequired("owner")
	_ = presetCmd.MarkFlagRequired("repo")
}
