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
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "tempsctl",
	Short: "Operator CLI for the control plane",
	Long:  "tempsctl drives project, git provider, and analytics operations directly against the control plane's service layer.",
}

// Execute runs the root command, exiting the process on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "/etc/temps/config.toml", "path to the control plane's TOML config file")

	rootCmd.AddCommand(projectCmd)
	rootCmd.AddCommand(serviceCmd)
	rootCmd.AddCommand(funnelCmd)
	rootCmd.AddCommand(emailCmd)
	rootCmd.AddCommand(presetCmd)
	rootCmd.AddCommand(analyticsCmd)
}
