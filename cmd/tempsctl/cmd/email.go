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

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/temps-platform/control-plane/email"
)

var emailCmd = &cobra.Command{
	Use:   "email",
	Short: "Transactional email domain helpers",
}

var (
	identityDomain       string
	identitySelector     string
	identityDKIMKey      string
	identityDMARCAddress string
)

var emailIdentityCmd = &cobra.Command{
	Use:   "identity",
	Short: "Print the DNS records a domain needs for SPF/DKIM/DMARC",
	RunE: func(c *cobra.Command, args []string) error {
		identity, err := email.GenerateDomainIdentity(identityDomain, identitySelector, identityDKIMKey, identityDMARCAddress)
		if err != nil {
			return err
		}
		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Type", "Name", "Value", "Status"})
		for _, rec := range identity.Records() {
			t.AppendRow(table.Row{rec.Type, rec.Name, rec.Value, rec.Status})
		}
		t.Render()
		if !identity.AllVerified() {
			fmt.Println("add the records above at your DNS provider, then re-run verification")
		}
		return nil
	},
}

func init() {
	emailIdentityCmd.Flags().StringVar(&identityDomain, "domain", "", "domain to generate records for")
	emailIdentityCmd.Flags().StringVar(&identitySelector, "selector", "", "DKIM selector (defaults to \"temps\")")
	emailIdentityCmd.Flags().StringVar(&identityDKIMKey, "dkim-public-key", "", "DKIM public key")
	emailIdentityCmd.Flags().StringVar(&identityDMARCAddress, "dmarc-rua", "", "DMARC aggregate report email address")
	_ = emailIdentityCmd.MarkFlagRequired("domain")
	_ = emailIdentityCmd.MarkFlagRequired("dkim-public-key")

	emailCmd.AddCommand(emailIdentityCmd)
}
