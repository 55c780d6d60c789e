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
	"strings"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/temps-platform/control-plane/services"
	"github.com/temps-platform/control-plane/store"
)

var serviceCmd = &cobra.Command{
	Use:   "service",
	Short: "Manage external services (Postgres/Redis/S3)",
}

var (
	serviceName       string
	serviceType       string
	serviceVersion    string
	serviceParamPairs []string
)

var serviceCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create and initialize a new external service",
	RunE: func(c *cobra.Command, args []string) error {
		a, err := loadApp(cfgFile)
		if err != nil {
			return err
		}
		params, err := parseParamPairs(serviceParamPairs)
		if err != nil {
			return err
		}
		svc, err := a.services.CreateService(context.Background(), services.CreateRequest{
			Name:        serviceName,
			ServiceType: store.ServiceType(serviceType),
			Version:     serviceVersion,
			Parameters:  params,
		})
		if err != nil {
			return err
		}
		fmt.Printf("created service %s (status %s)\n", svc.ID, svc.Status)
		return nil
	},
}

var serviceStartCmd = &cobra.Command{Use: "start <id>", Args: cobra.ExactArgs(1), RunE: serviceLifecycleRunE(func(a *app, ctx context.Context, id uuid.UUID) error {
	return a.services.StartService(ctx, id)
})}

var serviceStopCmd = &cobra.Command{Use: "stop <id>", Args: cobra.ExactArgs(1), RunE: serviceLifecycleRunE(func(a *app, ctx context.Context, id uuid.UUID) error {
	return a.services.StopService(ctx, id)
})}

var serviceDeleteCmd = &cobra.Command{Use: "delete <id>", Args: cobra.ExactArgs(1), RunE: serviceLifecycleRunE(func(a *app, ctx context.Context, id uuid.UUID) error {
	return a.services.DeleteService(ctx, id)
})}

func serviceLifecycleRunE(fn func(a *app, ctx context.Context, id uuid.UUID) error) func(*cobra.Command, []string) error {
	return func(c *cobra.Command, args []string) error {
		a, err := loadApp(cfgFile)
		if err != nil {
			return err
		}
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid service id: %w", err)
		}
		if err := fn(a, context.Background(), id); err != nil {
			return err
		}
		fmt.Println("ok")
		return nil
	}
}

var (
	linkServiceID string
	linkProjectID string
)

var serviceLinkCmd = &cobra.Command{
	Use:   "link",
	Short: "Attach a service to a project",
	RunE: func(c *cobra.Command, args []string) error {
		a, err := loadApp(cfgFile)
		if err != nil {
			return err
		}
		serviceID, err := uuid.Parse(linkServiceID)
		if err != nil {
			return fmt.Errorf("invalid service id: %w", err)
		}
		projectID, err := uuid.Parse(linkProjectID)
		if err != nil {
			return fmt.Errorf("invalid project id: %w", err)
		}
		if err := a.services.LinkServiceToProject(context.Background(), serviceID, projectID); err != nil {
			return err
		}
		fmt.Println("linked")
		return nil
	},
}

var serviceUnlinkCmd = &cobra.Command{
	Use:   "unlink",
	Short: "Detach a service from a project",
	RunE: func(c *cobra.Command, args []string) error {
		a, err := loadApp(cfgFile)
		if err != nil {
			return err
		}
		serviceID, err := uuid.Parse(linkServiceID)
		if err != nil {
			return fmt.Errorf("invalid service id: %w", err)
		}
		projectID, err := uuid.Parse(linkProjectID)
		if err != nil {
			return fmt.Errorf("invalid project id: %w", err)
		}
		if err := a.services.UnlinkServiceFromProject(context.Background(), serviceID, projectID); err != nil {
			return err
		}
		fmt.Println("unlinked")
		return nil
	},
}

var serviceListProjectsCmd = &cobra.Command{
	Use:   "list-projects <service-id>",
	Short: "List the projects a service is linked to",
	Args:  cobra.ExactArgs(1),
	RunE: func(c *cobra.Command, args []string) error {
		a, err := loadApp(cfgFile)
		if err != nil {
			return err
		}
		serviceID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid service id: %w", err)
		}
		projects, err := a.services.ListServiceProjects(context.Background(), serviceID)
		if err != nil {
			return err
		}
		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"ID", "Slug", "Name"})
		for _, p := range projects {
			t.AppendRow(table.Row{p.ID, p.Slug, p.Name})
		}
		t.Render()
		return nil
	},
}

var projectListServicesCmd = &cobra.Command{
	Use:   "list-services <project-id>",
	Short: "List the services linked to a project",
	Args:  cobra.ExactArgs(1),
	RunE: func(c *cobra.Command, args []string) error {
		a, err := loadApp(cfgFile)
		if err != nil {
			return err
		}
		projectID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid project id: %w", err)
		}
		svcs, err := a.services.ListProjectServices(context.Background(), projectID)
		if err != nil {
			return err
		}
		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"ID", "Slug", "Name", "Type", "Status"})
		for _, s := range svcs {
			t.AppendRow(table.Row{s.ID, s.Slug, s.Name, s.ServiceType, s.Status})
		}
		t.Render()
		return nil
	},
}

// parseParamPairs turns repeated --param key=value flags into a map.
func parseParamPairs(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --param %q, expected key=value", p)
		}
		out[k] = v
	}
	return out, nil
}

func init() {
	serviceCreateCmd.Flags().StringVar(&serviceName, "name", "", "service name")
	serviceCreateCmd.Flags().StringVar(&serviceType, "type", "", "service type (postgres, redis, s3)")
	serviceCreateCmd.Flags().StringVar(&serviceVersion, "version", "", "service version")
	serviceCreateCmd.Flags().StringArrayVar(&serviceParamPairs, "param", nil, "service parameter as key=value, repeatable")
	_ = serviceCreateCmd.MarkFlagRequired("name")
	_ = serviceCreateCmd.MarkFlagRequired("type")

	serviceLinkCmd.Flags().StringVar(&linkServiceID, "service", "", "service id")
	serviceLinkCmd.Flags().StringVar(&linkProjectID, "project", "", "project id")
	_ = serviceLinkCmd.MarkFlagRequired("service")
	_ = serviceLinkCmd.MarkFlagRequired("project")

	serviceUnlinkCmd.Flags().StringVar(&linkServiceID, "service", "", "service id")
	serviceUnlinkCmd.Flags().StringVar(&linkProjectID, "project", "", "project id")
	_ = serviceUnlinkCmd.MarkFlagRequired("service")
	_ = serviceUnlinkCmd.MarkFlagRequired("project")

	serviceCmd.AddCommand(serviceCreateCmd, serviceStartCmd, serviceStopCmd, serviceDeleteCmd,
		serviceLinkCmd, serviceUnlinkCmd, serviceListProjectsCmd)
	projectCmd.AddCommand(projectListServicesCmd)
}
