// Copyright 2025 AUTHORS
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cli

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/vu-ase/roverd/pkg/cmdutil"
)

// hostValue is a pflag.Value that resolves its default from
// ROVERCTL_HOST, then falls back to a fixed default, before any
// explicit --host flag overrides it, mirroring the teacher's own
// CATCH_HOST environment override for its default --host flag.
type hostValue struct{ value *string }

var _ pflag.Value = hostValue{}

func (h hostValue) Set(s string) error { *h.value = s; return nil }
func (h hostValue) Type() string       { return "string" }
func (h hostValue) String() string     { return *h.value }

// RootCmd builds the roverctl command tree. Unlike the teacher's CLI,
// which forwards a command line verbatim to a remote shell, every
// subcommand here performs its own HTTP round trip against roverd's
// API and renders the JSON response for a human.
func RootCmd(name, version string) *cobra.Command {
	host := "http://127.0.0.1"
	if env := os.Getenv("ROVERCTL_HOST"); env != "" {
		host = env
	}
	var username, password string

	root := &cobra.Command{
		Use:           name,
		Short:         name + " controls a rover's pipeline-supervisor daemon",
		SilenceUsage:  true,
		SilenceErrors: false,
		Version:       version,
	}
	root.PersistentFlags().Var(hostValue{&host}, "host", "roverd base URL (env ROVERCTL_HOST)")
	root.PersistentFlags().StringVar(&username, "username", "rover", "HTTP Basic username")
	root.PersistentFlags().StringVar(&password, "password", "", "HTTP Basic password")

	client := func() *Client {
		return NewClient(strings.TrimRight(host, "/"), username, password)
	}

	root.AddCommand(
		statusCmd(client),
		servicesCmd(client),
		pipelineCmd(client),
		logsCmd(client),
		sourcesCmd(client),
		updateCmd(client),
		shutdownCmd(client),
	)
	return root
}

func printErr(cmd *cobra.Command, err error) error {
	if apiErr, ok := err.(*APIError); ok {
		color.New(color.FgRed).Fprintf(cmd.ErrOrStderr(), "error: %s\n", apiErr.Message)
		return fmt.Errorf("%s", apiErr.Code)
	}
	return err
}

func statusCmd(client func() *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "show the daemon's health, identity and resource usage",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := client().Status(cmd.Context())
			if err != nil {
				return printErr(cmd, err)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 2, 2, ' ', 0)
			statusColor := color.New(color.FgGreen).SprintFunc()
			if s.Status != "operational" {
				statusColor = color.New(color.FgYellow).SprintFunc()
			}
			fmt.Fprintf(w, "rover:\t%s (#%d)\n", s.RoverName, s.RoverID)
			fmt.Fprintf(w, "status:\t%s\n", statusColor(s.Status))
			if s.Message != "" {
				fmt.Fprintf(w, "message:\t%s\n", s.Message)
			}
			fmt.Fprintf(w, "version:\t%s\n", s.Version)
			fmt.Fprintf(w, "uptime:\t%.0fs\n", s.UptimeS)
			fmt.Fprintf(w, "os:\t%s\n", s.OS)
			fmt.Fprintf(w, "cpu:\t%.1f%%\n", s.CPUPercent)
			fmt.Fprintf(w, "memory:\t%.0f/%.0f MB\n", s.MemUsedMB, s.MemTotalMB)
			fmt.Fprintf(w, "system time:\t%s\n", s.SystemTime)
			return w.Flush()
		},
	}
}

func servicesCmd(client func() *Client) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "services",
		Short: "inspect and manage the installed service catalog",
	}
	cmd.AddCommand(
		servicesListCmd(client),
		servicesShowCmd(client),
		servicesBuildCmd(client),
		servicesDeleteCmd(client),
		servicesUploadCmd(client),
		servicesFetchCmd(client),
	)
	return cmd
}

// servicesListCmd lists authors, services under an author, or versions
// under a service, depending on how many positional arguments are
// given — mirroring the three-level GET /services hierarchy of
// section 6 in a single command.
func servicesListCmd(client func() *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "list [author] [name]",
		Short: "list authors, services or versions in the catalog",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client()
			var (
				items []string
				err   error
			)
			switch len(args) {
			case 0:
				items, err = c.ListAuthors(cmd.Context())
			case 1:
				items, err = c.ListServices(cmd.Context(), args[0])
			default:
				items, err = c.ListVersions(cmd.Context(), args[0], args[1])
			}
			if err != nil {
				return printErr(cmd, err)
			}
			for _, item := range items {
				fmt.Fprintln(cmd.OutOrStdout(), item)
			}
			return nil
		},
	}
}

func servicesShowCmd(client func() *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "show <author> <name> <version>",
		Short: "print a service's manifest",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := client().GetManifest(cmd.Context(), args[0], args[1], args[2])
			if err != nil {
				return printErr(cmd, err)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 2, 2, ' ', 0)
			fmt.Fprintf(w, "name:\t%s\n", m.Name)
			fmt.Fprintf(w, "author:\t%s\n", m.Author)
			fmt.Fprintf(w, "source:\t%s\n", m.Source)
			fmt.Fprintf(w, "version:\t%s\n", m.Version)
			fmt.Fprintf(w, "run:\t%s\n", m.Commands.Run)
			if m.Commands.Build != "" {
				fmt.Fprintf(w, "build:\t%s\n", m.Commands.Build)
			}
			if m.BuiltAt != "" {
				fmt.Fprintf(w, "built at:\t%s\n", m.BuiltAt)
			}
			return w.Flush()
		},
	}
}

func servicesBuildCmd(client func() *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "build <author> <name> <version>",
		Short: "run a service's build command",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := client().Build(cmd.Context(), args[0], args[1], args[2]); err != nil {
				return printErr(cmd, err)
			}
			color.New(color.FgGreen).Fprintln(cmd.OutOrStdout(), "build succeeded")
			return nil
		},
	}
}

func servicesDeleteCmd(client func() *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <author> <name> <version>",
		Short: "remove a service version from the catalog",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ok, err := cmdutil.Confirm(cmd.InOrStdin(), cmd.OutOrStdout(),
				fmt.Sprintf("Are you sure you want to remove service %s/%s@%s?", args[0], args[1], args[2]))
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "aborted")
				return nil
			}
			invalidated, err := client().DeleteService(cmd.Context(), args[0], args[1], args[2])
			if err != nil {
				return printErr(cmd, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "deleted")
			if invalidated {
				color.New(color.FgYellow).Fprintln(cmd.OutOrStdout(), "warning: the enabled pipeline referenced this service and was cleared")
			}
			return nil
		},
	}
}

func servicesUploadCmd(client func() *Client) *cobra.Command {
	var author, name, version string
	cmd := &cobra.Command{
		Use:   "upload <archive.tar.gz>",
		Short: "install a service from a local archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			if err := client().Upload(cmd.Context(), author, name, version, f); err != nil {
				return printErr(cmd, err)
			}
			color.New(color.FgGreen).Fprintln(cmd.OutOrStdout(), "uploaded")
			return nil
		},
	}
	cmd.Flags().StringVar(&author, "author", "", "service author (required)")
	cmd.Flags().StringVar(&name, "name", "", "service name (required)")
	cmd.Flags().StringVar(&version, "service-version", "", "service version (required)")
	cmd.MarkFlagRequired("author")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("service-version")
	return cmd
}

func servicesFetchCmd(client func() *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "fetch <url> <author> <name> <version>",
		Short: "download and install a service archive from a remote source",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := client().Fetch(cmd.Context(), args[0], args[1], args[2], args[3]); err != nil {
				return printErr(cmd, err)
			}
			color.New(color.FgGreen).Fprintln(cmd.OutOrStdout(), "fetched and installed")
			return nil
		},
	}
}

func pipelineCmd(client func() *Client) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pipeline",
		Short: "inspect and control the enabled pipeline",
	}
	cmd.AddCommand(
		pipelineGetCmd(client),
		pipelineSetCmd(client),
		pipelineStartCmd(client),
		pipelineStopCmd(client),
	)
	return cmd
}

func pipelineGetCmd(client func() *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "get",
		Short: "print the enabled pipeline and its runtime status",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := client().GetPipeline(cmd.Context())
			if err != nil {
				return printErr(cmd, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pipeline: %s\n", p.Status)
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 2, 2, ' ', 0)
			fmt.Fprintln(w, "AUTHOR\tNAME\tVERSION\tSTATUS\tFAULTS\tCPU%\tMEM MB")
			for _, svc := range p.Services {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%.1f\t%.1f\n",
					svc.Author, svc.Name, svc.Version, svc.Status, svc.Faults, svc.CPUPercent, svc.MemMB)
			}
			return w.Flush()
		},
	}
}

// pipelineSetCmd takes repeated author/name/version triples, e.g.
// `roverctl pipeline set vu-ase imaging 1.0.0 vu-ase driving 2.1.0`.
func pipelineSetCmd(client func() *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "set [author name version]...",
		Short: "replace the enabled pipeline with the given services",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args)%3 != 0 {
				return fmt.Errorf("arguments must be author/name/version triples")
			}
			refs := make([]ServiceRef, 0, len(args)/3)
			for i := 0; i < len(args); i += 3 {
				refs = append(refs, ServiceRef{Author: args[i], Name: args[i+1], Version: args[i+2]})
			}
			if err := client().SetPipeline(cmd.Context(), refs); err != nil {
				return printErr(cmd, err)
			}
			color.New(color.FgGreen).Fprintln(cmd.OutOrStdout(), "pipeline updated")
			return nil
		},
	}
}

func pipelineStartCmd(client func() *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "start every service in the enabled pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := client().StartPipeline(cmd.Context()); err != nil {
				return printErr(cmd, err)
			}
			color.New(color.FgGreen).Fprintln(cmd.OutOrStdout(), "started")
			return nil
		},
	}
}

func pipelineStopCmd(client func() *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "stop every running service in the enabled pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := client().StopPipeline(cmd.Context()); err != nil {
				return printErr(cmd, err)
			}
			color.New(color.FgGreen).Fprintln(cmd.OutOrStdout(), "stopped")
			return nil
		},
	}
}

func logsCmd(client func() *Client) *cobra.Command {
	var lines int
	cmd := &cobra.Command{
		Use:   "logs <author> <name> <version>",
		Short: "tail a service's log",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := client().Logs(cmd.Context(), args[0], args[1], args[2], lines)
			if err != nil {
				return printErr(cmd, err)
			}
			for _, line := range out {
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&lines, "lines", 100, "number of trailing lines to print")
	return cmd
}

func sourcesCmd(client func() *Client) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sources",
		Short: "manage remote catalog sources",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "list configured sources",
			RunE: func(cmd *cobra.Command, args []string) error {
				list, err := client().ListSources(cmd.Context())
				if err != nil {
					return printErr(cmd, err)
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 2, 2, ' ', 0)
				for _, src := range list {
					fmt.Fprintf(w, "%s\t%s\n", src.Name, src.URL)
				}
				return w.Flush()
			},
		},
		&cobra.Command{
			Use:   "add <name> <url>",
			Short: "register a remote catalog source",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := client().AddSource(cmd.Context(), args[0], args[1]); err != nil {
					return printErr(cmd, err)
				}
				color.New(color.FgGreen).Fprintln(cmd.OutOrStdout(), "added")
				return nil
			},
		},
		&cobra.Command{
			Use:   "remove <name>",
			Short: "remove a remote catalog source",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := client().DeleteSource(cmd.Context(), args[0]); err != nil {
					return printErr(cmd, err)
				}
				color.New(color.FgGreen).Fprintln(cmd.OutOrStdout(), "removed")
				return nil
			},
		},
	)
	return cmd
}

func updateCmd(client func() *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "update",
		Short: "trigger a self-update of the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := client().Update(cmd.Context()); err != nil {
				return printErr(cmd, err)
			}
			color.New(color.FgGreen).Fprintln(cmd.OutOrStdout(), "update triggered")
			return nil
		},
	}
}

func shutdownCmd(client func() *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "shutdown",
		Short: "request a graceful daemon shutdown",
		RunE: func(cmd *cobra.Command, args []string) error {
			ok, err := cmdutil.Confirm(cmd.InOrStdin(), cmd.OutOrStdout(), "Are you sure you want to shut down the rover daemon?")
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "aborted")
				return nil
			}
			if err := client().Shutdown(cmd.Context()); err != nil {
				return printErr(cmd, err)
			}
			color.New(color.FgGreen).Fprintln(cmd.OutOrStdout(), "shutdown requested")
			return nil
		},
	}
}
