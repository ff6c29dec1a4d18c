package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"ensm/internal/logging"
	"ensm/internal/stats"
	"ensm/pkg/ensm"
)

var version = "0.1.0-dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:   "ensmctl",
		Short: "Co-evolve strategies and norms over a games network",
		Long: `ensmctl runs replicator dynamics over a network of normal-form games.

Every sub-population evolves a mixed strategy per coordination context and
norm until the action frequencies stay within the stability margin for
enough consecutive generations, or the generation budget runs out.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	root.PersistentFlags().Bool("json", false, "Output as JSON")
	root.PersistentFlags().String("log-level", "warn", "log level: debug|info|warn|error")
	root.PersistentFlags().String("log-format", "text", "log format: text|json")

	root.AddCommand(
		newVersionCmd(),
		newRunCmd(),
		newValidateCmd(),
		newNetworkCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), map[string]string{"version": version})
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "ensmctl version %s\n", version)
			return err
		},
	}
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Evolve a population until it converges or times out",
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			maxGenerations, _ := cmd.Flags().GetInt("max-generations")
			workers, _ := cmd.Flags().GetInt("workers")
			jsonOut, _ := cmd.Flags().GetBool("json")

			client, err := newClient(cmd)
			if err != nil {
				return err
			}
			summary, err := client.Run(cmd.Context(), ensm.RunRequest{
				ConfigPath:     configPath,
				MaxGenerations: maxGenerations,
				Workers:        workers,
			})
			if err != nil {
				return err
			}
			if jsonOut {
				return stats.WriteJSON(cmd.OutOrStdout(), summary.Report)
			}
			return stats.WriteText(cmd.OutOrStdout(), summary.Report)
		},
	}
	cmd.Flags().String("config", "", "path to the YAML simulation config")
	cmd.Flags().Int("max-generations", 0, "override maxGenerations from the config")
	cmd.Flags().Int("workers", 0, "override the number of sub-populations evolved in parallel")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a config by building its network, norms and population",
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			jsonOut, _ := cmd.Flags().GetBool("json")

			client, err := newClient(cmd)
			if err != nil {
				return err
			}
			summary, err := client.Validate(ensm.RunRequest{ConfigPath: configPath})
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), summary)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(),
				"ok games=%d dependencies=%d contexts=%d joint_contexts=%d norms=%d sub_populations=%d\n",
				summary.Games, summary.Dependencies, summary.Contexts, summary.JointContexts,
				summary.Norms, summary.SubPopulations)
			return err
		},
	}
	cmd.Flags().String("config", "", "path to the YAML simulation config")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}

func newNetworkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "network",
		Short: "Print the coordination contexts and dependencies of the games network",
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			jsonOut, _ := cmd.Flags().GetBool("json")

			client, err := newClient(cmd)
			if err != nil {
				return err
			}
			summary, err := client.Network(ensm.RunRequest{ConfigPath: configPath})
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), summary)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "contexts:")
			for _, item := range summary.Contexts {
				kind := "base"
				if item.Joint {
					kind = "joint"
				}
				fmt.Fprintf(out, "  %s [%s] actions=%v roles=%v\n", item.Context, kind, item.Actions, item.Roles)
			}
			fmt.Fprintln(out, "dependencies:")
			for _, dep := range summary.Dependencies {
				fmt.Fprintf(out, "  %s <-> %s\n", dep.From, dep.To)
			}
			return nil
		},
	}
	cmd.Flags().String("config", "", "path to the YAML simulation config")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}

func newClient(cmd *cobra.Command) (*ensm.Client, error) {
	level, _ := cmd.Flags().GetString("log-level")
	format, _ := cmd.Flags().GetString("log-format")
	logger, err := logging.NewFormatLogger(format, level, cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}
	return ensm.New(ensm.Options{Logger: logger}), nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
