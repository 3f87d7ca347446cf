package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/onehippo-forge/servlet-filter-decorators/internal/server"
	"github.com/onehippo-forge/servlet-filter-decorators/internal/version"
)

const defaultConfigPath = "decorators.server.yaml"

func Run(args []string) error {
	return RunWithOutput(args, os.Stdout)
}

func RunWithOutput(args []string, out io.Writer) error {
	root := newRootCmd(out)
	if len(args) > 0 && strings.HasPrefix(args[0], "-") && args[0] != "-h" && args[0] != "--help" {
		// flags only: default to `serve`
		args = append([]string{"serve"}, args...)
	}
	root.SetArgs(args)
	root.SetOut(out)
	return root.Execute()
}

func newRootCmd(out io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "decorators",
		Short:         "Host based context path decoration server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(
		newServeCmd(),
		newValidateCmd(out),
		newReloadCmd(),
		newVersionCmd(out),
	)
	return cmd
}

func newServeCmd() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the decorated application and admin servers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return server.Run(cfgPath)
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", defaultConfigPath, "config yaml path")
	return cmd
}

func newValidateCmd(out io.Writer) *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "validate [config]",
		Short: "Validate the config and the decorator records it points at",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// nginx-like: `decorators validate ./decorators.server.yaml`
			if len(args) == 1 && strings.TrimSpace(args[0]) != "" {
				cfgPath = strings.TrimSpace(args[0])
			}
			if err := server.Validate(cmd.Context(), cfgPath, out); err != nil {
				return err
			}
			fmt.Fprintln(out, "configuration ok")
			return nil
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", defaultConfigPath, "config yaml path")
	return cmd
}

func newReloadCmd() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "reload",
		Short: "Ask a running server to reload its decorator configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return server.SendReloadSignal(cfgPath)
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", defaultConfigPath, "config yaml path")
	return cmd
}

func newVersionCmd(out io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(out, version.Get())
			return nil
		},
	}
}
