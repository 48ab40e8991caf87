package cli

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Version is stamped at build time with -ldflags "-X".
var Version = "dev"

func RootCmd() *cobra.Command {
	var verbose bool

	root := &cobra.Command{
		Use:           "mcpforge",
		Short:         "mcpforge - generate MCP servers from OpenAPI documents",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,

		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelWarn
			if verbose {
				level = slog.LevelDebug
			}
			handler := slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})
			slog.SetDefault(slog.New(handler))
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	root.SetErr(os.Stderr)

	root.AddCommand(GenerateCommand(), PlanCommand())

	return root
}
