package cli

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/kolah/mcpforge/internal/config"
	"github.com/kolah/mcpforge/internal/emit"
	"github.com/kolah/mcpforge/internal/loader"
	"github.com/kolah/mcpforge/internal/pipeline"
	"github.com/spf13/cobra"
)

func GenerateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate an MCP server from an OpenAPI specification",
		Args:  cobra.NoArgs,
		RunE:  runGenerate,
	}

	config.BindFlags(cmd)

	return cmd
}

func runGenerate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cmd)
	if err != nil {
		return err
	}

	plan, result, err := buildPlan(cmd, cfg)
	if err != nil {
		return err
	}

	gen, err := emit.New(cfg.EmitSettings(Version))
	if err != nil {
		return fmt.Errorf("creating generator: %w", err)
	}

	outputs, err := gen.Generate(plan, result.RawData)
	if err != nil {
		return fmt.Errorf("generating server: %w", err)
	}

	dryRun, _ := cmd.Flags().GetBool("dry-run")
	if dryRun {
		for _, out := range outputs {
			cmd.Printf("// %s\n%s\n", out.Filename, out.Content)
		}
		return nil
	}

	if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	for _, out := range outputs {
		path := filepath.Join(cfg.OutputDir, out.Filename)
		if err := os.WriteFile(path, []byte(out.Content), 0644); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
		cmd.PrintErrf("Written: %s\n", path)
	}

	return nil
}

// buildPlan loads the configured document and runs the generation core.
// Loader and configuration warnings are printed, not returned.
func buildPlan(cmd *cobra.Command, cfg *config.Config) (*pipeline.Plan, *loader.Result, error) {
	result, err := loader.LoadFile(cfg.Spec)
	if err != nil {
		return nil, nil, fmt.Errorf("loading spec: %w", err)
	}

	for _, w := range result.Warnings {
		cmd.PrintErrf("Warning: %s\n", w)
	}
	for _, reason := range result.Validate() {
		cmd.PrintErrf("Warning: document validation: %s\n", reason)
	}

	spec, err := loader.Transform(result)
	if err != nil {
		return nil, nil, fmt.Errorf("transforming spec: %w", err)
	}

	cmd.PrintErrf("Loaded OpenAPI %s: %s v%s\n", result.Version, spec.Info.Title, spec.Info.Version)
	cmd.PrintErrf("  Operations: %d\n", len(spec.Operations))

	plan, err := pipeline.Build(spec, cfg.PipelineOptions())
	if err != nil {
		return nil, nil, err
	}

	for _, w := range plan.Warnings.Strings() {
		cmd.PrintErrf("Warning: %s\n", w)
	}
	for _, m := range plan.Modules {
		slog.Debug("module", "name", m.Name, "tag", m.Tag, "tools", len(m.Tools), "resources", len(m.Resources), "scopes", m.RequiredScopes)
	}
	cmd.PrintErrf("  Modules: %d\n", len(plan.Modules))
	cmd.PrintErrf("  Tools: %d\n", len(plan.Tools()))
	if plan.Auth.AuthenticationEnabled() {
		cmd.PrintErrf("  Auth: %v (event store enabled)\n", plan.Auth.SchemeNames())
	}

	return plan, result, nil
}
