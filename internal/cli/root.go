package cli

import (
	"context"
	"fmt"

	"annotation-xref/internal/config"
	"annotation-xref/internal/extractor"
	"annotation-xref/internal/library"
	"annotation-xref/internal/service"
	"annotation-xref/internal/tagger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const defaultConfigPath = "configs/config.yml"

func NewRootCommand(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "annotation-xref",
		Short: "Cross-reference Zotero annotations against Obsidian vaults",
		Long: `annotation-xref collects the keys of Zotero annotations, searches an
Obsidian vault for each key through the Local REST API, prints which notes
mention which annotations, and tags the Zotero items with what was found.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringP("config", "c", defaultConfigPath, "Path to the YAML config file")

	runCmd := &cobra.Command{
		Use:   "run [item-key|item-id ...]",
		Short: "Cross-reference the given Zotero items and tag them",
		RunE:  RunCrossReference,
	}
	runCmd.Flags().StringP("profile", "p", "", "Vault to search (default: default_profile)")
	runCmd.Flags().Bool("pick", false, "Choose the vault interactively")
	runCmd.Flags().StringSlice("items", nil, "Item keys or IDs (comma-separated), in addition to arguments")
	runCmd.Flags().StringP("output", "o", "", "Write the report to a file instead of stdout")
	runCmd.Flags().Bool("json", false, "Print the full result as JSON")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the cross-reference HTTP API",
		RunE:  RunServe,
	}
	serveCmd.Flags().String("host", "", "Address to listen on (default: server.host)")
	serveCmd.Flags().String("port", "", "Port to listen on (default: server.port)")

	profilesCmd := &cobra.Command{
		Use:   "profiles",
		Short: "List configured vaults",
		RunE:  RunProfiles,
	}

	initLibraryCmd := &cobra.Command{
		Use:   "init-library <path>",
		Short: "Create an empty Zotero-compatible library for testing",
		Args:  cobra.ExactArgs(1),
		RunE:  RunInitLibrary,
	}

	doctorCmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check the library and every configured vault",
		RunE:  RunDoctor,
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "annotation-xref %s\n", version)
		},
	}

	rootCmd.AddCommand(
		runCmd,
		serveCmd,
		profilesCmd,
		initLibraryCmd,
		doctorCmd,
		versionCmd,
	)

	return rootCmd
}

// loadEnv reads the config named by --config and builds the logger
func loadEnv(cmd *cobra.Command) (*config.Config, *zap.Logger, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read --config flag: %w", err)
	}

	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func openLibrary(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*library.Library, error) {
	if cfg.Library.Path == "" {
		return nil, fmt.Errorf("library.path is not configured")
	}
	return library.Open(ctx, cfg.Library.Path, library.AnnotationMode(cfg.Library.AnnotationMode), logger)
}

func newCrossReferencer(cfg *config.Config, lib *library.Library, logger *zap.Logger) *service.CrossReferencer {
	return service.NewCrossReferencer(
		cfg,
		lib,
		extractor.New(lib, logger),
		service.ObsidianResolvers(cfg, logger),
		tagger.New(lib, logger),
		logger,
	)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
