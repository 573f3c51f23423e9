package cli

import (
	"fmt"
	"os"

	"annotation-xref/internal/library"
	"annotation-xref/internal/obsidian"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func RunProfiles(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadEnv(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	def, _ := cfg.Resolve("")
	for _, name := range cfg.ProfileNames() {
		marker := " "
		if name == def.Name {
			marker = "*"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\t%s\n", marker, name, cfg.Profiles[name].BaseURL)
	}
	return nil
}

func RunInitLibrary(cmd *cobra.Command, args []string) error {
	path := args[0]
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		return err
	}
	defer logger.Sync()

	if err := library.Create(path, logger); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "created %s\n", path)
	return nil
}

func RunDoctor(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadEnv(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx := commandContext(cmd)
	out := cmd.OutOrStdout()
	problems := 0

	lib, err := openLibrary(ctx, cfg, logger)
	if err != nil {
		problems++
		fmt.Fprintf(out, "library   FAIL  %v\n", err)
	} else {
		fmt.Fprintf(out, "library   ok    %s (annotations: %s)\n", cfg.Library.Path, lib.AnnotationSourceName())
		lib.Close()
	}

	for _, name := range cfg.ProfileNames() {
		p := cfg.Profiles[name]
		client, err := obsidian.NewClient(obsidian.Config{
			BaseURL:            p.BaseURL,
			Token:              p.Token,
			Vault:              p.Name,
			Timeout:            cfg.Search.Timeout,
			InsecureSkipVerify: cfg.Search.InsecureSkipVerify,
		}, logger)
		if err == nil {
			err = client.Ping(ctx)
		}
		if err != nil {
			problems++
			fmt.Fprintf(out, "vault     FAIL  %s: %v\n", name, err)
			continue
		}
		fmt.Fprintf(out, "vault     ok    %s %s\n", name, p.BaseURL)
	}

	if problems > 0 {
		return fmt.Errorf("doctor found %d problem(s)", problems)
	}
	return nil
}
