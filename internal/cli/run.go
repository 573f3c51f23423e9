package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"annotation-xref/internal/service"

	"github.com/spf13/cobra"
)

func RunCrossReference(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadEnv(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx := commandContext(cmd)

	profile, err := cmd.Flags().GetString("profile")
	if err != nil {
		return fmt.Errorf("failed to read --profile flag: %w", err)
	}
	pick, err := cmd.Flags().GetBool("pick")
	if err != nil {
		return fmt.Errorf("failed to read --pick flag: %w", err)
	}
	items, err := cmd.Flags().GetStringSlice("items")
	if err != nil {
		return fmt.Errorf("failed to read --items flag: %w", err)
	}
	outPath, err := cmd.Flags().GetString("output")
	if err != nil {
		return fmt.Errorf("failed to read --output flag: %w", err)
	}
	asJSON, err := cmd.Flags().GetBool("json")
	if err != nil {
		return fmt.Errorf("failed to read --json flag: %w", err)
	}

	if pick {
		def, _ := cfg.Resolve("")
		chosen, err := pickProfile(cfg.ProfileNames(), def.Name, cmd.InOrStdin(), cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		if chosen != "" {
			profile = chosen
		}
	}

	lib, err := openLibrary(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer lib.Close()

	refs := append(append([]string{}, items...), args...)
	result, err := newCrossReferencer(cfg, lib, logger).Run(ctx, service.Request{
		Items:   refs,
		Profile: profile,
	})
	if err != nil {
		return err
	}

	for _, w := range result.Warnings {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", w)
	}

	var out io.Writer = cmd.OutOrStdout()
	if outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("failed to create report file: %w", err)
		}
		defer f.Close()
		out = f
	}

	return writeResult(out, result, asJSON)
}

func writeResult(out io.Writer, result *service.Result, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	if result.Report == "" {
		return nil
	}
	_, err := io.WriteString(out, strings.TrimRight(result.Report, "\n")+"\n")
	return err
}
