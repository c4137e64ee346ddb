package cli

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aqasim81/changelog-migrate/internal/migration"
)

// errFileExists is returned when generate would overwrite a file.
var errFileExists = errors.New("file already exists (use --force to overwrite)")

var generateCmd = &cobra.Command{ //nolint:gochecknoglobals // standard Cobra pattern
	Use:   "generate [file]",
	Short: "Write an example changelog",
	Long: `Write a sample YAML changelog to the given file (default: the
configured changelog file), or to stdout when the file is "-".`,
	Args: cobra.MaximumNArgs(1),
	RunE: runGenerate,
}

func init() { //nolint:gochecknoinits // standard Cobra pattern for flag registration
	generateCmd.Flags().Bool("force", false, "overwrite an existing file")
	rootCmd.AddCommand(generateCmd)
}

func runGenerate(cmd *cobra.Command, args []string) error {
	path := AppConfig.ChangelogFile
	if len(args) > 0 {
		path = args[0]
	}

	var buf bytes.Buffer
	if err := migration.Encode(&buf, migration.Sample()); err != nil {
		return err
	}

	if path == "-" {
		_, err := cmd.OutOrStdout().Write(buf.Bytes())
		return err
	}

	force, _ := cmd.Flags().GetBool("force")
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%w: %s", errFileExists, path)
	}

	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil { //nolint:gosec // changelog is not secret
		return fmt.Errorf("writing %s: %w", path, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Wrote sample changelog to %s\n", path)

	return nil
}
