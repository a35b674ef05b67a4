package cli

import (
	"fmt"
	"os"

	"fincast/internal/ledger/memory"
	"fincast/internal/log"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

func newMigrateCommand(flags *globalFlags) *cobra.Command {
	var seedDir string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply schema migrations and import a YAML seed into the SQL ledger",
		Long: "Opens the configured sqlite or postgres backend, which applies pending\n" +
			"schema migrations, then copies settings, categories, transactions and\n" +
			"recurring rules from <seed-dir>/ledger.yaml when --seed-dir is set.",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := flags.bootstrap(cmd.Context(), log.ComponentStorage, os.Stderr)
			if err != nil {
				return err
			}
			defer app.Close()

			repo := app.Backend.Store
			if repo == nil {
				return fmt.Errorf("migrate needs a sqlite or postgres backend, got %s", app.Config.DataBackend)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, pterm.Success.Sprintf("Schema up to date (%s)", app.Config.DataBackend))

			if seedDir == "" {
				return nil
			}
			seed, err := memory.NewFromFiles(seedDir)
			if err != nil {
				return fmt.Errorf("load seed: %w", err)
			}
			n, err := repo.Import(cmd.Context(), seed)
			if err != nil {
				return fmt.Errorf("import seed: %w", err)
			}
			if skipped := seed.Skipped(); skipped > 0 {
				fmt.Fprintln(out, pterm.Warning.Sprintf("%d malformed seed records skipped", skipped))
			}
			fmt.Fprintln(out, pterm.Success.Sprintf("Imported %d records from %s", n, seedDir))
			return nil
		},
	}
	cmd.Flags().StringVar(&seedDir, "seed-dir", "", "Directory holding ledger.yaml to import")
	return cmd
}
