package cli

import (
	"encoding/json"
	"os"

	"fincast/internal/forecast"
	"fincast/internal/log"

	"github.com/fatih/color"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

func newForecastCommand(flags *globalFlags) *cobra.Command {
	var (
		horizon int
		asJSON  bool
		noColor bool
	)
	cmd := &cobra.Command{
		Use:   "forecast",
		Short: "Compute a forecast once and print it",
		Example: "  fincast forecast --horizon 6\n" +
			"  fincast forecast -H 12 --json",
		RunE: func(cmd *cobra.Command, args []string) error {
			if noColor {
				color.NoColor = true
				pterm.DisableColor()
			}
			app, err := flags.bootstrap(cmd.Context(), log.ComponentCLI, os.Stderr)
			if err != nil {
				return err
			}
			defer app.Close()

			if horizon == 0 {
				horizon = app.Config.DefaultHorizon
			}
			if err := forecast.ValidateHorizon(horizon); err != nil {
				return err
			}

			var spinner *pterm.SpinnerPrinter
			if !asJSON {
				spinner, _ = pterm.DefaultSpinner.WithWriter(os.Stderr).Start("Reading ledger")
			}
			report, err := app.Service.Refresh(cmd.Context(), horizon)
			if spinner != nil {
				_ = spinner.Stop()
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			return RenderReport(out, report)
		},
	}
	cmd.Flags().IntVarP(&horizon, "horizon", "H", 0, "Forecast horizon in months: 3, 6 or 12 (default DEFAULT_HORIZON)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the report as JSON")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	return cmd
}
