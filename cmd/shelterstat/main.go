package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "shelterstat",
		Short: "Offline shelter inspection statistics over exported records",
	}

	rootCmd.AddCommand(summaryCmd())
	rootCmd.AddCommand(drilldownCmd())
	rootCmd.AddCommand(selectorsCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// filterFlags are shared by every command that aggregates.
type filterFlags struct {
	uf         string
	technician string
	status     string
	from       string
	to         string
	refYear    int
	loadA      float64
	format     string
}

func (f *filterFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.uf, "uf", "", "region (state code) filter")
	cmd.Flags().StringVar(&f.technician, "technician", "", "technician name or id substring")
	cmd.Flags().StringVar(&f.status, "status", "all", "row status filter: all, ok or nok")
	cmd.Flags().StringVar(&f.from, "from", "", "first visit date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.to, "to", "", "last visit date (YYYY-MM-DD), inclusive")
	cmd.Flags().IntVar(&f.refYear, "reference-year", 0, "year ages are computed against")
	cmd.Flags().Float64Var(&f.loadA, "load-current", 0, "assumed cabinet load in amperes")
	cmd.Flags().StringVarP(&f.format, "format", "f", "text", "output format: text, yaml or json")
}

func summaryCmd() *cobra.Command {
	var flags filterFlags
	cmd := &cobra.Command{
		Use:   "summary [records.json]",
		Short: "Print the dashboard panel statistics",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runSummary(args[0], flags)
		},
	}
	flags.register(cmd)
	return cmd
}

func drilldownCmd() *cobra.Command {
	var flags filterFlags
	var scope string
	cmd := &cobra.Command{
		Use:   "drilldown [records.json] [selector]",
		Short: "List the rows behind one dashboard KPI",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			return runDrilldown(args[0], args[1], scope, flags)
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&scope, "scope", "", "restrict rows to one region")
	return cmd
}

func selectorsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "selectors",
		Short: "List the drill-down selectors",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			printSelectors()
		},
	}
}
