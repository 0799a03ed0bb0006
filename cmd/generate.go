package cmd

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/worldsim/worldsim/sim"
	"github.com/worldsim/worldsim/sim/tables"
)

var (
	outDir   string // Export directory
	compress bool   // zstd-compress exported tables
)

// generateCmd runs a full range without any store and writes the tables.
var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Simulate a date range and write the four CSV tables",
	Run: func(cmd *cobra.Command, args []string) {
		if err := runGenerate(os.Stdout); err != nil {
			logrus.Fatalf("generate: %v", err)
		}
	},
}

func runGenerate(out io.Writer) error {
	cfg, err := resolveConfig(configPath, presetName, defaultsFilePath, seed)
	if err != nil {
		return err
	}
	start, end, err := resolveRange(startDate, endDate, year)
	if err != nil {
		return err
	}
	h, err := sim.CreateHistory(cfg, start, end, seed)
	if err != nil {
		return err
	}
	if err := tables.WriteDir(outDir, tables.FromHistory(cfg, h), compress); err != nil {
		return err
	}
	logrus.Infof("wrote %d days of tables to %s", h.Days, outDir)
	printSummary(out, sim.Summarize(cfg, h.Sales, h.Marketing, h.Inventory))
	return nil
}

// printSummary writes a human-readable run summary.
func printSummary(out io.Writer, s *sim.RunSummary) {
	if s.Days == 0 {
		fmt.Fprintln(out, "=== Run Summary ===\nno simulated days")
		return
	}
	fmt.Fprintln(out, "=== Run Summary ===")
	fmt.Fprintf(out, "Period      : %s .. %s (%d days)\n", sim.FormatDate(s.First), sim.FormatDate(s.Last), s.Days)
	fmt.Fprintf(out, "Units sold  : %d\n", s.UnitsSold)
	fmt.Fprintf(out, "Lost demand : %d\n", s.LostDemand)
	fmt.Fprintf(out, "Revenue     : %s\n", s.Revenue.StringFixed(2))
	fmt.Fprintf(out, "Ad spend    : %s\n", s.Spend.StringFixed(2))

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "\nPRODUCT\tUNITS\tREVENUE\tPROFIT\tLOST\tSTOCKOUT DAYS\tAVG STOCK")
	for _, p := range s.Products {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%d\t%d\t%.1f\n", p.Product, p.UnitsSold,
			p.Revenue.StringFixed(2), p.Profit.StringFixed(2), p.LostDemand, p.StockoutDays, p.AvgClosingStock)
	}
	fmt.Fprintln(tw, "\nCHANNEL\tREVENUE\tSPEND\tCONVERSIONS\tNET PROFIT\tMEAN ROAS")
	for _, c := range s.Channels {
		roas := "-"
		if c.MeanROAS != nil {
			roas = fmt.Sprintf("%.2f", *c.MeanROAS)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n", c.Channel, c.Revenue.StringFixed(2),
			c.Spend.StringFixed(2), c.Conversions, c.NetProfit.StringFixed(2), roas)
	}
	_ = tw.Flush()
}

func init() {
	addConfigSourceFlags(generateCmd)
	addRangeFlags(generateCmd)
	generateCmd.Flags().Int64Var(&seed, "seed", 42, "Seed for the simulation")
	generateCmd.Flags().StringVar(&outDir, "out", "out", "Directory for the CSV tables")
	generateCmd.Flags().BoolVar(&compress, "compress", false, "Write zstd-compressed .csv.zst files")
	rootCmd.AddCommand(generateCmd)
}
