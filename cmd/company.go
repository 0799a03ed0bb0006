package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/worldsim/worldsim/sim"
	"github.com/worldsim/worldsim/sim/company"
	"github.com/worldsim/worldsim/sim/store"
	"github.com/worldsim/worldsim/sim/tables"
)

var (
	advanceDays   int  // Days to advance
	advanceRandom bool // Seed advanced days from the wall clock
	listShocks    bool // List shock names instead of applying one
)

// withService opens the configured store, runs fn with a company service
// over it and closes the store.
func withService(fn func(ctx context.Context, svc *company.Service) error) error {
	ctx := context.Background()
	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(ctx, company.NewService(st, nil))
}

var createCmd = &cobra.Command{
	Use:   "create <company-id>",
	Short: "Create a company and simulate its initial history",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var seedOverride *int64
		if cmd.Flags().Changed("seed") {
			seedOverride = &seed
		}
		err := withService(func(ctx context.Context, svc *company.Service) error {
			return runCreate(ctx, svc, os.Stdout, args[0], seedOverride)
		})
		if err != nil {
			logrus.Fatalf("create: %v", err)
		}
	},
}

// runCreate creates a company. Without a seed override the seed is derived
// from the company ID, for both the config builder and the history.
func runCreate(ctx context.Context, svc *company.Service, out io.Writer, id string, seedOverride *int64) error {
	companySeed := int64(sim.KeyFromName(id))
	if seedOverride != nil {
		companySeed = *seedOverride
	}
	cfg, err := resolveConfig(configPath, presetName, defaultsFilePath, companySeed)
	if err != nil {
		return err
	}
	start, end, err := resolveRange(startDate, endDate, year)
	if err != nil {
		return err
	}
	c, err := svc.Create(ctx, company.CreateRequest{ID: id, Config: cfg, Start: start, End: end, Seed: &companySeed})
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Created %s (run %s, seed %d)\n", c.ID, c.RunID, c.Seed)
	summary, err := svc.Summary(ctx, id)
	if err != nil {
		return err
	}
	printSummary(out, summary)
	return nil
}

var advanceCmd = &cobra.Command{
	Use:   "advance <company-id>",
	Short: "Simulate and persist the next days of a company",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		opts := company.AdvanceOptions{Days: advanceDays, Random: advanceRandom}
		if cmd.Flags().Changed("seed") {
			opts.Seed = &seed
		}
		err := withService(func(ctx context.Context, svc *company.Service) error {
			return runAdvance(ctx, svc, os.Stdout, args[0], opts)
		})
		if err != nil {
			logrus.Fatalf("advance: %v", err)
		}
	},
}

func runAdvance(ctx context.Context, svc *company.Service, out io.Writer, id string, opts company.AdvanceOptions) error {
	days, err := svc.Advance(ctx, id, opts)
	for _, d := range days {
		units, lost := 0, 0
		for _, r := range d.Inventory {
			units += r.UnitsDispatched
			lost += r.LostDemand
		}
		fmt.Fprintf(out, "%s  sold %d  lost %d\n", sim.FormatDate(d.Date), units, lost)
	}
	return err
}

var shockCmd = &cobra.Command{
	Use:   "shock <company-id> <shock>",
	Short: "Apply a named shock scenario to a company's future days",
	Args: func(cmd *cobra.Command, args []string) error {
		if listShocks {
			return cobra.NoArgs(cmd, args)
		}
		return cobra.ExactArgs(2)(cmd, args)
	},
	Run: func(cmd *cobra.Command, args []string) {
		if listShocks {
			for _, name := range sim.ShockNames() {
				fmt.Println(name)
			}
			return
		}
		err := withService(func(ctx context.Context, svc *company.Service) error {
			return runShock(ctx, svc, os.Stdout, args[0], args[1])
		})
		if err != nil {
			logrus.Fatalf("shock: %v", err)
		}
	},
}

func runShock(ctx context.Context, svc *company.Service, out io.Writer, id, name string) error {
	if _, err := svc.ApplyShock(ctx, id, name); err != nil {
		return err
	}
	fmt.Fprintf(out, "Applied %s to %s\n", name, id)
	return nil
}

var exportCmd = &cobra.Command{
	Use:   "export <company-id>",
	Short: "Write a company's tables as CSV files",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		err := withService(func(ctx context.Context, svc *company.Service) error {
			return runExport(ctx, svc, args[0], outDir, compress)
		})
		if err != nil {
			logrus.Fatalf("export: %v", err)
		}
	},
}

func runExport(ctx context.Context, svc *company.Service, id, dir string, compressed bool) error {
	set, err := svc.Tables(ctx, id)
	if err != nil {
		return err
	}
	if err := tables.WriteDir(dir, set, compressed); err != nil {
		return err
	}
	logrus.Infof("exported %s to %s", id, dir)
	return nil
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List persisted companies",
	Run: func(cmd *cobra.Command, args []string) {
		err := withService(func(ctx context.Context, svc *company.Service) error {
			return runList(ctx, svc, os.Stdout)
		})
		if err != nil {
			logrus.Fatalf("list: %v", err)
		}
	},
}

func runList(ctx context.Context, svc *company.Service, out io.Writer) error {
	companies, err := svc.List(ctx)
	if err != nil {
		return err
	}
	for _, c := range companies {
		fmt.Fprintf(out, "%s\trun %s\tseed %d\tupdated %s\n", c.ID, c.RunID, c.Seed, c.UpdatedAt.Format("2006-01-02 15:04"))
	}
	return nil
}

// Compile-time check that the CLI and server share one store interface.
var _ store.Store = (*store.SQLiteStore)(nil)

func init() {
	addConfigSourceFlags(createCmd)
	addRangeFlags(createCmd)
	createCmd.Flags().Int64Var(&seed, "seed", 0, "Seed (default derived from the company ID)")

	advanceCmd.Flags().IntVar(&advanceDays, "days", 1, "Number of days to advance")
	advanceCmd.Flags().Int64Var(&seed, "seed", 0, "Seed override (default the company's seed)")
	advanceCmd.Flags().BoolVar(&advanceRandom, "random", false, "Seed each day from the wall clock")

	shockCmd.Flags().BoolVar(&listShocks, "list", false, "List available shocks")

	exportCmd.Flags().StringVar(&outDir, "out", "out", "Directory for the CSV tables")
	exportCmd.Flags().BoolVar(&compress, "compress", false, "Write zstd-compressed .csv.zst files")

	rootCmd.AddCommand(createCmd, advanceCmd, shockCmd, exportCmd, listCmd)
}
