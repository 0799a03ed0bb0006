package cmd

import (
	"context"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/worldsim/worldsim/sim/store"
)

var (
	// Persistent flags shared by every command
	logLevel         string // Log verbosity level
	dbPath           string // SQLite database file
	databaseURL      string // PostgreSQL URL; overrides dbPath when set
	redisURL         string // Optional Redis cache in front of the store
	defaultsFilePath string // Path to defaults.yaml (company presets)

	// Company config source flags (create, generate, init-config)
	configPath string // WorldConfig YAML/JSON file
	presetName string // Preset in defaults.yaml, used when configPath is empty
	seed       int64  // Seed for the simulation
	startDate  string // First simulated day (YYYY-MM-DD)
	endDate    string // Last simulated day (YYYY-MM-DD)
	year       int    // Calendar year simulated when start/end are not given
)

// cacheTTL bounds how long cached company documents live in Redis.
const cacheTTL = 30 * time.Second

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "worldsim",
	Short: "Synthetic company world simulator",
	Long: "worldsim generates daily sales, marketing and inventory tables for synthetic\n" +
		"companies and keeps them growing one day at a time.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			logrus.Fatalf("Invalid log level: %s", logLevel)
		}
		logrus.SetLevel(level)
	},
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// openStore selects the backend from the persistent flags: PostgreSQL when
// --database-url is set, SQLite otherwise, optionally behind a Redis cache.
func openStore(ctx context.Context) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	if databaseURL != "" {
		st, err = store.ConnectPostgres(ctx, databaseURL)
		if err != nil {
			return nil, err
		}
		logrus.Infof("connected to PostgreSQL")
	} else {
		st, err = store.OpenSQLite(ctx, dbPath)
		if err != nil {
			return nil, err
		}
		logrus.Infof("using SQLite store %s", dbPath)
	}

	if redisURL != "" {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			_ = st.Close()
			return nil, err
		}
		st = store.NewCachedStore(st, redis.NewClient(opt), cacheTTL)
		logrus.Infof("Redis cache enabled")
	}
	return st, nil
}

// addConfigSourceFlags registers the flags that pick a company config.
func addConfigSourceFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&configPath, "config", "", "WorldConfig file (YAML or JSON); overrides --preset")
	cmd.Flags().StringVar(&presetName, "preset", defaultPreset, "Company preset from the defaults file")
}

// addRangeFlags registers the simulated date range flags.
func addRangeFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&startDate, "start", "", "First simulated day (YYYY-MM-DD); defaults to January 1 of --year")
	cmd.Flags().StringVar(&endDate, "end", "", "Last simulated day (YYYY-MM-DD); defaults to December 31 of --year")
	cmd.Flags().IntVar(&year, "year", time.Now().Year(), "Calendar year simulated when --start/--end are not given")
}

// init sets up persistent flags
func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "info", "Log level (trace, debug, info, warn, error, fatal, panic)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "worldsim.db", "SQLite database file")
	rootCmd.PersistentFlags().StringVar(&databaseURL, "database-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection URL (overrides --db)")
	rootCmd.PersistentFlags().StringVar(&redisURL, "redis-url", os.Getenv("REDIS_URL"), "Redis URL for the read-through cache")
	rootCmd.PersistentFlags().StringVar(&defaultsFilePath, "defaults-filepath", "defaults.yaml", "Path to defaults.yaml")
}
