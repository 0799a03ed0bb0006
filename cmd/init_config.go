package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/worldsim/worldsim/sim"
)

var configOut string // init-config destination; "-" for stdout

var initConfigCmd = &cobra.Command{
	Use:   "init-config",
	Short: "Write a full WorldConfig built from a preset, for hand editing",
	Run: func(cmd *cobra.Command, args []string) {
		if err := runInitConfig(os.Stdout, presetName, seed, configOut); err != nil {
			logrus.Fatalf("init-config: %v", err)
		}
	},
}

func runInitConfig(stdout io.Writer, preset string, seed int64, dest string) error {
	cfg, err := resolveConfig("", preset, defaultsFilePath, seed)
	if err != nil {
		return err
	}
	data, err := sim.MarshalWorldConfig(cfg)
	if err != nil {
		return err
	}
	if dest == "-" {
		_, err = stdout.Write(data)
		return err
	}
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", dest, err)
	}
	logrus.Infof("wrote %s config to %s", preset, dest)
	return nil
}

func init() {
	initConfigCmd.Flags().StringVar(&presetName, "preset", defaultPreset, "Company preset from the defaults file")
	initConfigCmd.Flags().Int64Var(&seed, "seed", 42, "Seed for channel archetype and capacity draws")
	initConfigCmd.Flags().StringVar(&configOut, "out", "-", "Output file, or - for stdout")
	rootCmd.AddCommand(initConfigCmd)
}
