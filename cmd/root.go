// Package main provides the weather-db command line interface.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"procodus.dev/weather-db/internal/docstore"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "weather-db",
		Short: "Role-gated weather sensor store",
		Long: `weather-db stores users, sensor devices and hourly weather readings in a
document store (MongoDB by default, PostgreSQL, or an in-memory store that
lives for a single command) and aggregates them into daily per-device
reports.

- seed:     load users and devices and generate sample readings
- user:     find or insert users (admin only)
- device:   find or insert devices
- reading:  find or insert weather readings
- report:   run the daily aggregation or look up a report
- schedule: run the aggregation periodically and serve metrics
- produce:  publish synthetic readings to RabbitMQ`,
		Version:       "1.0.0",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func main() {
	Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml or /etc/weather-db/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("role", "default", "role of the caller (admin, default)")
	rootCmd.PersistentFlags().String("store", docstore.DriverMongo, "store driver (mongo, postgres, or memory for a throwaway store)")

	// Bind flags to viper
	for key, flag := range map[string]string{
		"log.level":    "log-level",
		"caller.role":  "role",
		"store.driver": "store",
	} {
		if err := viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
			log.Fatalf("failed to bind %s flag: %v", flag, err)
		}
	}
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if err := InitConfig(cfgFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	if viper.ConfigFileUsed() != "" {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}
