package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"procodus.dev/weather-db/internal/seed"
	"procodus.dev/weather-db/pkg/generator"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load users and devices and generate hourly readings",
	Long: `Insert the users and devices listed in header-less CSV files
(username,email,role and device_id,desc,type,manufacturer) and generate one
reading per device for every hour of the report window. Temperature values
follow N(24, 2.2) and humidity values N(45, 3).

Without CSV files, --fake-users and --fake-devices generate demo data.
Documents that already exist are skipped.`,
	RunE: runSeed,
}

func init() {
	rootCmd.AddCommand(seedCmd)

	seedCmd.Flags().String("users", "", "users CSV file")
	seedCmd.Flags().String("devices", "", "devices CSV file")
	seedCmd.Flags().Int("fake-users", 0, "number of generated users when no users file is given")
	seedCmd.Flags().Int("fake-devices", 0, "number of generated devices when no devices file is given")
	seedCmd.Flags().Uint64("seed", 0, "random seed for generated data (0 picks one)")
	seedCmd.Flags().Bool("report", false, "run the report job after seeding")
	// --start, --days, --scope and the RabbitMQ flags shared with "report".
	seedCmd.Flags().AddFlagSet(reportCmd.PersistentFlags())

	_ = viper.BindPFlag("seed.users", seedCmd.Flags().Lookup("users"))
	_ = viper.BindPFlag("seed.devices", seedCmd.Flags().Lookup("devices"))
	_ = viper.BindPFlag("seed.random_seed", seedCmd.Flags().Lookup("seed"))
}

func runSeed(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	window, err := windowFromConfig()
	if err != nil {
		return err
	}

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	seeder, err := seed.New(&seed.Config{
		Logger:    a.logger,
		Models:    a.models,
		Generator: generator.New(viper.GetUint64("seed.random_seed")),
		Start:     window.Start,
		Days:      window.Days,
	})
	if err != nil {
		return err
	}

	fakeUsers, _ := cmd.Flags().GetInt("fake-users")
	fakeDevices, _ := cmd.Flags().GetInt("fake-devices")
	data, err := seeder.FakeData(fakeUsers, fakeDevices)
	if err != nil {
		return err
	}

	if path := viper.GetString("seed.users"); path != "" {
		if data.Users, err = seed.LoadUsersFile(path); err != nil {
			return err
		}
	}
	if path := viper.GetString("seed.devices"); path != "" {
		if data.Devices, err = seed.LoadDevicesFile(path); err != nil {
			return err
		}
	}

	res, err := seeder.Run(ctx, data)
	if err != nil {
		return err
	}

	if withReport, _ := cmd.Flags().GetBool("report"); withReport {
		summary, err := runReport(ctx, a.logger, a.store, a.models)
		if err != nil {
			return err
		}
		return printJSON(cmd, summary.Reports)
	}
	return printJSON(cmd, res)
}
