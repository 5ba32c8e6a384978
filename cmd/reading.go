package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var readingCmd = &cobra.Command{
	Use:   "reading",
	Short: "Find or insert weather readings",
}

var readingGetCmd = &cobra.Command{
	Use:   "get DEVICE_ID TIMESTAMP",
	Short: "Find the reading of a device at a timestamp",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ts, err := parseTimestamp(args[1])
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close(ctx)

		reading, err := a.models.Readings.FindByDeviceIDAndTimestamp(ctx, callerFromConfig(a.logger), args[0], ts)
		return result(cmd, reading, err)
	},
}

var readingAddCmd = &cobra.Command{
	Use:   "add DEVICE_ID VALUE TIMESTAMP",
	Short: "Insert a reading",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		value, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("value must be an integer: %w", err)
		}
		ts, err := parseTimestamp(args[2])
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close(ctx)

		reading, err := a.models.Readings.Insert(ctx, callerFromConfig(a.logger), args[0], value, ts)
		return result(cmd, reading, err)
	},
}

func init() {
	rootCmd.AddCommand(readingCmd)
	readingCmd.AddCommand(readingGetCmd, readingAddCmd)
}
