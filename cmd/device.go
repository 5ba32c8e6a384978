package main

import (
	"github.com/spf13/cobra"
)

var deviceCmd = &cobra.Command{
	Use:   "device",
	Short: "Find or insert sensor devices",
}

var deviceGetCmd = &cobra.Command{
	Use:   "get DEVICE_ID",
	Short: "Find a device by device id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close(ctx)

		device, err := a.models.Devices.FindByDeviceID(ctx, callerFromConfig(a.logger), args[0])
		return result(cmd, device, err)
	},
}

var deviceAddCmd = &cobra.Command{
	Use:   "add DEVICE_ID DESC TYPE MANUFACTURER",
	Short: "Insert a device",
	Args:  cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close(ctx)

		device, err := a.models.Devices.Insert(ctx, callerFromConfig(a.logger), args[0], args[1], args[2], args[3])
		return result(cmd, device, err)
	},
}

func init() {
	rootCmd.AddCommand(deviceCmd)
	deviceCmd.AddCommand(deviceGetCmd, deviceAddCmd)
}
