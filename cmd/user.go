package main

import (
	"github.com/spf13/cobra"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Find or insert users (admin only)",
}

var userGetCmd = &cobra.Command{
	Use:   "get USERNAME",
	Short: "Find a user by username",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close(ctx)

		user, err := a.models.Users.FindByUsername(ctx, callerFromConfig(a.logger), args[0])
		return result(cmd, user, err)
	},
}

var userAddCmd = &cobra.Command{
	Use:   "add USERNAME EMAIL ROLE",
	Short: "Insert a user",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close(ctx)

		user, err := a.models.Users.Insert(ctx, callerFromConfig(a.logger), args[0], args[1], args[2])
		return result(cmd, user, err)
	},
}

func init() {
	rootCmd.AddCommand(userCmd)
	userCmd.AddCommand(userGetCmd, userAddCmd)
}
