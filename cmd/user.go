package main

import (
	"errors"
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/trialscope/screener-cli/internal/store"
)

var (
	userEmail    string
	userPassword string
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage reviewer accounts",
}

var userCreateCmd = &cobra.Command{
	Use:   "create <username>",
	Short: "Register a reviewer account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if userPassword == "" {
			return eris.New("--password is required")
		}

		env, err := initApp(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Store.CreateUser(cmd.Context(), args[0], userEmail, userPassword); err != nil {
			if errors.Is(err, store.ErrUserExists) {
				return eris.Errorf("username %q is taken", args[0])
			}
			return err
		}
		fmt.Printf("user %s created\n", args[0])
		return nil
	},
}

func init() {
	userCreateCmd.Flags().StringVar(&userEmail, "email", "", "account email")
	userCreateCmd.Flags().StringVar(&userPassword, "password", "", "account password")
	userCmd.AddCommand(userCreateCmd)
	rootCmd.AddCommand(userCmd)
}
