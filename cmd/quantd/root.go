package main

import (
	"errors"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	var envFile string

	root := &cobra.Command{
		Use:   "quantd",
		Short: "Self-scheduling recurring-action controllers.",
		Long: `quantd deploys controllers onto a block producing host. Each controller ` +
			`re-arms itself every interval blocks out of a gas reservation, quotes the ` +
			`reference asset and queries token balances of every reservation holder.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if envFile == "" {
				return nil
			}
			err := godotenv.Load(envFile)
			if errors.Is(err, fs.ErrNotExist) && !cmd.Flags().Changed("env-file") {
				return nil
			}
			return err
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the config")

	root.AddCommand(newRunCmd(), newSimulateCmd())
	return root
}
