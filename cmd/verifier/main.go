package main

import (
	"context"
	"os"

	"github.com/Madhoneybees/discord-nft-verifier/cmd/verifier/commands"
)

func main() {
	rootCmd := commands.RootCmd
	rootCmd.AddCommand(
		commands.ServeCmd,
		commands.VerifyAllCmd,
		commands.StatsCmd,
		commands.CleanExpiredCmd,
		commands.ResetUserCmd,
		commands.AdminTokenCmd,
	)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
