package cmd

import (
	"fmt"
	"os"

	"github.com/project-dy/Essentials/cmd/admin"
	"github.com/project-dy/Essentials/cmd/player"
	"github.com/project-dy/Essentials/cmd/serve"
	"github.com/project-dy/Essentials/cmd/util"
	"github.com/spf13/cobra"
)

const (
	Version = "1.0.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "essentials",
		Short: "coordination core for game server processes",
		Long: fmt.Sprintf(`Essentials (v%s)

Coordinates the game server processes of one host: the first process owns the
coordination port, later ones follow it and shut down when it does. All of
them share one player, ban and warp block database.`, Version),
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of Essentials",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Essentials v%s\n", Version)
		},
	}
)

func init() {
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(player.PlayerCommands)
	RootCmd.AddCommand(admin.AdminCommands)
	RootCmd.AddCommand(versionCmd)

	key := "serializer"
	RootCmd.PersistentFlags().String(key, "json", util.WrapString("serializer of the data endpoint (json, gob)"))
	key = "transport"
	RootCmd.PersistentFlags().String(key, "tcp", util.WrapString("transport of the data endpoint (tcp, unix)"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
