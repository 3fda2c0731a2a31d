// Command mob is a minimal reference front-end over the backup/restore
// core. Argument parsing, logging setup, and sink wiring live here
// precisely because the core treats them as external collaborators it only
// names by interface.
package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/mbr/ministryofbackup/pkg/logging"
)

var rootConfiguration struct {
	debug bool
}

var rootCommand = &cobra.Command{
	Use:   "mob",
	Short: "mob produces and restores compressed, encrypted, incremental backups.",
	Run: func(command *cobra.Command, arguments []string) {
		command.Help()
	},
}

func init() {
	flags := rootCommand.PersistentFlags()
	flags.BoolVar(&rootConfiguration.debug, "debug", false, "Enable debug logging")

	cobra.EnableCommandSorting = false

	rootCommand.AddCommand(storeCommand, restoreCommand)
}

func rootLogger() *logging.Logger {
	logging.DebugEnabled = rootConfiguration.debug
	level := logging.LevelInfo
	if rootConfiguration.debug {
		level = logging.LevelDebug
	}
	return logging.New(level)
}

func main() {
	if err := rootCommand.Execute(); err != nil {
		os.Exit(1)
	}
}
