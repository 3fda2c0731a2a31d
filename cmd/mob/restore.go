package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mbr/ministryofbackup/pkg/backup"
	"github.com/mbr/ministryofbackup/pkg/config"
)

var restoreConfiguration struct {
	password string
	to       string
}

var restoreCommand = &cobra.Command{
	Use:   "restore <archive-file>",
	Short: "Decrypt, decompress, and extract a backup archive",
	Args:  cobra.ExactArgs(1),
	RunE: func(command *cobra.Command, arguments []string) error {
		return restoreMain(arguments[0])
	},
}

func init() {
	flags := restoreCommand.Flags()
	flags.StringVar(&restoreConfiguration.password, "password", "", "Decryption password (required)")
	flags.StringVar(&restoreConfiguration.to, "to", "", "Directory to extract into (required)")
	restoreCommand.MarkFlagRequired("password")
	restoreCommand.MarkFlagRequired("to")
}

func restoreMain(archivePath string) error {
	logger := rootLogger()

	source, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("unable to open %s: %w", archivePath, err)
	}
	defer source.Close()

	if err := os.MkdirAll(restoreConfiguration.to, 0o755); err != nil {
		return fmt.Errorf("unable to create destination directory: %w", err)
	}

	opts := backup.Options{
		Password: restoreConfiguration.password,
		Logger:   logger,
		Crypto:   config.DefaultCryptoParameters(),
		Pipeline: config.DefaultPipelineParameters(),
	}

	if err := backup.Restore(opts, restoreConfiguration.to, source); err != nil {
		return err
	}

	fmt.Printf("restored %s into %s\n", archivePath, restoreConfiguration.to)
	return nil
}
