package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mbr/ministryofbackup/pkg/backup"
	"github.com/mbr/ministryofbackup/pkg/config"
	"github.com/mbr/ministryofbackup/pkg/sink"
)

var storeConfiguration struct {
	db       string
	password string
	to       string
}

var storeCommand = &cobra.Command{
	Use:   "store <directory>",
	Short: "Scan a directory and write an incremental backup archive",
	Args:  cobra.ExactArgs(1),
	RunE: func(command *cobra.Command, arguments []string) error {
		return storeMain(arguments[0])
	},
}

func init() {
	flags := storeCommand.Flags()
	flags.StringVar(&storeConfiguration.db, "db", "", "Path to the fingerprint database (required)")
	flags.StringVar(&storeConfiguration.password, "password", "", "Encryption password (required)")
	flags.StringVar(&storeConfiguration.to, "to", "", "Destination URL (file:///path/to/dir or s3://bucket/prefix) (required)")
	storeCommand.MarkFlagRequired("db")
	storeCommand.MarkFlagRequired("password")
	storeCommand.MarkFlagRequired("to")
}

func storeMain(base string) error {
	logger := rootLogger()

	target, err := ParseSinkURL(storeConfiguration.to)
	if err != nil {
		return err
	}
	if target.Scheme != "file" {
		return fmt.Errorf("store: %s destinations are not wired to a concrete object store client in this reference CLI", target.Scheme)
	}

	backupID := time.Now().UTC().Format("20060102T150405Z")

	newSink := func(ext string) (sink.Sink, error) {
		return sink.NewLocalSink(target.Path, backupID, ext, logger.Sublogger("sink"))
	}

	opts := backup.Options{
		Base:         base,
		DatabasePath: storeConfiguration.db,
		BackupID:     backupID,
		Password:     storeConfiguration.password,
		Logger:       logger,
		Crypto:       config.DefaultCryptoParameters(),
		Pipeline:     config.DefaultPipelineParameters(),
		Progress:     func(bytesInspected uint64) {},
	}

	result, err := backup.Run(opts, newSink)
	if err != nil {
		return err
	}

	fmt.Printf("backup %s: %d new, %d altered, %d deleted\n",
		backupID, len(result.New), len(result.Altered), len(result.Deleted))
	if !result.ArchiveWritten {
		fmt.Println("no archive artifact produced (nothing changed)")
	}
	return nil
}
