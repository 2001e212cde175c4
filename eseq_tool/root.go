package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/dkvtools/eseqmidi/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	flagJobs      int
	flagLogLevel  string
	flagLogFile   string
	flagRecursive bool

	log *zap.SugaredLogger
)

var rootCmd = &cobra.Command{
	Use:   "eseq_tool",
	Short: "Convert Disklavier ESEQ/FIL files to MIDI and maintain MIDI libraries",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		log = logger.New(logger.Config{
			Level:    flagLogLevel,
			FilePath: flagLogFile,
		}).Sugar()
	},
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().IntVar(&flagJobs, "jobs", runtime.NumCPU(),
		"maximum number of files processed concurrently")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info",
		"log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&flagLogFile, "log-file", "",
		"also write logs to this rotating file")
	rootCmd.PersistentFlags().BoolVarP(&flagRecursive, "recursive", "r",
		false, "recurse into subdirectories when the input is a directory")
}
