package main

import (
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ausocean/utils/logging"
)

// Current software version.
const version = "v0.1.0"

// Logging configuration.
const (
	logPath      = "avsmeta.log"
	logMaxSize   = 100 // MB
	logMaxBackup = 5
	logMaxAge    = 28 // days
)

var rootCmd = &cobra.Command{
	Use:     "avsmeta",
	Short:   "Report AVS1/AVS1+/AVS2/AVS3 and AV3A metadata found in a media file",
	Version: version,
	SilenceUsage: true,
}

var (
	logVerbosity string
	logToFile    bool
)

// log is shared by every subcommand; it is built once in rootCmd's
// PersistentPreRun so flags (such as --verbosity) are already parsed.
var log logging.Logger

// Execute adds all child commands to the root command and runs it. It is
// called by main.main and returns the process exit code.
func Execute() int {
	rootCmd.PersistentFlags().StringVarP(&logVerbosity, "verbosity", "v", "info", "log verbosity: debug, info, warning, error")
	rootCmd.PersistentFlags().BoolVar(&logToFile, "log-file", false, "also write logs to "+logPath)
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		log = newLogger(logVerbosity, logToFile)
	}

	if err := rootCmd.Execute(); err != nil {
		return 1
	}
	return 0
}

func newLogger(verbosity string, toFile bool) logging.Logger {
	var w io.Writer = os.Stderr
	if toFile {
		w = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   logPath,
			MaxSize:    logMaxSize,
			MaxBackups: logMaxBackup,
			MaxAge:     logMaxAge,
		})
	}
	return logging.New(verbosityFromString(verbosity), w, false)
}

func verbosityFromString(s string) int8 {
	switch s {
	case "debug":
		return logging.Debug
	case "warning":
		return logging.Warning
	case "error":
		return logging.Error
	default:
		return logging.Info
	}
}
