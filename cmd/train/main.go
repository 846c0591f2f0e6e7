// Command train fits the drug classifier, evaluates it on a holdout split
// and writes the confusion matrix, the metrics line and the model artifact.
//
// Usage:
//
//	train [-config config.yaml] [-log-level info]
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/YuminosukeSato/drugpipe/config"
	"github.com/YuminosukeSato/drugpipe/pkg/log"
	"github.com/YuminosukeSato/drugpipe/workflow"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("train", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "optional YAML file overriding the defaults")
	logLevel := fs.String("log-level", "", "debug, info, warn or error (overrides log.level)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "train: %v\n", err)
		return 1
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	level, err := log.ParseLevel(cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(stderr, "train: %v\n", err)
		return 2
	}

	var sink io.Writer = stderr
	if cfg.Log.File != "" {
		w := log.NewRotatingWriter(log.FileOptions{
			Path:       cfg.Log.File,
			MaxSizeMB:  cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
		})
		defer w.Close()
		sink = w
	}
	log.SetGlobalProvider(log.NewZerologProviderWithWriter(sink, level))
	logger := log.GetLoggerWithName("train")

	if _, err := workflow.Run(context.Background(), cfg, workflow.WithStdout(stdout)); err != nil {
		logger.Error("Training run failed", err)
		fmt.Fprintf(stderr, "train: %v\n", err)
		return 1
	}
	return 0
}
