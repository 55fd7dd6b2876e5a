package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/avsprobe/avsmeta/model"
	"github.com/avsprobe/avsmeta/report"
)

var analyzeArgs struct {
	container string
	kind      string
	watch     bool
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file>",
	Short: "Analyze a media file and print the AVS streams found as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]

		if err := analyzeFile(path); err != nil {
			return err
		}
		if !analyzeArgs.watch {
			return nil
		}
		return watchDir(filepath.Dir(path), path)
	},
}

func init() {
	rootCmd.AddCommand(analyzeCmd)

	analyzeCmd.Flags().StringVar(&analyzeArgs.container, "container", "auto", "container format: ts, bmff, raw, or auto")
	analyzeCmd.Flags().StringVar(&analyzeArgs.kind, "kind", "", "codec kind for -container=raw: avs1, avs2, avs3, av3a")
	analyzeCmd.Flags().BoolVar(&analyzeArgs.watch, "watch", false, "re-analyze the file whenever it changes")
}

func analyzeFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "avsmeta: opening input")
	}
	defer f.Close()

	container, kind, err := resolveContainer(path, analyzeArgs.container, analyzeArgs.kind)
	if err != nil {
		return err
	}

	log.Info("analyzing file", "path", path, "container", analyzeArgs.container)
	res, err := report.Analyze(context.Background(), f, container, kind, report.WithLogger(log))
	if err != nil && !errors.Is(err, report.ErrNoContent) {
		return errors.Wrap(err, "avsmeta: analyze")
	}
	if errors.Is(err, report.ErrNoContent) {
		log.Warning("no recognizable AVS content found", "path", path, "observedStreamTypes", res.ObservedStreamTypes, "observedFourCCs", res.ObservedFourCCs)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

// resolveContainer maps the -container/-kind flags (or the file extension,
// under "auto") to a report.Container and, for raw elementary streams, a
// model.CodecKind.
func resolveContainer(path, container, kind string) (report.Container, model.CodecKind, error) {
	if container == "auto" {
		switch filepath.Ext(path) {
		case ".ts", ".m2ts":
			container = "ts"
		case ".mp4", ".mov", ".m4a", ".m4v":
			container = "bmff"
		default:
			container = "raw"
		}
	}

	switch container {
	case "ts":
		return report.ContainerTS, model.CodecUnknown, nil
	case "bmff":
		return report.ContainerBMFF, model.CodecUnknown, nil
	case "raw":
		k, err := codecKindFromString(kind)
		if err != nil {
			return 0, 0, err
		}
		return report.ContainerRawES, k, nil
	default:
		return 0, 0, errors.Errorf("avsmeta: unknown container %q", container)
	}
}

func codecKindFromString(s string) (model.CodecKind, error) {
	switch s {
	case "avs1":
		return model.CodecAVS1, nil
	case "avs2":
		return model.CodecAVS2, nil
	case "avs3":
		return model.CodecAVS3Video, nil
	case "av3a":
		return model.CodecAV3AAudio, nil
	default:
		return 0, errors.Errorf("avsmeta: -kind is required and must be one of avs1, avs2, avs3, av3a for -container=raw (got %q)", s)
	}
}

// watchDir re-runs analyzeFile whenever path changes, until interrupted.
func watchDir(dir, path string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "avsmeta: creating watcher")
	}
	defer w.Close()

	if err := w.Add(dir); err != nil {
		return errors.Wrap(err, "avsmeta: watching directory")
	}

	log.Info("watching for changes", "path", path)
	abs, err := filepath.Abs(path)
	if err != nil {
		return errors.Wrap(err, "avsmeta: resolving path")
	}

	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			evAbs, err := filepath.Abs(ev.Name)
			if err != nil || evAbs != abs {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			log.Debug("file changed, re-analyzing", "path", path, "op", ev.Op.String())
			if err := analyzeFile(path); err != nil {
				log.Error("re-analysis failed", "path", path, "error", err.Error())
				fmt.Fprintln(os.Stderr, err)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Error("watcher error", "error", err.Error())
		}
	}
}
