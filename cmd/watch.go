package cmd

import (
	"context"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ngld/knossos/packages/vuelib-tools/pkg"
	"github.com/ngld/knossos/packages/vuelib-tools/pkg/config"
	"github.com/ngld/knossos/packages/vuelib-tools/pkg/pipeline"
)

// rebuildDelay collects bursts of events (editors often write several times per save)
const rebuildDelay = 300 * time.Millisecond

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Rebuilds the component library whenever the sources change",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
		defer cancel()

		logger := newLogger(cfg)
		ctx = pipeline.WithLogger(ctx, &logger)

		quiet, err := cmd.Flags().GetBool("quiet")
		if err != nil {
			return err
		}

		return watch(ctx, cfg, &logger, quiet)
	},
}

func watch(ctx context.Context, cfg *config.Config, logger *zerolog.Logger, quiet bool) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return eris.Wrap(err, "Failed to create file watcher")
	}
	defer watcher.Close()

	err = addTree(watcher, cfg.Source)
	if err != nil {
		return err
	}

	rebuild := func() {
		err := runBuild(ctx, cfg, quiet)
		if err != nil && ctx.Err() == nil {
			logger.Error().Err(err).Msg("Build failed")
		}
		pkg.PrintTask("Watching " + cfg.Source)
	}
	rebuild()

	timer := time.NewTimer(rebuildDelay)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case evt, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			logger.Debug().Str("path", evt.Name).Msgf("%s %s", evt.Op, evt.Name)
			if evt.Has(fsnotify.Create) {
				info, err := os.Stat(evt.Name)
				if err == nil && info.IsDir() {
					if err = addTree(watcher, evt.Name); err != nil {
						logger.Error().Err(err).Msgf("Failed to watch %s", evt.Name)
					}
				}
			}

			timer.Reset(rebuildDelay)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error().Err(err).Msg("Watcher failed")
		case <-timer.C:
			rebuild()
		}
	}
}

// addTree watches root and every directory below it
func addTree(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return eris.Wrapf(err, "Failed to scan %s", path)
		}

		if !d.IsDir() {
			return nil
		}

		err = watcher.Add(path)
		if err != nil {
			return eris.Wrapf(err, "Failed to watch %s", path)
		}
		return nil
	})
}

func init() {
	addBuildFlags(watchCmd)
	rootCmd.AddCommand(watchCmd)
}
