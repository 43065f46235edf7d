package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ngld/knossos/packages/vuelib-tools/pkg"
	"github.com/ngld/knossos/packages/vuelib-tools/pkg/config"
	"github.com/ngld/knossos/packages/vuelib-tools/pkg/pipeline"
	"github.com/ngld/knossos/packages/vuelib-tools/pkg/styles"
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Builds the component library",
	Long: `Copies the component sources into the output directory and compiles them there.
Exits with a non-zero status if any file failed.`,
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

		return runBuild(ctx, cfg, quiet)
	},
}

func addBuildFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringP("output", "o", "", "build output directory")
	flags.String("build-type", "", "style variant (default or special)")
	flags.IntP("jobs", "j", 0, "maximum number of files processed at once")
	flags.Bool("no-fail-fast", false, "keep compiling components after a failure")
	flags.Bool("precompress", false, "write brotli compressed copies of the built files")
	flags.String("report", "", "write a YAML build report to this path")
}

// loadConfig changes into the project root, loads the config file and applies the flags on top
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, eris.Wrap(err, "Failed to retrieve the current working directory")
	}

	root, err := pkg.FindProjectRoot(wd)
	if err != nil {
		return nil, err
	}

	err = os.Chdir(root)
	if err != nil {
		return nil, eris.Wrapf(err, "Failed to switch to %s", root)
	}

	flags := cmd.Flags()
	cfgFile, err := flags.GetString("config")
	if err != nil {
		return nil, err
	}

	if flags.Changed("config") {
		if _, err = os.Stat(cfgFile); err != nil {
			return nil, eris.Wrapf(err, "Could not open config file %s", cfgFile)
		}
	}

	cfg, err := config.Read(cfgFile)
	if err != nil {
		return nil, eris.Wrapf(err, "Failed to load %s", cfgFile)
	}

	if flags.Changed("json") {
		cfg.Log.JSON, _ = flags.GetBool("json")
	}
	if flags.Changed("output") {
		cfg.Output, _ = flags.GetString("output")
	}
	if flags.Changed("build-type") {
		cfg.BuildType, _ = flags.GetString("build-type")
	}
	if flags.Changed("jobs") {
		cfg.Jobs, _ = flags.GetInt("jobs")
	}
	if flags.Changed("no-fail-fast") {
		noFailFast, _ := flags.GetBool("no-fail-fast")
		cfg.FailFast = !noFailFast
	}
	if flags.Changed("precompress") {
		cfg.Precompress, _ = flags.GetBool("precompress")
	}
	if flags.Changed("report") {
		cfg.Report, _ = flags.GetString("report")
	}

	err = cfg.Validate()
	if err != nil {
		return nil, eris.Wrap(err, "Invalid configuration")
	}

	return cfg, nil
}

func newLogger(cfg *config.Config) zerolog.Logger {
	var out io.Writer = NewConsoleWriter()
	if cfg.Log.JSON {
		out = os.Stderr
	}

	return zerolog.New(out).Level(cfg.LogLevel()).With().Timestamp().Logger()
}

func runBuild(ctx context.Context, cfg *config.Config, quiet bool) error {
	pkg.PrintTask(fmt.Sprintf("Building %s (%s variant, %s)", cfg.Output, cfg.Variant(), cfg.Profile()))

	p := pipeline.New(cfg, styles.StylusRenderer{Command: cfg.Style.Command})
	p.Quiet = quiet || cfg.Log.JSON
	report, err := p.Run(ctx)

	printSummary(report)

	if cfg.Report != "" {
		rErr := report.WriteYAML(cfg.Report)
		if rErr != nil {
			pkg.PrintError(rErr.Error())
		}
	}

	if err != nil {
		return err
	}

	pkg.PrintTask("Done")
	return nil
}

func printSummary(report *pipeline.Report) {
	for _, stage := range report.Stages {
		msg := fmt.Sprintf("%s: %d done", stage.Name, stage.Processed)
		if stage.Skipped > 0 {
			msg += fmt.Sprintf(", %d skipped", stage.Skipped)
		}
		if stage.Warnings > 0 {
			msg += fmt.Sprintf(", %d warnings", stage.Warnings)
		}
		msg += fmt.Sprintf(" (%s)", stage.Duration)

		if !stage.Failed() {
			pkg.PrintSubtask(msg)
			continue
		}

		failed := len(stage.Errors)
		if stage.Fatal != nil {
			failed++
		}
		pkg.PrintError(fmt.Sprintf("%s, %d failed", msg, failed))
	}

	if report.Interrupted {
		pkg.PrintError("Interrupted, the output is incomplete")
	}
}

func init() {
	addBuildFlags(buildCmd)
	rootCmd.AddCommand(buildCmd)
}
