// Package pipeline runs the component library build.
//
// A run copies the source tree into the output directory and then processes
// the copy in three concurrent stages:
//
//   - scripts: every plain script is downleveled in place. Failures are
//     isolated to the file.
//   - components: every single-file component is compiled into a script and
//     an extracted stylesheet. With FailFast the first failure cancels the
//     components that haven't started yet.
//   - global-style: the global stylesheet is compiled. A failure is fatal.
//
// The work lists are taken before any stage starts so scripts produced by the
// component stage are never transformed a second time.
package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rotisserie/eris"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"

	"github.com/ngld/knossos/packages/vuelib-tools/pkg/config"
	"github.com/ngld/knossos/packages/vuelib-tools/pkg/mover"
	"github.com/ngld/knossos/packages/vuelib-tools/pkg/scripts"
	"github.com/ngld/knossos/packages/vuelib-tools/pkg/sfc"
	"github.com/ngld/knossos/packages/vuelib-tools/pkg/styles"
)

// Pipeline holds the compilers for a single configuration
type Pipeline struct {
	cfg        *config.Config
	styles     *styles.Compiler
	scripts    *scripts.Transformer
	components *sfc.Compiler

	// Quiet hides the progress bar
	Quiet bool
	bar   *progressbar.ProgressBar
}

// WorkList is the set of files processed by the concurrent stages. Paths are slash-separated and
// relative to the output directory.
type WorkList struct {
	Scripts    []string
	Components []string
}

type fileFunc func(ctx context.Context, path string) ([]string, error)

// New builds a pipeline for cfg. The config must have been validated.
func New(cfg *config.Config, renderer styles.Renderer) *Pipeline {
	profile := cfg.Profile()
	styleCompiler := &styles.Compiler{
		Renderer: renderer,
		Imports:  cfg.Imports(),
		Variant:  cfg.Variant(),
		Profile:  profile,
	}
	transformer := scripts.New(profile)

	return &Pipeline{
		cfg:     cfg,
		styles:  styleCompiler,
		scripts: transformer,
		components: &sfc.Compiler{
			Styles:       styleCompiler,
			Scripts:      transformer,
			GlobalImport: cfg.Style.GlobalImport,
		},
	}
}

// Run executes the whole pipeline. The returned report is never nil; the error matches
// ErrBuildFailed if any stage failed or ctx was cancelled before the build finished.
func (p *Pipeline) Run(ctx context.Context) (*Report, error) {
	report := &Report{
		Variant: p.cfg.Variant(),
		Source:  p.cfg.Source,
		Output:  p.cfg.Output,
		Started: time.Now(),
	}
	defer func() {
		report.Duration = time.Since(report.Started).Round(time.Millisecond)
	}()

	moved := p.move(ctx)
	report.Stages = append(report.Stages, moved)
	if moved.Failed() || p.interrupted(ctx, report) {
		return report, report.Err()
	}

	work, err := Snapshot(p.cfg.Output)
	if err != nil {
		moved.abort(p.cfg.Output, err)
		return report, report.Err()
	}

	p.bar = p.newProgressBar(len(work.Scripts) + len(work.Components) + 1)

	results := make([]*StageResult, 3)
	var g errgroup.Group
	g.Go(func() error {
		results[0] = p.transformScripts(ctx, work.Scripts)
		return nil
	})
	g.Go(func() error {
		results[1] = p.compileComponents(ctx, work.Components)
		return nil
	})
	g.Go(func() error {
		results[2] = p.compileGlobalStyle(ctx)
		return nil
	})
	_ = g.Wait()
	_ = p.bar.Finish()
	p.bar = nil

	report.Stages = append(report.Stages, results...)
	if p.interrupted(ctx, report) {
		return report, report.Err()
	}
	if err = report.Err(); err != nil {
		return report, err
	}

	if p.cfg.Precompress {
		report.Stages = append(report.Stages, p.precompress(ctx))
		p.interrupted(ctx, report)
	}

	return report, report.Err()
}

// interrupted marks the report if ctx was cancelled. Files skipped because of the
// cancellation never ran, so the output is incomplete even if no stage recorded an error.
func (p *Pipeline) interrupted(ctx context.Context, report *Report) bool {
	if ctx.Err() == nil {
		return false
	}

	log(ctx).Warn().Err(ctx.Err()).Msg("Build interrupted")
	report.Interrupted = true
	return true
}

func (p *Pipeline) move(ctx context.Context) *StageResult {
	stage := newStage(StageMove)
	defer stage.finish()

	exclude, err := p.cfg.ExcludePatterns()
	if err != nil {
		stage.abort(p.cfg.Source, err)
		return stage
	}

	log(ctx).Info().Str("stage", StageMove).Msgf("Copying %s to %s", p.cfg.Source, p.cfg.Output)
	copied, err := mover.Move(ctx, p.cfg.Source, p.cfg.Output, mover.Options{
		Exclude: exclude,
		Entry:   p.cfg.Entry,
		Clean:   p.cfg.Clean,
	})
	stage.Processed = len(copied)
	if err != nil {
		log(ctx).Error().Str("stage", StageMove).Err(err).Msg("Failed to copy sources")
		stage.abort(p.cfg.Source, err)
	}

	return stage
}

// Snapshot lists the scripts and components below root in lexical order
func Snapshot(root string) (*WorkList, error) {
	fsys := os.DirFS(root)
	work := &WorkList{}

	var err error
	work.Scripts, err = doublestar.Glob(fsys, "**/*.js")
	if err != nil {
		return nil, eris.Wrapf(err, "failed to list scripts in %s", root)
	}

	work.Components, err = doublestar.Glob(fsys, "**/*"+sfc.Ext)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to list components in %s", root)
	}

	sort.Strings(work.Scripts)
	sort.Strings(work.Components)
	return work, nil
}

func (p *Pipeline) transformScripts(ctx context.Context, files []string) *StageResult {
	return p.runBatch(ctx, StageScripts, files, false, func(ctx context.Context, path string) ([]string, error) {
		return nil, p.scripts.TransformFile(ctx, path)
	})
}

func (p *Pipeline) compileComponents(ctx context.Context, files []string) *StageResult {
	return p.runBatch(ctx, StageComponents, files, p.cfg.FailFast, func(ctx context.Context, path string) ([]string, error) {
		result, err := p.components.CompileFile(ctx, path)
		if err != nil {
			return nil, err
		}

		return result.Warnings, nil
	})
}

func (p *Pipeline) compileGlobalStyle(ctx context.Context) *StageResult {
	stage := newStage(StageGlobalStyle)
	defer stage.finish()
	defer p.tick()

	src := filepath.Join(p.cfg.Output, filepath.FromSlash(p.cfg.Style.Global))
	dest := filepath.Join(p.cfg.Output, filepath.FromSlash(p.cfg.Style.GlobalOut))

	css, err := p.buildGlobalStyle(ctx, src, dest)
	if err != nil {
		log(ctx).Error().Str("stage", StageGlobalStyle).Str("path", src).Err(err).Msgf("Failed to compile %s", src)
		stage.abort(src, err)
		return stage
	}

	log(ctx).Debug().Str("stage", StageGlobalStyle).Str("path", dest).Msgf("Wrote %d bytes to %s", len(css), dest)
	stage.done()
	return stage
}

// buildGlobalStyle only writes dest after the stylesheet compiled successfully
func (p *Pipeline) buildGlobalStyle(ctx context.Context, src, dest string) ([]byte, error) {
	data, err := os.ReadFile(src)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to read global stylesheet %s", src)
	}

	css, err := p.styles.Compile(ctx, data, src)
	if err != nil {
		return nil, err
	}

	err = os.MkdirAll(filepath.Dir(dest), 0o755)
	if err != nil {
		return nil, eris.Wrapf(err, "Failed to create %s", filepath.Dir(dest))
	}

	err = os.WriteFile(dest, css, 0o644)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to write %s", dest)
	}

	return css, nil
}

func (p *Pipeline) precompress(ctx context.Context) *StageResult {
	files, err := doublestar.Glob(os.DirFS(p.cfg.Output), compressPattern)
	if err != nil {
		stage := newStage(StageCompress)
		stage.abort(p.cfg.Output, eris.Wrap(err, "failed to list output files"))
		return stage.finish()
	}

	sort.Strings(files)
	return p.runBatch(ctx, StageCompress, files, false, compressFile)
}

// runBatch calls fn for every file with at most cfg.Workers() calls running at once. Without
// failFast every file is attempted; with it the first error cancels the files that haven't
// started yet and those are counted as skipped.
func (p *Pipeline) runBatch(ctx context.Context, name string, files []string, failFast bool, fn fileFunc) *StageResult {
	stage := newStage(name)
	logger := log(ctx).With().Str("stage", name).Logger()
	logger.Info().Msgf("Processing %d files", len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Workers())

	for _, item := range files {
		path := filepath.Join(p.cfg.Output, filepath.FromSlash(item))
		g.Go(func() error {
			defer p.tick()
			if gctx.Err() != nil {
				stage.skip()
				return nil
			}

			warnings, err := fn(gctx, path)
			for _, msg := range warnings {
				logger.Warn().Str("path", path).Msgf("%s: %s", path, msg)
			}
			stage.warn(len(warnings))

			if err != nil {
				if gctx.Err() != nil && eris.Is(err, gctx.Err()) {
					stage.skip()
					return nil
				}

				logger.Error().Str("path", path).Err(err).Msgf("Failed to process %s", path)
				stage.fail(path, err)
				if failFast {
					return err
				}
				return nil
			}

			logger.Debug().Str("path", path).Msgf("Processed %s", path)
			stage.done()
			return nil
		})
	}

	// errors were recorded in the stage
	_ = g.Wait()
	return stage.finish()
}

func (p *Pipeline) newProgressBar(total int) *progressbar.ProgressBar {
	if p.Quiet || os.Getenv("CI") == "true" {
		return progressbar.NewOptions(total, progressbar.OptionSetVisibility(false))
	}

	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription("Building"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
}

func (p *Pipeline) tick() {
	if p.bar != nil {
		_ = p.bar.Add(1)
	}
}
