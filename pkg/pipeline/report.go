package pipeline

import (
	"os"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/ngld/knossos/packages/vuelib-tools/pkg/styles"
)

// ErrBuildFailed is returned by Report.Err() if any stage recorded an error
var ErrBuildFailed = eris.New("build failed")

// Stage names as they appear in logs and reports
const (
	StageMove        = "move"
	StageScripts     = "scripts"
	StageComponents  = "components"
	StageGlobalStyle = "global-style"
	StageCompress    = "precompress"
)

// FileError records a failure for a single file
type FileError struct {
	Path    string `yaml:"path"`
	Message string `yaml:"message"`
	Err     error  `yaml:"-"`
}

func newFileError(path string, err error) *FileError {
	return &FileError{Path: path, Message: err.Error(), Err: err}
}

// StageResult collects the outcome of one stage. It's safe for concurrent use while the stage runs.
type StageResult struct {
	Name      string        `yaml:"name"`
	Processed int           `yaml:"processed"`
	Skipped   int           `yaml:"skipped,omitempty"`
	Warnings  int           `yaml:"warnings,omitempty"`
	Errors    []*FileError  `yaml:"errors,omitempty"`
	Fatal     *FileError    `yaml:"fatal,omitempty"`
	Duration  time.Duration `yaml:"duration"`

	lock  sync.Mutex
	start time.Time
}

func newStage(name string) *StageResult {
	return &StageResult{Name: name, start: time.Now()}
}

func (s *StageResult) done() {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.Processed++
}

func (s *StageResult) skip() {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.Skipped++
}

func (s *StageResult) warn(count int) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.Warnings += count
}

func (s *StageResult) fail(path string, err error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.Errors = append(s.Errors, newFileError(path, err))
}

func (s *StageResult) abort(path string, err error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.Fatal = newFileError(path, err)
}

func (s *StageResult) finish() *StageResult {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.Duration = time.Since(s.start).Round(time.Millisecond)
	return s
}

// Failed reports whether the stage recorded a fatal or a per-file error
func (s *StageResult) Failed() bool {
	return s.Fatal != nil || len(s.Errors) > 0
}

// Report summarises a pipeline run
type Report struct {
	Variant  styles.Variant `yaml:"variant"`
	Source   string         `yaml:"source"`
	Output   string         `yaml:"output"`
	Started  time.Time      `yaml:"started"`
	Duration time.Duration  `yaml:"duration"`
	Stages   []*StageResult `yaml:"stages"`

	Interrupted bool `yaml:"interrupted,omitempty"`
}

// Stage returns the result of the named stage or nil if it didn't run
func (r *Report) Stage(name string) *StageResult {
	for _, stage := range r.Stages {
		if stage.Name == name {
			return stage
		}
	}

	return nil
}

// ErrorCount returns the number of fatal and per-file errors over all stages
func (r *Report) ErrorCount() int {
	count := 0
	for _, stage := range r.Stages {
		count += len(stage.Errors)
		if stage.Fatal != nil {
			count++
		}
	}

	return count
}

// Err returns an error matching ErrBuildFailed if any stage failed or the build was interrupted
func (r *Report) Err() error {
	if r.Interrupted {
		return eris.Wrapf(ErrBuildFailed, "interrupted with %d error(s)", r.ErrorCount())
	}

	failed := []string{}
	for _, stage := range r.Stages {
		if stage.Failed() {
			failed = append(failed, stage.Name)
		}
	}

	if len(failed) == 0 {
		return nil
	}

	return eris.Wrapf(ErrBuildFailed, "%d error(s) in %v", r.ErrorCount(), failed)
}

// WriteYAML stores the report at path
func (r *Report) WriteYAML(path string) error {
	data, err := yaml.Marshal(r)
	if err != nil {
		return eris.Wrap(err, "failed to encode report")
	}

	err = os.WriteFile(path, data, 0o644)
	if err != nil {
		return eris.Wrapf(err, "failed to write %s", path)
	}

	return nil
}
