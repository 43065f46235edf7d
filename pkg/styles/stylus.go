package styles

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"mvdan.cc/sh/v3/shell"
)

// StylusRenderer runs the stylus CLI. Command is split like a shell would split
// it so values like "npx stylus" or "$NODE_BIN/stylus" work.
type StylusRenderer struct {
	Command string
}

// Args builds the stylus command line for the given options
func (r StylusRenderer) Args(opts RenderOptions) ([]string, error) {
	command := r.Command
	if command == "" {
		command = "stylus"
	}

	args, err := shell.Fields(command, os.Getenv)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to parse stylus command %s", command)
	}
	if len(args) == 0 {
		return nil, eris.New("empty stylus command")
	}

	if opts.InlineURLs {
		args = append(args, "--inline")
	}

	if opts.Filename != "" {
		args = append(args, "--include", filepath.Dir(opts.Filename))
	}

	for _, item := range opts.Imports {
		args = append(args, "--import", item)
	}

	return args, nil
}

// Render pipes src through stylus and returns its stdout
func (r StylusRenderer) Render(ctx context.Context, src []byte, opts RenderOptions) ([]byte, error) {
	args, err := r.Args(opts)
	if err != nil {
		return nil, err
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Stdin = bytes.NewReader(src)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err = cmd.Run()
	if err != nil {
		details := strings.TrimSpace(stderr.String())
		if details == "" {
			details = err.Error()
		}
		return nil, eris.Wrapf(ErrRender, "%s: %s", opts.Filename, details)
	}

	return stdout.Bytes(), nil
}
