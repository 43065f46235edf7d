// Package mover copies the component sources into the build directory.
package mover

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"

	"github.com/rotisserie/eris"
)

// Options controls which parts of the source tree are copied
type Options struct {
	// Exclude skips every file or directory whose slash-separated relative path matches
	Exclude []*regexp.Regexp
	// Entry is the root entry script; only the top-level file with this name is skipped
	Entry string
	// Clean removes dest before copying
	Clean bool
}

// Excluded reports whether the relative path rel is filtered out by opts
func (o Options) Excluded(rel string) bool {
	rel = filepath.ToSlash(rel)
	for _, re := range o.Exclude {
		if re.MatchString(rel) {
			return true
		}
	}

	return o.Entry != "" && rel == o.Entry
}

// Move copies src into dest and returns the copied relative paths in lexical order
func Move(ctx context.Context, src, dest string, opts Options) ([]string, error) {
	info, err := os.Stat(src)
	if err != nil {
		return nil, eris.Wrapf(err, "Could not find source directory %s", src)
	}

	if !info.IsDir() {
		return nil, eris.Errorf("%s is not a directory!", src)
	}

	if opts.Clean {
		err = os.RemoveAll(dest)
		if err != nil {
			return nil, eris.Wrapf(err, "Could not delete %s", dest)
		}
	}

	err = os.MkdirAll(dest, info.Mode().Perm()|0o700)
	if err != nil {
		return nil, eris.Wrapf(err, "Failed to create %s", dest)
	}

	copied := []string{}
	err = filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}

		if opts.Excluded(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		target := filepath.Join(dest, rel)
		switch {
		case d.IsDir():
			info, err := d.Info()
			if err != nil {
				return err
			}

			err = os.MkdirAll(target, info.Mode().Perm()|0o700)
			if err != nil {
				return eris.Wrapf(err, "Failed to create %s", target)
			}
		case d.Type()&fs.ModeSymlink != 0:
			link, err := os.Readlink(path)
			if err != nil {
				return eris.Wrapf(err, "Failed to read link %s", path)
			}

			_ = os.Remove(target)
			err = os.Symlink(link, target)
			if err != nil {
				return eris.Wrapf(err, "Failed to link %s", target)
			}
		default:
			err = copyFile(path, target)
			if err != nil {
				return err
			}
		}

		copied = append(copied, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return copied, eris.Wrapf(err, "Failed to copy %s to %s", src, dest)
	}

	return copied, nil
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return eris.Wrapf(err, "Failed to open file %s", src)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return eris.Wrapf(err, "Failed to stat %s", src)
	}

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return eris.Wrapf(err, "Failed to create %s", dest)
	}

	_, err = io.Copy(out, in)
	if err != nil {
		out.Close()
		return eris.Wrapf(err, "Failed to copy %s", src)
	}

	err = out.Close()
	if err != nil {
		return eris.Wrapf(err, "Failed to write %s", dest)
	}

	return nil
}
