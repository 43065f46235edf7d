package pipeline

import (
	"context"
	"io"
	"os"

	"github.com/andybalholm/brotli"
	"github.com/rotisserie/eris"
)

// CompressedExt is appended to the name of every precompressed file
const CompressedExt = ".br"

// compressPattern matches the files that get a brotli sibling
const compressPattern = "**/*.{js,css}"

func compressFile(ctx context.Context, path string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	in, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "Failed to open file %s", path)
	}
	defer in.Close()

	destPath := path + CompressedExt
	out, err := os.Create(destPath)
	if err != nil {
		return nil, eris.Wrapf(err, "Failed to create %s", destPath)
	}

	brw := brotli.NewWriterLevel(out, brotli.BestCompression)
	_, err = io.Copy(brw, in)
	if err != nil {
		out.Close()
		return nil, eris.Wrapf(err, "Failed to compress %s", path)
	}

	err = brw.Close()
	if err != nil {
		out.Close()
		return nil, eris.Wrapf(err, "Failed to compress %s", path)
	}

	err = out.Close()
	if err != nil {
		return nil, eris.Wrapf(err, "Failed to write %s", destPath)
	}

	return nil, nil
}
