package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/zeebo/blake3"

	"github.com/justicz/stegpack"
	"github.com/justicz/stegpack/imageio"
)

// readImage decodes the image file at path into a sample buffer
func readImage(path string) (*stegpack.PixelBuffer, imageio.Format, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("opening image: %w", err)
	}
	defer file.Close()

	pb, format, err := imageio.Decode(file)
	if err != nil {
		return nil, "", fmt.Errorf("%s: %w", path, err)
	}
	return pb, format, nil
}

// writeFile creates path through a uniquely named temporary file in the
// same directory, so concurrent runs never share an intermediate path and
// readers never see a partial file. Existing files are only replaced when
// overwrite is set; otherwise the result is hard linked into place, which
// fails rather than replacing a file that appeared while writing.
func writeFile(path string, perm fs.FileMode, overwrite bool, write func(io.Writer) error) (err error) {
	if !overwrite {
		if _, err := os.Lstat(path); err == nil {
			return existsError(path)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}

	// A short fixed pattern keeps the temporary name within the length
	// limit whenever path's own name is
	tmp, err := os.CreateTemp(filepath.Dir(path), ".stegpack-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temporary file: %w", err)
	}
	renamed := false
	defer func() {
		if err != nil {
			tmp.Close()
		}
		if !renamed {
			os.Remove(tmp.Name())
		}
	}()

	if err = write(tmp); err != nil {
		return err
	}
	if err = tmp.Chmod(perm); err != nil {
		return fmt.Errorf("setting permissions on %s: %w", path, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", tmp.Name(), err)
	}

	if overwrite {
		if err = os.Rename(tmp.Name(), path); err != nil {
			return fmt.Errorf("moving result into place: %w", err)
		}
		renamed = true
		return nil
	}

	if err = os.Link(tmp.Name(), path); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return existsError(path)
		}
		return fmt.Errorf("moving result into place: %w", err)
	}
	return nil
}

func existsError(path string) error {
	return fmt.Errorf("%s already exists (use --force to replace it)", path)
}

// contentDigest returns the hex BLAKE3-256 digest of data, logged so the
// hidden and recovered files can be compared without exposing them
func contentDigest(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}
