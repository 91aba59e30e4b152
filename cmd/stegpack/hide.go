package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"

	"github.com/justicz/stegpack"
	"github.com/justicz/stegpack/imageio"
)

func runHide(args []string, stdout, stderr io.Writer) error {
	var common commonFlags
	var imagePath, filePath, name, outPath, formatName string
	var force bool

	flagSet := pflag.NewFlagSet("stegpack hide", pflag.ContinueOnError)
	common.add(flagSet)
	flagSet.StringVarP(&imagePath, "image", "i", "", "cover image (any supported format)")
	flagSet.StringVarP(&filePath, "file", "f", "", "file to hide")
	flagSet.StringVar(&name, "name", "", "filename stored with the payload (default: base name of --file)")
	flagSet.StringVarP(&outPath, "out", "o", "", "where to write the resulting image")
	flagSet.StringVar(&formatName, "format", "", "output format: png, bmp or tiff (default: from --out extension)")
	flagSet.BoolVar(&force, "force", false, "replace --out if it exists")

	if done, err := parseFlags(flagSet, args, stderr); done || err != nil {
		return err
	}
	if imagePath == "" || filePath == "" || outPath == "" {
		return usagef("hide requires --image, --file and --out")
	}

	env, err := common.setup(stdout, stderr)
	if err != nil {
		return err
	}

	format, err := outputFormat(formatName, outPath, env.config.Output.Format)
	if err != nil {
		return err
	}

	cover, coverFormat, err := readImage(imagePath)
	if err != nil {
		return err
	}
	env.logger.Debug("loaded cover image",
		slog.String("image", imagePath),
		slog.String("format", string(coverFormat)),
		slog.Int("width", cover.Width),
		slog.Int("height", cover.Height),
		slog.Int("samples", cover.Capacity()),
	)

	content, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("reading payload: %w", err)
	}
	if name == "" {
		name = filepath.Base(filePath)
	}

	stego, err := stegpack.Hide(cover, name, content)
	if errors.Is(err, stegpack.ErrCapacityExceeded) {
		return fmt.Errorf("%w (at most %d bytes fit under the name %q)", err, stegpack.MaxContentLen(cover, name), name)
	} else if err != nil {
		return err
	}

	err = writeFile(outPath, 0o644, force || env.config.Output.Overwrite, func(w io.Writer) error {
		return imageio.Encode(w, stego, format)
	})
	if err != nil {
		return err
	}

	env.logger.Info("hid payload",
		slog.String("image", outPath),
		slog.String("filename", name),
		slog.Int("bytes", len(content)),
		slog.String("digest", contentDigest(content)),
	)
	fmt.Fprintln(env.stdout, outPath)
	return nil
}

// outputFormat picks the format for a written image: an explicit flag,
// then the path's extension, then the configured default
func outputFormat(flagValue, path, fallback string) (imageio.Format, error) {
	var format imageio.Format
	var err error
	switch {
	case flagValue != "":
		format, err = imageio.ParseFormat(flagValue)
	case filepath.Ext(path) != "":
		format, err = imageio.FormatFromPath(path)
	default:
		format, err = imageio.ParseFormat(fallback)
	}
	if err != nil {
		return "", &usageError{err: err}
	}

	if !format.Lossless() {
		return "", usagef("cannot write %s: %s is lossy and would destroy the hidden data", path, format)
	}
	return format, nil
}
