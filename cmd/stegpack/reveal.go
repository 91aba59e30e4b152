package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"

	"github.com/justicz/stegpack"
	"github.com/justicz/stegpack/internal/safename"
)

func runReveal(args []string, stdout, stderr io.Writer) error {
	var common commonFlags
	var imagePath, outDir string
	var force, strict, toStdout bool

	flagSet := pflag.NewFlagSet("stegpack reveal", pflag.ContinueOnError)
	common.add(flagSet)
	flagSet.StringVarP(&imagePath, "image", "i", "", "image carrying a hidden payload")
	flagSet.StringVarP(&outDir, "out-dir", "d", "", "directory for the recovered file (default: output.dir from config)")
	flagSet.BoolVar(&force, "force", false, "replace an existing file of the same name")
	flagSet.BoolVar(&strict, "strict", false, "fail when the declared size does not match the content")
	flagSet.BoolVar(&toStdout, "stdout", false, "write the recovered content to stdout instead of a file")

	if done, err := parseFlags(flagSet, args, stderr); done || err != nil {
		return err
	}
	if imagePath == "" {
		return usagef("reveal requires --image")
	}

	env, err := common.setup(stdout, stderr)
	if err != nil {
		return err
	}
	if outDir == "" {
		outDir = env.config.Output.Dir
	}

	img, _, err := readImage(imagePath)
	if err != nil {
		return err
	}

	payload, err := stegpack.Reveal(img)
	if err != nil {
		return fmt.Errorf("%s: %w", imagePath, err)
	}

	if err := payload.CheckSize(); err != nil {
		if strict || env.config.StrictSize {
			return err
		}
		env.logger.Warn("declared size does not match content",
			slog.Int64("declared", payload.DeclaredSize),
			slog.Int("bytes", len(payload.Content)),
		)
	}

	attrs := []interface{}{
		slog.String("image", imagePath),
		slog.String("filename", payload.Filename),
		slog.Int("bytes", len(payload.Content)),
		slog.String("digest", contentDigest(payload.Content)),
	}

	if toStdout {
		env.logger.Info("recovered payload", attrs...)
		_, err := env.stdout.Write(payload.Content)
		return err
	}

	name := safename.WithPrefix(env.config.Output.Prefix, payload.Filename)
	if name != env.config.Output.Prefix+payload.Filename {
		env.logger.Warn("sanitized recovered filename",
			slog.String("filename", payload.Filename),
			slog.String("written_as", name),
		)
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	outPath := filepath.Join(outDir, name)

	err = writeFile(outPath, 0o600, force || env.config.Output.Overwrite, func(w io.Writer) error {
		_, err := w.Write(payload.Content)
		return err
	})
	if err != nil {
		return err
	}

	env.logger.Info("recovered payload", append(attrs, slog.String("path", outPath))...)
	fmt.Fprintln(env.stdout, outPath)
	return nil
}
