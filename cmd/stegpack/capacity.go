package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/pflag"

	"github.com/justicz/stegpack"
	"github.com/justicz/stegpack/internal/safename"
)

func runCapacity(args []string, stdout, stderr io.Writer) error {
	var common commonFlags
	var imagePath, name string

	flagSet := pflag.NewFlagSet("stegpack capacity", pflag.ContinueOnError)
	common.add(flagSet)
	flagSet.StringVarP(&imagePath, "image", "i", "", "cover image to measure")
	flagSet.StringVar(&name, "name", safename.Fallback, "filename the payload would be stored under")

	if done, err := parseFlags(flagSet, args, stderr); done || err != nil {
		return err
	}
	if imagePath == "" {
		return usagef("capacity requires --image")
	}

	env, err := common.setup(stdout, stderr)
	if err != nil {
		return err
	}

	img, format, err := readImage(imagePath)
	if err != nil {
		return err
	}
	env.logger.Debug("loaded image",
		slog.String("image", imagePath),
		slog.String("format", string(format)),
		slog.Int("samples", img.Capacity()),
	)

	fmt.Fprintf(env.stdout, "dimensions:        %dx%d, %d channels\n", img.Width, img.Height, img.Channels)
	fmt.Fprintf(env.stdout, "samples:           %d\n", img.Capacity())
	fmt.Fprintf(env.stdout, "max data bytes:    %d\n", stegpack.MaxDataLen(img))
	fmt.Fprintf(env.stdout, "max content bytes: %d\n", stegpack.MaxContentLen(img, name))
	return nil
}
