package main

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/justicz/stegpack"
	"github.com/justicz/stegpack/imageio"
	"github.com/justicz/stegpack/internal/config"
)

// writeCover stores a noisy PNG of the given size and returns its path
func writeCover(t *testing.T, dir string, width, height int) string {
	t.Helper()

	rng := rand.New(rand.NewSource(int64(width*height + 1)))
	samples := make([]byte, width*height*3)
	rng.Read(samples)
	pb := &stegpack.PixelBuffer{Width: width, Height: height, Channels: 3, Samples: samples}

	path := filepath.Join(dir, "cover.png")
	writePNG(t, path, pb)
	return path
}

func writePNG(t *testing.T, path string, pb *stegpack.PixelBuffer) {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, imageio.Encode(&buf, pb, imageio.PNG))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv(config.EnvVar, "")

	var stdout, stderr bytes.Buffer
	err := run(args, &stdout, &stderr)
	return stdout.String(), stderr.String(), err
}

func exitCode(err error) int {
	var coder interface{ ExitCode() int }
	if errors.As(err, &coder) {
		return coder.ExitCode()
	}
	return 1
}

func TestHideRevealRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cover := writeCover(t, dir, 64, 64)

	secret := filepath.Join(dir, "secret.txt")
	require.NoError(t, os.WriteFile(secret, []byte("the eagle has landed"), 0o600))

	stego := filepath.Join(dir, "stego.png")
	stdout, stderr, err := runCLI(t, "hide", "--image", cover, "--file", secret, "--out", stego)
	require.NoError(t, err, stderr)
	require.Equal(t, stego+"\n", stdout)
	require.Contains(t, stderr, "hid payload")
	require.Contains(t, stderr, contentDigest([]byte("the eagle has landed")))

	outDir := filepath.Join(dir, "recovered")
	stdout, stderr, err = runCLI(t, "reveal", "--image", stego, "--out-dir", outDir)
	require.NoError(t, err, stderr)

	want := filepath.Join(outDir, "decoded_secret.txt")
	require.Equal(t, want+"\n", stdout)

	got, err := os.ReadFile(want)
	require.NoError(t, err)
	require.Equal(t, "the eagle has landed", string(got))
}

func TestHideSupportsOtherLosslessFormats(t *testing.T) {
	dir := t.TempDir()
	cover := writeCover(t, dir, 32, 32)
	secret := filepath.Join(dir, "data.bin")
	require.NoError(t, os.WriteFile(secret, []byte{0, 1, 2, 3}, 0o600))

	for _, out := range []string{"stego.bmp", "stego.tiff"} {
		stego := filepath.Join(dir, out)
		_, stderr, err := runCLI(t, "hide", "-i", cover, "-f", secret, "-o", stego)
		require.NoError(t, err, stderr)

		stdout, stderr, err := runCLI(t, "reveal", "-i", stego, "--stdout")
		require.NoError(t, err, stderr)
		require.Equal(t, string([]byte{0, 1, 2, 3}), stdout)
	}
}

func TestRevealConfinesTraversalNames(t *testing.T) {
	dir := t.TempDir()
	cover := writeCover(t, dir, 48, 48)
	secret := filepath.Join(dir, "payload")
	require.NoError(t, os.WriteFile(secret, []byte("x"), 0o600))

	stego := filepath.Join(dir, "stego.png")
	_, stderr, err := runCLI(t, "hide", "-i", cover, "-f", secret, "--name", "../../escape.txt", "-o", stego)
	require.NoError(t, err, stderr)

	outDir := filepath.Join(dir, "a", "b")
	stdout, stderr, err := runCLI(t, "reveal", "-i", stego, "-d", outDir)
	require.NoError(t, err, stderr)
	require.Equal(t, filepath.Join(outDir, "decoded_escape.txt")+"\n", stdout)
	require.Contains(t, stderr, "sanitized recovered filename")

	_, err = os.Stat(filepath.Join(dir, "escape.txt"))
	require.ErrorIs(t, err, os.ErrNotExist)
	_, err = os.Stat(filepath.Join(dir, "decoded_escape.txt"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestRevealRefusesToOverwrite(t *testing.T) {
	dir := t.TempDir()
	cover := writeCover(t, dir, 32, 32)
	secret := filepath.Join(dir, "notes.md")
	require.NoError(t, os.WriteFile(secret, []byte("# notes"), 0o600))

	stego := filepath.Join(dir, "stego.png")
	_, _, err := runCLI(t, "hide", "-i", cover, "-f", secret, "-o", stego)
	require.NoError(t, err)

	_, _, err = runCLI(t, "reveal", "-i", stego, "-d", dir)
	require.NoError(t, err)

	_, _, err = runCLI(t, "reveal", "-i", stego, "-d", dir)
	require.Error(t, err)
	require.Contains(t, err.Error(), "already exists")

	_, _, err = runCLI(t, "reveal", "-i", stego, "-d", dir, "--force")
	require.NoError(t, err)

	// No temporary files are left behind
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, entry := range entries {
		require.False(t, strings.HasPrefix(entry.Name(), ".stegpack-"), entry.Name())
	}
}

func TestRevealWritesMaximumLengthNames(t *testing.T) {
	dir := t.TempDir()
	cover := writeCover(t, dir, 64, 64)
	secret := filepath.Join(dir, "s")
	require.NoError(t, os.WriteFile(secret, []byte("long"), 0o600))

	// 250 bytes, trimmed to 255 once the prefix is added
	name := strings.Repeat("n", 246) + ".txt"
	stego := filepath.Join(dir, "stego.png")
	_, stderr, err := runCLI(t, "hide", "-i", cover, "-f", secret, "--name", name, "-o", stego)
	require.NoError(t, err, stderr)

	outDir := filepath.Join(dir, "out")
	stdout, stderr, err := runCLI(t, "reveal", "-i", stego, "-d", outDir)
	require.NoError(t, err, stderr)

	want := filepath.Join(outDir, "decoded_"+strings.Repeat("n", 243)+".txt")
	require.Equal(t, want+"\n", stdout)
	require.Len(t, filepath.Base(want), 255)

	got, err := os.ReadFile(want)
	require.NoError(t, err)
	require.Equal(t, "long", string(got))
}

func TestHideRejectsLossyOutput(t *testing.T) {
	dir := t.TempDir()
	cover := writeCover(t, dir, 16, 16)
	secret := filepath.Join(dir, "s")
	require.NoError(t, os.WriteFile(secret, []byte("s"), 0o600))

	_, _, err := runCLI(t, "hide", "-i", cover, "-f", secret, "-o", filepath.Join(dir, "out.jpg"))
	require.Error(t, err)
	require.Equal(t, 2, exitCode(err))

	_, err = os.Stat(filepath.Join(dir, "out.jpg"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestHideReportsCapacity(t *testing.T) {
	dir := t.TempDir()
	cover := writeCover(t, dir, 4, 4)
	secret := filepath.Join(dir, "big.bin")
	require.NoError(t, os.WriteFile(secret, make([]byte, 1000), 0o600))

	_, _, err := runCLI(t, "hide", "-i", cover, "-f", secret, "-o", filepath.Join(dir, "out.png"))
	require.ErrorIs(t, err, stegpack.ErrCapacityExceeded)
	require.Equal(t, 1, exitCode(err))
}

func TestRevealStrictSize(t *testing.T) {
	dir := t.TempDir()

	// Frame claiming 99 bytes around 3 bytes of content
	meta := `{"filename":"liar.txt","size":99}`
	blob := make([]byte, 4)
	binary.BigEndian.PutUint32(blob, uint32(len(meta)))
	blob = append(append(blob, meta...), "abc"...)

	cover, err := stegpack.NewPixelBuffer(32, 32, 3)
	require.NoError(t, err)
	stego, err := stegpack.Embed(cover, blob)
	require.NoError(t, err)
	path := filepath.Join(dir, "liar.png")
	writePNG(t, path, stego)

	_, _, err = runCLI(t, "reveal", "-i", path, "--stdout", "--strict")
	require.ErrorIs(t, err, stegpack.ErrSizeMismatch)

	stdout, stderr, err := runCLI(t, "reveal", "-i", path, "--stdout")
	require.NoError(t, err)
	require.Equal(t, "abc", stdout)
	require.Contains(t, stderr, "declared size does not match content")
}

func TestCapacity(t *testing.T) {
	dir := t.TempDir()
	cover := writeCover(t, dir, 64, 64)

	stdout, _, err := runCLI(t, "capacity", "-i", cover)
	require.NoError(t, err)
	require.Contains(t, stdout, "samples:           12288\n")
	require.Contains(t, stdout, "max data bytes:    1532\n")
}

func TestConfigFileIsHonoured(t *testing.T) {
	dir := t.TempDir()
	cover := writeCover(t, dir, 32, 32)
	secret := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(secret, []byte("a"), 0o600))
	stego := filepath.Join(dir, "stego")

	outDir := filepath.Join(dir, "out")
	cfgPath := filepath.Join(dir, "stegpack.yaml")
	cfg := "log:\n  level: error\noutput:\n  dir: " + outDir + "\n  prefix: got_\n  format: bmp\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o600))

	// No extension on --out, so the configured format applies
	_, stderr, err := runCLI(t, "hide", "--config", cfgPath, "-i", cover, "-f", secret, "-o", stego)
	require.NoError(t, err)
	require.Empty(t, stderr)

	stdout, _, err := runCLI(t, "reveal", "--config", cfgPath, "-i", stego)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(outDir, "got_a.txt")+"\n", stdout)
}

func TestUsageErrors(t *testing.T) {
	_, _, err := runCLI(t)
	require.Equal(t, 2, exitCode(err))

	_, _, err = runCLI(t, "conceal")
	require.Equal(t, 2, exitCode(err))

	_, _, err = runCLI(t, "hide", "--image", "x.png")
	require.Equal(t, 2, exitCode(err))

	_, _, err = runCLI(t, "reveal", "--no-such-flag")
	require.Equal(t, 2, exitCode(err))

	_, _, err = runCLI(t, "capacity", "-i", "a.png", "extra")
	require.Equal(t, 2, exitCode(err))

	_, _, err = runCLI(t, "capacity", "-i", "a.png", "--log-level", "loud")
	require.Equal(t, 2, exitCode(err))
}

func TestHelpAndVersion(t *testing.T) {
	stdout, _, err := runCLI(t, "--version")
	require.NoError(t, err)
	require.Equal(t, "stegpack dev\n", stdout)

	stdout, _, err = runCLI(t, "help")
	require.NoError(t, err)
	require.Contains(t, stdout, "reveal")

	_, stderr, err := runCLI(t, "hide", "--help")
	require.NoError(t, err)
	require.Contains(t, stderr, "--image")
}
