package attach

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
)

// unpack stores r under destDir. Zip archives are extracted with their
// permission bits, .zst files are decompressed, anything else is copied.
func unpack(r io.Reader, name string, destDir string) error {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".zip":
		return unzip(r, destDir)
	case ".zst":
		dec, err := zstd.NewReader(r)
		if err != nil {
			return fmt.Errorf("failed to create zstd reader: %w", err)
		}
		defer dec.Close()
		return writeFile(filepath.Join(destDir, strings.TrimSuffix(name, filepath.Ext(name))), dec, 0o644)
	default:
		return writeFile(filepath.Join(destDir, name), r, 0o644)
	}
}

func unzip(r io.Reader, destDir string) error {
	// zip needs random access
	tmp, err := os.CreateTemp("", "disttester-*.zip")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	size, err := io.Copy(tmp, r)
	if err != nil {
		return fmt.Errorf("failed to buffer archive: %w", err)
	}
	zr, err := zip.NewReader(tmp, size)
	if err != nil {
		return fmt.Errorf("failed to read zip archive: %w", err)
	}

	root, err := filepath.Abs(destDir)
	if err != nil {
		return err
	}
	for _, f := range zr.File {
		target := filepath.Join(root, f.Name)
		if target != root && !strings.HasPrefix(target, root+string(os.PathSeparator)) {
			return fmt.Errorf("archive entry %q escapes the destination", f.Name)
		}
		mode := f.Mode()
		if mode.IsDir() {
			if err := os.MkdirAll(target, mode.Perm()|0o700); err != nil {
				return err
			}
			continue
		}
		if !mode.IsRegular() {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("failed to open archive entry %s: %w", f.Name, err)
		}
		err = writeFile(target, rc, mode.Perm())
		rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func writeFile(path string, r io.Reader, perm os.FileMode) error {
	out, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("failed to create file %s: %w", path, err)
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return fmt.Errorf("failed to write file %s: %w", path, err)
	}
	if err := out.Close(); err != nil {
		return err
	}
	// umask may have narrowed the mode
	return os.Chmod(path, perm)
}
