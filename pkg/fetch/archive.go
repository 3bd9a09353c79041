package fetch

import (
	"archive/tar"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"

	"github.com/matzehuels/depstage/pkg/errors"
)

// maxFileSize caps a single extracted file, guarding against
// decompression bombs in a malicious artifact.
const maxFileSize = 1 << 30

// unpack extracts a tar.gz archive into dest. Every member path is
// validated before any byte is written so a crafted archive cannot reach
// outside the destination directory.
func unpack(archive, dest string) error {
	f, err := os.Open(archive)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "cannot open downloaded archive")
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInvalidPath, err, "artifact is not a gzip stream")
	}
	defer gz.Close()

	if err := os.MkdirAll(dest, 0o755); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "cannot create artifact directory")
	}

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Wrap(errors.ErrCodeInvalidPath, err, "corrupt artifact archive")
		}

		if err := errors.ValidateArchivePath(hdr.Name); err != nil {
			return err
		}
		target := filepath.Join(dest, filepath.FromSlash(hdr.Name))

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return errors.Wrap(errors.ErrCodeInternal, err, "cannot extract directory %s", hdr.Name)
			}
		case tar.TypeReg:
			if err := extractFile(tr, target, hdr.FileInfo().Mode()); err != nil {
				return errors.Wrap(errors.ErrCodeInternal, err, "cannot extract %s", hdr.Name)
			}
		default:
			// Symlinks and special files never belong in a package
			// artifact; skipping them keeps extraction contained.
		}
	}
}

func extractFile(r io.Reader, target string, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}

	f, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode.Perm())
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = io.Copy(f, io.LimitReader(r, maxFileSize))
	return err
}
