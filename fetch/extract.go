package fetch

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// extractTarGz unpacks a gzip-compressed tar stream under root, stripping
// exactly one leading path segment from every entry (the conventional
// "package/" wrapper directory). Every resolved entry path is validated to
// stay within root before anything is written.
func extractTarGz(root string, r io.Reader) error {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDecompress, err)
	}
	defer func() { _ = gz.Close() }()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			// The tar reader surfaces truncated gzip streams as
			// unexpected EOF; treat corrupt framing as a decompress
			// failure and bad entries as an extract failure.
			if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, gzip.ErrChecksum) {
				return fmt.Errorf("%w: %v", ErrDecompress, err)
			}
			return fmt.Errorf("%w: %v", ErrExtract, err)
		}

		rel, ok := stripLeadingSegment(hdr.Name)
		if !ok {
			// The wrapper directory itself, or an empty name.
			continue
		}

		dst, err := secureJoin(root, rel)
		if err != nil {
			return err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(dst, 0o755); err != nil {
				return fmt.Errorf("%w: %v", ErrExtract, err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
				return fmt.Errorf("%w: %v", ErrExtract, err)
			}
			if err := writeFile(dst, tr); err != nil {
				return err
			}
		default:
			// Symlinks, devices, and other special entries never occur
			// in registry tarballs; skip rather than fail.
		}
	}
}

// stripLeadingSegment removes the outermost path component of an archive
// entry name. It reports false when nothing remains after stripping.
func stripLeadingSegment(name string) (string, bool) {
	name = strings.TrimPrefix(name, "./")
	idx := strings.IndexByte(name, '/')
	if idx < 0 {
		return "", false
	}
	rest := strings.Trim(name[idx+1:], "/")
	if rest == "" {
		return "", false
	}
	return rest, true
}

// secureJoin joins rel onto root and rejects entries whose resolved path
// would escape the sandbox.
func secureJoin(root, rel string) (string, error) {
	dst := filepath.Join(root, filepath.FromSlash(rel))
	if dst != root && !strings.HasPrefix(dst, root+string(os.PathSeparator)) {
		return "", fmt.Errorf("%w: entry %q escapes extraction root", ErrExtract, rel)
	}
	return dst, nil
}

func writeFile(dst string, r io.Reader) error {
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrExtract, err)
	}
	if _, err := io.Copy(out, r); err != nil {
		_ = out.Close()
		return fmt.Errorf("%w: %v", ErrExtract, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("%w: %v", ErrExtract, err)
	}
	return nil
}
