// Package archive creates and extracts the gzip-compressed tar archives that
// hold one backup payload each.
package archive

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Create archives the directory at src into a tar.gz file at dest. The
// archive's single top-level member is named after the base of src.
func Create(src, dest string, quiet bool) error {
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("failed to stat source directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("source is not a directory: %s", src)
	}

	out, err := os.Create(dest) // #nosec G304 - controlled archive path
	if err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}
	defer out.Close()

	var progress *Progress
	if !quiet {
		if total, err := treeSize(src); err == nil {
			progress = NewProgress(total, "Creating archive")
			defer progress.Finish()
		}
	}

	gw := gzip.NewWriter(out)
	tw := tar.NewWriter(gw)
	base := filepath.Base(src)

	walkErr := filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}

		var link string
		if info.Mode()&os.ModeSymlink != 0 {
			if link, err = os.Readlink(path); err != nil {
				return err
			}
		}

		header, err := tar.FileInfoHeader(info, link)
		if err != nil {
			return err
		}
		if rel == "." {
			header.Name = base
		} else {
			header.Name = filepath.ToSlash(filepath.Join(base, rel))
		}
		if err := tw.WriteHeader(header); err != nil {
			return err
		}

		if !info.Mode().IsRegular() {
			return nil
		}
		f, err := os.Open(path) // #nosec G304 - walking controlled tree
		if err != nil {
			return err
		}
		defer f.Close()

		var reader io.Reader = f
		if progress != nil {
			reader = progress.Reader(f)
		}
		if _, err := io.Copy(tw, reader); err != nil {
			return fmt.Errorf("failed to archive %s: %w", path, err)
		}
		return nil
	})
	if walkErr != nil {
		return walkErr
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("failed to finalize archive: %w", err)
	}
	if err := gw.Close(); err != nil {
		return fmt.Errorf("failed to finalize compression: %w", err)
	}
	return out.Close()
}

// Extract unpacks the tar.gz archive at src into the directory dest,
// rejecting members that would escape dest.
func Extract(src, dest string, quiet bool) error {
	f, err := os.Open(src) // #nosec G304 - controlled archive path
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer f.Close()

	var reader io.Reader = f
	var progress *Progress
	if !quiet {
		if info, err := f.Stat(); err == nil {
			progress = NewProgress(info.Size(), "Extracting archive")
			defer progress.Finish()
			reader = progress.Reader(f)
		}
	}

	gr, err := gzip.NewReader(reader)
	if err != nil {
		return fmt.Errorf("failed to read archive compression: %w", err)
	}
	defer gr.Close()

	tr := tar.NewReader(gr)
	cleanDest := filepath.Clean(dest)

	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read archive: %w", err)
		}

		target := filepath.Join(dest, filepath.FromSlash(header.Name)) // #nosec G305 - checked below
		if !strings.HasPrefix(filepath.Clean(target), cleanDest+string(os.PathSeparator)) {
			return fmt.Errorf("archive member escapes destination: %s", header.Name)
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, header.FileInfo().Mode().Perm()); err != nil {
				return err
			}
		case tar.TypeSymlink:
			// A symlink target outside dest would let later members write
			// through it, bypassing the member-path check above.
			if filepath.IsAbs(header.Linkname) {
				return fmt.Errorf("archive symlink escapes destination: %s -> %s", header.Name, header.Linkname)
			}
			resolved := filepath.Clean(filepath.Join(filepath.Dir(target), header.Linkname))
			if !strings.HasPrefix(resolved, cleanDest+string(os.PathSeparator)) {
				return fmt.Errorf("archive symlink escapes destination: %s -> %s", header.Name, header.Linkname)
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			if err := os.Symlink(header.Linkname, target); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, header.FileInfo().Mode().Perm()) // #nosec G304
			if err != nil {
				return err
			}
			if _, err := io.Copy(out, tr); err != nil { // #nosec G110 - backup payloads are operator-provided
				out.Close()
				return fmt.Errorf("failed to extract %s: %w", header.Name, err)
			}
			if err := out.Close(); err != nil {
				return err
			}
		}
	}

	return nil
}

func treeSize(root string) (int64, error) {
	var total int64
	err := filepath.Walk(root, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.Mode().IsRegular() {
			total += info.Size()
		}
		return nil
	})
	return total, err
}
