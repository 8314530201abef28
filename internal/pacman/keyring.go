package pacman

import (
	"archive/tar"
	"compress/gzip"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

const (
	// keyringEntryPrefix selects the signing-key files inside a keyring
	// package archive.
	keyringEntryPrefix = "usr/share/pacman/keyrings/"

	// keyringExt marks the key files whose basename becomes a keyring
	// identifier for pacman-key --populate.
	keyringExt = ".gpg"
)

// validateEntryName rejects archive entry names that would escape the
// scratch directory.
func validateEntryName(name string) error {
	clean := filepath.Clean(name)
	if strings.Contains(clean, "..") {
		return errors.New("unsafe archive entry (contains directory traversal): " + name)
	}
	if filepath.IsAbs(clean) {
		return errors.New("unsafe archive entry (absolute path not allowed): " + name)
	}
	return nil
}

// openPackageArchive opens a package archive as a tar stream, choosing
// the decompressor from the file name. The caller must invoke the
// returned close function.
func openPackageArchive(path string) (*tar.Reader, func() error, error) {
	f, err := os.Open(path) // #nosec G304 - path comes from the validated cache directory list
	if err != nil {
		return nil, nil, err
	}

	var r io.Reader
	closeFile := func() error { return f.Close() }
	switch filepath.Ext(path) {
	case ".zst":
		dec, err := zstd.NewReader(f)
		if err != nil {
			_ = f.Close()
			return nil, nil, errors.Wrap(err, path)
		}
		r = dec
		closeFile = func() error {
			dec.Close()
			return f.Close()
		}
	case ".xz":
		xr, err := xz.NewReader(f)
		if err != nil {
			_ = f.Close()
			return nil, nil, errors.Wrap(err, path)
		}
		r = xr
	case ".gz":
		gr, err := gzip.NewReader(f)
		if err != nil {
			_ = f.Close()
			return nil, nil, errors.Wrap(err, path)
		}
		r = gr
	default:
		r = f
	}

	return tar.NewReader(r), closeFile, nil
}

// extractEntry writes one archive entry to dest and applies the entry's
// recorded mode, owner, and group. The key-management collaborator
// trusts filesystem ownership, so metadata fidelity is required.
func extractEntry(tr *tar.Reader, hdr *tar.Header, dest string) error {
	f, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600) // #nosec G304 - dest is below the freshly created scratch directory
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, tr); err != nil { // #nosec G110 - keyring packages are small, trusted archives
		_ = f.Close()
		return errors.Wrap(err, dest)
	}
	if err := f.Chmod(os.FileMode(hdr.Mode)); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Chown(hdr.Uid, hdr.Gid); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// ExtractKeyrings streams the package archive at path and extracts the
// signing-key files under usr/share/pacman/keyrings/ into scratch.
//
// scratch is removed and recreated first; extraction never merges with
// stale content. The returned identifiers are the extracted ".gpg"
// filenames with the extension stripped, without duplicates, in archive
// order.
func ExtractKeyrings(path, scratch string) ([]string, error) {
	if err := os.RemoveAll(scratch); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(scratch, 0755); err != nil {
		return nil, err
	}

	tr, closeArchive, err := openPackageArchive(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = closeArchive()
	}()

	var names []string
	seen := make(map[string]bool)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, path)
		}
		if !strings.HasPrefix(hdr.Name, keyringEntryPrefix) {
			continue
		}
		fn := hdr.Name[len(keyringEntryPrefix):]
		if fn == "" || hdr.Typeflag != tar.TypeReg {
			continue
		}
		if err := validateEntryName(fn); err != nil {
			return nil, errors.Wrap(err, path)
		}

		if strings.HasSuffix(fn, keyringExt) {
			name := strings.TrimSuffix(fn, keyringExt)
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}

		dest := filepath.Join(scratch, fn)
		slog.Debug("extracting keyring file", "entry", hdr.Name, "dest", dest)
		if err := extractEntry(tr, hdr, dest); err != nil {
			return nil, err
		}
	}

	return names, nil
}
