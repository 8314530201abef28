package pacman

import (
	"archive/tar"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/klauspost/compress/zstd"
)

type archiveEntry struct {
	name string
	body string
	mode int64
	dir  bool
}

func writeKeyringArchive(t *testing.T, path string, entries []archiveEntry) {
	t.Helper()

	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}

	var w io.Writer = f
	var finish func()
	switch filepath.Ext(path) {
	case ".zst":
		enc, err := zstd.NewWriter(f)
		if err != nil {
			t.Fatal(err)
		}
		w = enc
		finish = func() {
			if err := enc.Close(); err != nil {
				t.Fatal(err)
			}
		}
	case ".gz":
		gz := gzip.NewWriter(f)
		w = gz
		finish = func() {
			if err := gz.Close(); err != nil {
				t.Fatal(err)
			}
		}
	default:
		finish = func() {}
	}

	tw := tar.NewWriter(w)
	for _, e := range entries {
		hdr := &tar.Header{
			Name: e.name,
			Mode: e.mode,
			Uid:  os.Getuid(),
			Gid:  os.Getgid(),
		}
		if e.dir {
			hdr.Typeflag = tar.TypeDir
		} else {
			hdr.Typeflag = tar.TypeReg
			hdr.Size = int64(len(e.body))
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatal(err)
		}
		if !e.dir {
			if _, err := tw.Write([]byte(e.body)); err != nil {
				t.Fatal(err)
			}
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	finish()
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
}

func keyringEntries() []archiveEntry {
	return []archiveEntry{
		{name: ".PKGINFO", body: "pkgname = archlinux-keyring", mode: 0644},
		{name: "usr/share/pacman/keyrings/", dir: true, mode: 0755},
		{name: "usr/share/pacman/keyrings/archlinux.gpg", body: "keyring-data", mode: 0640},
		{name: "usr/share/pacman/keyrings/archlinux-trusted", body: "trusted-ids", mode: 0644},
		{name: "usr/share/pacman/keyrings/archlinux-revoked.gpg", body: "revoked-data", mode: 0644},
		{name: "etc/motd", body: "unrelated", mode: 0644},
	}
}

func TestExtractKeyrings(t *testing.T) {
	t.Parallel()

	for _, ext := range []string{".tar", ".tar.gz", ".tar.zst"} {
		ext := ext
		t.Run(ext, func(t *testing.T) {
			t.Parallel()

			dir := t.TempDir()
			archive := filepath.Join(dir, "archlinux-keyring-1-any.pkg"+ext)
			writeKeyringArchive(t, archive, keyringEntries())

			scratch := filepath.Join(dir, "keyrings")
			names, err := ExtractKeyrings(archive, scratch)
			if err != nil {
				t.Fatal(err)
			}

			want := []string{"archlinux", "archlinux-revoked"}
			if !reflect.DeepEqual(names, want) {
				t.Errorf("names = %v, want %v", names, want)
			}

			data, err := os.ReadFile(filepath.Join(scratch, "archlinux.gpg"))
			if err != nil {
				t.Fatal(err)
			}
			if string(data) != "keyring-data" {
				t.Errorf("archlinux.gpg content = %q", data)
			}

			st, err := os.Stat(filepath.Join(scratch, "archlinux.gpg"))
			if err != nil {
				t.Fatal(err)
			}
			if st.Mode().Perm() != 0640 {
				t.Errorf("archlinux.gpg mode = %o, want 640", st.Mode().Perm())
			}

			// extracted even without the keyring extension
			if _, err := os.Stat(filepath.Join(scratch, "archlinux-trusted")); err != nil {
				t.Error("archlinux-trusted should be extracted:", err)
			}
			// entries outside the keyring prefix are skipped
			if _, err := os.Stat(filepath.Join(scratch, "motd")); err == nil {
				t.Error("etc/motd must not be extracted")
			}
		})
	}
}

func TestExtractKeyringsResetsScratch(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	archive := filepath.Join(dir, "archlinux-keyring-1-any.pkg.tar.gz")
	writeKeyringArchive(t, archive, keyringEntries())

	scratch := filepath.Join(dir, "keyrings")
	stale := filepath.Join(scratch, "stale.gpg")
	if err := os.MkdirAll(scratch, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(stale, []byte("stale"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := ExtractKeyrings(archive, scratch); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(stale); err == nil {
		t.Error("stale content must not survive extraction")
	}
}

func TestExtractKeyringsRejectsTraversal(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	archive := filepath.Join(dir, "evil-1-any.pkg.tar")
	writeKeyringArchive(t, archive, []archiveEntry{
		{name: "usr/share/pacman/keyrings/../../../evil.gpg", body: "evil", mode: 0644},
	})

	if _, err := ExtractKeyrings(archive, filepath.Join(dir, "keyrings")); err == nil {
		t.Fatal("directory traversal entry should be rejected")
	}
	if _, err := os.Stat(filepath.Join(dir, "evil.gpg")); err == nil {
		t.Error("traversal entry must not be written")
	}
}
