package pacman

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/ProtonMail/gopenpgp/v3/crypto"
	"github.com/cheggaaa/pb/v3"
	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"

	"github.com/anonymix007/arch-image-builder/internal/build"
)

// PacmanKey invokes pacman-key against the target root's keyring with
// the generated configuration.
func (p *Pacman) PacmanKey(ctx context.Context, args ...string) error {
	if !p.ctx.GPGCheck {
		return errors.New("GPG check disabled")
	}
	argv := []string{
		"pacman-key",
		"--gpgdir=" + p.gpgDir,
		"--config=" + p.ConfigPath(),
	}
	argv = append(argv, args...)
	return build.Run(ctx, p.ctx.Runner, argv)
}

// RecvKeys receives keys from a keyserver via pacman-key.
func (p *Pacman) RecvKeys(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	args := []string{"--recv-keys"}
	args = append(args, keys...)
	return p.PacmanKey(ctx, args...)
}

// LSignKey locally signs a key via pacman-key.
func (p *Pacman) LSignKey(ctx context.Context, key string) error {
	return p.PacmanKey(ctx, "--lsign-key", key)
}

// PopulateKeys populates keyrings via pacman-key. When folder is
// non-empty the keyrings are read from it instead of the default
// location.
func (p *Pacman) PopulateKeys(ctx context.Context, names []string, folder string) error {
	args := []string{"--populate"}
	if folder != "" {
		args = append(args, "--populate-from", folder)
	}
	args = append(args, names...)
	return p.PacmanKey(ctx, args...)
}

// verifyPublicKey parses a downloaded armored public key and checks that
// it carries the key ID configured for the repository.
func verifyPublicKey(path string, repo *Repo) error {
	data, err := os.ReadFile(path) // #nosec G304 - path is below the workspace directory
	if err != nil {
		return err
	}
	key, err := crypto.NewKeyFromArmored(string(data))
	if err != nil {
		return errors.Wrapf(err, "repo %s: bad public key %s", repo.Name, path)
	}

	want := strings.ToUpper(repo.KeyID)
	fingerprint := strings.ToUpper(key.GetFingerprint())
	if key.GetHexKeyID() != want && !strings.HasSuffix(fingerprint, want) {
		return NewConfigError("repo %s: public key fingerprint %s does not match keyid %s",
			repo.Name, fingerprint, repo.KeyID)
	}
	slog.Debug("verified public key", "repo", repo.Name, "fingerprint", fingerprint)
	return nil
}

// InitKeyring initializes the target root's pacman keyring and registers
// the configured repository keys.
//
// Mirrorlist and public key files are fetched concurrently through the
// transfer collaborator; key verification and registration stay serial.
func (p *Pacman) InitKeyring(ctx context.Context) error {
	if !p.ctx.GPGCheck {
		return nil
	}
	if exists(filepath.Join(p.gpgDir, "trustdb.gpg")) {
		slog.Debug("skipping pacman keyring initialization, already present")
		return nil
	}
	slog.Info("initializing pacman keyring")
	if err := p.PacmanKey(ctx, "--init"); err != nil {
		return err
	}

	if err := os.MkdirAll(p.ctx.WorkPath("etc/pacman.d"), 0755); err != nil {
		return err
	}

	repos := p.repos.Repos()
	keyPaths := make([]string, len(repos))
	group, gctx := errgroup.WithContext(ctx)
	for i, repo := range repos {
		if repo.Mirrorlist != "" {
			dest := p.ctx.WorkPath("etc/pacman.d", repo.Name+"-mirrorlist")
			url := repo.Mirrorlist
			group.Go(func() error {
				return build.Fetch(gctx, p.ctx.Runner, url, dest)
			})
		}
		if repo.PublicKey != "" {
			dest := p.ctx.WorkPath(repo.Name + ".pub")
			keyPaths[i] = dest
			url := repo.PublicKey
			group.Go(func() error {
				return build.Fetch(gctx, p.ctx.Runner, url, dest)
			})
		}
	}
	if err := group.Wait(); err != nil {
		return err
	}

	for i, repo := range repos {
		switch {
		case repo.PublicKey != "":
			if err := verifyPublicKey(keyPaths[i], repo); err != nil {
				return err
			}
			if err := p.PacmanKey(ctx, "--add", keyPaths[i]); err != nil {
				return err
			}
			if err := p.LSignKey(ctx, repo.KeyID); err != nil {
				return err
			}
		case repo.KeyID != "":
			if err := p.RecvKeys(ctx, repo.KeyID); err != nil {
				return err
			}
			if err := p.LSignKey(ctx, repo.KeyID); err != nil {
				return err
			}
		}
	}
	return nil
}

// TrustKeyringFile locates a keyring package archive in the cache
// directories, extracts its signing-key files, and populates the target
// keyring from them without installing the package.
//
// pkgname is used in diagnostics only; filename is the archive filename.
func (p *Pacman) TrustKeyringFile(ctx context.Context, pkgname, filename string) error {
	if !p.ctx.GPGCheck {
		return nil
	}
	path := p.FindPackageFile(filename)
	if path == "" {
		return NewNotFoundError(pkgname)
	}

	slog.Debug("processing keyring package", "package", pkgname, "archive", path)
	scratch := p.ctx.WorkPath("keyrings")
	names, err := ExtractKeyrings(path, scratch)
	if err != nil {
		return err
	}
	return p.PopulateKeys(ctx, names, scratch)
}

// TrustKeyringPackage trusts a resolved keyring package from its cached
// archive.
func (p *Pacman) TrustKeyringPackage(ctx context.Context, pkg Package) error {
	return p.TrustKeyringFile(ctx, pkg.Name(), pkg.Filename())
}

// TrustKeyringPackages downloads the named keyring packages and trusts
// each of them. Progress is reported per package unless quiet.
func (p *Pacman) TrustKeyringPackages(ctx context.Context, pkgnames []string, quiet bool) error {
	if !p.ctx.GPGCheck || len(pkgnames) == 0 {
		return nil
	}
	if err := p.Download(ctx, pkgnames); err != nil {
		return err
	}

	var bar *pb.ProgressBar
	if !quiet {
		bar = pb.StartNew(len(pkgnames))
		defer bar.Finish()
	}
	for _, pkgname := range pkgnames {
		pkgs, err := p.LookupPackage(pkgname)
		if err != nil {
			return err
		}
		for _, pkg := range pkgs {
			if err := p.TrustKeyringPackage(ctx, pkg); err != nil {
				return err
			}
		}
		if bar != nil {
			bar.Increment()
		}
	}
	return nil
}
