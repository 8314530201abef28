package pacman

import (
	"context"
	"log/slog"
	"strings"

	"github.com/anonymix007/arch-image-builder/internal/build"
)

// Pacman is the policy layer between the declarative repository
// configuration and the pacman package manager. It decides which server
// URLs to use, renders pacman.conf, and bootstraps keyring trust. The
// actual dependency resolution and installation stay in the external
// pacman binary and the database collaborator.
//
// All methods must be called from a single goroutine.
type Pacman struct {
	ctx    *build.Context
	config *Config
	root   string
	handle Handle

	databases map[string]SyncDB
	caches    []string
	repos     *Registry
	gpgDir    string
	logFile   string
}

// New resolves the configured repositories, prepares the cache
// directories, and writes the host pacman.conf.
//
// handle may be nil; database registration and package lookup then
// report a configuration error when used.
func New(bctx *build.Context, cfg *Config, handle Handle) (*Pacman, error) {
	repos, err := BuildRegistry(cfg, bctx.Arch)
	if err != nil {
		return nil, err
	}

	p := &Pacman{
		ctx:    bctx,
		config: cfg,
		root:   bctx.RootFS,
		handle: handle,

		databases: make(map[string]SyncDB),
		repos:     repos,
		gpgDir:    bctx.RootPath("etc/pacman.d/gnupg"),
		logFile:   bctx.WorkPath("pacman.log"),
	}

	if err := p.initCaches(); err != nil {
		return nil, err
	}
	if err := p.WriteConfig(); err != nil {
		return nil, err
	}
	return p, nil
}

// Repos returns the resolved repository registry.
func (p *Pacman) Repos() *Registry {
	return p.repos
}

// CacheDirs returns the cache directories in lookup order.
func (p *Pacman) CacheDirs() []string {
	return p.caches
}

// ConfigPath returns the path of the generated host pacman.conf.
func (p *Pacman) ConfigPath() string {
	return p.ctx.WorkPath("pacman.conf")
}

// runPacman invokes the pacman binary against the target root with the
// generated configuration.
func (p *Pacman) runPacman(ctx context.Context, args ...string) error {
	argv := []string{
		"pacman",
		"--noconfirm",
		"--root=" + p.root,
		"--config=" + p.ConfigPath(),
	}
	argv = append(argv, args...)
	return build.Run(ctx, p.ctx.Runner, argv)
}

// syncDBExists reports whether the first repository's sync database has
// been fetched into the target root already.
func (p *Pacman) syncDBExists() bool {
	repos := p.repos.Repos()
	if len(repos) == 0 {
		return false
	}
	return exists(p.ctx.RootPath("var/lib/pacman/sync", repos[0].Name+".db"))
}

// Install installs packages into the target root.
//
// force skips the --needed check, asdeps marks the packages as
// dependencies, and nodeps disables dependency and version checks.
func (p *Pacman) Install(ctx context.Context, pkgs []string, force, asdeps, nodeps bool) error {
	if len(pkgs) == 0 {
		return nil
	}
	if !p.syncDBExists() {
		if err := p.Refresh(ctx, false); err != nil {
			return err
		}
	}
	slog.Info("installing packages", "packages", strings.Join(pkgs, " "))
	args := []string{"--sync"}
	if !force {
		args = append(args, "--needed")
	}
	if asdeps {
		args = append(args, "--asdeps")
	}
	if nodeps {
		// twice: skip version checks as well as dependency checks
		args = append(args, "--nodeps", "--nodeps")
	}
	args = append(args, pkgs...)
	return p.runPacman(ctx, args...)
}

// Remove uninstalls packages from the target root.
func (p *Pacman) Remove(ctx context.Context, pkgs []string) error {
	if len(pkgs) == 0 {
		return nil
	}
	slog.Info("removing packages", "packages", strings.Join(pkgs, " "))
	args := []string{"--needed", "--remove"}
	args = append(args, pkgs...)
	return p.runPacman(ctx, args...)
}

// Download fetches packages into the cache without installing them.
func (p *Pacman) Download(ctx context.Context, pkgs []string) error {
	if len(pkgs) == 0 {
		return nil
	}
	if !p.syncDBExists() {
		if err := p.Refresh(ctx, false); err != nil {
			return err
		}
	}
	slog.Info("downloading packages", "packages", strings.Join(pkgs, " "))
	args := []string{"--sync", "--downloadonly", "--nodeps", "--nodeps"}
	args = append(args, pkgs...)
	return p.runPacman(ctx, args...)
}

// InstallLocal installs local package archives into the target root.
func (p *Pacman) InstallLocal(ctx context.Context, files []string) error {
	if len(files) == 0 {
		return nil
	}
	slog.Info("installing local packages", "files", strings.Join(files, " "))
	args := []string{"--needed", "--upgrade"}
	args = append(args, files...)
	return p.runPacman(ctx, args...)
}

// Refresh updates the sync databases in the target root.
func (p *Pacman) Refresh(ctx context.Context, force bool) error {
	slog.Info("refreshing pacman databases")
	args := []string{"--sync", "--refresh"}
	if force {
		args = append(args, "--refresh")
	}
	return p.runPacman(ctx, args...)
}
