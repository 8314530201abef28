package pacman

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// SigLevel returns the pacman signature-level policy derived from the
// gpgcheck setting.
func (p *Pacman) SigLevel() string {
	if p.ctx.GPGCheck {
		return "Required DatabaseOptional"
	}
	return "Never"
}

// appendRepos renders one section per repository in priority order.
//
// In rootfs context a repository with a configured mirrorlist defers to
// an Include directive; resolution then happens through the mirrorlist
// file installed separately. Everywhere else each resolved server is
// emitted in order, preceded by a comment distinguishing mirror from
// original for diagnostics.
func (p *Pacman) appendRepos(b *strings.Builder, rootfs bool) {
	for _, repo := range p.repos.Repos() {
		fmt.Fprintf(b, "[%s]\n", repo.Name)
		if rootfs && repo.Mirrorlist != "" {
			fmt.Fprintf(b, "Include = /etc/pacman.d/%s-mirrorlist\n", repo.Name)
			continue
		}
		for _, server := range repo.Servers {
			if server.Mirror {
				fmt.Fprintf(b, "# Mirror %s\n", server.Name)
			} else {
				b.WriteString("# Original Repo\n")
			}
			fmt.Fprintf(b, "Server = %s\n", server.URL)
		}
	}
}

// appendOptions renders the [options] section for the host
// configuration.
func (p *Pacman) appendOptions(b *strings.Builder) {
	b.WriteString("[options]\n")
	for _, cache := range p.caches {
		fmt.Fprintf(b, "CacheDir = %s\n", cache)
	}
	fmt.Fprintf(b, "RootDir = %s\n", p.root)
	fmt.Fprintf(b, "GPGDir = %s\n", p.gpgDir)
	fmt.Fprintf(b, "LogFile = %s\n", p.logFile)
	fmt.Fprintf(b, "HoldPkg = %s\n", strings.Join(p.config.HoldPkg, " "))
	fmt.Fprintf(b, "Architecture = %s\n", p.ctx.Arch)
	b.WriteString("UseSyslog\n")
	b.WriteString("Color\n")
	b.WriteString("CheckSpace\n")
	b.WriteString("VerbosePkgLists\n")
	fmt.Fprintf(b, "ParallelDownloads = %d\n", p.config.ParallelDownloads)
	fmt.Fprintf(b, "SigLevel = %s\n", p.SigLevel())
	b.WriteString("LocalFileSigLevel = Optional\n")
}

// RenderConfig produces the full host pacman.conf text. Rendering the
// same registry and options twice yields byte-identical output.
func (p *Pacman) RenderConfig() string {
	var b strings.Builder
	p.appendOptions(&b)
	p.appendRepos(&b, false)
	return b.String()
}

// RenderRootFSRepos produces the repository sections destined for the
// image's own /etc/pacman.conf.
func (p *Pacman) RenderRootFSRepos() string {
	var b strings.Builder
	p.appendRepos(&b, true)
	return b.String()
}

// WriteConfig regenerates the host pacman.conf. A stale artifact at the
// same path is removed first so the file is always rewritten whole.
func (p *Pacman) WriteConfig() error {
	path := p.ConfigPath()
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	slog.Info("generating pacman config", "path", path)
	return os.WriteFile(path, []byte(p.RenderConfig()), 0644)
}
