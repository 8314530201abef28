package pacman

import (
	"os"
	"path/filepath"
)

// hostCacheDir is the package cache of the build host. It is used only
// when it already exists; the builder never creates it.
const hostCacheDir = "/var/cache/pacman/pkg"

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// initCaches builds the ordered cache directory list: host cache (if
// present), workspace cache, target-root cache. The order controls both
// where archives are looked up and where pacman is told to write
// downloads.
func (p *Pacman) initCaches() error {
	workCache := p.ctx.WorkPath("packages")
	rootCache := p.ctx.RootPath("var/cache/pacman/pkg")

	p.caches = p.caches[:0]
	if exists(hostCacheDir) {
		p.caches = append(p.caches, hostCacheDir)
	}
	p.caches = append(p.caches, workCache, rootCache)

	if err := os.MkdirAll(workCache, 0755); err != nil {
		return err
	}
	return os.MkdirAll(rootCache, 0755)
}

// FindPackageFile returns the full path of a package archive file in the
// first cache directory that contains it, or "" when it is absent from
// all of them.
func (p *Pacman) FindPackageFile(filename string) string {
	for _, cache := range p.caches {
		full := filepath.Join(cache, filename)
		if exists(full) {
			return full
		}
	}
	return ""
}
