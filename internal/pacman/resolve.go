package pacman

import (
	"log/slog"
	"strings"
)

// expandTemplate substitutes the $arch and $repo placeholders of an
// original-URL template, the same way pacman expands mirrorlist entries.
func expandTemplate(template, arch, repo string) string {
	r := strings.NewReplacer("$arch", arch, "$repo", repo)
	return r.Replace(template)
}

// BuildRepo resolves one repository declaration against the mirror
// catalog and the target architecture.
//
// The resulting server list contains every matching mirror in catalog
// order followed by every original URL in declaration order. The
// originals are always appended, even when mirrors matched them, so that
// the authoritative endpoint remains the guaranteed fallback.
func BuildRepo(rc *RepoConfig, mirrors []MirrorConfig, arch string) (*Repo, error) {
	if rc.Name == "" {
		return nil, NewConfigError("repo name not set")
	}
	if rc.PublicKey != "" && rc.KeyID == "" {
		return nil, NewConfigError("repo %s: publickey is provided without keyid", rc.Name)
	}

	repo := &Repo{
		Name:       rc.Name,
		Priority:   defaultPriority,
		Mirrorlist: rc.Mirrorlist,
		PublicKey:  rc.PublicKey,
		KeyID:      rc.KeyID,
	}
	if rc.Priority != nil {
		repo.Priority = *rc.Priority
	}

	templates := rc.Templates()
	if len(templates) == 0 {
		return nil, NewConfigError("repo %s: no original repo url found", rc.Name)
	}

	originals := make([]string, len(templates))
	for i, t := range templates {
		originals[i] = expandTemplate(t, arch, rc.Name)
	}

	for i := range mirrors {
		mirror := &mirrors[i]
		if err := mirror.Check(); err != nil {
			return nil, err
		}
		for _, mapping := range mirror.Repos {
			prefix := *mapping.Original
			for _, original := range originals {
				if !strings.HasPrefix(original, prefix) {
					continue
				}
				url := *mapping.Mirror + original[len(prefix):]
				slog.Debug("use mirror", "repo", rc.Name, "mirror", mirror.Name, "url", url)
				repo.AddServer(mirror.Name, url, true)
			}
		}
	}

	for _, original := range originals {
		slog.Debug("use original repo", "repo", rc.Name, "url", original)
		repo.AddServer("", original, false)
	}

	return repo, nil
}

// BuildRegistry resolves every declared repository and returns the
// priority-sorted registry.
func BuildRegistry(cfg *Config, arch string) (*Registry, error) {
	if err := cfg.Check(); err != nil {
		return nil, err
	}

	registry := new(Registry)
	for i := range cfg.Repos {
		repo, err := BuildRepo(&cfg.Repos[i], cfg.Mirrors, arch)
		if err != nil {
			return nil, err
		}
		if err := registry.Add(repo); err != nil {
			return nil, err
		}
	}
	return registry, nil
}
