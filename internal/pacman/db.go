package pacman

import (
	"context"
	"log/slog"
	"strings"
)

// Package is one resolvable package known to the database collaborator.
type Package interface {
	// Name is the package name.
	Name() string
	// Filename is the archive filename used in cache directories.
	Filename() string
}

// SyncDB is one registered sync database.
type SyncDB interface {
	Name() string
	// SetServers assigns the candidate URLs in resolution order.
	SetServers(urls []string)
	// Update synchronizes the database. force refetches even when it
	// appears up to date.
	Update(force bool) error
	// Package looks up a package by exact name.
	Package(name string) (Package, bool)
	// GroupPackages returns the members of a package group, or nil.
	GroupPackages(group string) []Package
}

// Handle is the boundary to the native package database engine. It only
// registers databases and answers lookups; transaction planning and
// installation stay in the external pacman binary.
type Handle interface {
	RegisterSyncDB(name string) (SyncDB, error)
	LocalDB() SyncDB
	// LoadPackage loads a package archive file directly.
	LoadPackage(path string) (Package, error)
}

// LoadDatabases registers every repository with the database
// collaborator, assigns the resolved server lists, and synchronizes
// them. The host configuration is rewritten afterwards and the pacman
// databases refreshed.
func (p *Pacman) LoadDatabases(ctx context.Context) error {
	if p.handle == nil {
		return NewConfigError("no package database handle")
	}
	for _, repo := range p.repos.Repos() {
		db, ok := p.databases[repo.Name]
		if !ok {
			var err error
			db, err = p.handle.RegisterSyncDB(repo.Name)
			if err != nil {
				return err
			}
			p.databases[repo.Name] = db
		}
		db.SetServers(repo.ServerURLs())

		slog.Info("updating database", "repo", repo.Name)
		if err := db.Update(false); err != nil {
			return err
		}
	}
	if err := p.WriteConfig(); err != nil {
		return err
	}
	return p.Refresh(ctx, false)
}

// LookupPackage resolves a package specifier to one or more packages.
//
// A name containing ".pkg.tar." is loaded directly as an archive file.
// "db/name" looks the package up in that database only, with "local"
// addressing the local database. A bare name is tried first as a group
// across all databases, then as a package in each database in priority
// order.
func (p *Pacman) LookupPackage(name string) ([]Package, error) {
	if p.handle == nil {
		return nil, NewConfigError("no package database handle")
	}

	if strings.Contains(name, ".pkg.tar.") {
		pkg, err := p.handle.LoadPackage(name)
		if err != nil {
			return nil, err
		}
		return []Package{pkg}, nil
	}

	parts := strings.Split(name, "/")
	switch len(parts) {
	case 2:
		var db SyncDB
		if parts[0] == localDBName {
			db = p.handle.LocalDB()
		} else {
			var ok bool
			db, ok = p.databases[parts[0]]
			if !ok {
				return nil, NewLookupError("database", parts[0])
			}
		}
		pkg, ok := db.Package(parts[1])
		if !ok {
			return nil, NewLookupError("package", parts[1])
		}
		return []Package{pkg}, nil
	case 1:
		// group lookup wins over a package of the same name
		var group []Package
		for _, repo := range p.repos.Repos() {
			if db, ok := p.databases[repo.Name]; ok {
				group = append(group, db.GroupPackages(name)...)
			}
		}
		if len(group) > 0 {
			return group, nil
		}
		for _, repo := range p.repos.Repos() {
			if db, ok := p.databases[repo.Name]; ok {
				if pkg, ok := db.Package(name); ok {
					return []Package{pkg}, nil
				}
			}
		}
		return nil, NewLookupError("package", name)
	}
	return nil, NewLookupError("package", name)
}
