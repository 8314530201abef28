package pacman

import (
	"regexp"
	"sort"
	"strings"
)

const (
	// defaultPriority sorts unprioritized repositories last.
	defaultPriority = 10000

	// localDBName is reserved for the local package database and may
	// never be declared as a sync repository.
	localDBName = "local"
)

var validRepoName = regexp.MustCompile(`^[^/]+$`)

// Server is one candidate endpoint for a repository.
//
// Mirror is false for the authoritative original endpoint.
type Server struct {
	Name   string
	URL    string
	Mirror bool
}

// Repo is a named source of installable packages with an ordered list of
// candidate servers. Server order is the retry policy: mirrors first,
// originals last.
type Repo struct {
	Name       string
	Priority   int
	Servers    []Server
	Mirrorlist string
	PublicKey  string
	KeyID      string
}

// AddServer appends a candidate endpoint, preserving order.
func (r *Repo) AddServer(name, url string, mirror bool) {
	r.Servers = append(r.Servers, Server{Name: name, URL: url, Mirror: mirror})
}

// ServerURLs returns the candidate URLs in resolution order.
func (r *Repo) ServerURLs() []string {
	urls := make([]string, len(r.Servers))
	for i, s := range r.Servers {
		urls[i] = s.URL
	}
	return urls
}

// Registry holds the repositories for one builder run, kept sorted
// ascending by priority. Equal priorities keep insertion order.
type Registry struct {
	repos []*Repo
}

// Add validates repo and inserts it, re-sorting the registry.
func (g *Registry) Add(repo *Repo) error {
	if repo == nil || repo.Name == "" {
		return NewConfigError("repo name not set")
	}
	if repo.Name == localDBName || !validRepoName.MatchString(repo.Name) {
		return NewConfigError("bad repo name %q", repo.Name)
	}
	if len(repo.Servers) == 0 {
		return NewConfigError("repo %s has no servers", repo.Name)
	}
	g.repos = append(g.repos, repo)
	sort.SliceStable(g.repos, func(i, j int) bool {
		return g.repos[i].Priority < g.repos[j].Priority
	})
	return nil
}

// Repos returns the repositories in priority order.
func (g *Registry) Repos() []*Repo {
	return g.repos
}

// Lookup returns the repository with the given name, or nil.
func (g *Registry) Lookup(name string) *Repo {
	for _, r := range g.repos {
		if r.Name == name {
			return r
		}
	}
	return nil
}

// Names returns the repository names in priority order.
func (g *Registry) Names() []string {
	names := make([]string, len(g.repos))
	for i, r := range g.repos {
		names[i] = r.Name
	}
	return names
}

// String lists the registry contents for diagnostics.
func (g *Registry) String() string {
	return strings.Join(g.Names(), ", ")
}
