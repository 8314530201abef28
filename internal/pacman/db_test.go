package pacman

import (
	"context"
	"reflect"
	"testing"

	"github.com/cockroachdb/errors"
)

type fakePkg struct {
	name     string
	filename string
}

func (p *fakePkg) Name() string     { return p.name }
func (p *fakePkg) Filename() string { return p.filename }

type fakeDB struct {
	name    string
	servers []string
	updates int
	pkgs    map[string]*fakePkg
	groups  map[string][]*fakePkg
}

func (d *fakeDB) Name() string             { return d.name }
func (d *fakeDB) SetServers(urls []string) { d.servers = urls }
func (d *fakeDB) Update(_ bool) error      { d.updates++; return nil }

func (d *fakeDB) Package(name string) (Package, bool) {
	p, ok := d.pkgs[name]
	if !ok {
		return nil, false
	}
	return p, true
}

func (d *fakeDB) GroupPackages(group string) []Package {
	var out []Package
	for _, p := range d.groups[group] {
		out = append(out, p)
	}
	return out
}

type fakeHandle struct {
	dbs        map[string]*fakeDB
	registered []string
	local      *fakeDB
	loaded     map[string]*fakePkg
}

func newFakeHandle() *fakeHandle {
	return &fakeHandle{
		dbs:    make(map[string]*fakeDB),
		local:  &fakeDB{name: "local", pkgs: map[string]*fakePkg{}},
		loaded: make(map[string]*fakePkg),
	}
}

func (h *fakeHandle) RegisterSyncDB(name string) (SyncDB, error) {
	db, ok := h.dbs[name]
	if !ok {
		db = &fakeDB{name: name, pkgs: map[string]*fakePkg{}, groups: map[string][]*fakePkg{}}
		h.dbs[name] = db
	}
	h.registered = append(h.registered, name)
	return db, nil
}

func (h *fakeHandle) LocalDB() SyncDB {
	return h.local
}

func (h *fakeHandle) LoadPackage(path string) (Package, error) {
	pkg, ok := h.loaded[path]
	if !ok {
		return nil, errors.New("load package " + path + " failed")
	}
	return pkg, nil
}

func TestLoadDatabases(t *testing.T) {
	t.Parallel()

	handle := newFakeHandle()
	p, runner := newTestPacman(t, testConfig(), handle, true)

	if err := p.LoadDatabases(context.Background()); err != nil {
		t.Fatal(err)
	}

	// registration follows priority order
	if !reflect.DeepEqual(handle.registered, []string{"core", "extra"}) {
		t.Errorf("registered = %v, want [core extra]", handle.registered)
	}

	core := handle.dbs["core"]
	if core.updates != 1 {
		t.Errorf("core.updates = %d, want 1", core.updates)
	}
	if !reflect.DeepEqual(core.servers, []string{"https://example.org/core/os/x86_64"}) {
		t.Errorf("core.servers = %v", core.servers)
	}

	// a pacman --sync --refresh follows database registration
	calls := runner.calls()
	if len(calls) == 0 {
		t.Fatal("expected a pacman refresh call")
	}
	last := calls[len(calls)-1]
	if last[len(last)-1] != "--refresh" {
		t.Errorf("last argv = %v, want trailing --refresh", last)
	}
}

func TestLookupPackage(t *testing.T) {
	t.Parallel()

	handle := newFakeHandle()
	p, _ := newTestPacman(t, testConfig(), handle, true)
	if err := p.LoadDatabases(context.Background()); err != nil {
		t.Fatal(err)
	}

	keyring := &fakePkg{name: "archlinux-keyring", filename: "archlinux-keyring-1-any.pkg.tar.zst"}
	nano := &fakePkg{name: "nano", filename: "nano-1-x86_64.pkg.tar.zst"}
	handle.dbs["core"].pkgs["archlinux-keyring"] = keyring
	handle.dbs["extra"].pkgs["nano"] = nano
	handle.dbs["extra"].groups["editors"] = []*fakePkg{nano}
	handle.local.pkgs["pacman"] = &fakePkg{name: "pacman", filename: "pacman-1-x86_64.pkg.tar.zst"}
	handle.loaded["/tmp/foo-1-any.pkg.tar.zst"] = &fakePkg{name: "foo", filename: "foo-1-any.pkg.tar.zst"}

	tests := []struct {
		name  string
		query string
		want  []string // package names
	}{
		{"bare name", "nano", []string{"nano"}},
		{"db qualified", "core/archlinux-keyring", []string{"archlinux-keyring"}},
		{"local db", "local/pacman", []string{"pacman"}},
		{"group", "editors", []string{"nano"}},
		{"archive file", "/tmp/foo-1-any.pkg.tar.zst", []string{"foo"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pkgs, err := p.LookupPackage(tt.query)
			if err != nil {
				t.Fatal(err)
			}
			var names []string
			for _, pkg := range pkgs {
				names = append(names, pkg.Name())
			}
			if !reflect.DeepEqual(names, tt.want) {
				t.Errorf("LookupPackage(%q) = %v, want %v", tt.query, names, tt.want)
			}
		})
	}
}

func TestLookupPackageErrors(t *testing.T) {
	t.Parallel()

	handle := newFakeHandle()
	p, _ := newTestPacman(t, testConfig(), handle, true)
	if err := p.LoadDatabases(context.Background()); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		query string
	}{
		{"unknown database", "nonexistent/pkg"},
		{"unknown package in db", "core/nothing"},
		{"unknown bare name", "nothing"},
		{"too many separators", "a/b/c"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.LookupPackage(tt.query)
			var lookupErr *LookupError
			if !errors.As(err, &lookupErr) {
				t.Errorf("want LookupError, got %v", err)
			}
		})
	}
}

func TestLookupPackageWithoutHandle(t *testing.T) {
	t.Parallel()

	p, _ := newTestPacman(t, testConfig(), nil, true)
	_, err := p.LookupPackage("nano")
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Errorf("want ConfigError without a handle, got %v", err)
	}
}
