// Package build holds the per-run builder context and the boundary to
// external tools.
package build

import (
	"path/filepath"

	"github.com/cockroachdb/errors"
)

// Context carries the settings shared by all builder components for one
// run. It is immutable after construction.
type Context struct {
	// Work is the per-run workspace directory.
	Work string
	// RootFS is the target root filesystem directory.
	RootFS string
	// Arch is the target architecture, e.g. "x86_64".
	Arch string
	// GPGCheck enables package and database signature verification.
	GPGCheck bool

	// Runner executes external tools. Defaults to ExecRunner.
	Runner Runner
}

// NewContext constructs a Context with an ExecRunner.
//
// work and rootfs must be absolute paths.
func NewContext(work, rootfs, arch string, gpgcheck bool) (*Context, error) {
	if !filepath.IsAbs(work) {
		return nil, errors.New("work directory is not absolute: " + work)
	}
	if !filepath.IsAbs(rootfs) {
		return nil, errors.New("rootfs directory is not absolute: " + rootfs)
	}
	if arch == "" {
		return nil, errors.New("target architecture is not set")
	}
	return &Context{
		Work:   filepath.Clean(work),
		RootFS: filepath.Clean(rootfs),
		Arch:   arch,

		GPGCheck: gpgcheck,
		Runner:   ExecRunner{},
	}, nil
}

// WorkPath joins elem below the workspace directory.
func (c *Context) WorkPath(elem ...string) string {
	return filepath.Join(append([]string{c.Work}, elem...)...)
}

// RootPath joins elem below the target root filesystem.
func (c *Context) RootPath(elem ...string) string {
	return filepath.Join(append([]string{c.RootFS}, elem...)...)
}
