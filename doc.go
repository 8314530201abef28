/*
Package archimagebuilder prepares pacman repository access and keyring
trust for offline rootfs image builds.

It resolves configured repositories against a mirror catalog, renders a
deterministic pacman.conf, locates package archives in an ordered set of
cache directories, and extracts signing-key files from keyring packages
so they can be trusted before anything is installed.

The main packages are:

	github.com/anonymix007/arch-image-builder/internal/pacman        - repository model, mirror resolution, config rendering, keyring trust
	github.com/anonymix007/arch-image-builder/internal/build         - build context and external tool boundary
	github.com/anonymix007/arch-image-builder/cmd/arch-image-builder - command-line interface
*/
package archimagebuilder
