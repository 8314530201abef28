// Package main implements the arch-image-builder command-line tool for
// preparing pacman repository access and keyring trust for rootfs images.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/anonymix007/arch-image-builder/internal/build"
	"github.com/anonymix007/arch-image-builder/internal/pacman"
)

const (
	defaultConfigPath = "/etc/arch-image-builder/repos.toml"
	defaultArch       = "x86_64"
)

var (
	// Build information - can be set via build flags
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"

	// Command-line flags
	configPath string
	workDir    string
	rootDir    string
	targetArch string
	logLevel   string
	noGPGCheck bool
)

var rootCmd = &cobra.Command{
	Use:   "arch-image-builder",
	Short: "Prepare pacman repositories and keyring trust for rootfs images",
	Long: `arch-image-builder resolves repository mirrors, generates pacman.conf,
and bootstraps trust in package-signing keyrings for offline rootfs
image builds.`,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  "Print version information including build details",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("arch-image-builder %s\n", version)
		fmt.Printf("commit: %s\n", commit)
		fmt.Printf("built: %s\n", buildDate)
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration file",
	Long:  "Validate the repository configuration file and report any issues.",
	Run:   runValidate,
}

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Generate the host pacman.conf",
	Long: `Resolve repository mirrors and write the host pacman.conf into the
workspace directory.

Examples:
  arch-image-builder render --work /tmp/build --root /tmp/build/rootfs
  arch-image-builder render --rootfs-repos`,
	Run: runRender,
}

var installCmd = &cobra.Command{
	Use:   "install <package...>",
	Short: "Install packages into the target root",
	Args:  cobra.MinimumNArgs(1),
	Run:   runInstall,
}

var removeCmd = &cobra.Command{
	Use:   "remove <package...>",
	Short: "Remove packages from the target root",
	Args:  cobra.MinimumNArgs(1),
	Run:   runRemove,
}

var downloadCmd = &cobra.Command{
	Use:   "download <package...>",
	Short: "Download packages into the cache without installing",
	Args:  cobra.MinimumNArgs(1),
	Run:   runDownload,
}

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Refresh the pacman sync databases",
	Run:   runRefresh,
}

var keyringCmd = &cobra.Command{
	Use:   "keyring",
	Short: "Manage the target root's pacman keyring",
}

var keyringInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the keyring and register configured repository keys",
	Run:   runKeyringInit,
}

var keyringTrustCmd = &cobra.Command{
	Use:   "trust <archive-filename...>",
	Short: "Trust keyring packages from cached archives without installing them",
	Long: `Extract the signing-key files from cached keyring package archives and
populate the target keyring from them.

Examples:
  arch-image-builder keyring trust archlinux-keyring-20240629-1-any.pkg.tar.zst`,
	Args: cobra.MinimumNArgs(1),
	Run:  runKeyringTrust,
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(renderCmd)
	rootCmd.AddCommand(installCmd)
	rootCmd.AddCommand(removeCmd)
	rootCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(refreshCmd)
	rootCmd.AddCommand(keyringCmd)

	keyringCmd.AddCommand(keyringInitCmd)
	keyringCmd.AddCommand(keyringTrustCmd)

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath, "configuration file path")
	rootCmd.PersistentFlags().StringVarP(&workDir, "work", "w", "", "per-run workspace directory")
	rootCmd.PersistentFlags().StringVarP(&rootDir, "root", "r", "", "target root filesystem directory")
	rootCmd.PersistentFlags().StringVarP(&targetArch, "arch", "a", defaultArch, "target architecture")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "", "override log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&noGPGCheck, "no-gpg-check", false, "disable package signature verification")
	rootCmd.PersistentFlags().Bool("verbose-errors", false, "show detailed error information including stack traces")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "suppress all output except for errors")

	installCmd.Flags().Bool("force", false, "reinstall packages that are already up to date")
	installCmd.Flags().Bool("asdeps", false, "mark installed packages as dependencies")
	installCmd.Flags().Bool("nodeps", false, "skip dependency and version checks")
	refreshCmd.Flags().Bool("force", false, "refresh databases even if up to date")
	renderCmd.Flags().Bool("rootfs-repos", false, "print the repository sections for the image's own pacman.conf")
}

// formatError returns a human-friendly error message, optionally with stack trace
func formatError(err error, verbose bool) string {
	if verbose {
		return fmt.Sprintf("%+v", err) // Full details with stack trace
	}

	flattened := errors.FlattenDetails(err)
	if flattened != "" {
		return flattened
	}

	return err.Error()
}

// loadConfig decodes and validates the configuration file and applies
// the logging configuration.
func loadConfig(cmd *cobra.Command) *pacman.Config {
	verboseErrors, _ := cmd.Flags().GetBool("verbose-errors")

	config := pacman.NewConfig()
	meta, err := toml.DecodeFile(configPath, config)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Error("configuration file not found", "path", configPath)
			slog.Info("Please create a configuration file at the default location or specify one with the --config flag.")
			os.Exit(1)
		}
		slog.Error("failed to decode config file", "error", formatError(err, verboseErrors), "path", configPath)
		os.Exit(1)
	}

	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		slog.Error("configuration contains unknown keys", "keys", fmt.Sprintf("%v", undecoded), "path", configPath)
		os.Exit(1)
	}

	if err := config.Log.Apply(); err != nil {
		slog.Error("failed to apply log config", "error", err)
		os.Exit(1)
	}

	if logLevel != "" {
		config.Log.Level = logLevel
		if err := config.Log.Apply(); err != nil {
			slog.Error("failed to apply command-line log level", "level", logLevel, "error", err)
			os.Exit(1)
		}
	}

	if quiet, _ := cmd.Flags().GetBool("quiet"); quiet {
		config.Log.Level = "error"
		if err := config.Log.Apply(); err != nil {
			slog.Error("failed to apply quiet log level", "error", err)
			os.Exit(1)
		}
	}

	return config
}

// newPacman builds the pacman policy layer from the command-line
// environment. It exits on misconfiguration.
func newPacman(cmd *cobra.Command) *pacman.Pacman {
	verboseErrors, _ := cmd.Flags().GetBool("verbose-errors")
	config := loadConfig(cmd)

	if workDir == "" {
		slog.Error("the --work directory is required")
		os.Exit(1)
	}
	if rootDir == "" {
		slog.Error("the --root directory is required")
		os.Exit(1)
	}

	bctx, err := build.NewContext(workDir, rootDir, targetArch, !noGPGCheck)
	if err != nil {
		slog.Error("invalid build environment", "error", formatError(err, verboseErrors))
		os.Exit(1)
	}

	p, err := pacman.New(bctx, config, nil)
	if err != nil {
		slog.Error("failed to initialize pacman", "error", formatError(err, verboseErrors))
		os.Exit(1)
	}
	return p
}

func exitOnError(cmd *cobra.Command, action string, err error) {
	if err == nil {
		return
	}
	verboseErrors, _ := cmd.Flags().GetBool("verbose-errors")
	slog.Error(action+" failed", "error", formatError(err, verboseErrors))
	os.Exit(1)
}

func runValidate(cmd *cobra.Command, _ []string) {
	config := loadConfig(cmd)
	if err := config.Check(); err != nil {
		exitOnError(cmd, "validation", err)
	}
	registry, err := pacman.BuildRegistry(config, targetArch)
	if err != nil {
		exitOnError(cmd, "validation", err)
	}
	slog.Info("configuration is valid", "repos", registry.String())
}

func runRender(cmd *cobra.Command, _ []string) {
	p := newPacman(cmd)
	if rootfsRepos, _ := cmd.Flags().GetBool("rootfs-repos"); rootfsRepos {
		fmt.Print(p.RenderRootFSRepos())
		return
	}
	slog.Info("wrote pacman configuration", "path", p.ConfigPath())
}

func runInstall(cmd *cobra.Command, args []string) {
	p := newPacman(cmd)
	force, _ := cmd.Flags().GetBool("force")
	asdeps, _ := cmd.Flags().GetBool("asdeps")
	nodeps, _ := cmd.Flags().GetBool("nodeps")
	exitOnError(cmd, "install", p.Install(cmd.Context(), args, force, asdeps, nodeps))
}

func runRemove(cmd *cobra.Command, args []string) {
	p := newPacman(cmd)
	exitOnError(cmd, "remove", p.Remove(cmd.Context(), args))
}

func runDownload(cmd *cobra.Command, args []string) {
	p := newPacman(cmd)
	exitOnError(cmd, "download", p.Download(cmd.Context(), args))
}

func runRefresh(cmd *cobra.Command, _ []string) {
	p := newPacman(cmd)
	force, _ := cmd.Flags().GetBool("force")
	exitOnError(cmd, "refresh", p.Refresh(cmd.Context(), force))
}

func runKeyringInit(cmd *cobra.Command, _ []string) {
	p := newPacman(cmd)
	exitOnError(cmd, "keyring init", p.InitKeyring(cmd.Context()))
}

func runKeyringTrust(cmd *cobra.Command, args []string) {
	p := newPacman(cmd)
	for _, filename := range args {
		exitOnError(cmd, "keyring trust", p.TrustKeyringFile(cmd.Context(), filename, filename))
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}
