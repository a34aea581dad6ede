package cli

import (
	"context"
	"fmt"
	"os"

	charmlog "github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/git-pkgs/pkgcode"
)

var (
	version = "dev" // semantic version (e.g., "v1.2.3")
	commit  string  // git commit SHA
	date    string  // build timestamp
)

// SetVersion sets the version information displayed by --version. Typically
// called by the main package with values injected via ldflags at build time.
func SetVersion(v, c, d string) {
	version = v
	commit = c
	date = d
}

// CLI holds shared state for all commands. The explorer is built once in the
// root command's PersistentPreRun, after flags are parsed.
type CLI struct {
	logger   *charmlog.Logger
	explorer *pkgcode.Explorer

	verbose     bool
	registryURL string
	sandboxDir  string
}

// Execute runs the pkgcode CLI and returns an error if any command fails.
func Execute(ctx context.Context) error {
	c := &CLI{}

	root := &cobra.Command{
		Use:          "pkgcode",
		Short:        "pkgcode explores the source contents of npm packages",
		Long:         `pkgcode fetches npm package metadata, downloads and unpacks release tarballs, and lists or prints the code files inside them. It also searches the package index and maintains a cached popular-packages digest.`,
		Version:      version,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := charmlog.InfoLevel
			if c.verbose {
				level = charmlog.DebugLevel
			}
			c.logger = newLogger(os.Stderr, level)

			opts := []pkgcode.ExplorerOption{
				pkgcode.WithLogger(c.logger),
				pkgcode.WithCircuitBreaker(),
			}
			if c.registryURL != "" {
				opts = append(opts, pkgcode.WithRegistryURL(c.registryURL))
			}
			if c.sandboxDir != "" {
				opts = append(opts, pkgcode.WithSandboxDir(c.sandboxDir))
			}
			c.explorer = pkgcode.New(opts...)
		},
	}

	root.SetVersionTemplate(fmt.Sprintf("pkgcode %s\ncommit: %s\nbuilt: %s\n", version, commit, date))
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "enable verbose logging")
	root.PersistentFlags().StringVar(&c.registryURL, "registry", "", "npm-compatible registry base URL")
	root.PersistentFlags().StringVar(&c.sandboxDir, "sandbox-dir", "", "parent directory for extraction sandboxes")

	root.AddCommand(c.infoCommand())
	root.AddCommand(c.codeCommand())
	root.AddCommand(c.filesCommand())
	root.AddCommand(c.searchCommand())
	root.AddCommand(c.popularCommand())

	return root.ExecuteContext(ctx)
}
