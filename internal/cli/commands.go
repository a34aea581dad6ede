package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

// splitIdentifier separates an optional "@version" suffix from a package
// identifier. The leading "@" of a scope and the "@" inside a PURL version
// are preserved.
func splitIdentifier(arg string) (name, version string) {
	if strings.HasPrefix(arg, "pkg:") {
		return arg, ""
	}
	idx := strings.LastIndex(arg, "@")
	if idx <= 0 {
		return arg, ""
	}
	return arg[:idx], arg[idx+1:]
}

func (c *CLI) infoCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "info <package>[@version]",
		Short: "Show normalized metadata for a package version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, version := splitIdentifier(args[0])
			info, err := c.explorer.PackageInfo(cmd.Context(), name, version)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s@%s\n", info.Name, info.Version)
			fmt.Fprintf(out, "  description: %s\n", info.Description)
			fmt.Fprintf(out, "  license:     %s\n", info.License)
			fmt.Fprintf(out, "  homepage:    %s\n", info.Homepage)
			fmt.Fprintf(out, "  repository:  %s\n", info.Repository)
			fmt.Fprintf(out, "  author:      %s\n", info.Author)
			if len(info.Keywords) > 0 {
				fmt.Fprintf(out, "  keywords:    %s\n", strings.Join(info.Keywords, ", "))
			}
			fmt.Fprintf(out, "  dependencies: %d runtime, %d dev\n", info.DependencyCount, info.DevDependencyCount)

			keys := make([]string, 0, len(info.Links))
			for k := range info.Links {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(out, "  %s: %s\n", k, info.Links[k])
			}
			return nil
		},
	}
}

func (c *CLI) codeCommand() *cobra.Command {
	var filePath string

	cmd := &cobra.Command{
		Use:   "code <package>[@version]",
		Short: "Print code files from a package's release tarball",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, version := splitIdentifier(args[0])
			code, err := c.explorer.PackageCode(cmd.Context(), name, version, filePath)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, f := range code.Files {
				fmt.Fprintf(out, "=== %s (%d bytes) ===\n%s\n", f.Path, f.Size, f.Content)
			}
			if n := code.Remaining(); n > 0 {
				fmt.Fprintf(out, "... and %d more code files; use --file to read one directly\n", n)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&filePath, "file", "f", "", "read exactly this file from the package")
	return cmd
}

func (c *CLI) filesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "files <package>[@version]",
		Short: "List every file in a package's release tarball",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, version := splitIdentifier(args[0])
			listing, err := c.explorer.PackageFiles(cmd.Context(), name, version)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s@%s: %d files\n", listing.Name, listing.Version, len(listing.Files))
			for _, f := range listing.Files {
				fmt.Fprintln(out, f)
			}
			return nil
		},
	}
}

func (c *CLI) searchCommand() *cobra.Command {
	var (
		size int
		from int
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the package index",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			page, err := c.explorer.Search(cmd.Context(), strings.Join(args, " "), size, from)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%d results for %q (showing %d from offset %d)\n",
				page.Total, page.Query, len(page.Hits), page.From)
			for _, hit := range page.Hits {
				desc := hit.Description
				if desc == "" {
					desc = "no description"
				}
				fmt.Fprintf(out, "%-40s %s\n", hit.Name+"@"+hit.Version, desc)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&size, "size", 20, "results per page (max 250)")
	cmd.Flags().IntVar(&from, "from", 0, "pagination offset")
	return cmd
}

func (c *CLI) popularCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "popular",
		Short: "Show the cached popular-packages digest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			digest, err := c.explorer.Popular(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), digest)
			return nil
		},
	}
}
