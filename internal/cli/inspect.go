package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	packagetypes "github.com/libreseed/pkgverify/pkg/package"
	"github.com/libreseed/pkgverify/pkg/storage"
)

// inspection summarizes the metadata of a package without checking its content.
type inspection struct {
	PackageDir     string                  `json:"package_dir" yaml:"package_dir"`
	Index          *packagetypes.IndexJSON `json:"index" yaml:"index"`
	Summary        string                  `json:"summary,omitempty" yaml:"summary,omitempty"`
	License        string                  `json:"license,omitempty" yaml:"license,omitempty"`
	Home           string                  `json:"home,omitempty" yaml:"home,omitempty"`
	ManifestSource string                  `json:"manifest_source" yaml:"manifest_source"`
	PathsVersion   int                     `json:"paths_version" yaml:"paths_version"`
	Entries        map[string]int          `json:"entries" yaml:"entries"`
	DeclaredBytes  uint64                  `json:"declared_bytes" yaml:"declared_bytes"`
	WithDigest     int                     `json:"with_digest" yaml:"with_digest"`
	WithPrefix     int                     `json:"with_prefix" yaml:"with_prefix"`
	NoLink         int                     `json:"no_link" yaml:"no_link"`
}

func newInspectCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect <package-dir>",
		Short: "Show package identity and manifest statistics",
		Long: `Inspect reads info/index.json, info/about.json and the manifest of a package
and prints what they declare. File content is not checked.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runInspect(cmd, args[0])
		},
	}

	cmd.Flags().String("format", "text", "output format (text, json, yaml)")
	return cmd
}

func (a *app) runInspect(cmd *cobra.Command, dir string) error {
	logger := a.logger.With(zap.String("package_dir", dir))

	index, err := packagetypes.LoadIndexJSONFromPackageDirectory(dir)
	if err != nil {
		return err
	}
	paths, source, err := packagetypes.ResolvePathsJSON(dir)
	if err != nil {
		return err
	}

	info := &inspection{
		PackageDir:     dir,
		Index:          index,
		ManifestSource: string(source),
		PathsVersion:   paths.PathsVersion,
		Entries:        make(map[string]int),
		DeclaredBytes:  paths.TotalSize(),
	}
	for pathType, n := range paths.CountByType() {
		info.Entries[string(pathType)] = n
	}
	for _, entry := range paths.Paths {
		if entry.SHA256 != nil {
			info.WithDigest++
		}
		if entry.PrefixPlaceholder != "" {
			info.WithPrefix++
		}
		if entry.NoLink {
			info.NoLink++
		}
	}

	about, err := packagetypes.LoadAboutJSONFromPackageDirectory(dir)
	switch {
	case err == nil:
		info.Summary = string(about.Summary)
		info.License = about.License
		if about.Home.Valid() {
			info.Home = about.Home.URL.String()
		}
		for field, raw := range about.InvalidURLs() {
			logger.Warn("about.json contains an invalid url", zap.String("field", field), zap.String("value", raw))
		}
	case errors.Is(err, fs.ErrNotExist):
		logger.Debug("package has no about.json")
	default:
		logger.Warn("about.json unreadable", zap.Error(err))
	}

	return writeInspection(cmd.OutOrStdout(), a.cfg.Output.Format, info)
}

func writeInspection(w io.Writer, format string, info *inspection) error {
	switch format {
	case "json":
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(info)
	case "yaml":
		data, err := storage.MarshalYAML(info)
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	case "text":
	default:
		return fmt.Errorf("unknown output format %q, must be one of: text, json, yaml", format)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Package:   %s\n", info.Index.FullName())
	if info.Index.Subdir != "" {
		fmt.Fprintf(&b, "Subdir:    %s\n", info.Index.Subdir)
	}
	if info.Index.Timestamp != nil {
		fmt.Fprintf(&b, "Built:     %s (%s)\n", info.Index.Timestamp.UTC().Format("2006-01-02 15:04:05"), humanize.Time(info.Index.Timestamp.Time))
	}
	if info.Summary != "" {
		fmt.Fprintf(&b, "Summary:   %s\n", info.Summary)
	}
	if info.License != "" {
		fmt.Fprintf(&b, "License:   %s\n", info.License)
	}
	if info.Home != "" {
		fmt.Fprintf(&b, "Home:      %s\n", info.Home)
	}
	fmt.Fprintf(&b, "Manifest:  %s (version %d)\n", info.ManifestSource, info.PathsVersion)

	types := make([]string, 0, len(info.Entries))
	for t := range info.Entries {
		types = append(types, t)
	}
	sort.Strings(types)
	counts := make([]string, len(types))
	for i, t := range types {
		counts[i] = fmt.Sprintf("%d %s", info.Entries[t], t)
	}
	fmt.Fprintf(&b, "Entries:   %s\n", strings.Join(counts, ", "))
	fmt.Fprintf(&b, "Declared:  %s, %d with sha256, %d with prefix, %d no_link\n",
		humanize.Bytes(info.DeclaredBytes), info.WithDigest, info.WithPrefix, info.NoLink)

	_, err := io.WriteString(w, b.String())
	return err
}
