package packagetypes

import (
	"fmt"
)

// IndexJSON identifies a package: name, version, build and the platform it was
// built for.
//
// Location: info/index.json inside the extracted package.
type IndexJSON struct {
	Name        string `json:"name" yaml:"name"`
	Version     string `json:"version" yaml:"version"`
	Build       string `json:"build" yaml:"build"`
	BuildNumber uint64 `json:"build_number" yaml:"build_number"`

	Subdir   string     `json:"subdir,omitempty" yaml:"subdir,omitempty"`
	Arch     string     `json:"arch,omitempty" yaml:"arch,omitempty"`
	Platform string     `json:"platform,omitempty" yaml:"platform,omitempty"`
	Noarch   NoArchType `json:"noarch,omitempty" yaml:"noarch,omitempty"`

	License       string `json:"license,omitempty" yaml:"license,omitempty"`
	LicenseFamily string `json:"license_family,omitempty" yaml:"license_family,omitempty"`

	Depends       StringList  `json:"depends,omitempty" yaml:"depends,omitempty"`
	Constrains    StringList  `json:"constrains,omitempty" yaml:"constrains,omitempty"`
	TrackFeatures FeatureList `json:"track_features,omitempty" yaml:"track_features,omitempty"`
	Features      string      `json:"features,omitempty" yaml:"features,omitempty"`

	// Timestamp is when the package was built, if recorded.
	Timestamp *Timestamp `json:"timestamp,omitempty" yaml:"timestamp,omitempty"`
}

// Validate checks that the identity fields are present.
func (i *IndexJSON) Validate() error {
	if i.Name == "" {
		return fmt.Errorf("index: name is required")
	}
	if i.Version == "" {
		return fmt.Errorf("index: version is required")
	}
	if i.Build == "" {
		return fmt.Errorf("index: build is required")
	}
	return nil
}

// FullName returns the distribution string of the package (e.g. "zlib-1.2.13-h166bdaf_4").
func (i *IndexJSON) FullName() string {
	return fmt.Sprintf("%s-%s-%s", i.Name, i.Version, i.Build)
}

// AboutJSON holds descriptive metadata about a package. It is informational only
// and plays no part in verification.
//
// Location: info/about.json inside the extracted package.
type AboutJSON struct {
	Summary     MultiLineString `json:"summary,omitempty" yaml:"summary,omitempty"`
	Description MultiLineString `json:"description,omitempty" yaml:"description,omitempty"`
	License     string          `json:"license,omitempty" yaml:"license,omitempty"`

	Home   *LossyURL `json:"home,omitempty" yaml:"home,omitempty"`
	DevURL *LossyURL `json:"dev_url,omitempty" yaml:"dev_url,omitempty"`
	DocURL *LossyURL `json:"doc_url,omitempty" yaml:"doc_url,omitempty"`

	Channels []string `json:"channels,omitempty" yaml:"channels,omitempty"`
}

// InvalidURLs returns the raw values of URL fields that could not be parsed.
func (a *AboutJSON) InvalidURLs() map[string]string {
	invalid := make(map[string]string)
	for field, u := range map[string]*LossyURL{"home": a.Home, "dev_url": a.DevURL, "doc_url": a.DocURL} {
		if u != nil && u.Raw != "" && !u.Valid() {
			invalid[field] = u.Raw
		}
	}
	return invalid
}
