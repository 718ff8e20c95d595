package packager

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"tvship/internal/services"
)

// ManifestFileName is the application descriptor expected in the source root.
const ManifestFileName = "appinfo.json"

// Manifest is the application descriptor the packaging tool consumes.
type Manifest struct {
	ID      string `json:"id"`
	Version string `json:"version"`
	Main    string `json:"main"`
	Icon    string `json:"icon"`
	Title   string `json:"title,omitempty"`
	Vendor  string `json:"vendor,omitempty"`
}

var (
	idPattern      = regexp.MustCompile(`^[a-z0-9]+(\.[a-z0-9-]+)+$`)
	versionPattern = regexp.MustCompile(`^\d+\.\d+\.\d+$`)
)

// LoadManifest reads and validates the manifest from sourceDir. All missing
// or malformed fields are reported in a single ErrInvalidManifest failure.
func LoadManifest(sourceDir string) (*Manifest, error) {
	path := filepath.Join(sourceDir, ManifestFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, services.Wrap(services.ErrInvalidManifest, "package", "load manifest",
			fmt.Sprintf("read %s", ManifestFileName), err)
	}
	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, services.Wrap(services.ErrInvalidManifest, "package", "load manifest",
			fmt.Sprintf("parse %s", ManifestFileName), err)
	}
	if err := manifest.Validate(sourceDir); err != nil {
		return nil, err
	}
	return &manifest, nil
}

// Validate checks required fields and reports every problem at once.
func (m *Manifest) Validate(sourceDir string) error {
	var problems []string
	if strings.TrimSpace(m.ID) == "" {
		problems = append(problems, "id is required")
	} else if !idPattern.MatchString(m.ID) {
		problems = append(problems, fmt.Sprintf("id %q is not a reverse-domain identifier", m.ID))
	}
	if strings.TrimSpace(m.Version) == "" {
		problems = append(problems, "version is required")
	} else if !versionPattern.MatchString(m.Version) {
		problems = append(problems, fmt.Sprintf("version %q is not of the form x.y.z", m.Version))
	}
	if strings.TrimSpace(m.Main) == "" {
		problems = append(problems, "main entry point is required")
	} else if sourceDir != "" {
		if _, err := os.Stat(filepath.Join(sourceDir, m.Main)); err != nil {
			problems = append(problems, fmt.Sprintf("main entry point %q not found in source", m.Main))
		}
	}
	if strings.TrimSpace(m.Icon) == "" {
		problems = append(problems, "icon is required")
	} else if sourceDir != "" {
		if _, err := os.Stat(filepath.Join(sourceDir, m.Icon)); err != nil {
			problems = append(problems, fmt.Sprintf("icon %q not found in source", m.Icon))
		}
	}
	if len(problems) > 0 {
		return services.Wrap(services.ErrInvalidManifest, "package", "validate manifest",
			strings.Join(problems, "; "), nil)
	}
	return nil
}

// Identity returns the cache key component identifying this app build target.
func (m *Manifest) Identity() string {
	return m.ID + "@" + m.Version
}
