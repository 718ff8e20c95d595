package packager

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Artifact is the packaged, installable output of the build step. It is
// immutable once produced; the checksum is verified again before install.
type Artifact struct {
	PackageID string
	Version   string
	Path      string
	Checksum  string
	Size      int64
}

// ChecksumFile computes the hex sha256 digest of the file at path.
func ChecksumFile(path string) (string, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("open artifact: %w", err)
	}
	defer file.Close()

	hasher := sha256.New()
	size, err := io.Copy(hasher, file)
	if err != nil {
		return "", 0, fmt.Errorf("hash artifact: %w", err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), size, nil
}

// InferArtifact builds an Artifact from an existing .ipk on disk,
// recovering the app id and version from the file name. Both the cache
// naming scheme ("id@version-hash.ipk") and the packaging tool's
// convention ("id_version_arch.ipk") are recognized. id and version
// override whatever the name carries; pass them when the file was
// renamed.
func InferArtifact(path, id, version string) (*Artifact, error) {
	checksum, size, err := ChecksumFile(path)
	if err != nil {
		return nil, err
	}

	nameID, nameVersion := parseArtifactName(filepath.Base(path))
	if id == "" {
		id = nameID
	}
	if version == "" {
		version = nameVersion
	}
	if id == "" || version == "" {
		return nil, fmt.Errorf("cannot determine app id and version from %q; pass --app-id and --app-version", filepath.Base(path))
	}
	return &Artifact{
		PackageID: id,
		Version:   version,
		Path:      path,
		Checksum:  checksum,
		Size:      size,
	}, nil
}

func parseArtifactName(name string) (id, version string) {
	name = strings.TrimSuffix(name, ".ipk")
	if at := strings.IndexByte(name, '@'); at > 0 {
		id = name[:at]
		rest := name[at+1:]
		if dash := strings.LastIndexByte(rest, '-'); dash > 0 {
			rest = rest[:dash]
		}
		return id, rest
	}
	parts := strings.Split(name, "_")
	if len(parts) >= 2 {
		return parts[0], parts[1]
	}
	return "", ""
}

// Verify recomputes the artifact's checksum and compares it against the
// recorded value.
func (a *Artifact) Verify() error {
	sum, _, err := ChecksumFile(a.Path)
	if err != nil {
		return err
	}
	if sum != a.Checksum {
		return fmt.Errorf("artifact %s checksum mismatch: recorded %s, computed %s", a.Path, a.Checksum, sum)
	}
	return nil
}
