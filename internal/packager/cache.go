package packager

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// hashSourceDir computes a stable digest over the source tree: relative
// paths and file contents, walked in sorted order. Any content change
// produces a different key.
func hashSourceDir(sourceDir string) (string, error) {
	var files []string
	err := filepath.WalkDir(sourceDir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return "", err
	}
	sort.Strings(files)

	hasher := sha256.New()
	for _, path := range files {
		rel, err := filepath.Rel(sourceDir, path)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(hasher, "%s\x00", filepath.ToSlash(rel))
		file, err := os.Open(path)
		if err != nil {
			return "", err
		}
		if _, err := io.Copy(hasher, file); err != nil {
			file.Close()
			return "", err
		}
		file.Close()
		hasher.Write([]byte{0})
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

func (a *Adapter) cachePath(manifest *Manifest, sourceHash string) string {
	name := fmt.Sprintf("%s-%s.ipk", sanitizeCacheKey(manifest.Identity()), sourceHash[:16])
	return filepath.Join(a.cfg.Paths.CacheDir, name)
}

func (a *Adapter) cacheLookup(manifest *Manifest, sourceHash string) (*Artifact, bool) {
	path := a.cachePath(manifest, sourceHash)
	checksum, size, err := ChecksumFile(path)
	if err != nil {
		return nil, false
	}
	return &Artifact{
		PackageID: manifest.ID,
		Version:   manifest.Version,
		Path:      path,
		Checksum:  checksum,
		Size:      size,
	}, true
}

func (a *Adapter) cacheStore(manifest *Manifest, sourceHash string, artifact *Artifact) (*Artifact, error) {
	if err := os.MkdirAll(a.cfg.Paths.CacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	target := a.cachePath(manifest, sourceHash)
	if err := copyFile(artifact.Path, target); err != nil {
		return nil, err
	}
	cached := *artifact
	cached.Path = target
	return &cached, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	tmp := dst + ".partial"
	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", tmp, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("copy to %s: %w", tmp, err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("close %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename to %s: %w", dst, err)
	}
	return nil
}

func sanitizeCacheKey(key string) string {
	var b strings.Builder
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '@':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
