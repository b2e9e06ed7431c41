package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/zeebo/blake3"
	"gopkg.in/yaml.v3"
)

// ChecksumFile is written next to a locked config file.
const ChecksumFile = ".checksums"

const checksumVersion = 1

var (
	// ErrNotLocked is returned by LoadChecksums when no checksum file exists.
	ErrNotLocked = errors.New("config is not locked")
	// ErrChecksumMismatch means a locked file changed after it was locked.
	ErrChecksumMismatch = errors.New("hash mismatch")
)

// HashFile returns the blake3 digest of a file as "blake3:<hex>", the same
// form used for plugin manifest fingerprints.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	defer f.Close()

	h := blake3.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return fmt.Sprintf("blake3:%x", h.Sum(nil)), nil
}

// Verify checks path against the hash recorded for its base name.
func (m *ChecksumManifest) Verify(path string) error {
	name := filepath.Base(path)
	want, ok := m.Hashes[name]
	if !ok {
		return fmt.Errorf("%s has no recorded hash", name)
	}
	got, err := HashFile(path)
	if err != nil {
		return err
	}
	if got != want {
		return fmt.Errorf("%w for %s: locked %s, now %s", ErrChecksumMismatch, name, want, got)
	}
	return nil
}

// Lock hashes the config file and writes .checksums beside it. Once locked,
// Load refuses a config whose contents no longer match.
func Lock(configPath string) (*ChecksumManifest, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("resolve config path %q: %w", configPath, err)
	}
	sum, err := HashFile(absPath)
	if err != nil {
		return nil, err
	}

	manifest := &ChecksumManifest{
		Version:     checksumVersion,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Hashes:      map[string]string{filepath.Base(absPath): sum},
	}
	data, err := yaml.Marshal(manifest)
	if err != nil {
		return nil, fmt.Errorf("marshal checksums: %w", err)
	}

	dir := filepath.Dir(absPath)
	tmp, err := os.CreateTemp(dir, ChecksumFile+".*")
	if err != nil {
		return nil, fmt.Errorf("write checksums: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return nil, fmt.Errorf("write checksums: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("write checksums: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(dir, ChecksumFile)); err != nil {
		return nil, fmt.Errorf("write checksums: %w", err)
	}
	return manifest, nil
}

// LoadChecksums reads the .checksums file from a config directory. A missing
// file yields an error wrapping ErrNotLocked.
func LoadChecksums(configDir string) (*ChecksumManifest, error) {
	data, err := os.ReadFile(filepath.Join(configDir, ChecksumFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w (run 'elasticd config lock')", ErrNotLocked)
	}
	if err != nil {
		return nil, fmt.Errorf("read checksums: %w", err)
	}

	var manifest ChecksumManifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("parse checksums: %w", err)
	}
	if manifest.Version != checksumVersion {
		return nil, fmt.Errorf("unsupported checksums version: %d", manifest.Version)
	}
	return &manifest, nil
}

// verifyChecksums checks configPath when its directory is locked.
func verifyChecksums(configPath string) error {
	manifest, err := LoadChecksums(filepath.Dir(configPath))
	if errors.Is(err, ErrNotLocked) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := manifest.Verify(configPath); err != nil {
		return fmt.Errorf("config verification failed: %w\n"+
			"If the edit was intentional, run: elasticd config lock --config %s", err, configPath)
	}
	return nil
}
