package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrNetworkFilesystem is wrapped by RequireLocal when a state file would live
// on a network mount.
var ErrNetworkFilesystem = errors.New("network filesystem")

var remoteMounts = map[string]bool{
	"afpfs":  true,
	"afs":    true,
	"ceph":   true,
	"cifs":   true,
	"nfs":    true,
	"nfs4":   true,
	"smb2":   true,
	"smbfs":  true,
	"webdav": true,
}

// fsTypeFunc reports the filesystem type name of an existing path.
type fsTypeFunc func(path string) (string, error)

// RequireLocal checks that path, or its nearest existing parent, is on local
// disk. what names the file in the returned error ("journal", "PID lock").
// Platforms without detection always pass.
func RequireLocal(path, what string) error {
	return requireLocal(path, what, filesystemType)
}

func requireLocal(path, what string, fsType fsTypeFunc) error {
	if path == "" {
		return fmt.Errorf("%s path is empty", what)
	}

	existing, err := existingAncestor(path)
	if err != nil {
		return fmt.Errorf("resolve %s path %q: %w", what, path, err)
	}

	name, err := fsType(existing)
	if err != nil {
		return fmt.Errorf("detect filesystem for %q: %w", existing, err)
	}
	name = strings.ToLower(strings.TrimSpace(name))
	if remoteMounts[name] {
		return fmt.Errorf("%s %q is on %s (%w): sqlite and flock need local disk, move state.path",
			what, path, name, ErrNetworkFilesystem)
	}
	return nil
}

// existingAncestor walks up from path until it finds something that exists.
func existingAncestor(path string) (string, error) {
	p, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	for {
		_, err := os.Stat(p)
		switch {
		case err == nil:
			return p, nil
		case !errors.Is(err, os.ErrNotExist):
			return "", err
		}
		parent := filepath.Dir(p)
		if parent == p {
			return "", fmt.Errorf("no existing ancestor")
		}
		p = parent
	}
}
