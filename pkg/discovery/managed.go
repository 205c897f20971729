package discovery

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/trellis/pkg/extension"
)

const (
	readOnlyMode  os.FileMode = 0555
	writeableMode os.FileMode = 0755
)

// ManagedDir owns the sideload directories, one per kind below root. A kind's
// directory is write-protected except while an install or uninstall runs.
type ManagedDir struct {
	root string
	mu   sync.Mutex
	log  *logrus.Logger
}

// NewManagedDir creates the per-kind directories below root and write-protects them
func NewManagedDir(root string, log *logrus.Logger) (*ManagedDir, error) {
	if log == nil {
		log = logrus.New()
	}
	m := &ManagedDir{root: root, log: log}
	for _, kind := range extension.Kinds() {
		dir := m.KindDir(kind)
		if err := os.MkdirAll(dir, writeableMode); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", dir, err)
		}
		if err := os.Chmod(dir, readOnlyMode); err != nil {
			return nil, fmt.Errorf("failed to protect %s: %w", dir, err)
		}
	}
	return m, nil
}

// KindDir returns the sideload directory of kind
func (m *ManagedDir) KindDir(kind extension.Kind) string {
	return filepath.Join(m.root, string(kind))
}

// Path returns where the artifact of an extension is installed
func (m *ManagedDir) Path(key extension.Key) string {
	return filepath.Join(m.KindDir(key.Kind), key.ID+key.Kind.FileSuffix())
}

// Install copies the artifact at artifactPath into the kind's directory, replacing
// any previous artifact of the same extension
func (m *ManagedDir) Install(ctx context.Context, meta extension.Metadata, artifactPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	src, err := os.Open(artifactPath)
	if err != nil {
		return fmt.Errorf("failed to open artifact: %w", err)
	}
	defer src.Close()

	return m.writable(meta.Kind, func(dir string) error {
		tmp, err := os.CreateTemp(dir, ".install-*")
		if err != nil {
			return fmt.Errorf("failed to create temp file: %w", err)
		}
		defer os.Remove(tmp.Name())

		if _, err := io.Copy(tmp, src); err != nil {
			tmp.Close()
			return fmt.Errorf("failed to copy artifact: %w", err)
		}
		if err := tmp.Close(); err != nil {
			return err
		}

		target := m.Path(meta.Key())
		if err := os.Rename(tmp.Name(), target); err != nil {
			return fmt.Errorf("failed to install %s: %w", target, err)
		}
		m.log.Infof("Installed %s to %s", meta.Key(), target)
		return nil
	})
}

// Uninstall removes the artifact of an extension. Missing artifacts are not an error.
func (m *ManagedDir) Uninstall(key extension.Key) error {
	return m.writable(key.Kind, func(dir string) error {
		err := os.Remove(m.Path(key))
		if err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to uninstall %s: %w", key, err)
		}
		return nil
	})
}

func (m *ManagedDir) writable(kind extension.Kind, fn func(dir string) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	dir := m.KindDir(kind)
	if err := os.Chmod(dir, writeableMode); err != nil {
		return fmt.Errorf("failed to unlock %s: %w", dir, err)
	}
	defer func() {
		if err := os.Chmod(dir, readOnlyMode); err != nil {
			m.log.Errorf("Failed to write-protect %s: %v", dir, err)
		}
	}()

	return fn(dir)
}
