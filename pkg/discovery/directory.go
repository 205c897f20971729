package discovery

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/trellis/pkg/extension"
)

// DirectorySource discovers sideloaded extension files of one kind in a managed
// directory
type DirectorySource struct {
	dir    string
	suffix string
	watch  *dirWatch
	log    *logrus.Logger
}

// NewDirectorySource watches dir for files ending in kind's file suffix
func NewDirectorySource(dir string, kind extension.Kind, log *logrus.Logger) *DirectorySource {
	if log == nil {
		log = logrus.New()
	}
	s := &DirectorySource{
		dir:    dir,
		suffix: kind.FileSuffix(),
		log:    log,
	}
	s.watch = newDirWatch(dir, s.scan, log)
	return s
}

func (s *DirectorySource) Name() string { return "dir:" + s.dir }

// Dir returns the watched directory
func (s *DirectorySource) Dir() string { return s.dir }

func (s *DirectorySource) Watch(ctx context.Context) (<-chan []Descriptor, error) {
	return s.watch.start(ctx)
}

// Refresh forces a rescan of the directory
func (s *DirectorySource) Refresh() {
	s.watch.requestRefresh()
}

// Scan reads the directory once
func (s *DirectorySource) Scan() []Descriptor {
	descriptors, _ := s.scan()
	return descriptors
}

func (s *DirectorySource) scan() ([]Descriptor, []string) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warnf("Failed to read extension directory %s: %v", s.dir, err)
		}
		return nil, nil
	}

	var descriptors []Descriptor
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), s.suffix) {
			continue
		}

		path := filepath.Join(s.dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			s.log.Warnf("Failed to read extension file %s: %v", path, err)
			continue
		}

		descriptors = append(descriptors, Descriptor{
			Ref:         path,
			Fingerprint: fingerprint([]byte(path), data),
			Provenance:  extension.ProvenanceSideloadedFile,
			Data:        data,
		})
	}

	sort.Slice(descriptors, func(i, j int) bool { return descriptors[i].Ref < descriptors[j].Ref })
	return descriptors, nil
}
