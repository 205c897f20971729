package discovery

import (
	"context"
	"os"
	"path/filepath"
	"sort"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/trellis/pkg/extension"
)

// PackageManifestFile is the metadata file every installed package directory holds
const PackageManifestFile = "package.yaml"

// Attribute keys PackageSource puts on descriptors
const (
	AttrPackage     = "package"
	AttrKind        = "kind"
	AttrID          = "id"
	AttrLabel       = "label"
	AttrVersion     = "version"
	AttrDescription = "description"
	AttrAuthor      = "author"
	AttrIcon        = "icon"
	AttrEntrypoint  = "entrypoint"
	AttrUpdateURL   = "update_url"
	AttrEnabled     = "enabled"
)

// PackageInfo is the content of an installed package's package.yaml
type PackageInfo struct {
	Package  string            `yaml:"package"`
	Label    string            `yaml:"label"`
	Version  string            `yaml:"version"`
	Icon     string            `yaml:"icon,omitempty"`
	Features []string          `yaml:"features"`
	Metadata map[string]string `yaml:"metadata,omitempty"`
}

// LoadPackageInfo reads package.yaml from a package directory
func LoadPackageInfo(dir string) (*PackageInfo, []byte, error) {
	data, err := os.ReadFile(filepath.Join(dir, PackageManifestFile))
	if err != nil {
		return nil, nil, err
	}
	var info PackageInfo
	if err := yaml.Unmarshal(data, &info); err != nil {
		return nil, data, err
	}
	return &info, data, nil
}

// HasFeature reports whether the package advertises marker
func (p *PackageInfo) HasFeature(marker string) bool {
	for _, f := range p.Features {
		if f == marker {
			return true
		}
	}
	return false
}

// PackageSource discovers installed packages providing one capability kind. The
// installed-package registry is a directory with one subdirectory per package.
type PackageSource struct {
	root   string
	kind   extension.Kind
	marker string
	watch  *dirWatch
	log    *logrus.Logger
}

// NewPackageSource watches root for packages declaring kind's feature marker in
// namespace
func NewPackageSource(root string, kind extension.Kind, namespace string, log *logrus.Logger) *PackageSource {
	if log == nil {
		log = logrus.New()
	}
	s := &PackageSource{
		root:   root,
		kind:   kind,
		marker: kind.Marker(namespace),
		log:    log,
	}
	s.watch = newDirWatch(root, s.scan, log)
	return s
}

func (s *PackageSource) Name() string { return "packages:" + s.root }

func (s *PackageSource) Watch(ctx context.Context) (<-chan []Descriptor, error) {
	return s.watch.start(ctx)
}

// Refresh forces a rescan of the package registry
func (s *PackageSource) Refresh() {
	s.watch.requestRefresh()
}

// Scan reads the package registry once
func (s *PackageSource) Scan() []Descriptor {
	descriptors, _ := s.scan()
	return descriptors
}

func (s *PackageSource) scan() ([]Descriptor, []string) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warnf("Failed to read package directory %s: %v", s.root, err)
		}
		return nil, nil
	}

	var descriptors []Descriptor
	var dirs []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(s.root, entry.Name())
		dirs = append(dirs, dir)

		info, data, err := LoadPackageInfo(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			// keep a descriptor so the failure is visible downstream
			s.log.Warnf("Failed to read package %s: %v", dir, err)
			descriptors = append(descriptors, Descriptor{
				Ref:         dir,
				Fingerprint: fingerprint([]byte(dir), data),
				Provenance:  extension.ProvenanceInstalledPackage,
				Attributes:  map[string]string{AttrPackage: entry.Name(), AttrKind: string(s.kind)},
			})
			continue
		}
		if !info.HasFeature(s.marker) {
			continue
		}

		descriptors = append(descriptors, Descriptor{
			Ref:         dir,
			Fingerprint: fingerprint([]byte(dir), data),
			Provenance:  extension.ProvenanceInstalledPackage,
			Attributes:  s.attributes(info),
		})
	}

	sort.Slice(descriptors, func(i, j int) bool { return descriptors[i].Ref < descriptors[j].Ref })
	return descriptors, dirs
}

func (s *PackageSource) attributes(info *PackageInfo) map[string]string {
	attrs := make(map[string]string, len(info.Metadata)+5)
	for k, v := range info.Metadata {
		attrs[k] = v
	}
	attrs[AttrPackage] = info.Package
	attrs[AttrKind] = string(s.kind)
	attrs[AttrLabel] = info.Label
	attrs[AttrVersion] = info.Version
	if info.Icon != "" {
		attrs[AttrIcon] = info.Icon
	}
	return attrs
}
