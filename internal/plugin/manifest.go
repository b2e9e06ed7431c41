package plugin

import (
	"fmt"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// SupportedManifestSpec is the only manifest_spec value accepted by discovery.
	SupportedManifestSpec = "elasticd.plugin"
	// SupportedManifestVersion is the only manifest_version accepted by discovery.
	SupportedManifestVersion = 1

	// ExtensionElasticAgent marks a plugin as able to provision elastic agents.
	ExtensionElasticAgent = "elastic-agent"
)

// Extensions is the list of extension points a plugin implements.
//
// Accepted formats:
//   - string array: extensions: [elastic-agent]
//   - object array: extensions: [{name: elastic-agent}]
type Extensions []string

func (e *Extensions) UnmarshalYAML(n *yaml.Node) error {
	if n == nil {
		*e = nil
		return nil
	}
	if n.Kind != yaml.SequenceNode {
		return fmt.Errorf("extensions must be a sequence")
	}

	out := make([]string, 0, len(n.Content))
	for _, item := range n.Content {
		switch item.Kind {
		case yaml.ScalarNode:
			out = append(out, strings.TrimSpace(item.Value))
		case yaml.MappingNode:
			var tmp struct {
				Name string `yaml:"name"`
			}
			if err := item.Decode(&tmp); err != nil {
				return fmt.Errorf("invalid extension object: %w", err)
			}
			out = append(out, strings.TrimSpace(tmp.Name))
		default:
			return fmt.Errorf("invalid extension entry (must be string or object)")
		}
	}

	*e = out
	return nil
}

// Manifest defines the structure of a plugin's manifest.yaml file.
type Manifest struct {
	ManifestSpec    string     `yaml:"manifest_spec"`
	ManifestVersion int        `yaml:"manifest_version"`
	ID              string     `yaml:"id"`
	Version         string     `yaml:"version"`
	Protocol        int        `yaml:"protocol"`
	Entrypoint      string     `yaml:"entrypoint"`
	Description     string     `yaml:"description,omitempty"`
	Extensions      Extensions `yaml:"extensions"`
}

// Descriptor identifies one loaded plugin instance. Two descriptors refer to
// the same plugin when their IDs are equal.
type Descriptor struct {
	ID          string     `json:"id"`
	Version     string     `json:"version,omitempty"`
	Description string     `json:"description,omitempty"`
	Path        string     `json:"path,omitempty"`       // Absolute path to plugin directory
	Entrypoint  string     `json:"entrypoint,omitempty"` // Absolute path to entrypoint executable
	Protocol    int        `json:"protocol,omitempty"`
	Extensions  Extensions `json:"extensions,omitempty"`
	Fingerprint string     `json:"fingerprint,omitempty"` // blake3:<hex> of manifest bytes
}

// Implements reports whether the plugin declares the given extension point.
func (d Descriptor) Implements(extension string) bool {
	return slices.Contains(d.Extensions, extension)
}

// SameAs reports whether d and other identify the same plugin.
func (d Descriptor) SameAs(other Descriptor) bool {
	return d.ID == other.ID
}
