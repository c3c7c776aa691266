// Package modularity reads, merges and renders modular-RPM stream documents
// (modulemd). An index holds one or more streams; the release engine adds
// built artifacts to streams, computes dependency contexts, and renders the
// merged index back for publication.
package modularity

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/rpmforge/rpmforge/pkg/rpm"
)

// MalformedDocumentError indicates a document in which no stream parsed.
type MalformedDocumentError struct {
	Err error
}

func (e *MalformedDocumentError) Error() string {
	return fmt.Sprintf("malformed module document: %v", e.Err)
}

func (e *MalformedDocumentError) Unwrap() error {
	return e.Err
}

// NoStreamError indicates a document that parsed but contains zero streams
// and no explicit name/stream override was supplied.
type NoStreamError struct{}

func (e *NoStreamError) Error() string {
	return "no module stream found in document"
}

// NSVCA is the canonical identity tuple for a modular stream:
// Name-Stream-Version-Context-Architecture.
type NSVCA struct {
	Name    string `json:"name"`
	Stream  string `json:"stream"`
	Version int64  `json:"version"`
	Context string `json:"context"`
	Arch    string `json:"arch"`
}

// String renders the tuple as name:stream:version:context:arch.
func (n NSVCA) String() string {
	return fmt.Sprintf("%s:%s:%d:%s:%s", n.Name, n.Stream, n.Version, n.Context, n.Arch)
}

// Component is one buildable component of a module stream.
type Component struct {
	Name       string
	Rationale  string `yaml:"rationale,omitempty"`
	Ref        string `yaml:"ref,omitempty"`
	Buildorder int    `yaml:"buildorder,omitempty"`
}

// ComponentList preserves the declaration order of the components mapping so
// build-order ties can be broken deterministically.
type ComponentList struct {
	items []Component
}

// UnmarshalYAML decodes the components mapping keeping declaration order.
func (c *ComponentList) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("components must be a mapping, got %v", node.Kind)
	}

	c.items = nil
	for i := 0; i+1 < len(node.Content); i += 2 {
		var comp Component
		if err := node.Content[i+1].Decode(&comp); err != nil {
			return fmt.Errorf("failed to decode component %q: %w", node.Content[i].Value, err)
		}
		comp.Name = node.Content[i].Value
		c.items = append(c.items, comp)
	}

	return nil
}

// MarshalYAML renders the components back as a mapping in declaration order.
func (c ComponentList) MarshalYAML() (interface{}, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, comp := range c.items {
		keyNode := &yaml.Node{Kind: yaml.ScalarNode, Value: comp.Name}
		valNode := &yaml.Node{}
		if err := valNode.Encode(struct {
			Rationale  string `yaml:"rationale,omitempty"`
			Ref        string `yaml:"ref,omitempty"`
			Buildorder int    `yaml:"buildorder,omitempty"`
		}{comp.Rationale, comp.Ref, comp.Buildorder}); err != nil {
			return nil, err
		}
		node.Content = append(node.Content, keyNode, valNode)
	}
	return node, nil
}

// Dependency is one entry of a stream's dependency list: the platforms and
// module streams required to build and to run the stream.
type Dependency struct {
	BuildRequires map[string][]string `yaml:"buildrequires,omitempty" json:"buildrequires,omitempty"`
	Requires      map[string][]string `yaml:"requires,omitempty" json:"requires,omitempty"`
}

// streamData is the data section of a modulemd document. Fields the engine
// does not touch are carried through the inline rest map so rendering
// round-trips them.
type streamData struct {
	Name         string       `yaml:"name"`
	Stream       string       `yaml:"stream"`
	Version      int64        `yaml:"version,omitempty"`
	Context      string       `yaml:"context,omitempty"`
	Arch         string       `yaml:"arch,omitempty"`
	Dependencies []Dependency `yaml:"dependencies,omitempty"`
	Components   *struct {
		Rpms ComponentList `yaml:"rpms"`
	} `yaml:"components,omitempty"`
	Artifacts *struct {
		Rpms []string `yaml:"rpms"`
	} `yaml:"artifacts,omitempty"`
	Rest map[string]interface{} `yaml:",inline"`
}

type streamDoc struct {
	Document string                 `yaml:"document"`
	Version  int                    `yaml:"version"`
	Data     *streamData            `yaml:"data"`
	Rest     map[string]interface{} `yaml:",inline"`
}

// Stream is one modular stream held by an index.
type Stream struct {
	doc *streamDoc
}

// ModuleIndex is a parsed module-index document: the ordered set of streams
// it declares.
type ModuleIndex struct {
	streams []*Stream
}

// Parse decodes a module-index document. A document with broken YAML is a
// MalformedDocumentError; one that parses but declares zero streams is a
// NoStreamError.
func Parse(document string) (*ModuleIndex, error) {
	index, err := parseStreams(document)
	if err != nil {
		return nil, err
	}
	if len(index.streams) == 0 {
		return nil, &NoStreamError{}
	}
	return index, nil
}

// ParseWithDefaults decodes a module-index document for a known module. A
// zero-stream document is treated as empty rather than an error because the
// caller supplied the identity explicitly.
func ParseWithDefaults(document, name, stream string) (*ModuleIndex, error) {
	index, err := parseStreams(document)
	if err != nil {
		return nil, err
	}
	if len(index.streams) == 0 {
		index.streams = append(index.streams, newStream(name, stream))
	}
	return index, nil
}

func parseStreams(document string) (*ModuleIndex, error) {
	index := &ModuleIndex{}
	decoder := yaml.NewDecoder(strings.NewReader(document))

	for {
		var doc streamDoc
		err := decoder.Decode(&doc)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &MalformedDocumentError{Err: err}
		}
		// Defaults documents and other non-stream documents are skipped.
		if doc.Document != "modulemd" || doc.Data == nil {
			continue
		}
		d := doc
		index.streams = append(index.streams, &Stream{doc: &d})
	}

	return index, nil
}

func newStream(name, stream string) *Stream {
	return &Stream{doc: &streamDoc{
		Document: "modulemd",
		Version:  2,
		Data:     &streamData{Name: name, Stream: stream},
	}}
}

// Streams returns the streams in declaration order.
func (idx *ModuleIndex) Streams() []*Stream {
	return idx.streams
}

// Get returns the stream with the given name and stream identifier, or nil.
func (idx *ModuleIndex) Get(name, stream string) *Stream {
	for _, s := range idx.streams {
		if s.Name() == name && s.StreamID() == stream {
			return s
		}
	}
	return nil
}

// Has reports whether the index already contains an NSVCA-equal stream.
func (idx *ModuleIndex) Has(id NSVCA) bool {
	for _, s := range idx.streams {
		if s.NSVCA() == id {
			return true
		}
	}
	return false
}

// Add appends a stream to the index.
func (idx *ModuleIndex) Add(s *Stream) {
	idx.streams = append(idx.streams, s)
}

// Render serializes the index back to a multi-document YAML stream.
// Parsing the result yields identical stream identity fields and artifact
// sets; artifact order is not guaranteed.
func (idx *ModuleIndex) Render() (string, error) {
	var builder strings.Builder
	for _, s := range idx.streams {
		builder.WriteString("---\n")
		data, err := yaml.Marshal(s.doc)
		if err != nil {
			return "", fmt.Errorf("failed to render stream %s: %w", s.NSVCA(), err)
		}
		builder.Write(data)
		builder.WriteString("...\n")
	}
	return builder.String(), nil
}

// Name returns the module name.
func (s *Stream) Name() string { return s.doc.Data.Name }

// StreamID returns the stream identifier.
func (s *Stream) StreamID() string { return s.doc.Data.Stream }

// Version returns the stream version.
func (s *Stream) Version() int64 { return s.doc.Data.Version }

// Context returns the dependency context.
func (s *Stream) Context() string { return s.doc.Data.Context }

// Arch returns the stream architecture.
func (s *Stream) Arch() string { return s.doc.Data.Arch }

// SetVersion sets the stream version.
func (s *Stream) SetVersion(v int64) { s.doc.Data.Version = v }

// SetArch sets the stream architecture.
func (s *Stream) SetArch(arch string) { s.doc.Data.Arch = arch }

// SetContext sets the dependency context.
func (s *Stream) SetContext(context string) { s.doc.Data.Context = context }

// NSVCA returns the stream's identity tuple.
func (s *Stream) NSVCA() NSVCA {
	return NSVCA{
		Name:    s.Name(),
		Stream:  s.StreamID(),
		Version: s.Version(),
		Context: s.Context(),
		Arch:    s.Arch(),
	}
}

// Artifacts returns the advertised RPM artifact list.
func (s *Stream) Artifacts() []string {
	if s.doc.Data.Artifacts == nil {
		return nil
	}
	return s.doc.Data.Artifacts.Rpms
}

// AddArtifact appends a built RPM to the advertised artifact list unless its
// name matches one of the filter prefixes. Filtered artifacts are silently
// excluded; this hides sub-packages from the module's advertised content.
func (s *Stream) AddArtifact(n rpm.NEVRA, filterPrefixes []string) {
	for _, prefix := range filterPrefixes {
		if strings.HasPrefix(n.Name, prefix) {
			return
		}
	}

	artifact := n.String()
	if s.doc.Data.Artifacts == nil {
		s.doc.Data.Artifacts = &struct {
			Rpms []string `yaml:"rpms"`
		}{}
	}
	for _, existing := range s.doc.Data.Artifacts.Rpms {
		if existing == artifact {
			return
		}
	}
	s.doc.Data.Artifacts.Rpms = append(s.doc.Data.Artifacts.Rpms, artifact)
}

// Dependencies returns the stream's dependency list.
func (s *Stream) Dependencies() []Dependency {
	return s.doc.Data.Dependencies
}

// ComponentsInBuildOrder yields components sorted by their declared
// build-order integer, ties broken by declaration order.
func (s *Stream) ComponentsInBuildOrder() []Component {
	if s.doc.Data.Components == nil {
		return nil
	}

	items := make([]Component, len(s.doc.Data.Components.Rpms.items))
	copy(items, s.doc.Data.Components.Rpms.items)

	// Insertion sort keeps the declaration order of equal build orders.
	for i := 1; i < len(items); i++ {
		for j := i; j > 0 && items[j].Buildorder < items[j-1].Buildorder; j-- {
			items[j], items[j-1] = items[j-1], items[j]
		}
	}

	return items
}
