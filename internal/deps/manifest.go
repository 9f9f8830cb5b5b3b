package deps

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"strings"

	"git.home.luguber.info/inful/pagerefresh/internal/foundation/errors"
)

// Requirement is one manifest entry.
type Requirement struct {
	Name string
	// Spec is the full entry as written, including any version constraint.
	Spec string
	Line int
}

// Manifest is a parsed requirement list.
type Manifest struct {
	Path         string
	Requirements []Requirement
}

// Names returns the requirement names in manifest order.
func (m *Manifest) Names() []string {
	out := make([]string, 0, len(m.Requirements))
	for _, r := range m.Requirements {
		out = append(out, r.Name)
	}
	return out
}

// LoadManifest reads and parses the manifest at path.
func LoadManifest(path string) (*Manifest, error) {
	// #nosec G304 -- manifest path is from the operator's configuration
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryDependency, "cannot read dependency manifest").
			WithContext("path", path).
			Build()
	}
	m, err := ParseManifest(data)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryDependency, "invalid dependency manifest").
			WithContext("path", path).
			Build()
	}
	m.Path = path
	return m, nil
}

// ParseManifest parses a flat requirement list: one entry per line, blank
// lines and # comments ignored. Option lines (-r, --index-url, ...) are not
// supported.
func ParseManifest(data []byte) (*Manifest, error) {
	m := &Manifest{}
	sc := bufio.NewScanner(bytes.NewReader(data))
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := sc.Text()
		if i := strings.Index(line, "#"); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "-") {
			return nil, fmt.Errorf("line %d: unsupported option %q", lineNo, strings.Fields(line)[0])
		}
		name := requirementName(line)
		if name == "" {
			return nil, fmt.Errorf("line %d: missing requirement name", lineNo)
		}
		m.Requirements = append(m.Requirements, Requirement{Name: name, Spec: line, Line: lineNo})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return m, nil
}

func requirementName(entry string) string {
	end := strings.IndexAny(entry, "<>=!~;[@ \t")
	if end < 0 {
		return entry
	}
	return strings.TrimSpace(entry[:end])
}
