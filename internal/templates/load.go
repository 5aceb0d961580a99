package templates

import (
	_ "embed"
	"fmt"
	"os"
	"slices"
	"strings"

	yaml "go.yaml.in/yaml/v3"

	"github.com/notifyhub/scribe-dispatch/internal/domain"
)

//go:embed default.yaml
var defaultYAML []byte

// fileEntry is the on-disk shape of one template.
type fileEntry struct {
	Subject string `yaml:"subject"`
	Message string `yaml:"message"`
}

// Default returns the built-in template set.
func Default() (*Set, error) {
	return parseSet(defaultYAML, nil)
}

// LoadFile reads a YAML template file. Kinds the file does not mention keep
// their built-in template, so operators only override what they need.
func LoadFile(path string) (*Set, error) {
	base, err := Default()
	if err != nil {
		return nil, fmt.Errorf("built-in templates: %w", err)
	}
	if strings.TrimSpace(path) == "" {
		return base, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read templates: %w", err)
	}
	set, err := parseSet(data, base)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return set, nil
}

func parseSet(data []byte, base *Set) (*Set, error) {
	var raw map[string]fileEntry
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: yaml unmarshal: %v", domain.ErrTemplate, err)
	}

	set := &Set{templates: make(map[domain.Kind]Template, len(domain.TemplatedKinds()))}
	if base != nil {
		for k, v := range base.templates {
			set.templates[k] = v
		}
	}

	for name, entry := range raw {
		kind := domain.Kind(name)
		allowed, ok := kind.Params()
		if !ok {
			return nil, fmt.Errorf("%w: unknown notification kind %q", domain.ErrTemplate, name)
		}
		tpl, err := compile(entry)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		for _, p := range append(tpl.Subject.Params(), tpl.Message.Params()...) {
			if !slices.Contains(allowed, p) {
				return nil, fmt.Errorf("%w: %s references unknown parameter %q", domain.ErrTemplate, name, p)
			}
		}
		set.templates[kind] = tpl
	}

	for _, k := range domain.TemplatedKinds() {
		if _, ok := set.templates[k]; !ok {
			return nil, fmt.Errorf("%w: missing template for kind %q", domain.ErrTemplate, k)
		}
	}
	return set, nil
}

func compile(e fileEntry) (Template, error) {
	if strings.TrimSpace(e.Subject) == "" {
		return Template{}, fmt.Errorf("%w: subject is required", domain.ErrTemplate)
	}
	// Subjects were historically plain text, so one that does not parse is
	// sent as written rather than failing the load.
	subject, err := Parse(e.Subject)
	if err != nil {
		subject = Literal(e.Subject)
	}
	message, err := Parse(e.Message)
	if err != nil {
		return Template{}, fmt.Errorf("message: %w", err)
	}
	return Template{Subject: subject, Message: message}, nil
}
