// Package templates renders notification subjects and bodies from
// operator-supplied text with {name} placeholders.
package templates

import (
	"fmt"
	"strings"

	"github.com/notifyhub/scribe-dispatch/internal/domain"
)

// segment is either literal text or a placeholder name.
type segment struct {
	text  string
	param string
}

// Text is a parsed template string.
type Text struct {
	raw      string
	segments []segment
}

// Parse splits raw into literals and {name} placeholders.
// "{{" and "}}" produce literal braces.
func Parse(raw string) (Text, error) {
	t := Text{raw: raw}
	var lit strings.Builder

	flush := func() {
		if lit.Len() > 0 {
			t.segments = append(t.segments, segment{text: lit.String()})
			lit.Reset()
		}
	}

	for i := 0; i < len(raw); i++ {
		c := raw[i]
		switch {
		case c == '{' && i+1 < len(raw) && raw[i+1] == '{':
			lit.WriteByte('{')
			i++
		case c == '}' && i+1 < len(raw) && raw[i+1] == '}':
			lit.WriteByte('}')
			i++
		case c == '{':
			end := strings.IndexByte(raw[i+1:], '}')
			if end < 0 {
				return Text{}, fmt.Errorf("%w: unclosed placeholder at offset %d", domain.ErrTemplate, i)
			}
			name := raw[i+1 : i+1+end]
			if !validName(name) {
				return Text{}, fmt.Errorf("%w: invalid placeholder %q", domain.ErrTemplate, name)
			}
			flush()
			t.segments = append(t.segments, segment{param: name})
			i += end + 1
		case c == '}':
			return Text{}, fmt.Errorf("%w: unmatched '}' at offset %d", domain.ErrTemplate, i)
		default:
			lit.WriteByte(c)
		}
	}
	flush()
	return t, nil
}

// Literal wraps raw as text with no placeholders.
func Literal(raw string) Text {
	t := Text{raw: raw}
	if raw != "" {
		t.segments = []segment{{text: raw}}
	}
	return t
}

func validName(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		if r != '_' && (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}

// Params returns the placeholder names in order of appearance.
func (t Text) Params() []string {
	var out []string
	for _, s := range t.segments {
		if s.param != "" {
			out = append(out, s.param)
		}
	}
	return out
}

// Render substitutes every placeholder. A placeholder without a value is an
// error; unused values are ignored.
func (t Text) Render(params map[string]string) (string, error) {
	var b strings.Builder
	b.Grow(len(t.raw))
	for _, s := range t.segments {
		if s.param == "" {
			b.WriteString(s.text)
			continue
		}
		v, ok := params[s.param]
		if !ok {
			return "", fmt.Errorf("%w: missing parameter %q", domain.ErrTemplate, s.param)
		}
		b.WriteString(v)
	}
	return b.String(), nil
}

func (t Text) String() string { return t.raw }

// Template is the subject and message body for one notification kind.
type Template struct {
	Subject Text
	Message Text
}

// Set maps each kind to its template.
type Set struct {
	templates map[domain.Kind]Template
}

// Render produces the subject and body for kind.
func (s *Set) Render(kind domain.Kind, params map[string]string) (subject, body string, err error) {
	if s == nil {
		return "", "", fmt.Errorf("%w: no templates loaded", domain.ErrTemplate)
	}
	tpl, ok := s.templates[kind]
	if !ok {
		return "", "", fmt.Errorf("%w: no template for kind %q", domain.ErrTemplate, kind)
	}
	if subject, err = tpl.Subject.Render(params); err != nil {
		return "", "", fmt.Errorf("%s subject: %w", kind, err)
	}
	if body, err = tpl.Message.Render(params); err != nil {
		return "", "", fmt.Errorf("%s message: %w", kind, err)
	}
	return subject, body, nil
}

// Len returns the number of templates in the set.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.templates)
}
