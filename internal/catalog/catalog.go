// Package catalog holds the immutable, ordered catalog of therapy questions.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed questions.yaml
var defaultCatalog []byte

// ErrInvalidCatalog is returned when a catalog definition is malformed.
var ErrInvalidCatalog = errors.New("invalid question catalog")

// Question is a single catalog question.
type Question struct {
	Text string `json:"question"`
}

// Theme is a named, ordered group of questions.
type Theme struct {
	Name      string     `json:"theme"`
	Questions []Question `json:"questions"`
}

// Catalog is an ordered set of themes. It is safe for concurrent use; there
// is no mutation API, reloading means building a new Catalog.
type Catalog struct {
	themes []Theme
	index  map[string]int
	total  int
}

// New builds a catalog from themes in traversal order.
func New(themes []Theme) (*Catalog, error) {
	c := &Catalog{
		themes: make([]Theme, 0, len(themes)),
		index:  make(map[string]int, len(themes)),
	}
	for _, t := range themes {
		name := strings.TrimSpace(t.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: empty theme name", ErrInvalidCatalog)
		}
		if _, dup := c.index[name]; dup {
			return nil, fmt.Errorf("%w: duplicate theme %q", ErrInvalidCatalog, name)
		}
		if len(t.Questions) == 0 {
			return nil, fmt.Errorf("%w: theme %q has no questions", ErrInvalidCatalog, name)
		}
		qs := make([]Question, len(t.Questions))
		for i, q := range t.Questions {
			if strings.TrimSpace(q.Text) == "" {
				return nil, fmt.Errorf("%w: theme %q question %d is empty", ErrInvalidCatalog, name, i)
			}
			qs[i] = q
		}
		c.index[name] = len(c.themes)
		c.themes = append(c.themes, Theme{Name: name, Questions: qs})
		c.total += len(qs)
	}
	return c, nil
}

// Default returns the catalog embedded in the binary.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// Load reads a YAML or JSON catalog file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}
	return c, nil
}

// Parse decodes a mapping of theme name to question list. JSON input is
// accepted too since it is valid YAML; decoding through yaml.Node keeps the
// declaration order of the themes.
func Parse(data []byte) (*Catalog, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}
	if doc.Kind == 0 {
		return New(nil)
	}
	root := &doc
	if root.Kind == yaml.DocumentNode {
		if len(root.Content) == 0 {
			return New(nil)
		}
		root = root.Content[0]
	}
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: top level must be a mapping of theme to questions", ErrInvalidCatalog)
	}

	themes := make([]Theme, 0, len(root.Content)/2)
	for i := 0; i+1 < len(root.Content); i += 2 {
		key, val := root.Content[i], root.Content[i+1]
		if val.Kind != yaml.SequenceNode {
			return nil, fmt.Errorf("%w: theme %q must be a list (line %d)", ErrInvalidCatalog, key.Value, val.Line)
		}
		qs := make([]Question, 0, len(val.Content))
		for _, item := range val.Content {
			q, err := decodeQuestion(item)
			if err != nil {
				return nil, fmt.Errorf("theme %q: %w", key.Value, err)
			}
			qs = append(qs, q)
		}
		themes = append(themes, Theme{Name: key.Value, Questions: qs})
	}
	return New(themes)
}

// decodeQuestion accepts a bare string or a mapping with "question" or
// "questionText".
func decodeQuestion(n *yaml.Node) (Question, error) {
	switch n.Kind {
	case yaml.ScalarNode:
		return Question{Text: n.Value}, nil
	case yaml.MappingNode:
		var raw struct {
			Question     string `yaml:"question"`
			QuestionText string `yaml:"questionText"`
		}
		if err := n.Decode(&raw); err != nil {
			return Question{}, fmt.Errorf("%w: line %d: %v", ErrInvalidCatalog, n.Line, err)
		}
		text := raw.Question
		if text == "" {
			text = raw.QuestionText
		}
		return Question{Text: text}, nil
	default:
		return Question{}, fmt.Errorf("%w: line %d: unsupported question node", ErrInvalidCatalog, n.Line)
	}
}

// Themes returns theme names in traversal order.
func (c *Catalog) Themes() []string {
	out := make([]string, len(c.themes))
	for i, t := range c.themes {
		out[i] = t.Name
	}
	return out
}

// Questions returns a copy of the questions of theme.
func (c *Catalog) Questions(theme string) ([]Question, bool) {
	i, ok := c.index[theme]
	if !ok {
		return nil, false
	}
	return append([]Question(nil), c.themes[i].Questions...), true
}

// ThemeAt returns the theme name at position i.
func (c *Catalog) ThemeAt(i int) (string, bool) {
	if i < 0 || i >= len(c.themes) {
		return "", false
	}
	return c.themes[i].Name, true
}

// IndexOf returns the position of theme in traversal order.
func (c *Catalog) IndexOf(theme string) (int, bool) {
	i, ok := c.index[theme]
	return i, ok
}

// QuestionCount returns the number of questions in theme, or 0 when unknown.
func (c *Catalog) QuestionCount(theme string) int {
	i, ok := c.index[theme]
	if !ok {
		return 0
	}
	return len(c.themes[i].Questions)
}

// Question looks up a single question.
func (c *Catalog) Question(theme string, index int) (Question, bool) {
	i, ok := c.index[theme]
	if !ok || index < 0 || index >= len(c.themes[i].Questions) {
		return Question{}, false
	}
	return c.themes[i].Questions[index], true
}

// Len returns the number of themes.
func (c *Catalog) Len() int {
	return len(c.themes)
}

// TotalQuestions returns the number of questions across all themes.
func (c *Catalog) TotalQuestions() int {
	return c.total
}

// Snapshot returns a deep copy of the themes, for serving the catalog.
func (c *Catalog) Snapshot() []Theme {
	out := make([]Theme, len(c.themes))
	for i, t := range c.themes {
		out[i] = Theme{Name: t.Name, Questions: append([]Question(nil), t.Questions...)}
	}
	return out
}
