// Package progression implements the per-user question traversal state
// machine over the catalog.
package progression

import (
	"github.com/ashureev/alexi/internal/catalog"
	"github.com/ashureev/alexi/internal/domain"
)

// Outcome is the result of a single transition.
type Outcome int

const (
	// OutcomeAdvanced means a next question was found.
	OutcomeAdvanced Outcome = iota
	// OutcomeExhausted means every question has been visited.
	OutcomeExhausted
	// OutcomeStaleTheme means the pointer refers to a theme (or index) the
	// catalog no longer has.
	OutcomeStaleTheme
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAdvanced:
		return "advanced"
	case OutcomeExhausted:
		return "exhausted"
	case OutcomeStaleTheme:
		return "stale_theme"
	default:
		return "unknown"
	}
}

// Advance computes the question that follows current. A nil current means the
// user has not started. Themes and questions are visited strictly in
// declaration order.
func Advance(c *catalog.Catalog, current *domain.QuestionPointer) (domain.QuestionPointer, Outcome) {
	if current == nil {
		return first(c)
	}

	themePos, ok := c.IndexOf(current.Theme)
	if !ok || current.Index < 0 {
		return domain.QuestionPointer{}, OutcomeStaleTheme
	}

	next := current.Index + 1
	if next < c.QuestionCount(current.Theme) {
		return pointerAt(c, current.Theme, next)
	}

	nextTheme, ok := c.ThemeAt(themePos + 1)
	if !ok {
		return domain.QuestionPointer{}, OutcomeExhausted
	}
	return pointerAt(c, nextTheme, 0)
}

// Locate validates a direct jump to (theme, index).
func Locate(c *catalog.Catalog, theme string, index int) (domain.QuestionPointer, bool) {
	q, ok := c.Question(theme, index)
	if !ok {
		return domain.QuestionPointer{}, false
	}
	return domain.QuestionPointer{Theme: theme, Index: index, Text: q.Text}, true
}

// Position returns the zero-based position of p in the flattened catalog.
func Position(c *catalog.Catalog, p *domain.QuestionPointer) (int, bool) {
	if p == nil {
		return 0, false
	}
	themePos, ok := c.IndexOf(p.Theme)
	if !ok || p.Index < 0 || p.Index >= c.QuestionCount(p.Theme) {
		return 0, false
	}
	pos := p.Index
	for i := 0; i < themePos; i++ {
		name, _ := c.ThemeAt(i)
		pos += c.QuestionCount(name)
	}
	return pos, true
}

func first(c *catalog.Catalog) (domain.QuestionPointer, Outcome) {
	theme, ok := c.ThemeAt(0)
	if !ok {
		return domain.QuestionPointer{}, OutcomeExhausted
	}
	return pointerAt(c, theme, 0)
}

func pointerAt(c *catalog.Catalog, theme string, index int) (domain.QuestionPointer, Outcome) {
	p, ok := Locate(c, theme, index)
	if !ok {
		return domain.QuestionPointer{}, OutcomeStaleTheme
	}
	return p, OutcomeAdvanced
}
