package domain

// Pointer field names inside the currentQuestion map.
const (
	FieldQuestionTheme = "questionTheme"
	FieldQuestionIndex = "questionIndex"
	FieldQuestionText  = "questionText"
)

// QuestionPointer identifies a user's current question in the catalog.
type QuestionPointer struct {
	Theme string `json:"questionTheme"`
	Index int    `json:"questionIndex"`
	Text  string `json:"questionText"`
}

// Fields returns the pointer in stored document form.
func (p QuestionPointer) Fields() map[string]any {
	return map[string]any{
		FieldQuestionTheme: p.Theme,
		FieldQuestionIndex: p.Index,
		FieldQuestionText:  p.Text,
	}
}

// PointerFromValue decodes a stored currentQuestion value. Extra metadata is
// discarded. A value without a theme is treated as absent.
func PointerFromValue(v any) *QuestionPointer {
	m, ok := v.(map[string]any)
	if !ok || len(m) == 0 {
		return nil
	}
	theme, _ := m[FieldQuestionTheme].(string)
	if theme == "" {
		return nil
	}
	index, ok := AsInt(m[FieldQuestionIndex])
	if !ok {
		return nil
	}
	text, _ := m[FieldQuestionText].(string)
	return &QuestionPointer{Theme: theme, Index: index, Text: text}
}
