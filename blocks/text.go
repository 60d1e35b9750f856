package blocks

import (
	"github.com/go-gota/gota/dataframe"

	"github.com/jask/dashlego/core/errs"
	"github.com/jask/dashlego/widgets"
)

// ContentFunc produces a text block's body from the processed frame and the
// block's view values.
type ContentFunc func(df dataframe.DataFrame, view map[string]any) (string, error)

// Text renders free text, optionally computed from data. src may be nil.
type Text struct {
	Base
	content ContentFunc
}

func NewText(title string, src Source, content ContentFunc, opts ...Option) (*Text, error) {
	if content == nil {
		return nil, errs.Configurationf("new text", "content function is required")
	}
	t := &Text{content: content}
	base, err := newBase("text", title, src, t, opts)
	if err != nil {
		return nil, err
	}
	t.Base = base
	return t, nil
}

// StaticText returns a text block with fixed content.
func StaticText(title, body string, opts ...Option) (*Text, error) {
	return NewText(title, nil, func(dataframe.DataFrame, map[string]any) (string, error) { return body, nil }, opts...)
}

func (t *Text) draw(df dataframe.DataFrame, view map[string]any) (widgets.Widget, error) {
	s, err := t.content(df, view)
	if err != nil {
		return nil, err
	}
	return widgets.Text(s), nil
}
