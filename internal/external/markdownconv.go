package external

import (
	"context"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
)

// HTMLToMarkdownConverter is a thin MarkdownConverter backed directly by
// html-to-markdown/v2. Prescribing markdown production is out of scope;
// a reference adapter is not, so this is the one shipped with the
// service.
type HTMLToMarkdownConverter struct {
	conv *converter.Converter
}

func NewHTMLToMarkdownConverter() *HTMLToMarkdownConverter {
	return &HTMLToMarkdownConverter{
		conv: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
	}
}

func (c *HTMLToMarkdownConverter) Convert(_ context.Context, html string) (string, error) {
	return c.conv.ConvertString(html)
}
