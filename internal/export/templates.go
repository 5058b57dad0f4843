package export

import (
	"bytes"
	"embed"
	"html/template"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

var listTemplate = template.Must(
	template.New("shopping_list.html").
		Funcs(template.FuncMap{
			"formatDate": func(t time.Time, layout string) string {
				return t.Format(layout)
			},
		}).
		ParseFS(templateFS, "templates/shopping_list.html"),
)

// RenderHTML renders the shopping list template.
func RenderHTML(list List) (string, error) {
	var buf bytes.Buffer
	if err := listTemplate.Execute(&buf, list); err != nil {
		return "", err
	}
	return buf.String(), nil
}
