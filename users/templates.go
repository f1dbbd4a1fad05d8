package users

import (
	"embed"
	"html/template"
	"net/http"

	log "github.com/sirupsen/logrus"
)

//go:embed templates/*.html
var templateFS embed.FS

var pages = template.Must(template.ParseFS(templateFS, "templates/*.html"))

func render(writer http.ResponseWriter, name string, data interface{}) {
	writer.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := pages.ExecuteTemplate(writer, name, data); err != nil {
		log.WithError(err).Errorf("could not render %s", name)
	}
}
