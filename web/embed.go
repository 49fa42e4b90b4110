// Package web содержит HTML-шаблоны и статические файлы, встроенные в бинарник.
package web

import "embed"

//go:embed templates/*.html
var Templates embed.FS

//go:embed static
var Static embed.FS
