// Package web embeds the single-page terminal UI served at /.
package web

import "embed"

//go:embed static
var Assets embed.FS
