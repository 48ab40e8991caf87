// Package templates holds the built-in templates for generated servers.
package templates

import "embed"

//go:embed mcp/*.tmpl
var FS embed.FS
