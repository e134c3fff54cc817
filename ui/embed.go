// Package ui holds the page templates and static assets of the dashboard.
package ui

import "embed"

// FS contains templates/ and static/.
//
//go:embed templates static
var FS embed.FS
