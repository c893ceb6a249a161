// Package web embeds the browser UI.
package web

import "embed"

// Static holds the UI under static/.
//
//go:embed static
var Static embed.FS
