// Package appfs exposes embedded static assets (DB migrations).
package appfs

import "embed"

//go:embed migrations
var FS embed.FS
