// Package appfs embeds the static files the apps need at runtime.
package appfs

import "embed"

//go:embed migrations all:assets
var FS embed.FS
