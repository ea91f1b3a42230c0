// Package appfs embeds the SQL migrations and assets shipped with the binaries.
package appfs

import "embed"

//go:embed migrations assets/templates/email/*
var FS embed.FS
