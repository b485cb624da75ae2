package assets

import (
	"embed"
)

// Account directory migrations
//
//go:embed migrations/*.sql
var Migrations embed.FS
