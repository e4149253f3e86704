package migrations

import "embed"

// FS exposes the migration sources so goose can resolve versions without a
// migrations directory on disk.
//
//go:embed *.go
var FS embed.FS
