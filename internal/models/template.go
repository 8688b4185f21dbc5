package models

import "time"

// TemplateItem is a versioned configuration template for a Greengrass
// core. Resolved once per task and passed read-only through the chain.
type TemplateItem struct {
	Name      string
	VersionNo int
	Document  string // YAML core-config document
	CreatedAt time.Time
	UpdatedAt time.Time
}
