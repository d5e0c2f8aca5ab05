// Package audit reads back the audit trail written by the stock services.
package audit

import (
	"fmt"
	"time"

	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

const (
	// DefaultPageSize applies when the caller does not ask for one.
	DefaultPageSize = 20
	// MaxPageSize caps timeline pages.
	MaxPageSize = 100
	// MaxExportRows caps CSV exports.
	MaxExportRows = 10000
	// MaxRange is the widest accepted from/to window.
	MaxRange = 90 * 24 * time.Hour
)

// Filters narrows the audit timeline. Zero values are ignored.
type Filters struct {
	From     time.Time
	To       time.Time
	Actor    string
	Entity   string
	EntityID string
	Action   string
	Page     int
	PageSize int
}

// Entry is one audit_logs row.
type Entry struct {
	ID       int64          `json:"id"`
	At       time.Time      `json:"at"`
	Actor    string         `json:"actor"`
	Action   string         `json:"action"`
	Entity   string         `json:"entity"`
	EntityID string         `json:"entity_id"`
	Meta     map[string]any `json:"meta,omitempty"`
}

// Paging describes the position of a timeline page.
type Paging struct {
	Page     int  `json:"page"`
	PageSize int  `json:"page_size"`
	HasNext  bool `json:"has_next"`
	PrevPage int  `json:"prev_page,omitempty"`
	NextPage int  `json:"next_page,omitempty"`
}

// Result is a page of entries, newest first.
type Result struct {
	Items  []Entry `json:"items"`
	Paging Paging  `json:"paging"`
}

// ErrInvalidRange rejects windows where from is after to or wider than MaxRange.
var ErrInvalidRange = fmt.Errorf("%w: invalid date range", shared.ErrValidation)
