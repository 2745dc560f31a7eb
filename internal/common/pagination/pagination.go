// Package pagination pages through per-subscriber lists such as the
// subscriptions shown by the list command.
package pagination

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds the paging limits.
type Config struct {
	DefaultPage  int // 1
	DefaultLimit int // items per page when none is given
	MaxLimit     int // upper bound for a requested page size
}

// DefaultConfig returns page=1, limit=10, max=25. A Discord embed shows at
// most 25 fields, which bounds the page size.
func DefaultConfig() Config {
	return Config{
		DefaultPage:  1,
		DefaultLimit: 10,
		MaxLimit:     25,
	}
}

// LoadFromEnv reads PAGINATION_DEFAULT_LIMIT and PAGINATION_MAX_LIMIT,
// keeping the defaults for unset or malformed values.
func LoadFromEnv() Config {
	cfg := DefaultConfig()
	cfg.DefaultLimit = envInt("PAGINATION_DEFAULT_LIMIT", cfg.DefaultLimit)
	cfg.MaxLimit = envInt("PAGINATION_MAX_LIMIT", cfg.MaxLimit)
	if cfg.DefaultLimit > cfg.MaxLimit {
		cfg.DefaultLimit = cfg.MaxLimit
	}
	return cfg
}

func envInt(key string, def int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil || v < 1 {
		return def
	}
	return v
}

// Params selects one page. Page is 1-based.
type Params struct {
	Page  int
	Limit int
}

// Validate rejects a page below 1 or a limit outside [1, MaxLimit].
func (p Params) Validate(cfg Config) error {
	if p.Page < 1 {
		return fmt.Errorf("page must be a positive integer")
	}
	if p.Limit < 1 || p.Limit > cfg.MaxLimit {
		return fmt.Errorf("limit must be between 1 and %d", cfg.MaxLimit)
	}
	return nil
}

// WithDefaults fills a missing page or limit and caps the limit.
func (p Params) WithDefaults(cfg Config) Params {
	if p.Page <= 0 {
		p.Page = cfg.DefaultPage
	}
	if p.Limit <= 0 {
		p.Limit = cfg.DefaultLimit
	}
	if p.Limit > cfg.MaxLimit {
		p.Limit = cfg.MaxLimit
	}
	return p
}

// Offset is the number of rows before the page.
func (p Params) Offset() int {
	return CalculateOffset(p.Page, p.Limit)
}

// CalculateOffset returns (page-1)*limit.
func CalculateOffset(page, limit int) int {
	return (page - 1) * limit
}

// CalculateTotalPages returns ceil(total/limit), and 1 for an empty list.
func CalculateTotalPages(total int64, limit int) int {
	if total == 0 || limit <= 0 {
		return 1
	}
	return int((total + int64(limit) - 1) / int64(limit))
}

// Metadata describes where a page sits in the full list.
type Metadata struct {
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	TotalPages int   `json:"total_pages"`
	HasMore    bool  `json:"has_more"`
}

// NewMetadata builds the metadata of params over a list of total items.
func NewMetadata(params Params, total int64) Metadata {
	return Metadata{
		Total:      total,
		Page:       params.Page,
		Limit:      params.Limit,
		TotalPages: CalculateTotalPages(total, params.Limit),
		HasMore:    int64(params.Offset()+params.Limit) < total,
	}
}

// Response is one page of items with its metadata.
type Response[T any] struct {
	Data       []T      `json:"data"`
	Pagination Metadata `json:"pagination"`
}

// NewResponse pairs data with metadata.
func NewResponse[T any](data []T, metadata Metadata) Response[T] {
	return Response[T]{Data: data, Pagination: metadata}
}
