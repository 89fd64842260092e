package core

import "time"

// Timeout defaults for title lookups
const (
	DefaultTitleTimeout     = 10 * time.Second
	DefaultRenderTimeout    = 35 * time.Second
	DefaultNetworkIdleDelay = 500 * time.Millisecond
)

// Only the head of a page is needed to find its title.
const (
	MaxPageSize = 2 * 1024 * 1024 // 2MB
	MaxTitleLen = 300
)

// HTTP client configuration
const (
	UserAgent = "Mozilla/5.0 (compatible; smartbookmark/1.0)"
)
