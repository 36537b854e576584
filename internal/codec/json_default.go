//go:build !sonic

// Package codec selects the JSON implementation at build time.
package codec

import "github.com/goccy/go-json"

var (
	Marshal   = json.Marshal
	Unmarshal = json.Unmarshal
)
