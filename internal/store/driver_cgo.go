// ABOUTME: Registers the cgo-backed mattn/go-sqlite3 driver as "sqlite3"
// ABOUTME: Only built when cgo is available; the pure-Go driver is always present

//go:build cgo

package store

import (
	_ "github.com/mattn/go-sqlite3"
)
