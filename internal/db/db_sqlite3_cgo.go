//go:build cgo && sqlite3_cgo

package db

// Opt-in cgo driver for platforms where the pure-Go build underperforms.
import (
	_ "github.com/mattn/go-sqlite3"
)

const driverID = "mattn/go-sqlite3"
const driverName = "sqlite3"
