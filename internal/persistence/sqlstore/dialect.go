// Package sqlstore implements persistence.Store over database/sql. The SQL is
// shared between drivers; the differences live in a Dialect.
package sqlstore

import (
	"database/sql"
	"strconv"
	"strings"
)

// Dialect captures what differs between the supported drivers.
type Dialect struct {
	Name string

	// Numbered placeholders ($1, $2, ...) instead of '?'.
	Numbered bool

	// LockSuffix is appended to reads that must hold the row until commit.
	LockSuffix string

	// SkipLockedSuffix is appended to the waitlist candidate read so rows
	// locked by concurrent transactions are skipped instead of awaited.
	SkipLockedSuffix string

	// TxOptions are passed to BeginTx for every write transaction.
	TxOptions *sql.TxOptions

	// IsUniqueViolation reports whether err is a unique or primary key
	// constraint failure.
	IsUniqueViolation func(err error) bool
}

// Rebind rewrites '?' placeholders to the dialect's style.
func (d Dialect) Rebind(query string) string {
	if !d.Numbered {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
