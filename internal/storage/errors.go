package storage

import (
	"database/sql/driver"
	"errors"
	"net"

	"github.com/lib/pq"
)

var (
	// ErrNotFound indicates the requested listing does not exist or is no
	// longer available.
	ErrNotFound = errors.New("listing not found")
)

// IsTransient reports whether err looks like a recoverable store failure:
// a dropped connection, pool exhaustion, a cancelled statement or a network
// timeout. Callers may retry these; anything else should surface as-is.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "08", "53", "57":
			// connection exception, insufficient resources, operator
			// intervention (includes query_canceled)
			return true
		}
	}
	return false
}
