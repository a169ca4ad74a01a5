// Package postgresql implements the license store against PostgreSQL. The
// claim transition relies on the database's row locking: a conditional UPDATE
// on an unused key either wins atomically or affects zero rows.
package postgresql

import (
	"github.com/cspline/activationsrv/internal/licensesrv/db/dbmanager"
)

// NewLicenseDb wires the managers over a checked-out connection.
func NewLicenseDb(c dbmanager.Conn) (*licenseManager, *connectionManager) {
	return newLicenseManager(c), newConnectionManager(c)
}
