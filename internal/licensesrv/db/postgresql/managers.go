package postgresql

import (
	"context"
	"database/sql"

	"github.com/cspline/activationsrv/internal/licensesrv/db/dbmanager"
)

// License Manager
type licenseManager struct {
	c dbmanager.Conn
}

func (lm *licenseManager) conn() *sql.Conn {
	return lm.c.Conn()
}

func newLicenseManager(c dbmanager.Conn) *licenseManager {
	return &licenseManager{c: c}
}

// Connection Manager
type connectionManager struct {
	c dbmanager.Conn
}

func newConnectionManager(c dbmanager.Conn) *connectionManager {
	return &connectionManager{c: c}
}

func (cm *connectionManager) Close(ctx context.Context) {
	cm.c.Close(ctx)
}
