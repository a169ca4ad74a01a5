// Package db provides the license store interfaces and their wiring. The two
// interfaces are separated so the store can be faked in orchestrator tests
// while connection lifecycle stays with the HTTP middleware.
package db

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/cspline/activationsrv/internal/common/apperrors"
	"github.com/cspline/activationsrv/internal/common/httpx"
	"github.com/cspline/activationsrv/internal/common/uuid"
	"github.com/cspline/activationsrv/internal/licensesrv/db/dbmanager"
	"github.com/cspline/activationsrv/internal/licensesrv/db/models"
	"github.com/cspline/activationsrv/internal/licensesrv/db/postgresql"
)

// LicenseManager handles all license store operations: key lifecycle, the
// claim transition, and the append-only activation audit log.
// ClaimLicenseKey must be linearizable per key: of any number of concurrent
// claims on one unused key, exactly one succeeds and the rest observe the
// winner's binding via dberror.ErrConflict.
type LicenseManager interface {
	// License keys
	GetLicenseKey(ctx context.Context, keyString string) (*models.LicenseKey, apperrors.Error)
	ClaimLicenseKey(ctx context.Context, keyString, email, name, machineID string) (*models.LicenseKey, apperrors.Error)
	ResetLicenseKey(ctx context.Context, keyID uuid.UUID) apperrors.Error
	CreateLicenseKeys(ctx context.Context, count int, notes string) ([]*models.LicenseKey, apperrors.Error)
	ListLicenseKeys(ctx context.Context) ([]*models.LicenseKey, apperrors.Error)
	CountLicenseKeys(ctx context.Context) (total, claimed int64, _ apperrors.Error)
	DeleteLicenseKey(ctx context.Context, keyID uuid.UUID) apperrors.Error

	// Activation audit log
	InsertActivation(ctx context.Context, rec *models.Activation) apperrors.Error
	ListRecentActivations(ctx context.Context, limit int) ([]*models.Activation, apperrors.Error)
	CountActivations(ctx context.Context) (int64, apperrors.Error)
}

// ConnectionManager handles the database connection lifecycle.
type ConnectionManager interface {
	Close(ctx context.Context)
}

// Database combines both managers into the per-request store handle.
type Database interface {
	LicenseManager
	ConnectionManager
}

var pool dbmanager.Pool

// Init initializes the database connection pool. Panics if the pool cannot
// be created; the server cannot run without its store.
func Init() {
	if pool != nil {
		return
	}
	ctx := log.Logger.WithContext(context.Background())
	pg := dbmanager.NewPool(ctx, "postgresql")
	if pg == nil {
		panic("unable to create db pool")
	}
	pool = pg
}

// Conn returns a new database connection from the pool.
func Conn(ctx context.Context) (dbmanager.Conn, error) {
	if pool == nil {
		return nil, fmt.Errorf("database pool not initialized")
	}
	conn, err := pool.Conn(ctx)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("unable to get db connection")
		return nil, err
	}
	return conn, nil
}

type ctxDbKeyType string

const ctxDbKey ctxDbKeyType = "CSplineLicenseDb"

// ConnCtx adds a database connection to the context.
func ConnCtx(ctx context.Context) (context.Context, error) {
	conn, err := Conn(ctx)
	if err != nil {
		return nil, err
	}
	return context.WithValue(ctx, ctxDbKey, conn), nil
}

type licenseDb struct {
	LicenseManager
	ConnectionManager
}

// DB returns the store handle bound to the connection in the context.
// Returns nil if no connection is present.
func DB(ctx context.Context) Database {
	if conn, ok := ctx.Value(ctxDbKey).(dbmanager.Conn); ok {
		lm, cm := postgresql.NewLicenseDb(conn)
		return &licenseDb{
			LicenseManager:    lm,
			ConnectionManager: cm,
		}
	}
	log.Ctx(ctx).Error().Msg("unable to get db connection from context")
	return nil
}

// LoadDBMiddleware checks out a connection for the request and returns it
// when the request completes.
func LoadDBMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, err := ConnCtx(r.Context())
		if err != nil {
			log.Ctx(r.Context()).Error().Err(err).Msg("unable to get db connection")
			httpx.ErrApplicationError("unable to service request at this time").Send(w)
			return
		}
		defer func() {
			if dbConn := DB(ctx); dbConn != nil {
				dbConn.Close(context.Background()) // use background to avoid canceled context
			}
		}()

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
