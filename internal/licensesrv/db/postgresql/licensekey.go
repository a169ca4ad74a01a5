package postgresql

import (
	"context"
	"database/sql"
	"errors"

	"github.com/avast/retry-go/v4"
	"github.com/jackc/pgconn"
	"github.com/rs/zerolog/log"

	"github.com/cspline/activationsrv/internal/common/apperrors"
	"github.com/cspline/activationsrv/internal/common/uuid"
	"github.com/cspline/activationsrv/internal/licensesrv/db/dberror"
	"github.com/cspline/activationsrv/internal/licensesrv/db/models"
	"github.com/cspline/activationsrv/internal/licensesrv/keygen"
)

const licenseKeyColumns = `id, key_string, status, email, name, machine_id, claimed_at, notes, created_at`

func scanLicenseKey(row *sql.Row) (*models.LicenseKey, error) {
	var key models.LicenseKey
	err := row.Scan(
		&key.ID,
		&key.KeyString,
		&key.Status,
		&key.Email,
		&key.Name,
		&key.MachineID,
		&key.ClaimedAt,
		&key.Notes,
		&key.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &key, nil
}

// GetLicenseKey retrieves a license key by its key string.
func (lm *licenseManager) GetLicenseKey(ctx context.Context, keyString string) (*models.LicenseKey, apperrors.Error) {
	query := `
		SELECT ` + licenseKeyColumns + `
		FROM license_keys
		WHERE key_string = $1`

	key, err := scanLicenseKey(lm.conn().QueryRowContext(ctx, query, keyString))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, dberror.ErrNotFound.Msg("license key not found")
		}
		log.Ctx(ctx).Error().Err(err).Msg("failed to get license key")
		return nil, dberror.ErrDatabase.Err(err)
	}

	return key, nil
}

// ClaimLicenseKey atomically transitions an unused key to claimed and binds
// it to the given machine. The conditional UPDATE serializes concurrent
// claimants on the row lock: exactly one caller observes status = 'unused'
// and wins. Losers get dberror.ErrConflict along with the current row so
// they can see the winner's binding; a missing key gets dberror.ErrNotFound.
func (lm *licenseManager) ClaimLicenseKey(ctx context.Context, keyString, email, name, machineID string) (*models.LicenseKey, apperrors.Error) {
	if keyString == "" || email == "" || name == "" || machineID == "" {
		return nil, dberror.ErrInvalidInput.Msg("claim requires key, email, name, and machine id")
	}

	query := `
		UPDATE license_keys
		SET status = 'claimed', email = $2, name = $3, machine_id = $4, claimed_at = NOW()
		WHERE key_string = $1 AND status = 'unused'
		RETURNING ` + licenseKeyColumns

	key, err := scanLicenseKey(lm.conn().QueryRowContext(ctx, query, keyString, email, name, machineID))
	if err == nil {
		return key, nil
	}
	if err != sql.ErrNoRows {
		log.Ctx(ctx).Error().Err(err).Msg("failed to claim license key")
		return nil, dberror.ErrDatabase.Err(err)
	}

	// Zero rows updated: either the key does not exist or someone else holds
	// the claim. Re-read to tell the two apart.
	current, gerr := lm.GetLicenseKey(ctx, keyString)
	if gerr != nil {
		return nil, gerr
	}
	return current, dberror.ErrConflict.Msg("license key is already claimed")
}

// ResetLicenseKey clears the binding fields of a key, returning it to the
// unused state. Administrative operation only.
func (lm *licenseManager) ResetLicenseKey(ctx context.Context, keyID uuid.UUID) apperrors.Error {
	query := `
		UPDATE license_keys
		SET status = 'unused', email = NULL, name = NULL, machine_id = NULL, claimed_at = NULL
		WHERE id = $1
		RETURNING id`

	var returnedID uuid.UUID
	err := lm.conn().QueryRowContext(ctx, query, keyID).Scan(&returnedID)
	if err != nil {
		if err == sql.ErrNoRows {
			return dberror.ErrNotFound.Msg("license key not found")
		}
		log.Ctx(ctx).Error().Err(err).Msg("failed to reset license key")
		return dberror.ErrDatabase.Err(err)
	}

	return nil
}

// CreateLicenseKeys generates and inserts count new unused keys. A generated
// key colliding with an existing one is a retryable condition: the insert is
// retried with a fresh key rather than failing the batch.
func (lm *licenseManager) CreateLicenseKeys(ctx context.Context, count int, notes string) ([]*models.LicenseKey, apperrors.Error) {
	if count <= 0 {
		return nil, dberror.ErrInvalidInput.Msg("count must be positive")
	}

	keys := make([]*models.LicenseKey, 0, count)
	for i := 0; i < count; i++ {
		key, err := retry.DoWithData(func() (*models.LicenseKey, error) {
			return lm.insertLicenseKey(ctx, keygen.Generate(), notes)
		},
			retry.Attempts(3),
			retry.LastErrorOnly(true),
			retry.RetryIf(func(err error) bool {
				return errors.Is(err, dberror.ErrAlreadyExists)
			}),
		)
		if err != nil {
			if appErr, ok := err.(apperrors.Error); ok {
				return keys, appErr
			}
			return keys, dberror.ErrDatabase.Err(err)
		}
		keys = append(keys, key)
	}
	return keys, nil
}

func (lm *licenseManager) insertLicenseKey(ctx context.Context, keyString, notes string) (*models.LicenseKey, apperrors.Error) {
	query := `
		INSERT INTO license_keys (id, key_string, notes)
		VALUES ($1, $2, $3)
		RETURNING ` + licenseKeyColumns

	key, err := scanLicenseKey(lm.conn().QueryRowContext(ctx, query, uuid.New(), keyString, notes))
	if err != nil {
		if pgErr, ok := err.(*pgconn.PgError); ok {
			switch {
			case pgErr.Code == "23505": // unique_violation
				return nil, dberror.ErrAlreadyExists.Msg("license key already exists")
			}
		}
		log.Ctx(ctx).Error().Err(err).Msg("failed to insert license key")
		return nil, dberror.ErrDatabase.Err(err)
	}
	return key, nil
}

// ListLicenseKeys returns all keys, newest first.
func (lm *licenseManager) ListLicenseKeys(ctx context.Context) ([]*models.LicenseKey, apperrors.Error) {
	query := `
		SELECT ` + licenseKeyColumns + `
		FROM license_keys
		ORDER BY created_at DESC`

	rows, err := lm.conn().QueryContext(ctx, query)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to list license keys")
		return nil, dberror.ErrDatabase.Err(err)
	}
	defer rows.Close()

	var keys []*models.LicenseKey
	for rows.Next() {
		var key models.LicenseKey
		err := rows.Scan(
			&key.ID,
			&key.KeyString,
			&key.Status,
			&key.Email,
			&key.Name,
			&key.MachineID,
			&key.ClaimedAt,
			&key.Notes,
			&key.CreatedAt,
		)
		if err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("failed to scan license key")
			return nil, dberror.ErrDatabase.Err(err)
		}
		keys = append(keys, &key)
	}
	if err := rows.Err(); err != nil {
		return nil, dberror.ErrDatabase.Err(err)
	}

	return keys, nil
}

// CountLicenseKeys returns the total number of keys and how many are claimed.
func (lm *licenseManager) CountLicenseKeys(ctx context.Context) (total, claimed int64, _ apperrors.Error) {
	query := `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE status = 'claimed')
		FROM license_keys`

	err := lm.conn().QueryRowContext(ctx, query).Scan(&total, &claimed)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to count license keys")
		return 0, 0, dberror.ErrDatabase.Err(err)
	}
	return total, claimed, nil
}

// DeleteLicenseKey removes a key entirely. Test cleanup helper; the admin
// surface only resets keys, it never deletes them.
func (lm *licenseManager) DeleteLicenseKey(ctx context.Context, keyID uuid.UUID) apperrors.Error {
	query := `
		DELETE FROM license_keys
		WHERE id = $1
		RETURNING id`

	var returnedID uuid.UUID
	err := lm.conn().QueryRowContext(ctx, query, keyID).Scan(&returnedID)
	if err != nil {
		if err == sql.ErrNoRows {
			return dberror.ErrNotFound.Msg("license key not found")
		}
		log.Ctx(ctx).Error().Err(err).Msg("failed to delete license key")
		return dberror.ErrDatabase.Err(err)
	}
	return nil
}
