package postgresql

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/cspline/activationsrv/internal/common/apperrors"
	"github.com/cspline/activationsrv/internal/common/uuid"
	"github.com/cspline/activationsrv/internal/licensesrv/db/dberror"
	"github.com/cspline/activationsrv/internal/licensesrv/db/models"
)

// InsertActivation appends one audit log entry. The table is append-only;
// there are no update or delete operations.
func (lm *licenseManager) InsertActivation(ctx context.Context, rec *models.Activation) apperrors.Error {
	if rec.KeyString == "" || rec.Email == "" || rec.Name == "" || rec.MachineID == "" {
		return dberror.ErrInvalidInput.Msg("activation record requires key, email, name, and machine id")
	}

	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}

	query := `
		INSERT INTO activations (id, key_string, email, name, machine_id, ip_address, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, activated_at`

	err := lm.conn().QueryRowContext(ctx, query,
		rec.ID,
		rec.KeyString,
		rec.Email,
		rec.Name,
		rec.MachineID,
		rec.IPAddress,
		rec.UserAgent,
	).Scan(&rec.ID, &rec.ActivatedAt)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to insert activation record")
		return dberror.ErrDatabase.Err(err)
	}

	return nil
}

// ListRecentActivations returns up to limit activation records, newest first.
func (lm *licenseManager) ListRecentActivations(ctx context.Context, limit int) ([]*models.Activation, apperrors.Error) {
	if limit <= 0 {
		return nil, dberror.ErrInvalidInput.Msg("limit must be positive")
	}

	query := `
		SELECT id, key_string, email, name, machine_id, activated_at, ip_address, user_agent
		FROM activations
		ORDER BY activated_at DESC
		LIMIT $1`

	rows, err := lm.conn().QueryContext(ctx, query, limit)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to list activations")
		return nil, dberror.ErrDatabase.Err(err)
	}
	defer rows.Close()

	var records []*models.Activation
	for rows.Next() {
		var rec models.Activation
		err := rows.Scan(
			&rec.ID,
			&rec.KeyString,
			&rec.Email,
			&rec.Name,
			&rec.MachineID,
			&rec.ActivatedAt,
			&rec.IPAddress,
			&rec.UserAgent,
		)
		if err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("failed to scan activation record")
			return nil, dberror.ErrDatabase.Err(err)
		}
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, dberror.ErrDatabase.Err(err)
	}

	return records, nil
}

// CountActivations returns the total number of activation records.
func (lm *licenseManager) CountActivations(ctx context.Context) (int64, apperrors.Error) {
	var count int64
	err := lm.conn().QueryRowContext(ctx, `SELECT COUNT(*) FROM activations`).Scan(&count)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to count activations")
		return 0, dberror.ErrDatabase.Err(err)
	}
	return count, nil
}
