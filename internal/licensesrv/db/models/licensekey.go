package models

import (
	"database/sql"
	"time"

	"github.com/cspline/activationsrv/internal/common/uuid"
)

/*
   Column     |           Type           | Collation | Nullable |      Default
--------------+--------------------------+-----------+----------+--------------------
 id           | uuid                     |           | not null | uuid_generate_v4()
 key_string   | text                     |           | not null |
 status       | text                     |           | not null | 'unused'
 email        | text                     |           |          |
 name         | text                     |           |          |
 machine_id   | text                     |           |          |
 claimed_at   | timestamptz              |           |          |
 notes        | text                     |           | not null | ''
 created_at   | timestamptz              |           | not null | now()
Indexes:
    "license_keys_pkey" PRIMARY KEY, btree (id)
    "license_keys_key_string_key" UNIQUE, btree (key_string)
*/

// KeyStatus is the lifecycle state of a license key.
type KeyStatus string

const (
	KeyStatusUnused  KeyStatus = "unused"
	KeyStatusClaimed KeyStatus = "claimed"
)

// LicenseKey is one purchasable license. The binding fields (email, name,
// machine_id, claimed_at) are set together on claim and cleared together on
// reset: status = claimed ⇔ machine_id is set.
type LicenseKey struct {
	ID        uuid.UUID      `db:"id"`
	KeyString string         `db:"key_string"`
	Status    KeyStatus      `db:"status"`
	Email     sql.NullString `db:"email"`
	Name      sql.NullString `db:"name"`
	MachineID sql.NullString `db:"machine_id"`
	ClaimedAt sql.NullTime   `db:"claimed_at"`
	Notes     string         `db:"notes"`
	CreatedAt time.Time      `db:"created_at"`
}

// IsClaimedBy reports whether the key is bound to the given machine.
func (k *LicenseKey) IsClaimedBy(machineID string) bool {
	return k.Status == KeyStatusClaimed && k.MachineID.Valid && k.MachineID.String == machineID
}
