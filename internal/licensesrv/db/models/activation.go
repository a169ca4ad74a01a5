package models

import (
	"time"

	"github.com/cspline/activationsrv/internal/common/uuid"
)

/*
   Column      |           Type           | Collation | Nullable |      Default
---------------+--------------------------+-----------+----------+--------------------
 id            | uuid                     |           | not null | uuid_generate_v4()
 key_string    | text                     |           | not null |
 email         | text                     |           | not null |
 name          | text                     |           | not null |
 machine_id    | text                     |           | not null |
 activated_at  | timestamptz              |           | not null | now()
 ip_address    | text                     |           | not null | ''
 user_agent    | text                     |           | not null | ''
Indexes:
    "activations_pkey" PRIMARY KEY, btree (id)
    "idx_activations_activated_at" btree (activated_at)
*/

// Activation is one audit log entry, appended per issued activation
// (including repeat activations from the bound machine). Rows are never
// updated or deleted by the server.
type Activation struct {
	ID          uuid.UUID `db:"id"`
	KeyString   string    `db:"key_string"`
	Email       string    `db:"email"`
	Name        string    `db:"name"`
	MachineID   string    `db:"machine_id"`
	ActivatedAt time.Time `db:"activated_at"`
	IPAddress   string    `db:"ip_address"`
	UserAgent   string    `db:"user_agent"`
}
