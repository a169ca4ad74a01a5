package server

import (
	"crypto/subtle"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/cspline/activationsrv/internal/common/httpx"
	"github.com/cspline/activationsrv/internal/common/uuid"
	"github.com/cspline/activationsrv/internal/licensesrv/config"
	"github.com/cspline/activationsrv/internal/licensesrv/db"
	"github.com/cspline/activationsrv/internal/licensesrv/db/models"
)

// adminAuth gates the admin API behind the shared-secret token. With no token
// configured the admin surface is disabled entirely.
func adminAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := config.Config().Admin.APIToken
		if token == "" {
			log.Ctx(r.Context()).Warn().Msg("admin api request but no admin token configured")
			httpx.ErrUnAuthorized("admin api is disabled").Send(w)
			return
		}
		presented := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
			httpx.ErrUnAuthorized().Send(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// licenseKeyRsp is the admin wire form of a license key.
type licenseKeyRsp struct {
	ID        string  `json:"id"`
	Key       string  `json:"key"`
	Status    string  `json:"status"`
	Email     *string `json:"email"`
	Name      *string `json:"name"`
	MachineID *string `json:"machine_id"`
	ClaimedAt *string `json:"claimed_at"`
	Notes     string  `json:"notes"`
	CreatedAt string  `json:"created_at"`
}

func toLicenseKeyRsp(key *models.LicenseKey) licenseKeyRsp {
	rsp := licenseKeyRsp{
		ID:        key.ID.String(),
		Key:       key.KeyString,
		Status:    string(key.Status),
		Notes:     key.Notes,
		CreatedAt: key.CreatedAt.UTC().Format(time.RFC3339),
	}
	if key.Email.Valid {
		rsp.Email = &key.Email.String
	}
	if key.Name.Valid {
		rsp.Name = &key.Name.String
	}
	if key.MachineID.Valid {
		rsp.MachineID = &key.MachineID.String
	}
	if key.ClaimedAt.Valid {
		t := key.ClaimedAt.Time.UTC().Format(time.RFC3339)
		rsp.ClaimedAt = &t
	}
	return rsp
}

type createKeysReq struct {
	Count int    `json:"count"`
	Notes string `json:"notes"`
}

// maxKeysPerBatch bounds a single key generation request.
const maxKeysPerBatch = 1000

func createKeysHandler(r *http.Request) (*httpx.Response, error) {
	req := &createKeysReq{}
	if err := httpx.GetRequestData(r, req); err != nil {
		return nil, err
	}
	if req.Count <= 0 || req.Count > maxKeysPerBatch {
		return nil, httpx.ErrInvalidRequest("count must be between 1 and " + strconv.Itoa(maxKeysPerBatch))
	}

	keys, err := db.DB(r.Context()).CreateLicenseKeys(r.Context(), req.Count, req.Notes)
	if err != nil {
		return nil, err
	}

	rsp := make([]licenseKeyRsp, 0, len(keys))
	for _, key := range keys {
		rsp = append(rsp, toLicenseKeyRsp(key))
	}
	return &httpx.Response{
		StatusCode: http.StatusCreated,
		Response: map[string]any{
			"success": true,
			"keys":    rsp,
		},
	}, nil
}

func listKeysHandler(r *http.Request) (*httpx.Response, error) {
	keys, err := db.DB(r.Context()).ListLicenseKeys(r.Context())
	if err != nil {
		return nil, err
	}

	rsp := make([]licenseKeyRsp, 0, len(keys))
	for _, key := range keys {
		rsp = append(rsp, toLicenseKeyRsp(key))
	}
	return &httpx.Response{
		StatusCode: http.StatusOK,
		Response: map[string]any{
			"success": true,
			"keys":    rsp,
		},
	}, nil
}

func resetKeyHandler(r *http.Request) (*httpx.Response, error) {
	keyID, err := uuid.Parse(chi.URLParam(r, "keyID"))
	if err != nil {
		return nil, httpx.ErrInvalidRequest("invalid key id")
	}

	if err := db.DB(r.Context()).ResetLicenseKey(r.Context(), keyID); err != nil {
		return nil, err
	}

	log.Ctx(r.Context()).Info().Str("key_id", keyID.String()).Msg("license key reset")
	return &httpx.Response{
		StatusCode: http.StatusOK,
		Response:   map[string]any{"success": true},
	}, nil
}

type activationRsp struct {
	ID          string `json:"id"`
	Key         string `json:"key"`
	Email       string `json:"email"`
	Name        string `json:"name"`
	MachineID   string `json:"machine_id"`
	ActivatedAt string `json:"activated_at"`
	IPAddress   string `json:"ip_address"`
	UserAgent   string `json:"user_agent"`
}

const defaultActivationsLimit = 50

func listActivationsHandler(r *http.Request) (*httpx.Response, error) {
	limit := defaultActivationsLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, httpx.ErrInvalidRequest("limit must be a positive integer")
		}
		limit = n
	}

	records, err := db.DB(r.Context()).ListRecentActivations(r.Context(), limit)
	if err != nil {
		return nil, err
	}

	rsp := make([]activationRsp, 0, len(records))
	for _, rec := range records {
		rsp = append(rsp, activationRsp{
			ID:          rec.ID.String(),
			Key:         rec.KeyString,
			Email:       rec.Email,
			Name:        rec.Name,
			MachineID:   rec.MachineID,
			ActivatedAt: rec.ActivatedAt.UTC().Format(time.RFC3339),
			IPAddress:   rec.IPAddress,
			UserAgent:   rec.UserAgent,
		})
	}
	return &httpx.Response{
		StatusCode: http.StatusOK,
		Response: map[string]any{
			"success":     true,
			"activations": rsp,
		},
	}, nil
}

type statsRsp struct {
	Success          bool  `json:"success"`
	TotalKeys        int64 `json:"total_keys"`
	ClaimedKeys      int64 `json:"claimed_keys"`
	UnusedKeys       int64 `json:"unused_keys"`
	TotalActivations int64 `json:"total_activations"`
}

func statsHandler(r *http.Request) (*httpx.Response, error) {
	store := db.DB(r.Context())
	total, claimed, err := store.CountLicenseKeys(r.Context())
	if err != nil {
		return nil, err
	}
	activations, err := store.CountActivations(r.Context())
	if err != nil {
		return nil, err
	}

	return &httpx.Response{
		StatusCode: http.StatusOK,
		Response: statsRsp{
			Success:          true,
			TotalKeys:        total,
			ClaimedKeys:      claimed,
			UnusedKeys:       total - claimed,
			TotalActivations: activations,
		},
	}, nil
}
