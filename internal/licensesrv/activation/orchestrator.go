// Package activation implements the activation decision flow: validate the
// request, resolve the key's state, perform the claim transition when needed,
// and issue a signed license token.
package activation

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"github.com/cspline/activationsrv/internal/common/apperrors"
	"github.com/cspline/activationsrv/internal/licensesrv/db/dberror"
	"github.com/cspline/activationsrv/internal/licensesrv/db/models"
	"github.com/cspline/activationsrv/internal/licensesrv/license"
)

// Request is the client activation request. The JSON field names are the wire
// contract with the installer. SourceAddress and ClientAgent are filled by the
// HTTP layer for the audit log, never by the client.
type Request struct {
	Key       string `json:"key" validate:"required"`
	Email     string `json:"email" validate:"required"`
	Name      string `json:"name" validate:"required"`
	MachineID string `json:"machine_id" validate:"required"`

	SourceAddress string `json:"-"`
	ClientAgent   string `json:"-"`
}

var validate = validator.New()

// normalize trims surrounding whitespace so that a field of only spaces is
// rejected the same way as an absent one.
func (r *Request) normalize() {
	r.Key = strings.TrimSpace(r.Key)
	r.Email = strings.TrimSpace(r.Email)
	r.Name = strings.TrimSpace(r.Name)
	r.MachineID = strings.TrimSpace(r.MachineID)
}

// ClaimStore is the slice of the license store the orchestrator needs.
// Satisfied by db.Database; faked in tests.
type ClaimStore interface {
	GetLicenseKey(ctx context.Context, keyString string) (*models.LicenseKey, apperrors.Error)
	ClaimLicenseKey(ctx context.Context, keyString, email, name, machineID string) (*models.LicenseKey, apperrors.Error)
	InsertActivation(ctx context.Context, rec *models.Activation) apperrors.Error
}

// StoreProvider resolves the per-request store handle from the context.
type StoreProvider func(ctx context.Context) ClaimStore

// Orchestrator drives activations. It holds the signer and a store accessor;
// both are injected so the flow is testable without a live database or a
// production key.
type Orchestrator struct {
	signer *license.Signer
	store  StoreProvider
	now    func() time.Time
}

// NewOrchestrator wires an orchestrator from its dependencies.
func NewOrchestrator(signer *license.Signer, store StoreProvider) *Orchestrator {
	return &Orchestrator{
		signer: signer,
		store:  store,
		now:    time.Now,
	}
}

// Activate runs one activation attempt to completion and returns the signed
// token, or a client-facing rejection.
//
// The transition rules:
//   - unknown key: ErrInvalidKey
//   - key claimed by another machine: ErrKeyAlreadyUsed
//   - key claimed by this machine: re-issue a fresh token, no state change
//   - unused key: claim it, record the activation, issue a token
//
// A claim that loses a concurrent race is retried against the winner's row, so
// two simultaneous requests from the same machine both succeed. Rejected
// attempts leave no trace in the audit log.
func (o *Orchestrator) Activate(ctx context.Context, req *Request) (*license.Token, apperrors.Error) {
	req.normalize()
	if err := validate.Struct(req); err != nil {
		return nil, ErrMissingFields
	}

	store := o.store(ctx)
	if store == nil {
		return nil, ErrActivation.Msg("license store unavailable")
	}

	key, err := store.GetLicenseKey(ctx, req.Key)
	if err != nil {
		if errors.Is(err, dberror.ErrNotFound) {
			return nil, ErrInvalidKey
		}
		return nil, err
	}

	if key.Status == models.KeyStatusClaimed {
		if !key.IsClaimedBy(req.MachineID) {
			return nil, ErrKeyAlreadyUsed
		}
		log.Ctx(ctx).Info().Str("key", req.Key).Msg("re-activation for already bound machine")
		return o.issue(ctx, store, req)
	}

	claimed, err := store.ClaimLicenseKey(ctx, req.Key, req.Email, req.Name, req.MachineID)
	if err != nil {
		switch {
		case errors.Is(err, dberror.ErrConflict):
			// Lost the race. The returned row carries the winner's binding;
			// honor it if the winner was this same machine.
			if claimed != nil && claimed.IsClaimedBy(req.MachineID) {
				return o.issue(ctx, store, req)
			}
			return nil, ErrKeyAlreadyUsed
		case errors.Is(err, dberror.ErrNotFound):
			return nil, ErrInvalidKey
		default:
			return nil, err
		}
	}

	log.Ctx(ctx).Info().
		Str("key", req.Key).
		Str("machine_id", req.MachineID).
		Msg("license key claimed")

	return o.issue(ctx, store, req)
}

// issue records the activation and signs the token. The audit insert is best
// effort: a failure is logged but does not void a claim that already happened.
func (o *Orchestrator) issue(ctx context.Context, store ClaimStore, req *Request) (*license.Token, apperrors.Error) {
	rec := &models.Activation{
		KeyString: req.Key,
		Email:     req.Email,
		Name:      req.Name,
		MachineID: req.MachineID,
		IPAddress: req.SourceAddress,
		UserAgent: req.ClientAgent,
	}
	if err := store.InsertActivation(ctx, rec); err != nil {
		log.Ctx(ctx).Error().Err(err).Str("key", req.Key).Msg("failed to record activation")
	}

	payload := license.NewPayload(req.Name, req.Email, req.MachineID, o.now())
	token, err := o.signer.IssueToken(payload)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("key", req.Key).Msg("failed to sign license token")
		return nil, err
	}
	return token, nil
}
