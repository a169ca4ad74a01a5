package activation

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cspline/activationsrv/internal/common/apperrors"
	"github.com/cspline/activationsrv/internal/common/uuid"
	"github.com/cspline/activationsrv/internal/licensesrv/db/dberror"
	"github.com/cspline/activationsrv/internal/licensesrv/db/models"
	"github.com/cspline/activationsrv/internal/licensesrv/license"
)

// fakeStore mimics the store's claim semantics in memory, including the
// exactly-one-winner rule for concurrent claims on the same key.
type fakeStore struct {
	mu          sync.Mutex
	keys        map[string]*models.LicenseKey
	activations []*models.Activation

	failAudit bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{keys: map[string]*models.LicenseKey{}}
}

func (s *fakeStore) addKey(keyString string) *models.LicenseKey {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := &models.LicenseKey{
		ID:        uuid.New(),
		KeyString: keyString,
		Status:    models.KeyStatusUnused,
		CreatedAt: time.Now(),
	}
	s.keys[keyString] = key
	return key
}

func copyKey(k *models.LicenseKey) *models.LicenseKey {
	c := *k
	return &c
}

func (s *fakeStore) GetLicenseKey(_ context.Context, keyString string) (*models.LicenseKey, apperrors.Error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key, ok := s.keys[keyString]
	if !ok {
		return nil, dberror.ErrNotFound.Msg("license key not found")
	}
	return copyKey(key), nil
}

func (s *fakeStore) ClaimLicenseKey(_ context.Context, keyString, email, name, machineID string) (*models.LicenseKey, apperrors.Error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key, ok := s.keys[keyString]
	if !ok {
		return nil, dberror.ErrNotFound.Msg("license key not found")
	}
	if key.Status != models.KeyStatusUnused {
		return copyKey(key), dberror.ErrConflict.Msg("license key is already claimed")
	}
	key.Status = models.KeyStatusClaimed
	key.Email = sqlString(email)
	key.Name = sqlString(name)
	key.MachineID = sqlString(machineID)
	key.ClaimedAt.Time = time.Now()
	key.ClaimedAt.Valid = true
	return copyKey(key), nil
}

func (s *fakeStore) InsertActivation(_ context.Context, rec *models.Activation) apperrors.Error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAudit {
		return dberror.ErrDatabase.Msg("audit log unavailable")
	}
	rec.ID = uuid.New()
	rec.ActivatedAt = time.Now()
	s.activations = append(s.activations, rec)
	return nil
}

func (s *fakeStore) auditCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.activations)
}

func sqlString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: true}
}

func newTestOrchestrator(t *testing.T, store *fakeStore) *Orchestrator {
	t.Helper()
	signer, err := license.NewSigner(license.SignerOptions{DevMode: true})
	require.NoError(t, err)
	return NewOrchestrator(signer, func(context.Context) ClaimStore { return store })
}

func validRequest(key string) *Request {
	return &Request{
		Key:       key,
		Email:     "alice@example.com",
		Name:      "Alice",
		MachineID: "machine-1",
	}
}

func TestActivateSuccess(t *testing.T) {
	store := newFakeStore()
	store.addKey("CSPLINE-00000000-00000000-00000001")
	o := newTestOrchestrator(t, store)

	token, err := o.Activate(context.Background(), validRequest("CSPLINE-00000000-00000000-00000001"))
	require.NoError(t, err)
	require.NotNil(t, token)

	assert.Equal(t, license.Product, token.Payload.Product)
	assert.Equal(t, "Alice", token.Payload.Licensee.Name)
	assert.Equal(t, "machine-1", token.Payload.MachineID)
	assert.Nil(t, token.Payload.Expires)
	assert.NotEmpty(t, token.Sig)

	key := store.keys["CSPLINE-00000000-00000000-00000001"]
	assert.Equal(t, models.KeyStatusClaimed, key.Status)
	assert.True(t, key.IsClaimedBy("machine-1"))
	assert.Equal(t, 1, store.auditCount())
}

func TestActivateUnknownKey(t *testing.T) {
	store := newFakeStore()
	o := newTestOrchestrator(t, store)

	token, err := o.Activate(context.Background(), validRequest("CSPLINE-DEADBEEF-DEADBEEF-DEADBEEF"))
	assert.Nil(t, token)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidKey)
	assert.Equal(t, 0, store.auditCount())
}

func TestActivateKeyBoundToOtherMachine(t *testing.T) {
	store := newFakeStore()
	store.addKey("CSPLINE-00000000-00000000-00000002")
	o := newTestOrchestrator(t, store)

	_, err := o.Activate(context.Background(), validRequest("CSPLINE-00000000-00000000-00000002"))
	require.NoError(t, err)

	other := validRequest("CSPLINE-00000000-00000000-00000002")
	other.MachineID = "machine-2"
	token, err := o.Activate(context.Background(), other)
	assert.Nil(t, token)
	assert.ErrorIs(t, err, ErrKeyAlreadyUsed)

	// Rejections leave no audit trail.
	assert.Equal(t, 1, store.auditCount())
}

func TestActivateIdempotentReactivation(t *testing.T) {
	store := newFakeStore()
	store.addKey("CSPLINE-00000000-00000000-00000003")
	o := newTestOrchestrator(t, store)

	_, err := o.Activate(context.Background(), validRequest("CSPLINE-00000000-00000000-00000003"))
	require.NoError(t, err)

	claimedAt := store.keys["CSPLINE-00000000-00000000-00000003"].ClaimedAt.Time

	token, err := o.Activate(context.Background(), validRequest("CSPLINE-00000000-00000000-00000003"))
	require.NoError(t, err)
	require.NotNil(t, token)

	// Re-activation issues a fresh token without touching the claim binding.
	key := store.keys["CSPLINE-00000000-00000000-00000003"]
	assert.Equal(t, claimedAt, key.ClaimedAt.Time)
	assert.Equal(t, "alice@example.com", key.Email.String)

	// Both issuances are audited.
	assert.Equal(t, 2, store.auditCount())
}

func TestActivateMissingFields(t *testing.T) {
	store := newFakeStore()
	store.addKey("CSPLINE-00000000-00000000-00000004")
	o := newTestOrchestrator(t, store)

	tests := []struct {
		name   string
		mutate func(*Request)
	}{
		{"empty key", func(r *Request) { r.Key = "" }},
		{"empty email", func(r *Request) { r.Email = "" }},
		{"empty name", func(r *Request) { r.Name = "" }},
		{"empty machine id", func(r *Request) { r.MachineID = "" }},
		{"whitespace only", func(r *Request) { r.Email = "   " }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest("CSPLINE-00000000-00000000-00000004")
			tt.mutate(req)
			token, err := o.Activate(context.Background(), req)
			assert.Nil(t, token)
			assert.ErrorIs(t, err, ErrMissingFields)
		})
	}

	assert.Equal(t, 0, store.auditCount())
	assert.Equal(t, models.KeyStatusUnused, store.keys["CSPLINE-00000000-00000000-00000004"].Status)
}

func TestActivateConcurrentExactlyOneClaim(t *testing.T) {
	store := newFakeStore()
	store.addKey("CSPLINE-00000000-00000000-00000005")
	o := newTestOrchestrator(t, store)

	const n = 32
	var wg sync.WaitGroup
	errs := make([]apperrors.Error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := validRequest("CSPLINE-00000000-00000000-00000005")
			req.MachineID = machineID(i)
			_, errs[i] = o.Activate(context.Background(), req)
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
		} else {
			assert.ErrorIs(t, err, ErrKeyAlreadyUsed)
		}
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, store.auditCount())
}

func TestActivateConcurrentSameMachineBothSucceed(t *testing.T) {
	store := newFakeStore()
	store.addKey("CSPLINE-00000000-00000000-00000006")
	o := newTestOrchestrator(t, store)

	const n = 8
	var wg sync.WaitGroup
	errs := make([]apperrors.Error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = o.Activate(context.Background(), validRequest("CSPLINE-00000000-00000000-00000006"))
		}(i)
	}
	wg.Wait()

	// Every request came from the same machine, so losing the claim race is
	// indistinguishable from re-activation and all must succeed.
	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, n, store.auditCount())
}

func TestActivateAuditFailureDoesNotVoidClaim(t *testing.T) {
	store := newFakeStore()
	store.addKey("CSPLINE-00000000-00000000-00000007")
	store.failAudit = true
	o := newTestOrchestrator(t, store)

	token, err := o.Activate(context.Background(), validRequest("CSPLINE-00000000-00000000-00000007"))
	require.NoError(t, err)
	require.NotNil(t, token)
	assert.Equal(t, models.KeyStatusClaimed, store.keys["CSPLINE-00000000-00000000-00000007"].Status)
}

func TestActivateSigningFailure(t *testing.T) {
	store := newFakeStore()
	store.addKey("CSPLINE-00000000-00000000-00000008")
	var nilSigner *license.Signer
	o := NewOrchestrator(nilSigner, func(context.Context) ClaimStore { return store })

	token, err := o.Activate(context.Background(), validRequest("CSPLINE-00000000-00000000-00000008"))
	assert.Nil(t, token)
	require.Error(t, err)
	assert.ErrorIs(t, err, license.ErrSigningUnavailable)

	// The claim already happened; signing failure must not roll it back.
	assert.Equal(t, models.KeyStatusClaimed, store.keys["CSPLINE-00000000-00000000-00000008"].Status)
}

func machineID(i int) string {
	return "machine-" + string(rune('A'+i%26)) + string(rune('0'+i/26))
}
