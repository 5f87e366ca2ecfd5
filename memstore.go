package authsentry

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemStore is an in-memory [AccountStore] for examples and tests. It is
// safe for concurrent use but keeps everything in process memory; production
// deployments supply their own store backed by a real database.
type MemStore struct {
	mu       sync.Mutex
	accounts map[string]*memAccount
	byEmail  map[string]string
	now      Clock
}

type memAccount struct {
	account Account
	backup  []BackupCodeRecord
}

// NewMemStore returns an empty [MemStore].
func NewMemStore() *MemStore {
	return &MemStore{
		accounts: make(map[string]*memAccount),
		byEmail:  make(map[string]string),
		now:      time.Now,
	}
}

// SetClock replaces the clock used to stamp created records. The engine's
// age-based gates compare against the same injected clock, so tests must
// point both at one source.
func (s *MemStore) SetClock(now Clock) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if now != nil {
		s.now = now
	}
}

func (s *MemStore) get(id string) (*memAccount, error) {
	rec, ok := s.accounts[id]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return rec, nil
}

// GetByID describes the getbyid operation and its observable behavior.
//
// GetByID may return an error when input validation, dependency calls, or security checks fail.
// GetByID does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *MemStore) GetByID(ctx context.Context, id string) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.get(id)
	if err != nil {
		return Account{}, err
	}
	return rec.account, nil
}

// GetByEmail describes the getbyemail operation and its observable behavior.
//
// GetByEmail may return an error when input validation, dependency calls, or security checks fail.
// GetByEmail does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *MemStore) GetByEmail(ctx context.Context, email string) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byEmail[strings.ToLower(email)]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	rec, err := s.get(id)
	if err != nil {
		return Account{}, err
	}
	return rec.account, nil
}

// Create describes the create operation and its observable behavior.
//
// Create may return an error when input validation, dependency calls, or security checks fail.
// Create does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *MemStore) Create(ctx context.Context, input CreateAccountInput) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(input.Email)
	if _, exists := s.byEmail[email]; exists {
		return Account{}, ErrDuplicateEmail
	}

	now := s.now()
	acct := Account{
		ID:                uuid.NewString(),
		Email:             email,
		PasswordHash:      input.PasswordHash,
		Status:            input.Status,
		Role:              input.Role,
		PasswordChangedAt: now,
		CreatedAt:         now,
	}
	s.accounts[acct.ID] = &memAccount{account: acct}
	s.byEmail[email] = acct.ID
	return acct, nil
}

// UpdatePasswordHash describes the updatepasswordhash operation and its observable behavior.
//
// UpdatePasswordHash may return an error when input validation, dependency calls, or security checks fail.
// UpdatePasswordHash does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *MemStore) UpdatePasswordHash(ctx context.Context, id, hash string, changedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.get(id)
	if err != nil {
		return err
	}
	rec.account.PasswordHash = hash
	rec.account.PasswordChangedAt = changedAt
	return nil
}

// UpdateStatus describes the updatestatus operation and its observable behavior.
//
// UpdateStatus may return an error when input validation, dependency calls, or security checks fail.
// UpdateStatus does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *MemStore) UpdateStatus(ctx context.Context, id string, status AccountStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.get(id)
	if err != nil {
		return err
	}
	rec.account.Status = status
	return nil
}

// MarkEmailVerified describes the markemailverified operation and its observable behavior.
//
// MarkEmailVerified may return an error when input validation, dependency calls, or security checks fail.
// MarkEmailVerified does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *MemStore) MarkEmailVerified(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.get(id)
	if err != nil {
		return err
	}
	rec.account.EmailVerified = true
	return nil
}

// RecordLoginSuccess describes the recordloginsuccess operation and its observable behavior.
//
// RecordLoginSuccess may return an error when input validation, dependency calls, or security checks fail.
// RecordLoginSuccess does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *MemStore) RecordLoginSuccess(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.get(id)
	if err != nil {
		return err
	}
	rec.account.FailedAttempts = 0
	rec.account.LockedUntil = time.Time{}
	rec.account.LastLoginAt = at
	rec.account.LoginCount++
	return nil
}

// RecordLoginFailure describes the recordloginfailure operation and its observable behavior.
//
// RecordLoginFailure may return an error when input validation, dependency calls, or security checks fail.
// RecordLoginFailure does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *MemStore) RecordLoginFailure(ctx context.Context, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.get(id)
	if err != nil {
		return 0, err
	}
	rec.account.FailedAttempts++
	return rec.account.FailedAttempts, nil
}

// SetLockout describes the setlockout operation and its observable behavior.
//
// SetLockout may return an error when input validation, dependency calls, or security checks fail.
// SetLockout does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *MemStore) SetLockout(ctx context.Context, id string, until time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.get(id)
	if err != nil {
		return err
	}
	rec.account.LockedUntil = until
	return nil
}

// ClearLockout describes the clearlockout operation and its observable behavior.
//
// ClearLockout may return an error when input validation, dependency calls, or security checks fail.
// ClearLockout does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *MemStore) ClearLockout(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.get(id)
	if err != nil {
		return err
	}
	rec.account.FailedAttempts = 0
	rec.account.LockedUntil = time.Time{}
	return nil
}

// EnableTwoFactor describes the enabletwofactor operation and its observable behavior.
//
// EnableTwoFactor may return an error when input validation, dependency calls, or security checks fail.
// EnableTwoFactor does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *MemStore) EnableTwoFactor(ctx context.Context, id, secret string, codes []BackupCodeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.get(id)
	if err != nil {
		return err
	}
	rec.account.TwoFactorEnabled = true
	rec.account.TwoFactorSecret = secret
	rec.backup = append([]BackupCodeRecord(nil), codes...)
	return nil
}

// DisableTwoFactor describes the disabletwofactor operation and its observable behavior.
//
// DisableTwoFactor may return an error when input validation, dependency calls, or security checks fail.
// DisableTwoFactor does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *MemStore) DisableTwoFactor(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.get(id)
	if err != nil {
		return err
	}
	rec.account.TwoFactorEnabled = false
	rec.account.TwoFactorSecret = ""
	rec.backup = nil
	return nil
}

// ReplaceBackupCodes describes the replacebackupcodes operation and its observable behavior.
//
// ReplaceBackupCodes may return an error when input validation, dependency calls, or security checks fail.
// ReplaceBackupCodes does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *MemStore) ReplaceBackupCodes(ctx context.Context, id string, codes []BackupCodeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.get(id)
	if err != nil {
		return err
	}
	rec.backup = append([]BackupCodeRecord(nil), codes...)
	return nil
}

// PruneExpired clears lockouts whose deadline has passed, returning how
// many accounts were touched. Idempotent; intended for periodic invocation
// by an external scheduler. Redis-backed state (sessions, one-time tokens,
// pending 2FA setups) expires via TTL and needs no sweep.
func (s *MemStore) PruneExpired(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pruned := 0
	for _, rec := range s.accounts {
		if !rec.account.LockedUntil.IsZero() && !now.Before(rec.account.LockedUntil) {
			rec.account.LockedUntil = time.Time{}
			rec.account.FailedAttempts = 0
			pruned++
		}
	}
	return pruned, nil
}

// ConsumeBackupCode describes the consumebackupcode operation and its observable behavior.
//
// ConsumeBackupCode may return an error when input validation, dependency calls, or security checks fail.
// ConsumeBackupCode does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *MemStore) ConsumeBackupCode(ctx context.Context, id string, hash [32]byte) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.get(id)
	if err != nil {
		return 0, false, err
	}
	for i, code := range rec.backup {
		if code.Hash == hash {
			rec.backup = append(rec.backup[:i], rec.backup[i+1:]...)
			return len(rec.backup), true, nil
		}
	}
	return len(rec.backup), false, nil
}
