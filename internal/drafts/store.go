package drafts

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/cortezalberto/coderunner1/internal/models"
	"github.com/cortezalberto/coderunner1/internal/storage"
)

// FingerprintLength is the number of leading starter-code characters that
// identify a starter version. Edits confined to the tail are not detected.
const FingerprintLength = 50

const (
	codeKeyPrefix    = "code_"
	starterKeyPrefix = "starter_"
)

// Fingerprint returns the first FingerprintLength runes of the starter code
func Fingerprint(starter string) string {
	n := 0
	for i := range starter {
		if n == FingerprintLength {
			return starter[:i]
		}
		n++
	}
	return starter
}

// CodeKey is the storage key of the code draft for a problem
func CodeKey(problemID string) string { return codeKeyPrefix + problemID }

// StarterKey is the storage key of the starter fingerprint for a problem
func StarterKey(problemID string) string { return starterKeyPrefix + problemID }

// Store keeps one draft per problem id. The in-memory copy is authoritative;
// the backing key-value store is written through on every change and its
// failures are logged, never returned.
type Store struct {
	kv     storage.Store
	logger *slog.Logger

	mu       sync.Mutex
	drafts   map[string]*models.Draft
	degraded bool
}

// New creates a draft store over kv. A nil kv keeps drafts in memory only.
func New(kv storage.Store, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		kv:     kv,
		logger: logger,
		drafts: make(map[string]*models.Draft),
	}
}

// GetDraft returns the code to display for a problem, reconciling any stored
// draft with the server's current starter code
func (s *Store) GetDraft(ctx context.Context, problemID, starterCode string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	fp := Fingerprint(starterCode)

	// a draft written before any GetDraft has no fingerprint yet and is
	// reconciled against the persisted one below
	if d, ok := s.drafts[problemID]; ok && d.StarterFingerprint != "" {
		if d.StarterFingerprint == fp {
			return d.Code
		}
		s.logger.Info("starter code changed, discarding draft", "problem_id", problemID)
		s.remove(ctx, CodeKey(problemID))
		s.set(ctx, StarterKey(problemID), fp)
		d.Code = starterCode
		d.StarterFingerprint = fp
		return d.Code
	}

	code := starterCode
	if d, ok := s.drafts[problemID]; ok && d.Code != "" {
		code = d.Code
	}
	storedFP, found := s.get(ctx, StarterKey(problemID))

	switch {
	case !found:
		s.set(ctx, StarterKey(problemID), fp)
		if stored, ok := s.get(ctx, CodeKey(problemID)); ok {
			code = stored
		}
	case storedFP != fp:
		s.logger.Info("starter code changed, discarding draft", "problem_id", problemID)
		s.remove(ctx, CodeKey(problemID))
		s.set(ctx, StarterKey(problemID), fp)
		code = starterCode
	default:
		if stored, ok := s.get(ctx, CodeKey(problemID)); ok {
			code = stored
		}
	}

	s.drafts[problemID] = &models.Draft{
		ProblemID:          problemID,
		Code:               code,
		StarterFingerprint: fp,
	}
	return code
}

// SetDraft records a code change and persists it immediately.
// Empty code removes the persisted draft so the starter is shown next time.
func (s *Store) SetDraft(ctx context.Context, problemID, code string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.drafts[problemID]
	if !ok {
		d = &models.Draft{ProblemID: problemID}
		s.drafts[problemID] = d
	}
	d.Code = code

	if code == "" {
		s.remove(ctx, CodeKey(problemID))
		return
	}
	s.set(ctx, CodeKey(problemID), code)
}

// ResetDraft restores the starter code, deletes the persisted draft and
// refreshes the stored fingerprint
func (s *Store) ResetDraft(ctx context.Context, problemID, starterCode string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	fp := Fingerprint(starterCode)
	s.drafts[problemID] = &models.Draft{
		ProblemID:          problemID,
		Code:               starterCode,
		StarterFingerprint: fp,
	}

	s.remove(ctx, CodeKey(problemID))
	s.set(ctx, StarterKey(problemID), fp)

	return starterCode
}

// Draft returns a copy of the in-memory draft for a problem
func (s *Store) Draft(problemID string) (models.Draft, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.drafts[problemID]
	if !ok {
		return models.Draft{}, false
	}
	return *d, true
}

// Degraded reports whether the last persistence attempt failed
func (s *Store) Degraded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.degraded
}

// The helpers below must be called with s.mu held.

func (s *Store) get(ctx context.Context, key string) (string, bool) {
	if s.kv == nil {
		return "", false
	}
	v, err := s.kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", false
		}
		s.fail("read", key, err)
		return "", false
	}
	return v, true
}

func (s *Store) set(ctx context.Context, key, value string) {
	if s.kv == nil {
		return
	}
	if err := s.kv.Set(ctx, key, value); err != nil {
		s.fail("write", key, err)
		return
	}
	s.degraded = false
}

func (s *Store) remove(ctx context.Context, key string) {
	if s.kv == nil {
		return
	}
	if err := s.kv.Remove(ctx, key); err != nil {
		s.fail("remove", key, err)
		return
	}
	s.degraded = false
}

func (s *Store) fail(op, key string, err error) {
	if !s.degraded {
		s.logger.Warn("draft persistence unavailable, keeping drafts in memory", "op", op, "key", key, "error", err)
	} else {
		s.logger.Debug("draft persistence still unavailable", "op", op, "key", key, "error", err)
	}
	s.degraded = true
}
