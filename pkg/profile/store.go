package profile

import "sync"

// Store keeps per-user personal details and diagnosis records. Every
// read-modify-write runs under one lock so merges for the same user never
// interleave.
type Store struct {
	mu        sync.RWMutex
	profiles  map[string]Profile
	diagnoses map[string]Diagnosis
}

func NewStore() *Store {
	return &Store{
		profiles:  make(map[string]Profile),
		diagnoses: make(map[string]Diagnosis),
	}
}

// Profile returns a copy of the user's profile and whether one exists.
func (s *Store) Profile(userID string) (Profile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[userID]
	if !ok || len(p) == 0 {
		return nil, false
	}
	return p.Clone(), true
}

// MergeProfile applies delta over the stored profile and returns the result.
// An empty delta leaves the record untouched.
func (s *Store) MergeProfile(userID string, delta Profile) Profile {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.profiles[userID]
	if len(delta) == 0 {
		return current.Clone()
	}
	merged := Merge(current, delta)
	s.profiles[userID] = merged
	return merged.Clone()
}

func (s *Store) Diagnosis(userID string) (Diagnosis, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.diagnoses[userID]
	return d, ok
}

// AccumulateDiagnosis folds next into the stored record, creating it on
// first use, and returns the result.
func (s *Store) AccumulateDiagnosis(userID string, next Diagnosis) Diagnosis {
	s.mu.Lock()
	defer s.mu.Unlock()

	merged := s.diagnoses[userID].Accumulate(next)
	s.diagnoses[userID] = merged
	return merged
}

// ResetDiagnosis drops the record so a new consultation starts clean.
func (s *Store) ResetDiagnosis(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.diagnoses, userID)
}
