package policy

import (
	"context"
	"sort"
	"sync"

	"policydesk/internal/policy/models"
	id "policydesk/pkg/domain"
	"policydesk/pkg/platform/sentinel"
)

// InMemory is a policy store backed by a map. Execute holds the write lock
// across validate and mutate, so concurrent updates to one record serialise.
type InMemory struct {
	mu       sync.RWMutex
	nextID   id.PolicyID
	policies map[id.PolicyID]*models.Policy
	serials  map[string]id.PolicyID
}

func NewInMemory() *InMemory {
	return &InMemory{
		policies: make(map[id.PolicyID]*models.Policy),
		serials:  make(map[string]id.PolicyID),
	}
}

// Create assigns the next ID and stores p at version 1. Returns
// sentinel.ErrAlreadyUsed when the serial number is taken.
func (s *InMemory) Create(_ context.Context, p *models.Policy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.serials[p.SerialNumber]; taken {
		return sentinel.ErrAlreadyUsed
	}
	s.nextID++
	p.ID = s.nextID
	p.Version = 1
	s.policies[p.ID] = p.Clone()
	s.serials[p.SerialNumber] = p.ID
	return nil
}

func (s *InMemory) FindByID(_ context.Context, policyID id.PolicyID) (*models.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.policies[policyID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return p.Clone(), nil
}

func (s *InMemory) FindBySerial(_ context.Context, serial string) (*models.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	policyID, ok := s.serials[serial]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return s.policies[policyID].Clone(), nil
}

func (s *InMemory) SerialExists(_ context.Context, serial string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.serials[serial]
	return ok, nil
}

// List returns matching policies ordered by ID.
func (s *InMemory) List(_ context.Context, filter ListFilter) ([]*models.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Policy, 0, len(s.policies))
	for _, p := range s.policies {
		if filter.matches(p) {
			out = append(out, p.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// Execute loads the policy, runs validate, and when it passes applies mutate
// and saves the result with its version bumped. A policy number already held
// by another record fails with sentinel.ErrAlreadyUsed and nothing is saved.
func (s *InMemory) Execute(_ context.Context, policyID id.PolicyID, validate func(*models.Policy) error, mutate func(*models.Policy)) (*models.Policy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.policies[policyID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	working := current.Clone()
	if err := validate(working); err != nil {
		return nil, err
	}
	mutate(working)
	if working.PolicyNumber != "" && working.PolicyNumber != current.PolicyNumber {
		for otherID, other := range s.policies {
			if otherID != policyID && other.PolicyNumber == working.PolicyNumber {
				return nil, sentinel.ErrAlreadyUsed
			}
		}
	}
	working.Version = current.Version + 1
	s.policies[policyID] = working
	return working.Clone(), nil
}
