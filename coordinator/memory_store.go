package coordinator

import (
	"context"
	"slices"
	"sync"
)

type participationKey struct {
	collabID int64
	partyID  int64
}

// InMemoryStore implements Store without a database. It is used in tests and
// for single-process deployments that do not need durable state.
type InMemoryStore struct {
	mu sync.Mutex

	nextConfigID int64
	nextCollabID int64

	configs        map[int64]*ProviderConfig
	collaborations map[int64]*Collaboration
	participations map[participationKey]*Participation
	order          map[int64][]int64
	results        map[int64]*ComputationResult
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		configs:        make(map[int64]*ProviderConfig),
		collaborations: make(map[int64]*Collaboration),
		participations: make(map[participationKey]*Participation),
		order:          make(map[int64][]int64),
		results:        make(map[int64]*ComputationResult),
	}
}

func (s *InMemoryStore) CreateProviderConfig(_ context.Context, cfg *ProviderConfig) (*ProviderConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextConfigID++
	stored := cloneConfig(cfg)
	stored.ID = s.nextConfigID
	s.configs[stored.ID] = stored
	return cloneConfig(stored), nil
}

func (s *InMemoryStore) GetProviderConfig(_ context.Context, id int64) (*ProviderConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, ok := s.configs[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return cloneConfig(cfg), nil
}

func (s *InMemoryStore) CreateCollaboration(_ context.Context, c *Collaboration) (*Collaboration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.configs[c.ConfigID]; !ok {
		return nil, ErrRecordNotFound
	}

	s.nextCollabID++
	stored := cloneCollaboration(c)
	stored.ID = s.nextCollabID
	s.collaborations[stored.ID] = stored
	return cloneCollaboration(stored), nil
}

func (s *InMemoryStore) GetCollaboration(_ context.Context, id int64) (*Collaboration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.collaborations[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return cloneCollaboration(c), nil
}

func (s *InMemoryStore) ListCollaborations(_ context.Context) ([]*Collaboration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]int64, 0, len(s.collaborations))
	for id := range s.collaborations {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	out := make([]*Collaboration, 0, len(ids))
	for _, id := range ids {
		out = append(out, cloneCollaboration(s.collaborations[id]))
	}
	return out, nil
}

func (s *InMemoryStore) DeleteCollaboration(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.collaborations[id]; !ok {
		return ErrRecordNotFound
	}
	delete(s.collaborations, id)
	delete(s.results, id)
	for _, party := range s.order[id] {
		delete(s.participations, participationKey{id, party})
	}
	delete(s.order, id)
	return nil
}

func (s *InMemoryStore) AppendOutputParty(_ context.Context, id int64, endpoint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.collaborations[id]
	if !ok {
		return ErrRecordNotFound
	}
	c.OutputParties = append(c.OutputParties, endpoint)
	return nil
}

func (s *InMemoryStore) CreateParticipation(_ context.Context, collabID, partyID int64) (*Participation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.collaborations[collabID]; !ok {
		return nil, ErrRecordNotFound
	}
	key := participationKey{collabID, partyID}
	if _, ok := s.participations[key]; ok {
		return nil, ErrRecordExists
	}

	p := &Participation{CollaborationID: collabID, PartyID: partyID}
	s.participations[key] = p
	s.order[collabID] = append(s.order[collabID], partyID)
	return cloneParticipation(p), nil
}

func (s *InMemoryStore) GetParticipation(_ context.Context, collabID, partyID int64) (*Participation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.participations[participationKey{collabID, partyID}]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return cloneParticipation(p), nil
}

func (s *InMemoryStore) ListParticipations(_ context.Context, collabID int64) ([]*Participation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*Participation, 0, len(s.order[collabID]))
	for _, party := range s.order[collabID] {
		out = append(out, cloneParticipation(s.participations[participationKey{collabID, party}]))
	}
	return out, nil
}

func (s *InMemoryStore) DeleteParticipation(_ context.Context, collabID, partyID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := participationKey{collabID, partyID}
	p, ok := s.participations[key]
	if !ok {
		return ErrRecordNotFound
	}
	if p.Uploaded() {
		return ErrRecordConflict
	}

	delete(s.participations, key)
	s.order[collabID] = slices.DeleteFunc(s.order[collabID], func(id int64) bool { return id == partyID })
	return nil
}

func (s *InMemoryStore) ConfirmUpload(_ context.Context, collabID, partyID int64, shareIDs []string) (*Participation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.participations[participationKey{collabID, partyID}]
	if !ok {
		return nil, ErrRecordNotFound
	}
	if p.Uploaded() {
		return nil, ErrRecordConflict
	}
	p.ShareIDs = append([]string{}, shareIDs...)
	return cloneParticipation(p), nil
}

func (s *InMemoryStore) CreateResult(_ context.Context, collabID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.collaborations[collabID]; !ok {
		return ErrRecordNotFound
	}
	if _, ok := s.results[collabID]; ok {
		return ErrRecordExists
	}
	s.results[collabID] = &ComputationResult{CollaborationID: collabID}
	return nil
}

func (s *InMemoryStore) FinishResult(_ context.Context, collabID int64, resultIDs []string, errMsg *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.results[collabID]
	if !ok {
		return ErrRecordNotFound
	}
	if r.Finished {
		return ErrRecordConflict
	}
	r.Finished = true
	r.ResultIDs = slices.Clone(resultIDs)
	if errMsg != nil {
		msg := *errMsg
		r.Error = &msg
	}
	return nil
}

func (s *InMemoryStore) GetResult(_ context.Context, collabID int64) (*ComputationResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.results[collabID]
	if !ok {
		return nil, ErrRecordNotFound
	}
	out := *r
	out.ResultIDs = slices.Clone(r.ResultIDs)
	return &out, nil
}

// Close is a no-op.
func (s *InMemoryStore) Ping(context.Context) error {
	return nil
}

func (s *InMemoryStore) Close() error {
	return nil
}

func cloneConfig(c *ProviderConfig) *ProviderConfig {
	out := *c
	out.Providers = slices.Clone(c.Providers)
	return &out
}

func cloneCollaboration(c *Collaboration) *Collaboration {
	out := *c
	out.Program = slices.Clone(c.Program)
	out.OutputParties = slices.Clone(c.OutputParties)
	return &out
}

func cloneParticipation(p *Participation) *Participation {
	out := *p
	out.ShareIDs = slices.Clone(p.ShareIDs)
	return &out
}
