package storage

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"llm_router/internal/models"
)

// MemoryStore is an in-process Store. A single mutex serializes every
// operation, so CommitUsage is atomic and isolated like the SQL ledger.
type MemoryStore struct {
	mu sync.Mutex

	nextID     int64
	accounts   map[int64]*models.Account
	keys       map[int64]*models.APIKey
	companies  map[int64]*models.Company
	modelsByID map[int64]*models.Model
	providers  map[int64]*models.Provider
	mappings   map[int64]*models.ModelProviderMapping
	usage      []*models.UsageRecord
	onramps    []*models.OnRampTransaction
	admins     map[int64]*models.AdminUser

	now func() time.Time
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:   make(map[int64]*models.Account),
		keys:       make(map[int64]*models.APIKey),
		companies:  make(map[int64]*models.Company),
		modelsByID: make(map[int64]*models.Model),
		providers:  make(map[int64]*models.Provider),
		mappings:   make(map[int64]*models.ModelProviderMapping),
		admins:     make(map[int64]*models.AdminUser),
		now:        time.Now,
	}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *MemoryStore) GetAccount(_ context.Context, id int64) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[id]
	if !ok {
		return nil, ErrAccountNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *MemoryStore) CreateAccount(_ context.Context, a *models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a.ID = s.id()
	a.CreatedAt = s.now()
	cp := *a
	s.accounts[a.ID] = &cp
	return nil
}

func (s *MemoryStore) CreditAccount(_ context.Context, accountID, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[accountID]
	if !ok {
		return 0, ErrAccountNotFound
	}
	a.Credits += amount
	s.onramps = append(s.onramps, &models.OnRampTransaction{
		ID:        s.id(),
		AccountID: accountID,
		Amount:    amount,
		Status:    models.OnRampComplete,
		CreatedAt: s.now(),
	})
	return a.Credits, nil
}

func (s *MemoryStore) GetAPIKeyByHash(_ context.Context, keyHash string) (*models.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, k := range s.keys {
		if k.KeyHash == keyHash {
			cp := *k
			return &cp, nil
		}
	}
	return nil, ErrAPIKeyNotFound
}

func (s *MemoryStore) ListTopUps(_ context.Context, accountID int64, limit int) ([]*models.OnRampTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*models.OnRampTransaction, 0)
	for i := len(s.onramps) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if s.onramps[i].AccountID == accountID {
			cp := *s.onramps[i]
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *MemoryStore) GetAPIKey(_ context.Context, id int64) (*models.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k, ok := s.keys[id]
	if !ok || k.Deleted {
		return nil, ErrAPIKeyNotFound
	}
	cp := *k
	return &cp, nil
}

func (s *MemoryStore) ListAPIKeys(_ context.Context, accountID int64) ([]*models.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*models.APIKey, 0)
	for _, k := range s.keys {
		if k.AccountID == accountID && !k.Deleted {
			cp := *k
			out = append(out, &cp)
		}
	}
	slices.SortFunc(out, func(a, b *models.APIKey) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (s *MemoryStore) SetAPIKeyDisabled(_ context.Context, id int64, disabled bool) (*models.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k, ok := s.keys[id]
	if !ok || k.Deleted {
		return nil, ErrAPIKeyNotFound
	}
	k.Disabled = disabled
	cp := *k
	return &cp, nil
}

func (s *MemoryStore) DeleteAPIKey(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k, ok := s.keys[id]
	if !ok || k.Deleted {
		return ErrAPIKeyNotFound
	}
	k.Deleted = true
	k.Disabled = true
	return nil
}

func (s *MemoryStore) CreateAPIKey(_ context.Context, k *models.APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[k.AccountID]; !ok {
		return ErrAccountNotFound
	}
	k.ID = s.id()
	k.CreatedAt = s.now()
	cp := *k
	s.keys[k.ID] = &cp
	return nil
}

func (s *MemoryStore) withCompany(m *models.Model) *models.Model {
	cp := *m
	if c, ok := s.companies[m.CompanyID]; ok {
		company := *c
		cp.Company = &company
	}
	return &cp
}

func (s *MemoryStore) ModelBySlug(_ context.Context, slug string) (*models.Model, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, m := range s.modelsByID {
		if m.Slug == slug {
			return s.withCompany(m), nil
		}
	}
	return nil, ErrModelNotFound
}

func (s *MemoryStore) ModelByID(_ context.Context, id int64) (*models.Model, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.modelsByID[id]
	if !ok {
		return nil, ErrModelNotFound
	}
	return s.withCompany(m), nil
}

func (s *MemoryStore) ListModels(_ context.Context) ([]*models.Model, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*models.Model, 0, len(s.modelsByID))
	for _, m := range s.modelsByID {
		out = append(out, s.withCompany(m))
	}
	slices.SortFunc(out, func(a, b *models.Model) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (s *MemoryStore) ListProviders(_ context.Context) ([]*models.Provider, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*models.Provider, 0, len(s.providers))
	for _, p := range s.providers {
		cp := *p
		out = append(out, &cp)
	}
	slices.SortFunc(out, func(a, b *models.Provider) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (s *MemoryStore) joinedMapping(mp *models.ModelProviderMapping) *models.ModelProviderMapping {
	cp := *mp
	if p, ok := s.providers[mp.ProviderID]; ok {
		cp.ProviderName = p.Name
		cp.ProviderWebsite = p.Website
	}
	if m, ok := s.modelsByID[mp.ModelID]; ok {
		cp.ModelName = m.Name
	}
	return &cp
}

func (s *MemoryStore) listMappings(keep func(*models.ModelProviderMapping) bool) []*models.ModelProviderMapping {
	out := make([]*models.ModelProviderMapping, 0)
	for _, mp := range s.mappings {
		if keep(mp) {
			out = append(out, s.joinedMapping(mp))
		}
	}
	slices.SortFunc(out, func(a, b *models.ModelProviderMapping) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

func (s *MemoryStore) ListMappings(_ context.Context) ([]*models.ModelProviderMapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.listMappings(func(*models.ModelProviderMapping) bool { return true }), nil
}

func (s *MemoryStore) MappingsForModel(_ context.Context, modelID int64) ([]*models.ModelProviderMapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.listMappings(func(mp *models.ModelProviderMapping) bool { return mp.ModelID == modelID }), nil
}

func (s *MemoryStore) UpsertCompany(_ context.Context, c *models.Company) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.companies {
		if existing.Name == c.Name {
			existing.Website = c.Website
			c.ID = existing.ID
			return nil
		}
	}
	c.ID = s.id()
	cp := *c
	s.companies[c.ID] = &cp
	return nil
}

func (s *MemoryStore) UpsertProvider(_ context.Context, p *models.Provider) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.providers {
		if existing.Name == p.Name {
			existing.Website = p.Website
			p.ID = existing.ID
			return nil
		}
	}
	p.ID = s.id()
	cp := *p
	s.providers[p.ID] = &cp
	return nil
}

func (s *MemoryStore) UpsertModel(_ context.Context, m *models.Model) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.modelsByID {
		if existing.Slug == m.Slug {
			existing.Name = m.Name
			existing.CompanyID = m.CompanyID
			m.ID = existing.ID
			return nil
		}
	}
	m.ID = s.id()
	cp := *m
	cp.Company = nil
	s.modelsByID[m.ID] = &cp
	return nil
}

func (s *MemoryStore) UpsertMapping(_ context.Context, mp *models.ModelProviderMapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.modelsByID[mp.ModelID]; !ok {
		return ErrModelNotFound
	}
	if _, ok := s.providers[mp.ProviderID]; !ok {
		return ErrProviderNotFound
	}
	for _, existing := range s.mappings {
		if existing.ModelID == mp.ModelID && existing.ProviderID == mp.ProviderID {
			existing.InputTokenCost = mp.InputTokenCost
			existing.OutputTokenCost = mp.OutputTokenCost
			mp.ID = existing.ID
			return nil
		}
	}
	mp.ID = s.id()
	cp := *mp
	s.mappings[mp.ID] = &cp
	return nil
}

func (s *MemoryStore) CommitUsage(_ context.Context, rec *models.UsageRecord) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[rec.AccountID]
	if !ok || a.Credits < rec.TotalCreditsConsumed {
		return 0, ErrInsufficientBalance
	}
	k, ok := s.keys[rec.APIKeyID]
	if !ok {
		return 0, ErrAPIKeyNotFound
	}

	now := s.now()
	a.Credits -= rec.TotalCreditsConsumed
	k.CreditsConsumed += rec.TotalCreditsConsumed
	k.LastUsed = &now

	rec.ID = s.id()
	rec.CreatedAt = now
	cp := *rec
	s.usage = append(s.usage, &cp)

	return a.Credits, nil
}

func (s *MemoryStore) UsageByAccount(_ context.Context, accountID int64, limit int) ([]*models.UsageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*models.UsageRecord, 0)
	for i := len(s.usage) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if s.usage[i].AccountID == accountID {
			cp := *s.usage[i]
			out = append(out, &cp)
		}
	}
	return out, nil
}

// UsageCount returns the number of committed usage records
func (s *MemoryStore) UsageCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.usage)
}

func (s *MemoryStore) GetAdminUserByEmail(_ context.Context, email string) (*models.AdminUser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.admins {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrAdminUserNotFound
}

func (s *MemoryStore) CreateAdminUser(_ context.Context, u *models.AdminUser) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u.ID = s.id()
	u.CreatedAt = s.now()
	cp := *u
	s.admins[u.ID] = &cp
	return nil
}

func (s *MemoryStore) RecordAdminLogin(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.admins[id]
	if !ok {
		return ErrAdminUserNotFound
	}
	now := s.now()
	u.LastLoginAt = &now
	return nil
}

func (s *MemoryStore) Health(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }
