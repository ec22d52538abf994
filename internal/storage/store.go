package storage

import (
	"context"

	"llm_router/internal/models"
)

// CatalogWriter is the write side of the catalog used by seeding
type CatalogWriter interface {
	UpsertCompany(ctx context.Context, c *models.Company) error
	UpsertProvider(ctx context.Context, p *models.Provider) error
	UpsertModel(ctx context.Context, m *models.Model) error
	UpsertMapping(ctx context.Context, mp *models.ModelProviderMapping) error
}

// Store is everything the gateway persists. PostgresStore is the production
// implementation; MemoryStore backs local runs and tests.
type Store interface {
	CatalogWriter

	GetAccount(ctx context.Context, id int64) (*models.Account, error)
	CreateAccount(ctx context.Context, a *models.Account) error
	CreditAccount(ctx context.Context, accountID, amount int64) (int64, error)
	ListTopUps(ctx context.Context, accountID int64, limit int) ([]*models.OnRampTransaction, error)

	GetAPIKeyByHash(ctx context.Context, keyHash string) (*models.APIKey, error)
	GetAPIKey(ctx context.Context, id int64) (*models.APIKey, error)
	ListAPIKeys(ctx context.Context, accountID int64) ([]*models.APIKey, error)
	CreateAPIKey(ctx context.Context, k *models.APIKey) error
	SetAPIKeyDisabled(ctx context.Context, id int64, disabled bool) (*models.APIKey, error)
	DeleteAPIKey(ctx context.Context, id int64) error

	ModelBySlug(ctx context.Context, slug string) (*models.Model, error)
	ModelByID(ctx context.Context, id int64) (*models.Model, error)
	ListModels(ctx context.Context) ([]*models.Model, error)
	ListProviders(ctx context.Context) ([]*models.Provider, error)
	ListMappings(ctx context.Context) ([]*models.ModelProviderMapping, error)
	MappingsForModel(ctx context.Context, modelID int64) ([]*models.ModelProviderMapping, error)

	CommitUsage(ctx context.Context, rec *models.UsageRecord) (int64, error)
	UsageByAccount(ctx context.Context, accountID int64, limit int) ([]*models.UsageRecord, error)

	GetAdminUserByEmail(ctx context.Context, email string) (*models.AdminUser, error)
	CreateAdminUser(ctx context.Context, u *models.AdminUser) error
	RecordAdminLogin(ctx context.Context, id int64) error

	Health(ctx context.Context) error
	Close() error
}

// PostgresStore composes the PostgreSQL repositories into a Store
type PostgresStore struct {
	*CatalogRepository

	db       *DB
	accounts *AccountRepository
	keys     *APIKeyRepository
	usage    *UsageRepository
	admins   *AdminUserRepository
	ledger   *Ledger
}

// NewPostgresStore creates a store over db
func NewPostgresStore(db *DB) *PostgresStore {
	return &PostgresStore{
		CatalogRepository: NewCatalogRepository(db),
		db:                db,
		accounts:          NewAccountRepository(db),
		keys:              NewAPIKeyRepository(db),
		usage:             NewUsageRepository(db),
		admins:            NewAdminUserRepository(db),
		ledger:            NewLedger(db),
	}
}

var _ Store = (*PostgresStore)(nil)

func (s *PostgresStore) GetAccount(ctx context.Context, id int64) (*models.Account, error) {
	return s.accounts.GetByID(ctx, id)
}

func (s *PostgresStore) CreateAccount(ctx context.Context, a *models.Account) error {
	return s.accounts.Create(ctx, a)
}

func (s *PostgresStore) CreditAccount(ctx context.Context, accountID, amount int64) (int64, error) {
	return s.accounts.Credit(ctx, accountID, amount)
}

func (s *PostgresStore) ListTopUps(ctx context.Context, accountID int64, limit int) ([]*models.OnRampTransaction, error) {
	return s.accounts.ListOnRamps(ctx, accountID, limit)
}

func (s *PostgresStore) GetAPIKeyByHash(ctx context.Context, keyHash string) (*models.APIKey, error) {
	return s.keys.GetByHash(ctx, keyHash)
}

func (s *PostgresStore) GetAPIKey(ctx context.Context, id int64) (*models.APIKey, error) {
	return s.keys.GetByID(ctx, id)
}

func (s *PostgresStore) ListAPIKeys(ctx context.Context, accountID int64) ([]*models.APIKey, error) {
	return s.keys.ListByAccount(ctx, accountID)
}

func (s *PostgresStore) CreateAPIKey(ctx context.Context, k *models.APIKey) error {
	return s.keys.Create(ctx, k)
}

func (s *PostgresStore) SetAPIKeyDisabled(ctx context.Context, id int64, disabled bool) (*models.APIKey, error) {
	return s.keys.SetDisabled(ctx, id, disabled)
}

func (s *PostgresStore) DeleteAPIKey(ctx context.Context, id int64) error {
	return s.keys.Delete(ctx, id)
}

func (s *PostgresStore) CommitUsage(ctx context.Context, rec *models.UsageRecord) (int64, error) {
	return s.ledger.Commit(ctx, rec)
}

func (s *PostgresStore) UsageByAccount(ctx context.Context, accountID int64, limit int) ([]*models.UsageRecord, error) {
	return s.usage.ListByAccount(ctx, accountID, limit)
}

func (s *PostgresStore) GetAdminUserByEmail(ctx context.Context, email string) (*models.AdminUser, error) {
	return s.admins.GetByEmail(ctx, email)
}

func (s *PostgresStore) CreateAdminUser(ctx context.Context, u *models.AdminUser) error {
	return s.admins.Create(ctx, u)
}

func (s *PostgresStore) RecordAdminLogin(ctx context.Context, id int64) error {
	return s.admins.UpdateLastLogin(ctx, id)
}

func (s *PostgresStore) Health(ctx context.Context) error {
	return s.db.Health(ctx)
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
