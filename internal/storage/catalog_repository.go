package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"llm_router/internal/models"
)

// CatalogRepository reads and writes companies, models, providers and
// model/provider mappings
type CatalogRepository struct {
	db *DB
}

// NewCatalogRepository creates a new catalog repository
func NewCatalogRepository(db *DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// modelRow is a model joined with its company
type modelRow struct {
	models.Model
	CompanyName    string `db:"company_name"`
	CompanyWebsite string `db:"company_website"`
}

func (r modelRow) toModel() *models.Model {
	m := r.Model
	m.Company = &models.Company{ID: m.CompanyID, Name: r.CompanyName, Website: r.CompanyWebsite}
	return &m
}

const modelSelect = `
	SELECT m.id, m.name, m.slug, m.company_id,
		c.name AS company_name, c.website AS company_website
	FROM models m
	JOIN companies c ON c.id = m.company_id
`

const mappingSelect = `
	SELECT mp.id, mp.model_id, mp.provider_id, mp.input_token_cost, mp.output_token_cost,
		p.name AS provider_name, p.website AS provider_website, m.name AS model_name
	FROM model_provider_mappings mp
	JOIN providers p ON p.id = mp.provider_id
	JOIN models m ON m.id = mp.model_id
`

// ModelBySlug retrieves a model by its routing slug
func (r *CatalogRepository) ModelBySlug(ctx context.Context, slug string) (*models.Model, error) {
	return r.getModel(ctx, modelSelect+` WHERE m.slug = $1`, slug)
}

// ModelByID retrieves a model by ID
func (r *CatalogRepository) ModelByID(ctx context.Context, id int64) (*models.Model, error) {
	return r.getModel(ctx, modelSelect+` WHERE m.id = $1`, id)
}

func (r *CatalogRepository) getModel(ctx context.Context, query string, arg any) (*models.Model, error) {
	var row modelRow
	if err := r.db.conn.GetContext(ctx, &row, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrModelNotFound
		}
		return nil, fmt.Errorf("failed to get model: %w", err)
	}
	return row.toModel(), nil
}

// ListModels returns every model with its company
func (r *CatalogRepository) ListModels(ctx context.Context) ([]*models.Model, error) {
	var rows []modelRow
	if err := r.db.conn.SelectContext(ctx, &rows, modelSelect+` ORDER BY m.id`); err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}

	out := make([]*models.Model, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toModel())
	}
	return out, nil
}

// MappingsForModel returns all provider mappings that can serve a model
func (r *CatalogRepository) MappingsForModel(ctx context.Context, modelID int64) ([]*models.ModelProviderMapping, error) {
	var mappings []*models.ModelProviderMapping
	err := r.db.conn.SelectContext(ctx, &mappings, mappingSelect+` WHERE mp.model_id = $1 ORDER BY mp.id`, modelID)
	if err != nil {
		return nil, fmt.Errorf("failed to list mappings for model: %w", err)
	}
	return mappings, nil
}

// ListMappings returns every model/provider mapping
func (r *CatalogRepository) ListMappings(ctx context.Context) ([]*models.ModelProviderMapping, error) {
	var mappings []*models.ModelProviderMapping
	if err := r.db.conn.SelectContext(ctx, &mappings, mappingSelect+` ORDER BY mp.id`); err != nil {
		return nil, fmt.Errorf("failed to list mappings: %w", err)
	}
	return mappings, nil
}

// ListProviders returns every provider
func (r *CatalogRepository) ListProviders(ctx context.Context) ([]*models.Provider, error) {
	var providers []*models.Provider
	if err := r.db.conn.SelectContext(ctx, &providers, `SELECT id, name, website FROM providers ORDER BY id`); err != nil {
		return nil, fmt.Errorf("failed to list providers: %w", err)
	}
	return providers, nil
}

// UpsertCompany inserts or updates a company by name
func (r *CatalogRepository) UpsertCompany(ctx context.Context, c *models.Company) error {
	query := `
		INSERT INTO companies (name, website) VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET website = EXCLUDED.website
		RETURNING id
	`
	if err := r.db.conn.QueryRowContext(ctx, query, c.Name, c.Website).Scan(&c.ID); err != nil {
		return fmt.Errorf("failed to upsert company: %w", err)
	}
	return nil
}

// UpsertProvider inserts or updates a provider by name
func (r *CatalogRepository) UpsertProvider(ctx context.Context, p *models.Provider) error {
	query := `
		INSERT INTO providers (name, website) VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET website = EXCLUDED.website
		RETURNING id
	`
	if err := r.db.conn.QueryRowContext(ctx, query, p.Name, p.Website).Scan(&p.ID); err != nil {
		return fmt.Errorf("failed to upsert provider: %w", err)
	}
	return nil
}

// UpsertModel inserts or updates a model by slug
func (r *CatalogRepository) UpsertModel(ctx context.Context, m *models.Model) error {
	query := `
		INSERT INTO models (name, slug, company_id) VALUES ($1, $2, $3)
		ON CONFLICT (slug) DO UPDATE SET name = EXCLUDED.name, company_id = EXCLUDED.company_id
		RETURNING id
	`
	if err := r.db.conn.QueryRowContext(ctx, query, m.Name, m.Slug, m.CompanyID).Scan(&m.ID); err != nil {
		return fmt.Errorf("failed to upsert model: %w", err)
	}
	return nil
}

// UpsertMapping inserts or updates the rates of a model/provider pair
func (r *CatalogRepository) UpsertMapping(ctx context.Context, mp *models.ModelProviderMapping) error {
	query := `
		INSERT INTO model_provider_mappings (model_id, provider_id, input_token_cost, output_token_cost)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (model_id, provider_id) DO UPDATE
			SET input_token_cost = EXCLUDED.input_token_cost,
				output_token_cost = EXCLUDED.output_token_cost
		RETURNING id
	`
	err := r.db.conn.QueryRowContext(ctx, query, mp.ModelID, mp.ProviderID, mp.InputTokenCost, mp.OutputTokenCost).
		Scan(&mp.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert mapping: %w", err)
	}
	return nil
}
