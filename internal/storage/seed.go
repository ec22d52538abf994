package storage

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"llm_router/internal/models"
)

// Seed is the YAML catalog (and optional dev accounts) loaded by
// `gatewayctl seed` and by the memory backend at startup.
type Seed struct {
	Companies []SeedCompany  `yaml:"companies"`
	Providers []SeedProvider `yaml:"providers"`
	Models    []SeedModel    `yaml:"models"`
	Accounts  []SeedAccount  `yaml:"accounts"`
}

type SeedCompany struct {
	Name    string `yaml:"name"`
	Website string `yaml:"website"`
}

type SeedProvider struct {
	Name    string `yaml:"name"`
	Website string `yaml:"website"`
}

type SeedModel struct {
	Name      string        `yaml:"name"`
	Slug      string        `yaml:"slug"`
	Company   string        `yaml:"company"`
	Providers []SeedMapping `yaml:"providers"`
}

type SeedMapping struct {
	Provider        string  `yaml:"provider"`
	InputTokenCost  float64 `yaml:"input_token_cost"`
	OutputTokenCost float64 `yaml:"output_token_cost"`
}

type SeedAccount struct {
	Email   string       `yaml:"email"`
	Credits int64        `yaml:"credits"`
	APIKeys []SeedAPIKey `yaml:"api_keys"`
}

type SeedAPIKey struct {
	Name  string `yaml:"name"`
	Token string `yaml:"token"`
}

// LoadSeedFile parses a YAML seed file
func LoadSeedFile(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	return ParseSeed(data)
}

// ParseSeed parses YAML seed data and checks cross references
func ParseSeed(data []byte) (*Seed, error) {
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse seed: %w", err)
	}

	companies := make(map[string]bool, len(seed.Companies))
	for _, c := range seed.Companies {
		companies[c.Name] = true
	}
	providers := make(map[string]bool, len(seed.Providers))
	for _, p := range seed.Providers {
		providers[p.Name] = true
	}
	for _, m := range seed.Models {
		if m.Slug == "" {
			return nil, fmt.Errorf("model %q has no slug", m.Name)
		}
		if !companies[m.Company] {
			return nil, fmt.Errorf("model %q references unknown company %q", m.Slug, m.Company)
		}
		for _, mp := range m.Providers {
			if !providers[mp.Provider] {
				return nil, fmt.Errorf("model %q references unknown provider %q", m.Slug, mp.Provider)
			}
		}
	}

	return &seed, nil
}

// SeedResult counts what ApplyCatalog wrote
type SeedResult struct {
	Companies int
	Providers int
	Models    int
	Mappings  int
}

// ApplyCatalog upserts the seed's companies, providers, models and mappings.
// Re-applying the same seed is a no-op apart from rate updates.
func ApplyCatalog(ctx context.Context, w CatalogWriter, seed *Seed) (SeedResult, error) {
	var res SeedResult

	companyIDs := make(map[string]int64, len(seed.Companies))
	for _, sc := range seed.Companies {
		c := &models.Company{Name: sc.Name, Website: sc.Website}
		if err := w.UpsertCompany(ctx, c); err != nil {
			return res, err
		}
		companyIDs[c.Name] = c.ID
		res.Companies++
	}

	providerIDs := make(map[string]int64, len(seed.Providers))
	for _, sp := range seed.Providers {
		p := &models.Provider{Name: sp.Name, Website: sp.Website}
		if err := w.UpsertProvider(ctx, p); err != nil {
			return res, err
		}
		providerIDs[p.Name] = p.ID
		res.Providers++
	}

	for _, sm := range seed.Models {
		m := &models.Model{Name: sm.Name, Slug: sm.Slug, CompanyID: companyIDs[sm.Company]}
		if err := w.UpsertModel(ctx, m); err != nil {
			return res, err
		}
		res.Models++

		for _, smp := range sm.Providers {
			mp := &models.ModelProviderMapping{
				ModelID:         m.ID,
				ProviderID:      providerIDs[smp.Provider],
				InputTokenCost:  smp.InputTokenCost,
				OutputTokenCost: smp.OutputTokenCost,
			}
			if err := w.UpsertMapping(ctx, mp); err != nil {
				return res, err
			}
			res.Mappings++
		}
	}

	return res, nil
}

// ApplyAccounts creates the seed's accounts and keys. hashKey turns a
// plaintext token into the stored key hash.
func ApplyAccounts(ctx context.Context, s Store, seed *Seed, hashKey func(string) string) error {
	for _, sa := range seed.Accounts {
		a := &models.Account{Email: sa.Email, Credits: sa.Credits}
		if err := s.CreateAccount(ctx, a); err != nil {
			return err
		}
		for _, sk := range sa.APIKeys {
			k := &models.APIKey{AccountID: a.ID, Name: sk.Name, KeyHash: hashKey(sk.Token)}
			if err := s.CreateAPIKey(ctx, k); err != nil {
				return err
			}
		}
	}
	return nil
}
