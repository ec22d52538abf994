package models

// Company publishes models.
type Company struct {
	ID      int64  `db:"id" json:"id"`
	Name    string `db:"name" json:"name"`
	Website string `db:"website" json:"website"`
}

// Model is a catalog entry. Slug is the routing key.
type Model struct {
	ID        int64  `db:"id" json:"id"`
	Name      string `db:"name" json:"name"`
	Slug      string `db:"slug" json:"slug"`
	CompanyID int64  `db:"company_id" json:"company_id"`

	// Joined from companies on list/detail queries.
	Company *Company `db:"-" json:"company,omitempty"`
}

// Provider is a backend able to serve models.
type Provider struct {
	ID      int64  `db:"id" json:"id"`
	Name    string `db:"name" json:"name"`
	Website string `db:"website" json:"website"`
}

// ModelProviderMapping prices one model on one provider.
// It is the pricing source of truth.
type ModelProviderMapping struct {
	ID              int64   `db:"id" json:"id"`
	ModelID         int64   `db:"model_id" json:"model_id"`
	ProviderID      int64   `db:"provider_id" json:"provider_id"`
	InputTokenCost  float64 `db:"input_token_cost" json:"input_token_cost"`
	OutputTokenCost float64 `db:"output_token_cost" json:"output_token_cost"`

	// Joined from providers/models.
	ProviderName    string `db:"provider_name" json:"provider_name"`
	ProviderWebsite string `db:"provider_website" json:"provider_website,omitempty"`
	ModelName       string `db:"model_name" json:"model_name,omitempty"`
}
