package billing

import (
	"context"
	"errors"

	"llm_router/internal/apierr"
	"llm_router/internal/auth"
	"llm_router/internal/models"
	"llm_router/internal/storage"
)

// AccountStore resolves API keys and their owning accounts
type AccountStore interface {
	GetAPIKeyByHash(ctx context.Context, keyHash string) (*models.APIKey, error)
	GetAccount(ctx context.Context, id int64) (*models.Account, error)
}

// Principal is an authorized caller
type Principal struct {
	Key     *models.APIKey
	Account *models.Account
}

// Guard is the read-only pre-flight check run before any provider call
type Guard struct {
	store AccountStore
}

func NewGuard(store AccountStore) *Guard {
	return &Guard{store: store}
}

// Authorize resolves token to a usable key whose account has a positive
// balance. It fails with Unauthorized, Forbidden or InsufficientCredits.
func (g *Guard) Authorize(ctx context.Context, token string) (*Principal, error) {
	if token == "" {
		return nil, apierr.New(apierr.KindUnauthorized, "missing api key")
	}

	key, err := g.store.GetAPIKeyByHash(ctx, auth.HashAPIKey(token))
	if err != nil {
		if errors.Is(err, storage.ErrAPIKeyNotFound) {
			return nil, apierr.Wrap(apierr.KindUnauthorized, "invalid api key", err)
		}
		return nil, apierr.Wrap(apierr.KindInternal, "failed to look up api key", err)
	}
	if !key.IsUsable() {
		return nil, apierr.New(apierr.KindForbidden, "api key is disabled or deleted")
	}

	account, err := g.store.GetAccount(ctx, key.AccountID)
	if err != nil {
		if errors.Is(err, storage.ErrAccountNotFound) {
			return nil, apierr.Wrap(apierr.KindUnauthorized, "api key has no account", err)
		}
		return nil, apierr.Wrap(apierr.KindInternal, "failed to look up account", err)
	}
	if !account.HasCredits() {
		return nil, apierr.New(apierr.KindInsufficientCredits, "not enough credits in your account")
	}

	return &Principal{Key: key, Account: account}, nil
}
