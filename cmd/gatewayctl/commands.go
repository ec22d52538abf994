package main

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"os"
	"strings"

	"github.com/lib/pq"
	"github.com/spf13/cobra"

	"llm_router/internal/auth"
	"llm_router/internal/models"
	"llm_router/internal/storage"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Creates the database schema",
	Long:  `Applies the embedded schema. Existing tables are left untouched, so it is safe to run on every deploy.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, db *storage.DB, _ *storage.PostgresStore) error {
			if err := db.Migrate(ctx); err != nil {
				return err
			}
			cmd.Println("Schema is up to date")
			return nil
		})
	},
}

var seedFile string
var seedAccounts bool

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Loads companies, providers, models and mappings from a YAML file",
	Example: `  gatewayctl seed --file deploy/catalog.yaml
  gatewayctl seed --file deploy/dev.yaml --accounts`,
	RunE: func(cmd *cobra.Command, args []string) error {
		seed, err := storage.LoadSeedFile(seedFile)
		if err != nil {
			return err
		}
		return withStore(func(ctx context.Context, _ *storage.DB, store *storage.PostgresStore) error {
			res, err := storage.ApplyCatalog(ctx, store, seed)
			if err != nil {
				return err
			}
			cmd.Printf("Seeded %d companies, %d providers, %d models, %d mappings\n",
				res.Companies, res.Providers, res.Models, res.Mappings)
			cmd.Println("Running gateways see the changes once their catalog cache expires or after POST /admin/catalog/invalidate")

			if seedAccounts {
				if err := storage.ApplyAccounts(ctx, store, seed, auth.HashAPIKey); err != nil {
					return err
				}
				cmd.Printf("Created %d accounts\n", len(seed.Accounts))
			}
			return nil
		})
	},
}

var adminEmail string
var adminRoles []string

var createAdminCmd = &cobra.Command{
	Use:   "create-admin",
	Short: "Creates an admin user",
	Long: `Creates an admin user for the /admin API. The password is read from
ADMIN_PASSWORD and must be at least 8 characters long.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		email := strings.ToLower(strings.TrimSpace(adminEmail))
		if _, err := mail.ParseAddress(email); err != nil {
			return fmt.Errorf("invalid email %q", adminEmail)
		}
		password := os.Getenv("ADMIN_PASSWORD")
		if len(password) < 8 {
			return errors.New("ADMIN_PASSWORD must be set and at least 8 characters long")
		}
		for _, r := range adminRoles {
			if !auth.Role(r).IsValid() {
				return fmt.Errorf("unknown role %q", r)
			}
		}

		hash, err := auth.HashPasswordArgon2(password)
		if err != nil {
			return fmt.Errorf("failed to hash password: %w", err)
		}

		return withStore(func(ctx context.Context, _ *storage.DB, store *storage.PostgresStore) error {
			existing, err := store.GetAdminUserByEmail(ctx, email)
			if err != nil && !errors.Is(err, storage.ErrAdminUserNotFound) {
				return err
			}
			if existing != nil {
				cmd.Printf("Admin user %s already exists (id %d), nothing to do\n", email, existing.ID)
				return nil
			}

			user := &models.AdminUser{
				Email:        email,
				PasswordHash: hash,
				Roles:        pq.StringArray(adminRoles),
				Enabled:      true,
			}
			if err := store.CreateAdminUser(ctx, user); err != nil {
				return err
			}
			cmd.Printf("Created admin user %s (id %d) with roles %v\n", user.Email, user.ID, adminRoles)
			return nil
		})
	},
}

var accountEmail string
var accountCredits int64

var createAccountCmd = &cobra.Command{
	Use:   "create-account",
	Short: "Creates a billing account",
	RunE: func(cmd *cobra.Command, args []string) error {
		if accountCredits < 0 {
			return errors.New("--credits must not be negative")
		}
		return withStore(func(ctx context.Context, _ *storage.DB, store *storage.PostgresStore) error {
			a := &models.Account{Email: accountEmail, Credits: accountCredits}
			if err := store.CreateAccount(ctx, a); err != nil {
				return err
			}
			cmd.Printf("Created account %d (%s) with %d credits\n", a.ID, a.Email, a.Credits)
			return nil
		})
	},
}

var topupAccount int64
var topupAmount int64

var topupCmd = &cobra.Command{
	Use:     "topup",
	Short:   "Adds credits to an account",
	Example: `  gatewayctl topup --account 12 --amount 5000`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if topupAmount <= 0 {
			return errors.New("--amount must be positive")
		}
		return withStore(func(ctx context.Context, _ *storage.DB, store *storage.PostgresStore) error {
			credits, err := store.CreditAccount(ctx, topupAccount, topupAmount)
			if err != nil {
				return err
			}
			cmd.Printf("Account %d balance: %d credits\n", topupAccount, credits)
			return nil
		})
	},
}

var keyAccount int64
var keyName string

var createKeyCmd = &cobra.Command{
	Use:   "create-key",
	Short: "Issues a new API key for an account",
	Long:  `Issues a new API key. The plaintext key is printed once; only its hash is stored.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, _ *storage.DB, store *storage.PostgresStore) error {
			token := auth.GenerateAPIKey()
			k := &models.APIKey{AccountID: keyAccount, Name: keyName, KeyHash: auth.HashAPIKey(token)}
			if err := store.CreateAPIKey(ctx, k); err != nil {
				return err
			}
			cmd.Printf("Created key %d (%s) for account %d\n", k.ID, k.Name, k.AccountID)
			cmd.Printf("Key: %s\n", token)
			cmd.Println("Store it now, it cannot be shown again.")
			return nil
		})
	},
}

var listKeysAccount int64

var listKeysCmd = &cobra.Command{
	Use:   "list-keys",
	Short: "Lists the API keys of an account",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, _ *storage.DB, store *storage.PostgresStore) error {
			if _, err := store.GetAccount(ctx, listKeysAccount); err != nil {
				return err
			}
			keys, err := store.ListAPIKeys(ctx, listKeysAccount)
			if err != nil {
				return err
			}
			for _, k := range keys {
				state := "enabled"
				if k.Disabled {
					state = "disabled"
				}
				cmd.Printf("%d\t%s\t%s\t%d credits used\n", k.ID, k.Name, state, k.CreditsConsumed)
			}
			return nil
		})
	},
}

var stateKeyID int64

// newKeyStateCmd builds enable-key and disable-key
func newKeyStateCmd(use, short string, disabled bool) *cobra.Command {
	return &cobra.Command{
		Use:     use,
		Short:   short,
		Example: "  gatewayctl " + use + " --key 42",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(ctx context.Context, _ *storage.DB, store *storage.PostgresStore) error {
				k, err := store.SetAPIKeyDisabled(ctx, stateKeyID, disabled)
				if err != nil {
					return err
				}
				state := "enabled"
				if k.Disabled {
					state = "disabled"
				}
				cmd.Printf("Key %d (%s) of account %d is now %s\n", k.ID, k.Name, k.AccountID, state)
				return nil
			})
		},
	}
}

var (
	disableKeyCmd = newKeyStateCmd("disable-key", "Stops an API key from authorizing requests", true)
	enableKeyCmd  = newKeyStateCmd("enable-key", "Lets a disabled API key authorize requests again", false)
)

var deleteKeyCmd = &cobra.Command{
	Use:     "delete-key",
	Short:   "Deletes an API key",
	Long:    `Soft-deletes an API key. Its usage history is kept and the token is rejected from then on.`,
	Example: `  gatewayctl delete-key --key 42`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, _ *storage.DB, store *storage.PostgresStore) error {
			if err := store.DeleteAPIKey(ctx, stateKeyID); err != nil {
				return err
			}
			cmd.Printf("Key %d deleted\n", stateKeyID)
			return nil
		})
	},
}

func init() {
	seedCmd.Flags().StringVar(&seedFile, "file", "", "Path to the seed YAML file")
	seedCmd.Flags().BoolVar(&seedAccounts, "accounts", false, "Also create the accounts and API keys listed in the file")
	_ = seedCmd.MarkFlagRequired("file")

	createAdminCmd.Flags().StringVar(&adminEmail, "email", "", "Admin email")
	createAdminCmd.Flags().StringSliceVar(&adminRoles, "roles", []string{string(auth.RoleAdmin)}, "Roles to grant (admin, viewer)")
	_ = createAdminCmd.MarkFlagRequired("email")

	createAccountCmd.Flags().StringVar(&accountEmail, "email", "", "Account email")
	createAccountCmd.Flags().Int64Var(&accountCredits, "credits", 0, "Initial credits")
	_ = createAccountCmd.MarkFlagRequired("email")

	topupCmd.Flags().Int64Var(&topupAccount, "account", 0, "Account ID")
	topupCmd.Flags().Int64Var(&topupAmount, "amount", 0, "Credits to add")
	_ = topupCmd.MarkFlagRequired("account")
	_ = topupCmd.MarkFlagRequired("amount")

	createKeyCmd.Flags().Int64Var(&keyAccount, "account", 0, "Account ID")
	createKeyCmd.Flags().StringVar(&keyName, "name", "", "Key name")
	_ = createKeyCmd.MarkFlagRequired("account")
	_ = createKeyCmd.MarkFlagRequired("name")

	listKeysCmd.Flags().Int64Var(&listKeysAccount, "account", 0, "Account ID")
	_ = listKeysCmd.MarkFlagRequired("account")

	for _, c := range []*cobra.Command{disableKeyCmd, enableKeyCmd, deleteKeyCmd} {
		c.Flags().Int64Var(&stateKeyID, "key", 0, "API key ID")
		_ = c.MarkFlagRequired("key")
	}

	rootCmd.AddCommand(migrateCmd, seedCmd, createAdminCmd, createAccountCmd, topupCmd, createKeyCmd,
		listKeysCmd, disableKeyCmd, enableKeyCmd, deleteKeyCmd)
}
