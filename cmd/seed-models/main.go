package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"media_gateway/internal/config"
	"media_gateway/internal/httpapi"
	"media_gateway/internal/logging"
	"media_gateway/internal/providers"
	"media_gateway/internal/storage"
)

func main() {
	storeCreds := flag.Bool("store-credentials", false, "encrypt provider API keys from the environment into the database")
	grantUser := flag.String("grant-user", "", "user id to grant starter credits to")
	grantCredits := flag.Int("grant-credits", 0, "number of credits to grant to -grant-user")
	flag.Parse()

	fmt.Println("Media Gateway - Model Catalogue Seed")

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	logging.SetLogLevel(cfg.LogLevel)

	fmt.Println("Connecting to database...")
	db, err := httpapi.OpenDB(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	if err := db.EnsureSchema(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: Failed to apply schema: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Schema is up to date")

	repo := db.NewModelConfigRepository()
	for _, mc := range defaultCatalogue() {
		if err := mc.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "ERROR: Invalid catalogue entry %s: %v\n", mc.ID, err)
			os.Exit(1)
		}
		if err := repo.Upsert(ctx, mc); err != nil {
			fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("  %-18s provider=%-9s verified=%v\n", mc.ID, mc.CurrentProvider, mc.Verified)
	}

	if *storeCreds {
		if err := storeProviderCredentials(ctx, cfg, db); err != nil {
			fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
			os.Exit(1)
		}
	}

	if *grantUser != "" && *grantCredits > 0 {
		tx, err := db.NewCreditRepository().Grant(ctx, *grantUser, *grantCredits, "starter credits")
		if err != nil {
			fmt.Fprintf(os.Stderr, "ERROR: Failed to grant credits: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Granted %d credits to %s (transaction %s)\n", *grantCredits, *grantUser, tx.ID)
	}

	fmt.Println("Seed completed successfully")
}

// storeProviderCredentials copies vendor API keys set in the environment into
// the encrypted provider table, so other replicas can run without them.
func storeProviderCredentials(ctx context.Context, cfg *config.Config, db *storage.DB) error {
	enc, err := httpapi.OpenEncryption(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize encryption: %w", err)
	}
	if enc == nil {
		return fmt.Errorf("ENCRYPTION_KEY or ENCRYPTION_SECRET must be set to store credentials")
	}

	repo := db.NewProviderRepository(enc)
	for _, name := range providers.SupportedTypes() {
		vendor, ok := cfg.Providers.Vendors[name]
		if !ok || vendor.APIKey == "" {
			continue
		}
		creds := storage.VendorCredentials{APIKey: vendor.APIKey, BaseURL: vendor.BaseURL}
		if err := repo.Save(ctx, name, creds, true); err != nil {
			return fmt.Errorf("failed to store %s credentials: %w", name, err)
		}
		fmt.Printf("Stored credentials for %s\n", name)
	}
	return nil
}
