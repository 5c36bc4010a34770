package seeder

import (
	"context"
	"log"

	"github.com/vnmchuo/llm-exec/internal/auth"
)

const (
	TestAPIKey   = "test-api-key-12345"
	TestTenantID = "00000000-0000-0000-0000-000000000001"
)

// SeedTestAPIKey provisions a development key so the service is usable
// immediately after a fresh database migration.
func SeedTestAPIKey(ctx context.Context, store auth.Store) {
	key := &auth.Key{
		TenantID:    TestTenantID,
		Hash:        auth.HashKey(TestAPIKey),
		Label:       "dev seed",
		TokenBudget: 1000000,
	}

	if err := store.Create(ctx, key); err != nil {
		log.Printf("[Seeder] API key may already exist, skipping: %v", err)
		return
	}
	log.Printf("[Seeder] Test API key created successfully")
	log.Printf("[Seeder] Key: %s", TestAPIKey)
	log.Printf("[Seeder] TenantID: %s", TestTenantID)
}
