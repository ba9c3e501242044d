package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"course-entitlement/internal/config"
	"course-entitlement/internal/domain/model"
	pg "course-entitlement/internal/infra/db/postgres"
	"course-entitlement/internal/infra/security"
)

// seed prepares a local database for manual testing: it applies migrations,
// creates a few demo accounts and prints a bearer token for each.
func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, true)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := pg.Migrate(cfg.Database.URL); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	pool, err := pg.NewPgxPool(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	cipher, err := security.NewCredentialCipher(cfg.Security.EncryptionKey)
	if err != nil {
		log.Fatalf("encryption: %v (seed needs a real security.encryption_key)", err)
	}
	accounts := pg.NewAccountRepo(pool)
	unlocks := pg.NewUnlockRepo(pool)
	identity := security.NewIdentityResolver(cfg.Auth.JWTSecret, cfg.Auth.Issuer)

	now := time.Now().UTC()
	renewSoon := now.Add(2 * time.Hour)
	credential, err := cipher.Encrypt("bk_demo_renewal")
	if err != nil {
		log.Fatalf("encrypt: %v", err)
	}

	seed := []struct {
		id    string
		admin bool
		apply func(a *model.Account)
	}{
		{"demo-free", false, func(a *model.Account) { a.BonusCredits = 5 }},
		{"demo-basic", false, func(a *model.Account) {
			a.Tier = model.TierBasic
			a.ExpiresAt = &renewSoon
			a.AutoRenewalEnabled = true
			a.BillingCredential = &credential
		}},
		{"demo-admin", true, nil},
	}

	for _, s := range seed {
		a, err := model.NewAccount(s.id)
		if err != nil {
			log.Fatalf("account %s: %v", s.id, err)
		}
		if s.apply != nil {
			s.apply(a)
		}
		if err := accounts.Save(ctx, nil, a); err != nil {
			log.Fatalf("save %s: %v", s.id, err)
		}
		tok, err := identity.Mint(s.id, s.admin, 24*time.Hour)
		if err != nil {
			log.Fatalf("mint %s: %v", s.id, err)
		}
		fmt.Printf("%-11s tier=%-7s token=%s\n", a.ID, a.Tier, tok)
	}

	if err := unlocks.Grant(ctx, nil, &model.UnlockGrant{AccountID: "demo-free", ResourceID: "course-intro"}); err != nil {
		log.Fatalf("grant: %v", err)
	}
	fmt.Println("Seed complete.")
}
