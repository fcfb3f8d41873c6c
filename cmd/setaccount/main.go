// Command setaccount creates an account or changes its tier and status.
//
//	setaccount -email pat@example.com -tier pro
//	setaccount -email pat@example.com -inactive
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	rediscache "github.com/adalign/backend/internal/cache/redis"
	"github.com/adalign/backend/internal/quota"
	"github.com/adalign/backend/internal/storage/sqlstore"
	"github.com/adalign/backend/pkg/config"
	appLogger "github.com/adalign/backend/pkg/logger"
)

type accountWriter interface {
	UpsertAccount(ctx context.Context, acct *quota.Account) error
}

type accountInvalidator interface {
	Invalidate(ctx context.Context, email string) error
}

func main() {
	email := flag.String("email", "", "Account email (required)")
	tier := flag.String("tier", string(quota.TierFree), "Tier: free, pro or enterprise")
	inactive := flag.Bool("inactive", false, "Deactivate the account")
	flag.Parse()

	if *email == "" {
		fmt.Println("Error: email is required")
		fmt.Println("\nUsage:")
		flag.PrintDefaults()
		os.Exit(1)
	}
	t, err := parseTier(*tier)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	if cfg.Database.DSN == "" {
		appLogger.Fatal("No database configured")
	}
	store, err := sqlstore.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		appLogger.Fatal("Failed to open database", zap.Error(err))
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := store.InitSchema(ctx); err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	var cache accountInvalidator
	if cfg.Redis.Enabled {
		redisClient, err := rediscache.NewClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			appLogger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redisClient.Close()
		cache = rediscache.NewAccountCache(redisClient, store, cfg.Redis.AccountCacheTTL())
	}

	acct := &quota.Account{Email: *email, Tier: t, Active: !*inactive}
	if err := setAccount(ctx, store, cache, acct); err != nil {
		appLogger.Fatal("Failed to update account", zap.Error(err))
	}

	fmt.Printf("Account updated\n")
	fmt.Printf("   ID: %s\n", acct.ID)
	fmt.Printf("   Email: %s\n", acct.Email)
	fmt.Printf("   Tier: %s\n", acct.Tier)
	fmt.Printf("   Active: %t\n", acct.Active)
}

func parseTier(s string) (quota.Tier, error) {
	switch t := quota.Tier(s); t {
	case quota.TierFree, quota.TierPro, quota.TierEnterprise:
		return t, nil
	default:
		return "", fmt.Errorf("unknown tier %q", s)
	}
}

// setAccount writes the account and drops any cached copy so the new tier
// applies to the next evaluation.
func setAccount(ctx context.Context, store accountWriter, cache accountInvalidator, acct *quota.Account) error {
	if err := store.UpsertAccount(ctx, acct); err != nil {
		return err
	}
	if cache == nil {
		return nil
	}
	if err := cache.Invalidate(ctx, acct.Email); err != nil {
		return fmt.Errorf("account saved but cache not cleared: %w", err)
	}
	return nil
}
