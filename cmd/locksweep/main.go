package main

import (
	"context"
	"log"
	"time"

	"github.com/joho/godotenv"

	"github.com/trovia/backend/internal/config"
	"github.com/trovia/backend/internal/models"
	"github.com/trovia/backend/internal/services"
)

// locksweep re-runs the flag policy over every currently locked account.
// Locks are normally re-evaluated when a flag is created or moderated; a
// dormant account with an expired lock would otherwise stay suspended until
// someone flags it again. Run this from cron, it performs exactly one pass.
func main() {
	if err := godotenv.Load(); err == nil {
		log.Println("Loaded .env")
	}

	cfg := config.Load()
	if cfg.MongoURI == "" {
		log.Fatal("MONGO_URI is required for locksweep")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	flags, err := services.NewMongoFlagService(ctx, cfg.MongoURI, cfg.DBName)
	if err != nil {
		log.Fatalf("Failed to connect flag store: %v", err)
	}
	defer flags.Close(ctx)

	users, err := services.NewMongoUserService(ctx, cfg.MongoURI, cfg.DBName)
	if err != nil {
		log.Fatalf("Failed to connect user store: %v", err)
	}
	defer users.Close(ctx)

	evaluator := services.NewPolicyEvaluator(flags, users, services.PolicyConfig{
		WindowDays:          cfg.FlagWindowDays,
		BuyerThreshold:      cfg.BuyerFlagThreshold,
		SellerThreshold:     cfg.SellerFlagThreshold,
		BaseLockDays:        cfg.BaseLockDays,
		MaxLockDays:         cfg.MaxLockDays,
		AutoUnlockOnResolve: cfg.AutoUnlockOnResolve,
	})

	locked, err := users.ListLocked(ctx)
	if err != nil {
		log.Fatalf("Failed to list locked users: %v", err)
	}
	log.Printf("[locksweep] %d locked account(s)", len(locked))

	var unlocked, refreshed, failed int
	for _, u := range locked {
		// The lock does not record which role triggered it, so evaluate
		// both. Same semantics as the request path: an expired lock still
		// over threshold is refreshed, an expired lock below threshold is
		// lifted, a live lock is left alone.
		for _, role := range []string{models.RoleBuyer, models.RoleSeller} {
			res, err := evaluator.Evaluate(ctx, u.ID, role)
			if err != nil {
				log.Printf("[locksweep] evaluate failed user=%s role=%s err=%v", u.ID, role, err)
				failed++
				continue
			}
			if res == nil {
				continue
			}
			if res.Unlocked {
				log.Printf("[locksweep] unlocked user=%s role=%s count=%d", u.ID, role, res.Count)
				unlocked++
				break
			}
			if res.Locked && res.Until != nil && res.Until.After(time.Now()) && res.Strikes > u.FlagLock.Strikes {
				log.Printf("[locksweep] refreshed lock user=%s role=%s strikes=%d until=%s", u.ID, role, res.Strikes, res.Until.Format(time.RFC3339))
				refreshed++
			}
		}
	}

	log.Printf("[locksweep] done: unlocked=%d refreshed=%d failed=%d", unlocked, refreshed, failed)
}
