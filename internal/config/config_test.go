package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.FlagWindowDays != 30 {
		t.Errorf("FlagWindowDays = %d, want 30", cfg.FlagWindowDays)
	}
	if cfg.BuyerFlagThreshold != 3 || cfg.SellerFlagThreshold != 3 {
		t.Errorf("thresholds = %d/%d, want 3/3", cfg.BuyerFlagThreshold, cfg.SellerFlagThreshold)
	}
	if cfg.BaseLockDays != 2 {
		t.Errorf("BaseLockDays = %d, want 2", cfg.BaseLockDays)
	}
	if cfg.MaxLockDays != 60 {
		t.Errorf("MaxLockDays = %d, want 60", cfg.MaxLockDays)
	}
	if !cfg.AutoUnlockOnResolve {
		t.Error("AutoUnlockOnResolve should default to true")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("FLAG_WINDOW_DAYS", "7")
	t.Setenv("FLAG_BUYER_THRESHOLD", "5")
	t.Setenv("FLAG_AUTO_UNLOCK", "false")
	t.Setenv("FLAG_MAX_LOCK_DAYS", "not-a-number")

	cfg := Load()
	if cfg.FlagWindowDays != 7 {
		t.Errorf("FlagWindowDays = %d, want 7", cfg.FlagWindowDays)
	}
	if cfg.BuyerFlagThreshold != 5 {
		t.Errorf("BuyerFlagThreshold = %d, want 5", cfg.BuyerFlagThreshold)
	}
	if cfg.AutoUnlockOnResolve {
		t.Error("AutoUnlockOnResolve should be false")
	}
	// Malformed values fall back to the default.
	if cfg.MaxLockDays != 60 {
		t.Errorf("MaxLockDays = %d, want default 60", cfg.MaxLockDays)
	}
}
