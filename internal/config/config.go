package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	ServerAddress string
	MongoURI      string
	DBName        string
	DataDir       string
	JWTSecret     string
	JWTExpiration time.Duration

	// Flag-policy knobs. Defaults match production behavior; override per
	// deployment via env.
	FlagWindowDays      int
	BuyerFlagThreshold  int
	SellerFlagThreshold int
	BaseLockDays        int
	MaxLockDays         int
	AutoUnlockOnResolve bool
}

func Load() *Config {
	return &Config{
		ServerAddress: getEnv("SERVER_ADDRESS", ":8080"),
		MongoURI:      getEnv("MONGO_URI", ""),
		DBName:        getEnv("MONGO_DB", "trovia"),
		DataDir:       getEnv("DATA_DIR", "./data"),
		JWTSecret:     getEnv("JWT_SECRET", "your-secret-key-change-in-production"),
		JWTExpiration: 24 * time.Hour,

		FlagWindowDays:      getEnvInt("FLAG_WINDOW_DAYS", 30),
		BuyerFlagThreshold:  getEnvInt("FLAG_BUYER_THRESHOLD", 3),
		SellerFlagThreshold: getEnvInt("FLAG_SELLER_THRESHOLD", 3),
		BaseLockDays:        getEnvInt("FLAG_BASE_LOCK_DAYS", 2),
		MaxLockDays:         getEnvInt("FLAG_MAX_LOCK_DAYS", 60),
		AutoUnlockOnResolve: getEnvBool("FLAG_AUTO_UNLOCK", true),
	}
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if v, err := strconv.Atoi(value); err == nil {
			return v
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if v, err := strconv.ParseBool(value); err == nil {
			return v
		}
	}
	return defaultValue
}
