package config

import (
	"time"
)

// DatabaseConfig selects the document store. With Enabled false the server
// runs on the in-memory repositories.
type DatabaseConfig struct {
	Enabled        bool          `yaml:"enabled"`
	URI            string        `yaml:"uri"`
	Database       string        `yaml:"database"`
	MaxPoolSize    int           `yaml:"max_pool_size"`
	MinPoolSize    int           `yaml:"min_pool_size"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	SocketTimeout  time.Duration `yaml:"socket_timeout"`
	RunMigrations  bool          `yaml:"run_migrations"`
	// Transactions wraps the release of a closed entity's vehicle and
	// driver in one transaction. Needs a replica set.
	Transactions   bool          `yaml:"transactions"`
}

func loadDatabaseConfig() *DatabaseConfig {
	return &DatabaseConfig{
		Enabled:        getEnvAsBool("MONGODB_ENABLED", true),
		URI:            getEnv("MONGODB_URI", "mongodb://localhost:27017/medidispatch"),
		Database:       getEnv("MONGODB_DATABASE", "medidispatch"),
		MaxPoolSize:    getEnvAsInt("MONGODB_MAX_POOL_SIZE", 100),
		MinPoolSize:    getEnvAsInt("MONGODB_MIN_POOL_SIZE", 5),
		ConnectTimeout: getEnvAsDuration("MONGODB_CONNECT_TIMEOUT", 10*time.Second),
		SocketTimeout:  getEnvAsDuration("MONGODB_SOCKET_TIMEOUT", 30*time.Second),
		RunMigrations:  getEnvAsBool("MONGODB_RUN_MIGRATIONS", true),
		Transactions:   getEnvAsBool("MONGODB_TRANSACTIONS", false),
	}
}
