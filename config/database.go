package config

// RedisConfig contains the job store Redis connection settings.
type RedisConfig struct {
	Addr     string `env:"ADDR"     envDefault:"localhost:6379"`
	Password string `env:"PASSWORD" envDefault:""`
	DB       int    `env:"DB"       envDefault:"0"`
}

// DBConfig contains the PostgreSQL note archive configuration. The archive
// is optional; jobs complete without it and results then live only for the
// job store's retention window.
type DBConfig struct {
	// Enabled turns on the long-term note archive.
	Enabled  bool   `env:"ENABLED"  envDefault:"false"`
	Host     string `env:"HOST"     envDefault:"localhost"`
	Port     int    `env:"PORT"     envDefault:"5432"`
	User     string `env:"USER"     envDefault:"medscribe"`
	Password string `env:"PASSWORD" envDefault:"medscribe"`
	Name     string `env:"NAME"     envDefault:"medscribe"`
	SSLMode  string `env:"SSL_MODE" envDefault:"disable"` // Use 'disable' for local dev, 'require' for production
	// RunMigrationsOnStart controls whether the archive schema is applied during startup.
	RunMigrationsOnStart bool `env:"RUN_MIGRATIONS_ON_START" envDefault:"true"`
}
