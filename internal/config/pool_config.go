package config

import "time"

// DBPoolConfig sizes the Postgres connection pool.
type DBPoolConfig struct {
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

// GetDBPoolConfig returns the pool settings. Tests run against a single
// throwaway container, so they get a small pool.
func (c Config) GetDBPoolConfig() DBPoolConfig {
	pc := DBPoolConfig{
		MaxConns:          c.DBMaxConns,
		MinConns:          c.DBMinConns,
		MaxConnLifetime:   c.DBMaxConnLifetime,
		MaxConnIdleTime:   c.DBMaxConnIdleTime,
		HealthCheckPeriod: c.DBHealthCheckPeriod,
	}
	if c.IsTest() && (pc.MaxConns == 0 || pc.MaxConns > 4) {
		pc.MaxConns = 4
	}
	if pc.MaxConns > 0 && pc.MinConns > pc.MaxConns {
		pc.MinConns = pc.MaxConns
	}
	return pc
}
