package configs

import "net/url"

// Postgres holds the connection string for the shared ledger. When Addr is
// empty the local SQLite ledger is used instead.
type Postgres struct {
	Addr          string `env:"ADDRESS"`
	RunMigrations bool   `env:"RUN_MIGRATIONS" envDefault:"false"`
}

// URL parses Addr.
func (p Postgres) URL() (*url.URL, error) {
	return url.Parse(p.Addr)
}

// SQLite points at the local ledger file.
type SQLite struct {
	Path string `env:"PATH" envDefault:"data/outreach.db"`
}

// HTTP defines the listen port for the API and webhook receiver.
type HTTP struct {
	Port uint16 `env:"PORT" envDefault:"8080"`
}
