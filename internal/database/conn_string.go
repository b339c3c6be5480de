package database

import (
	"fmt"
	"net/url"

	"github.com/rickgao/tickstream/internal/config"
)

// BuildConnString builds a TimescaleDB connection URL from config.
// The optional application name shows up in pg_stat_activity so the
// filler and api pools can be told apart.
func BuildConnString(cfg config.DBConfig, appName ...string) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "prefer"
	}

	q := url.Values{}
	q.Set("sslmode", sslMode)
	if len(appName) > 0 && appName[0] != "" {
		q.Set("application_name", appName[0])
	}

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Path:     "/" + cfg.Name,
		RawQuery: q.Encode(),
	}
	return u.String()
}
