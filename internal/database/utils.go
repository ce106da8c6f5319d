package database

import (
	"path"
)

// dataSourceName builds the sqlite file path. An empty configPath or ":memory:" name yields an in-memory database.
func dataSourceName(configPath string, name string) string {
	if name == ":memory:" || configPath == "" {
		return ":memory:"
	}

	return path.Join(configPath, name)
}
