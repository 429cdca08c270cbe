package pg

import (
	"database/sql"
	"fmt"
)

type Config struct {
	User     string
	Host     string
	Port     string
	Password string
	Database string
	// SSLMode defaults to disable.
	SSLMode string
}

func dsn(c Config) string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		c.Host, c.User, c.Password, c.Database, c.Port, sslMode)
}

// openMigrationDB opens a plain database/sql handle through lib/pq, goose
// does not work on gorm handles.
func openMigrationDB(c Config) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn(c))
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to %s/%s: %w", c.Host, c.Database, err)
	}
	return db, nil
}
