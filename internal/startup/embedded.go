package startup

import (
	"fmt"
	"os"
	"path/filepath"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"

	"github.com/convo/internal/logger"
)

// EmbeddedPostgres — параметры локального Postgres для режима -dev и интеграционных тестов.
type EmbeddedPostgres struct {
	Port     uint32
	User     string
	Password string
	Database string
	DataDir  string
}

func DefaultEmbeddedPostgres() EmbeddedPostgres {
	return EmbeddedPostgres{
		Port:     5432,
		User:     "convo",
		Password: "convo_secret",
		Database: "convo",
		DataDir:  filepath.Join(".", ".pgdata"),
	}
}

func (e EmbeddedPostgres) URL() string {
	return fmt.Sprintf("postgres://%s:%s@localhost:%d/%s?sslmode=disable", e.User, e.Password, e.Port, e.Database)
}

// Start поднимает встроенный Postgres; остановка — через Stop у возвращённого значения.
func (e EmbeddedPostgres) Start() (*embeddedpostgres.EmbeddedPostgres, error) {
	if err := os.MkdirAll(e.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create pgdata dir: %w", err)
	}
	db := embeddedpostgres.NewDatabase(
		embeddedpostgres.DefaultConfig().
			Port(e.Port).
			Username(e.User).
			Password(e.Password).
			Database(e.Database).
			DataPath(e.DataDir).
			RuntimePath(filepath.Join(os.TempDir(), fmt.Sprintf("embedded-pg-runtime-%d", e.Port))),
	)
	logger.Info("starting embedded PostgreSQL...")
	if err := db.Start(); err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}
	logger.Infof("embedded PostgreSQL running on port %d", e.Port)
	return db, nil
}
