package app

import (
	"database/sql"
	"fmt"

	"hireline/internal/config"
	"hireline/internal/db"
	"hireline/internal/engine"
	"hireline/internal/migrate"
)

// App bundles the opened workspace: database, config and engine.
type App struct {
	DB     *sql.DB
	Config *config.Config
	Engine engine.Engine
}

// Open prepares a workspace: ensures the data directory, opens the database,
// applies migrations, loads hireline.yml (defaults if absent) and builds the
// engine.
func Open(workspace string) (*App, error) {
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		return nil, err
	}
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, err
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &App{
		DB:     conn,
		Config: cfg,
		Engine: engine.New(conn, cfg),
	}, nil
}

func (a *App) Close() error {
	return a.DB.Close()
}
