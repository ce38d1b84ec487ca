package commands

import (
	"database/sql"
	"path/filepath"

	"koubs-backend/lib/configutil"
	"koubs-backend/lib/datacache"
	"koubs-backend/lib/runlog"
	runlogdb "koubs-backend/lib/runlog/db"
	"koubs-backend/lib/sessionstore"
)

type Config struct {
	Username string `json:"username"`
	Password string `json:"password"`
	// Headless hides the browser window; interactive logins need it off
	// so the user can solve the CAPTCHA.
	Headless bool   `json:"headless"`
	DataDir  string `json:"data_dir"`
}

func loadConfig() (Config, error) {
	cfg, err := configutil.ReadConfig[Config]("config.json5")
	if err != nil {
		return cfg, err
	}
	if cfg.DataDir == "" {
		cfg.DataDir = ".kou"
	}
	return cfg, nil
}

func openCache(cfg Config) datacache.Cache {
	return datacache.NewCache(filepath.Join(cfg.DataDir, "cache"))
}

func openSessions(cfg Config) sessionstore.Store {
	return sessionstore.NewStore(filepath.Join(cfg.DataDir, "sessions"))
}

func openRunlog(cfg Config) (runlog.Store, *sql.DB, error) {
	db, err := sql.Open("sqlite", filepath.Join(cfg.DataDir, "runs.db"))
	if err != nil {
		return runlog.Store{}, nil, err
	}
	_, err = db.Exec(runlogdb.Schema)
	if err != nil {
		db.Close()
		return runlog.Store{}, nil, err
	}
	return runlog.NewStore(db), db, nil
}
