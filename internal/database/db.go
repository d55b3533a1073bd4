package database

import (
	"database/sql"
	"embed"
	"log"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

var DB *sql.DB

func InitDB(path string) error {
	var err error
	DB, err = sql.Open("sqlite3", path)
	if err != nil {
		return err
	}

	// проверка соединения
	if err = DB.Ping(); err != nil {
		return err
	}

	// SQLite пишет из одного соединения, иначе ловим database is locked
	DB.SetMaxOpenConns(1)
	DB.SetConnMaxLifetime(5 * time.Minute)

	if err = migrate(DB); err != nil {
		return err
	}

	log.Println("SQLite database initialized")
	return nil
}

func migrate(db *sql.DB) error {
	goose.SetBaseFS(migrations)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}
	return goose.Up(db, "migrations")
}

func CloseDB() {
	if DB != nil {
		DB.Close()
		log.Println("DB closed")
	}
}
