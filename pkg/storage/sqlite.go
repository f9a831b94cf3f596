package storage

import (
	_ "github.com/mattn/go-sqlite3" // Load SQLite DB driver
)

type sqliteDialect struct{}

func init() {
	RegisterDialect("sqlite3", sqliteDialect{})
}

func (sqliteDialect) CreateTable() string {
	return `
	CREATE TABLE IF NOT EXISTS measurements (
		id                INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp         TEXT NOT NULL,
		temperature       REAL NOT NULL,
		humidity          REAL NOT NULL,
		pressure          REAL NOT NULL,
		co2_concentration INTEGER NOT NULL
	)`
}

func (sqliteDialect) Insert() string {
	return `INSERT INTO measurements (
		timestamp,
		temperature,
		humidity,
		pressure,
		co2_concentration
	) VALUES (?, ?, ?, ?, ?)`
}
