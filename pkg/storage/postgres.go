package storage

import (
	_ "github.com/lib/pq" // Load PostgreSQL DB driver
)

type postgresDialect struct{}

func init() {
	RegisterDialect("postgres", postgresDialect{})
}

func (postgresDialect) CreateTable() string {
	return `
	CREATE TABLE IF NOT EXISTS measurements (
		id                SERIAL PRIMARY KEY,
		timestamp         TEXT NOT NULL,
		temperature       DOUBLE PRECISION NOT NULL,
		humidity          DOUBLE PRECISION NOT NULL,
		pressure          DOUBLE PRECISION NOT NULL,
		co2_concentration INTEGER NOT NULL
	)`
}

func (postgresDialect) Insert() string {
	return `INSERT INTO measurements (
		timestamp,
		temperature,
		humidity,
		pressure,
		co2_concentration
	) VALUES ($1, $2, $3, $4, $5)`
}
