package storage

import (
	_ "github.com/go-sql-driver/mysql" // Load MySQL DB driver
)

type mysqlDialect struct{}

func init() {
	RegisterDialect("mysql", mysqlDialect{})
}

func (mysqlDialect) CreateTable() string {
	return `
	CREATE TABLE IF NOT EXISTS measurements (
		id                INTEGER AUTO_INCREMENT PRIMARY KEY,
		timestamp         VARCHAR(35) NOT NULL,
		temperature       DOUBLE NOT NULL,
		humidity          DOUBLE NOT NULL,
		pressure          DOUBLE NOT NULL,
		co2_concentration INTEGER NOT NULL
	)`
}

func (mysqlDialect) Insert() string {
	return `INSERT INTO measurements (
		timestamp,
		temperature,
		humidity,
		pressure,
		co2_concentration
	) VALUES (?, ?, ?, ?, ?)`
}
