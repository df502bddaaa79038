package persistence

import (
	"database/sql"
	"errors"
	"os"

	"github.com/go-sql-driver/mysql"
)

const (
	DriverMysql  = "mysql"
	DriverSqlite = "sqlite3"
)

type DatabaseConfig struct {
	DriverType string
	DriverArgs string

	// MaxOpenConns limits the pool, zero keeps the driver default. In-memory sqlite needs one.
	MaxOpenConns int
}

// ParseDatabaseConfigFromEnv DB_DRIVER_TYPE=mysql DB_DRIVER_ARGS=root:root@(127.0.0.1:3306)/casework?charset=utf8mb4&parseTime=True&loc=Local
func ParseDatabaseConfigFromEnv() (*DatabaseConfig, error) {
	driverType := os.Getenv("DB_DRIVER_TYPE")
	if driverType == "" {
		driverType = DriverSqlite
	}
	driverArgs := os.Getenv("DB_DRIVER_ARGS")
	if driverArgs == "" {
		if driverType != DriverSqlite {
			return nil, errors.New("DB_DRIVER_ARGS is required for driver " + driverType)
		}
		driverArgs = "casework.db"
	}
	if driverType != DriverMysql && driverType != DriverSqlite {
		return nil, errors.New("unsupported database driver " + driverType)
	}
	return &DatabaseConfig{DriverType: driverType, DriverArgs: driverArgs}, nil
}

// PrepareMysqlDatabase creates the database named in dsn if it is missing.
func PrepareMysqlDatabase(dsn string) error {
	config, err := mysql.ParseDSN(dsn)
	if err != nil {
		return err
	}
	databaseName := config.DBName
	if databaseName == "" {
		return errors.New("database name is missing in dsn")
	}
	config.DBName = ""

	db, err := sql.Open(DriverMysql, config.FormatDSN())
	if err != nil {
		return err
	}
	defer db.Close()

	_, err = db.Exec("CREATE DATABASE IF NOT EXISTS `" + databaseName + "` DEFAULT CHARACTER SET utf8mb4")
	return err
}
