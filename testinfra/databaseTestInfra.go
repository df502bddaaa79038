package testinfra

import (
	"casework/persistence"
	"context"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

type TestDatabase struct {
	TestDatabaseName string
	DS               *persistence.DataSourceManager
}

// StartTestDatabase starts an in-memory sqlite database, or a dedicated mysql database when
// TEST_MYSQL_SERVICE=root:root@(127.0.0.1:3306) is set.
func StartTestDatabase(baseName string) *TestDatabase {
	mysqlSvc := os.Getenv("TEST_MYSQL_SERVICE")
	if mysqlSvc != "" {
		return StartMysqlTestDatabase(baseName)
	}

	dbConfig := &persistence.DatabaseConfig{DriverType: persistence.DriverSqlite, DriverArgs: ":memory:"}
	ds := &persistence.DataSourceManager{DatabaseConfig: dbConfig}
	if err := ds.Start(); err != nil {
		log.Fatalf("database connection failed %v\n", err)
	}
	return &TestDatabase{TestDatabaseName: ":memory:", DS: ds}
}

// StartConcurrentTestDatabase returns a database served by up to conns connections at once: the
// mysql test database when TEST_MYSQL_SERVICE is set, otherwise a sqlite file in dir opened with
// the driver params, e.g. "_busy_timeout=10000&_txlock=immediate".
func StartConcurrentTestDatabase(baseName, dir string, conns int, params string) *TestDatabase {
	if os.Getenv("TEST_MYSQL_SERVICE") != "" {
		db := StartMysqlTestDatabase(baseName)
		db.DS.GormDB(context.Background()).DB().SetMaxOpenConns(conns)
		return db
	}

	file := filepath.Join(dir, baseName+".db")
	dbConfig := &persistence.DatabaseConfig{DriverType: persistence.DriverSqlite, DriverArgs: file + "?" + params,
		MaxOpenConns: conns}
	ds := &persistence.DataSourceManager{DatabaseConfig: dbConfig}
	if err := ds.Start(); err != nil {
		log.Fatalf("database connection failed %v\n", err)
	}
	return &TestDatabase{TestDatabaseName: file, DS: ds}
}

// IsMysql reports whether the test databases run on mysql.
func IsMysql() bool {
	return os.Getenv("TEST_MYSQL_SERVICE") != ""
}

// StartMysqlTestDatabase TEST_MYSQL_SERVICE=root:root@(127.0.0.1:3306)
func StartMysqlTestDatabase(baseName string) *TestDatabase {
	mysqlSvc := os.Getenv("TEST_MYSQL_SERVICE")
	if mysqlSvc == "" {
		mysqlSvc = "root:root@(127.0.0.1:3306)"
	}
	databaseName := baseName + "_test_" + strings.ReplaceAll(uuid.New().String(), "-", "")

	dbConfig := &persistence.DatabaseConfig{
		DriverType: persistence.DriverMysql,
		DriverArgs: mysqlSvc + "/" + databaseName + "?charset=utf8mb4&parseTime=True&loc=Local&timeout=5s",
	}

	// create database (no conflict)
	if err := persistence.PrepareMysqlDatabase(dbConfig.DriverArgs); err != nil {
		log.Fatalf("failed to prepare database %v\n", err)
	}

	ds := &persistence.DataSourceManager{DatabaseConfig: dbConfig}
	// connect
	if err := ds.Start(); err != nil {
		defer ds.Stop()
		log.Fatalf("database connection failed %v\n", err)
	}

	return &TestDatabase{TestDatabaseName: databaseName, DS: ds}
}

func StopTestDatabase(testDatabase *TestDatabase) {
	if testDatabase == nil || testDatabase.DS == nil {
		return
	}
	if testDatabase.DS.DatabaseConfig.DriverType == persistence.DriverMysql {
		if db := testDatabase.DS.GormDB(context.Background()); db != nil {
			if err := db.Exec("DROP DATABASE " + testDatabase.TestDatabaseName).Error; err != nil {
				log.Println("failed to drop test database: " + testDatabase.TestDatabaseName)
			} else {
				log.Println("test database " + testDatabase.TestDatabaseName + " dropped")
			}
		}
	}
	// close connection
	testDatabase.DS.Stop()
}
