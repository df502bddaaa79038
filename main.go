package main

import (
	"casework/client/es"
	"casework/common"
	"casework/domain/flow"
	"casework/domain/process"
	"casework/domain/sequence"
	"casework/event"
	"casework/indices"
	"casework/infra/tracing"
	"casework/persistence"
	"casework/servehttp"
	"casework/session"
	"context"
	"os"

	"github.com/sirupsen/logrus"
)

func main() {
	common.ConfigureLogging()
	logrus.Info("service start")

	closer, err := tracing.InitGlobalTracer(common.GetServiceName())
	if err != nil {
		logrus.Fatalf("tracer initialization failed %v", err)
	}
	defer closer.Close()

	dbConfig, err := persistence.ParseDatabaseConfigFromEnv()
	if err != nil {
		logrus.Fatalf("parse database config failed %v", err)
	}

	// create database (no conflict)
	if dbConfig.DriverType == persistence.DriverMysql {
		if err := persistence.PrepareMysqlDatabase(dbConfig.DriverArgs); err != nil {
			logrus.Fatalf("failed to prepare database %v", err)
		}
	}

	ds := &persistence.DataSourceManager{DatabaseConfig: dbConfig}
	if err := ds.Start(); err != nil {
		logrus.Fatalf("database connection failed %v", err)
	}
	defer ds.Stop()

	err = ds.GormDB(context.Background()).AutoMigrate(
		&sequence.Sequence{}, &sequence.CaseNumber{},
		&flow.Template{}, &flow.StepDefinition{}, &flow.StepTransition{},
		&process.WorkflowInstance{}, &process.StepInstance{}, &process.Comment{},
		&event.EventRecord{}).Error
	if err != nil {
		logrus.Fatalf("database migration failed %v", err)
	}

	handlers := event.NewHandlerTable()
	if err := handlers.Register("log", event.LoggingHandler); err != nil {
		logrus.Fatal(err)
	}

	catalog := sequence.DefaultPrefixCatalog()
	numbers := sequence.NewManager(ds, catalog)
	registry := flow.NewRegistry(ds, func(code string) bool {
		_, found := catalog.Lookup(code)
		return found
	}, handlers)
	engine := process.NewEngine(ds, registry, numbers, handlers)

	if os.Getenv("SEED_TEMPLATES") == "true" {
		creations, err := flow.LoadCatalog()
		if err != nil {
			logrus.Fatalf("load template catalog failed %v", err)
		}
		seeded, err := registry.SeedTemplates(creations, session.Background("seeder", session.RoleAdmin))
		if err != nil {
			logrus.Fatalf("seed templates failed %v", err)
		}
		logrus.Infof("%d templates seeded", seeded)
	}

	httpEngine := servehttp.NewEngine(common.GetServiceName())
	identity := session.GatewayIdentityFilter()

	client, err := es.CreateClientFromEnv()
	if err != nil {
		logrus.Fatalf("elasticsearch client creation failed %v", err)
	}
	if client != nil {
		synchronizer := indices.NewSynchronizer(engine)
		if err := handlers.Register(indices.InstanceIndexEventHandlerName, synchronizer.HandleEvent); err != nil {
			logrus.Fatal(err)
		}
		crontab, err := synchronizer.StartCron()
		if err != nil {
			logrus.Fatalf("index schedule failed %v", err)
		}
		defer crontab.Stop()
		indices.RegisterIndicesRestAPI(httpEngine, synchronizer, identity)
	}

	flow.RegisterTemplatesRestAPI(httpEngine, registry, identity)
	process.RegisterInstancesRestAPI(httpEngine, engine, identity)
	sequence.RegisterCaseNumbersRestAPI(httpEngine, numbers, identity)

	servehttp.StartHTTPServer(httpEngine)
}
