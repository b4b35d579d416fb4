package app

import (
	"errors"
	"flag"
	"fmt"
	"strings"

	"github.com/jumpserver/mappingtree/common/logger"
	"github.com/jumpserver/mappingtree/server/services/taskrunner"
	"github.com/jumpserver/mappingtree/server/store"
)

const defaultSQLiteConnectionString = "mappingtree.sqlite3?_foreign_keys=1&parseTime=true"

// LogSafeFlags lists flag names whose values are safe to include in startup logs.
var LogSafeFlags = []string{
	"database_driver",
	"database_max_idle_connections",
	"database_max_open_connections",
	"redis_address",
	"redis_db",
	"task_runner_workers",
	"task_runner_poll_interval",
	"log_levels",
	"metrics_address",
}

type RedisConfig struct {
	Address  string
	Password string
	DB       int
}

type ServerConfig struct {
	DatabaseConfig store.DatabaseConfig
	RedisConfig    RedisConfig
	// UseMemoryLock selects the in-process lock implementation instead of Redis, for single-node
	// deployments and tests.
	UseMemoryLock bool
	LogLevels     logger.LogLevelConfig
	// MetricsAddress is the listen address for the Prometheus /metrics endpoint. Empty disables it.
	MetricsAddress string
}

func ConfigFromFlags() (*ServerConfig, error) {
	var (
		databaseDriverStr string
		logLevels         string
	)

	config := &ServerConfig{}

	flag.StringVar(&databaseDriverStr, "database_driver",
		string(store.Sqlite), "The database driver to use (sqlite3|postgres)")
	flag.StringVar((*string)(&config.DatabaseConfig.ConnectionString), "database_connection_string",
		defaultSQLiteConnectionString, "The connection string for the database")
	flag.IntVar(&config.DatabaseConfig.MaxIdleConnections, "database_max_idle_connections",
		store.DefaultDatabaseMaxIdleConnections, "The maximum number of idle database connections to use")
	flag.IntVar(&config.DatabaseConfig.MaxOpenConnections, "database_max_open_connections",
		store.DefaultDatabaseMaxOpenConnections, "The maximum number of open database connections to use")

	flag.StringVar(&config.RedisConfig.Address, "redis_address",
		"", "The address of the Redis instance backing the per-user rebuild lock. Leave empty to use an in-process lock instead.")
	flag.StringVar(&config.RedisConfig.Password, "redis_password",
		"", "The password for the Redis instance backing the rebuild lock.")
	flag.IntVar(&config.RedisConfig.DB, "redis_db",
		0, "The Redis logical database number to use for the rebuild lock.")

	flag.IntVar(&taskrunner.NrWorkers, "task_runner_workers",
		taskrunner.NrWorkers, "The number of goroutines draining the pending rebuild task queue concurrently.")

	flag.StringVar(&config.MetricsAddress, "metrics_address",
		"", "The listen address for the Prometheus /metrics endpoint, e.g. :9090. Leave empty to disable it.")

	flag.StringVar(&logLevels, "log_levels",
		"", fmt.Sprintf("A comma separated list of name=level pairs where name is the name of the logger and level is one of: %s", logger.ListLogLevels()))
	flag.Parse()

	config.DatabaseConfig.Driver = store.DBDriver(databaseDriverStr)
	if config.DatabaseConfig.Driver != store.Sqlite && config.DatabaseConfig.Driver != store.Postgres {
		return nil, errors.New("--database_driver must be one of sqlite3|postgres")
	}
	config.UseMemoryLock = strings.TrimSpace(config.RedisConfig.Address) == ""
	config.LogLevels = logger.LogLevelConfig(logLevels)

	return config, nil
}
