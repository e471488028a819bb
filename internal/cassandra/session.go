// Package cassandra implements cql.Executor on a gocql session.
package cassandra

import (
	"fmt"
	"log/slog"

	"docquery/internal/config"
	"docquery/internal/cql"
	"docquery/internal/logging"

	"github.com/gocql/gocql"
)

// Executor runs statements on a gocql session.
type Executor struct {
	session *gocql.Session
	logger  *slog.Logger
}

var _ cql.Executor = (*Executor)(nil)

// ClusterConfig translates cfg into a gocql cluster configuration.
func ClusterConfig(cfg config.CassandraConfig) (*gocql.ClusterConfig, error) {
	cons, err := gocql.ParseConsistencyWrapper(cfg.Consistency)
	if err != nil {
		return nil, fmt.Errorf("consistency %q: %w", cfg.Consistency, err)
	}
	cluster := gocql.NewCluster(cfg.Hosts...)
	cluster.Port = cfg.Port
	cluster.Keyspace = cfg.Keyspace
	cluster.Consistency = cons
	cluster.SerialConsistency = gocql.LocalSerial
	if cfg.Timeout > 0 {
		cluster.Timeout = cfg.Timeout
	}
	if cfg.Username != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: cfg.Username,
			Password: cfg.Password,
		}
	}
	if cfg.LocalDC != "" {
		cluster.PoolConfig.HostSelectionPolicy = gocql.TokenAwareHostPolicy(gocql.DCAwareRoundRobinPolicy(cfg.LocalDC))
	}
	return cluster, nil
}

// Open connects to the cluster described by cfg.
func Open(cfg config.CassandraConfig, logger *slog.Logger) (*Executor, error) {
	cluster, err := ClusterConfig(cfg)
	if err != nil {
		return nil, err
	}
	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("connect to %v: %w", cfg.Hosts, err)
	}
	logger = logging.Default(logger).With("component", "cassandra")
	logger.Info("connected", "hosts", cfg.Hosts, "keyspace", cfg.Keyspace)
	return &Executor{session: session, logger: logger}, nil
}

// Close closes the session.
func (e *Executor) Close() {
	e.session.Close()
}
