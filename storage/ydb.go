package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ydb-platform/ydb-go-sdk/v3"
	yc "github.com/ydb-platform/ydb-go-yc"
)

// YDBConfig selects the database and how to authenticate against it. With
// neither credential option set, credentials come from the DSN or the
// environment.
type YDBConfig struct {
	DSN                   string `yaml:"dsn"`
	ServiceAccountKeyFile string `yaml:"service_account_key_file"`
	MetadataCredentials   bool   `yaml:"metadata_credentials"`
}

var ydbDialect = sqlDialect{
	upsert: `UPSERT INTO sessions (key, value, expires_at) VALUES (?, ?, ?)`,
}

// YDBStore keeps sessions in a YDB table. The table is created from
// schema/ydb/schema.yql ahead of time.
type YDBStore struct {
	sqlStore
	driver *ydb.Driver
}

func NewYDBStore(ctx context.Context, config YDBConfig) (*YDBStore, error) {
	var opts []ydb.Option
	switch {
	case config.ServiceAccountKeyFile != "":
		opts = append(opts, yc.WithInternalCA(), yc.WithServiceAccountKeyFileCredentials(config.ServiceAccountKeyFile))
	case config.MetadataCredentials:
		opts = append(opts, yc.WithInternalCA(), yc.WithMetadataCredentials())
	}

	driver, err := ydb.Open(ctx, config.DSN, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ydb: %w", err)
	}

	connector, err := ydb.Connector(driver,
		ydb.WithAutoDeclare(),
		ydb.WithPositionalArgs(),
		ydb.WithTablePathPrefix(driver.Name()),
	)
	if err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("failed to create ydb connector: %w", err)
	}

	db := sql.OpenDB(connector)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		driver.Close(ctx)
		return nil, fmt.Errorf("failed to ping ydb: %w", err)
	}

	return &YDBStore{
		sqlStore: sqlStore{db: db, dialect: ydbDialect, now: time.Now},
		driver:   driver,
	}, nil
}

func (s *YDBStore) Close() error {
	dbErr := s.db.Close()
	if err := s.driver.Close(context.Background()); err != nil {
		return err
	}
	return dbErr
}
