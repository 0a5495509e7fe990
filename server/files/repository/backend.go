package repository

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	cmnenv "s4/server/common/env"
	"s4/server/common/infra/db"
	commonlog "s4/server/common/log"
)

const (
	BackendPostgres = "postgres"
	BackendDynamoDB = "dynamodb"
	BackendMemory   = "memory"
)

type BackendConfig struct {
	Backend string

	PostgresDSN string

	Region         string
	DynamoTable    string
	DynamoEndpoint string
	// EnsureSchema runs migrations or creates the DynamoDB table at startup.
	EnsureSchema bool
}

// BackendConfigFromEnv reads METADATA_BACKEND and the settings of each backend.
func BackendConfigFromEnv(region string) BackendConfig {
	return BackendConfig{
		Backend:        cmnenv.String("METADATA_BACKEND", BackendPostgres),
		PostgresDSN:    cmnenv.String("POSTGRES_DSN", "postgres://s4:s4@localhost:5432/s4?sslmode=disable"),
		Region:         region,
		DynamoTable:    cmnenv.String("DYNAMODB_TABLE", "FileTable"),
		DynamoEndpoint: cmnenv.String("DYNAMODB_ENDPOINT", ""),
		EnsureSchema:   cmnenv.Bool("METADATA_ENSURE_SCHEMA", true),
	}
}

// Open connects the configured metadata backend. The returned close func is never nil.
func Open(ctx context.Context, cfg BackendConfig) (Store, func(), error) {
	switch cfg.Backend {
	case BackendPostgres, "":
		pool, err := db.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, func() {}, fmt.Errorf("connect postgres: %w", err)
		}
		if cfg.EnsureSchema {
			if err := db.Migrate(ctx, pool, Migrations); err != nil {
				pool.Close()
				return nil, func() {}, fmt.Errorf("migrate file_records: %w", err)
			}
		}
		commonlog.Infof("metadata store: postgres")
		return NewPostgres(pool), pool.Close, nil

	case BackendDynamoDB:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
		if err != nil {
			return nil, func() {}, fmt.Errorf("load aws config: %w", err)
		}
		client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
			if cfg.DynamoEndpoint != "" {
				o.BaseEndpoint = aws.String(cfg.DynamoEndpoint)
			}
		})
		if cfg.EnsureSchema {
			if err := EnsureDynamoTable(ctx, client, cfg.DynamoTable); err != nil {
				return nil, func() {}, fmt.Errorf("ensure dynamodb table %s: %w", cfg.DynamoTable, err)
			}
		}
		commonlog.Infof("metadata store: dynamodb table %s in %s", cfg.DynamoTable, cfg.Region)
		return NewDynamo(client, cfg.DynamoTable), func() {}, nil

	case BackendMemory:
		commonlog.Warnf("metadata store: in-memory, records are lost on restart and not shared between processes")
		return NewMemory(), func() {}, nil

	default:
		return nil, func() {}, fmt.Errorf("unknown metadata backend %q", cfg.Backend)
	}
}
