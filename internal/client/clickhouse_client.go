package client

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"

	"pengajuan-service/internal/config"
	"pengajuan-service/internal/util"
)

// ClickhouseClient holds the analytics connection used by the
// security event recorder.
type ClickhouseClient struct {
	Conn   driver.Conn
	config *config.ClickhouseConfig
}

func NewClickhouseClient(cfg *config.Config, logger *zap.Logger) (*ClickhouseClient, error) {
	chConfig := cfg.Clickhouse

	options := &clickhouse.Options{
		Addr: []string{chConfig.URL},
		Auth: clickhouse.Auth{
			Database: chConfig.Database,
			Username: chConfig.Username,
			Password: chConfig.Password,
		},
		DialTimeout:     10 * time.Second,
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	}

	conn, err := clickhouse.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open ClickHouse connection: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	util.Info("ClickHouse client initialized",
		zap.String("url", chConfig.URL),
		zap.String("database", chConfig.Database))

	return &ClickhouseClient{
		Conn:   conn,
		config: &chConfig,
	}, nil
}

func (c *ClickhouseClient) Exec(ctx context.Context, query string, args ...interface{}) error {
	return c.Conn.Exec(ctx, query, args...)
}

// PrepareBatch starts a batch insert for the given query.
func (c *ClickhouseClient) PrepareBatch(ctx context.Context, query string) (driver.Batch, error) {
	return c.Conn.PrepareBatch(ctx, query)
}

// BatchInsert appends rows to a prepared batch and sends it.
func (c *ClickhouseClient) BatchInsert(ctx context.Context, query string, rows [][]interface{}) error {
	batch, err := c.Conn.PrepareBatch(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	for _, row := range rows {
		if err := batch.Append(row...); err != nil {
			return fmt.Errorf("failed to append row to batch: %w", err)
		}
	}

	return batch.Send()
}

func (c *ClickhouseClient) HealthCheck(ctx context.Context) error {
	if err := c.Conn.Ping(ctx); err != nil {
		return fmt.Errorf("clickhouse ping failed: %w", err)
	}
	return nil
}

func (c *ClickhouseClient) Close() error {
	if c.Conn != nil {
		if err := c.Conn.Close(); err != nil {
			util.Error("failed to close ClickHouse connection", zap.Error(err))
			return err
		}
		util.Info("ClickHouse client closed")
	}
	return nil
}
