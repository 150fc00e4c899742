// Package clickhouse loads tables into ClickHouse MergeTree tables partitioned by month.
package clickhouse

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"time"

	clickhouse_go "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/samber/lo"
	"github.com/smallbiznis/mrrlab/internal/config"
	"github.com/smallbiznis/mrrlab/internal/sink"
	"go.uber.org/zap"
)

var ErrInvalidConfig = errors.New("invalid clickhouse sink config")

const defaultBatchSize = 500

type Sink struct {
	conn      driver.Conn
	database  string
	batchSize int
	log       *zap.Logger
}

var _ sink.Sink = (*Sink)(nil)

// ClientOptions maps the ClickHouse settings onto driver options.
func ClientOptions(cfg config.ClickHouseConfig) *clickhouse_go.Options {
	options := &clickhouse_go.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse_go.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		ConnOpenStrategy: clickhouse_go.ConnOpenInOrder,
		DialTimeout:      10 * time.Second,
	}
	if cfg.Secure {
		options.TLS = &tls.Config{}
	}
	return options
}

// Open connects and pings the server.
func Open(ctx context.Context, cfg config.ClickHouseConfig, batchSize int, log *zap.Logger) (*Sink, error) {
	if strings.TrimSpace(cfg.Addr) == "" || strings.TrimSpace(cfg.Database) == "" {
		return nil, ErrInvalidConfig
	}
	conn, err := clickhouse_go.Open(ClientOptions(cfg))
	if err != nil {
		return nil, fmt.Errorf("init clickhouse client: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping clickhouse %s: %w", cfg.Addr, err)
	}
	return New(conn, cfg.Database, batchSize, log), nil
}

func New(conn driver.Conn, database string, batchSize int, log *zap.Logger) *Sink {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Sink{
		conn:      conn,
		database:  database,
		batchSize: batchSize,
		log:       log.Named("sink.clickhouse"),
	}
}

func (s *Sink) Ensure(ctx context.Context, tables []sink.Table) error {
	if err := s.conn.Exec(ctx, fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", quote(s.database))); err != nil {
		return fmt.Errorf("create database %s: %w", s.database, err)
	}
	for _, t := range tables {
		if err := s.conn.Exec(ctx, CreateTableDDL(s.database, t)); err != nil {
			return fmt.Errorf("create table %s: %w", t.Name, err)
		}
		s.log.Debug("sink.table.ensured", zap.String("table", t.Name))
	}
	return nil
}

// Replace truncates the table and appends the batch in chunks of batchSize.
func (s *Sink) Replace(ctx context.Context, t sink.Table, batch sink.Batch) (int, error) {
	target := qualified(s.database, t.Name)
	if err := s.conn.Exec(ctx, "TRUNCATE TABLE IF EXISTS "+target); err != nil {
		return 0, fmt.Errorf("truncate %s: %w", t.Name, err)
	}

	insert := InsertStatement(s.database, t)
	written := 0
	for _, chunk := range lo.Chunk(batch.Items(), s.batchSize) {
		b, err := s.conn.PrepareBatch(ctx, insert)
		if err != nil {
			return written, fmt.Errorf("prepare batch for %s: %w", t.Name, err)
		}
		for _, row := range chunk {
			if err := b.AppendStruct(row); err != nil {
				_ = b.Abort()
				return written, fmt.Errorf("append row to %s: %w", t.Name, err)
			}
		}
		if err := b.Send(); err != nil {
			return written, fmt.Errorf("send batch to %s: %w", t.Name, err)
		}
		written += len(chunk)
	}
	s.log.Debug("sink.table.replaced", zap.String("table", t.Name), zap.Int("rows", written))
	return written, nil
}

func (s *Sink) Close() error {
	return s.conn.Close()
}

// CreateTableDDL renders a MergeTree table ordered by the sort key and partitioned by month.
func CreateTableDDL(database string, t sink.Table) string {
	columns := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		columns[i] = fmt.Sprintf("    %s %s", quote(c.Name), columnType(c))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n%s\n) ENGINE = MergeTree", qualified(database, t.Name), strings.Join(columns, ",\n"))
	if t.Partition != "" {
		fmt.Fprintf(&b, "\nPARTITION BY toYYYYMM(%s)", quote(t.Partition))
	}
	order := lo.Map(t.SortKey(), func(name string, _ int) string { return quote(name) })
	if len(order) == 0 {
		b.WriteString("\nORDER BY tuple()")
	} else {
		fmt.Fprintf(&b, "\nORDER BY (%s)", strings.Join(order, ", "))
	}
	return b.String()
}

func InsertStatement(database string, t sink.Table) string {
	columns := lo.Map(t.ColumnNames(), func(name string, _ int) string { return quote(name) })
	return fmt.Sprintf("INSERT INTO %s (%s)", qualified(database, t.Name), strings.Join(columns, ", "))
}

func columnType(c sink.Column) string {
	var base string
	switch c.Type {
	case sink.TypeInt64:
		base = "Int64"
	case sink.TypeFloat64:
		base = "Float64"
	case sink.TypeBool:
		base = "Bool"
	case sink.TypeTimestamp:
		base = "DateTime64(3, 'UTC')"
	case sink.TypeDate:
		base = "Date"
	default:
		base = "String"
	}
	if c.Nullable {
		return "Nullable(" + base + ")"
	}
	return base
}

func qualified(database, table string) string {
	if database == "" {
		return quote(table)
	}
	return quote(database) + "." + quote(table)
}

func quote(ident string) string {
	return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
}
