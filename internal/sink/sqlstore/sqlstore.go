// Package sqlstore loads tables into a relational database through gorm.
package sqlstore

import (
	"context"
	"errors"
	"fmt"

	ierr "github.com/smallbiznis/mrrlab/internal/errors"
	"github.com/smallbiznis/mrrlab/internal/sink"
	"github.com/smallbiznis/mrrlab/pkg/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrMissingModel = errors.New("table has no row model")

const defaultBatchSize = 500

type Sink struct {
	db        *gorm.DB
	batchSize int
	log       *zap.Logger
}

var _ sink.Sink = (*Sink)(nil)

func New(conn *gorm.DB, batchSize int, log *zap.Logger) *Sink {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Sink{db: conn, batchSize: batchSize, log: log.Named("sink.sql")}
}

// Ensure migrates every table from its row model.
func (s *Sink) Ensure(ctx context.Context, tables []sink.Table) error {
	for _, t := range tables {
		if t.Model == nil {
			return fmt.Errorf("%w: %s", ErrMissingModel, t.Name)
		}
		if err := s.db.WithContext(ctx).Table(t.Name).AutoMigrate(t.Model); err != nil {
			return fmt.Errorf("migrate %s: %w", t.Name, err)
		}
		s.log.Debug("sink.table.ensured", zap.String("table", t.Name))
	}
	return nil
}

// Replace deletes every row and inserts the batch in one transaction, so a failed load keeps
// the previous contents.
func (s *Sink) Replace(ctx context.Context, t sink.Table, batch sink.Batch) (int, error) {
	if t.Model == nil {
		return 0, fmt.Errorf("%w: %s", ErrMissingModel, t.Name)
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Table(t.Name).Where("1 = 1").Delete(t.Model).Error; err != nil {
			return fmt.Errorf("clear %s: %w", t.Name, err)
		}
		if batch.Len() == 0 {
			return nil
		}
		if err := tx.Table(t.Name).CreateInBatches(batch.Rows(), s.batchSize).Error; err != nil {
			if db.IsDuplicateKeyErr(err) {
				return ierr.Mark(fmt.Errorf("insert %s: %w", t.Name, err), ierr.ErrValidation)
			}
			return fmt.Errorf("insert %s: %w", t.Name, err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.log.Debug("sink.table.replaced", zap.String("table", t.Name), zap.Int("rows", batch.Len()))
	return batch.Len(), nil
}

func (s *Sink) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
