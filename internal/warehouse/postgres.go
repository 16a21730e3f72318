package warehouse

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

type PostgresStore struct {
	db *gorm.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("warehouse: open postgres: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Upsert(ctx context.Context, table string, keyColumns []string, values map[string]any) error {
	cols := make([]clause.Column, 0, len(keyColumns))
	for _, c := range keyColumns {
		cols = append(cols, clause.Column{Name: c})
	}
	create := s.db.WithContext(ctx).
		Table(table).
		Clauses(clause.OnConflict{Columns: cols, DoNothing: true}).
		Create(values)
	if create.Error != nil {
		// A racing insert on another unique index is still the idempotent
		// no-op the caller asked for.
		if isUniqueViolation(create.Error) {
			return nil
		}
		return fmt.Errorf("warehouse: upsert %s: %w", table, create.Error)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, table string, where map[string]any, values map[string]any) (int64, error) {
	res := s.db.WithContext(ctx).Table(table).Where(where).Updates(values)
	if res.Error != nil {
		return 0, fmt.Errorf("warehouse: update %s: %w", table, res.Error)
	}
	return res.RowsAffected, nil
}

// DailyOrderCounts returns order counts per day over the lookback window,
// oldest first. Days without orders are absent, not zero.
func (s *PostgresStore) DailyOrderCounts(ctx context.Context, days int) ([]float64, error) {
	return s.dailyOrderSeries(ctx, "COUNT(*)", days)
}

// DailyOrderRevenue returns summed order totals per day, oldest first.
func (s *PostgresStore) DailyOrderRevenue(ctx context.Context, days int) ([]float64, error) {
	return s.dailyOrderSeries(ctx, "COALESCE(SUM(total_amount), 0)", days)
}

func (s *PostgresStore) dailyOrderSeries(ctx context.Context, agg string, days int) ([]float64, error) {
	type row struct {
		Day   time.Time
		Value float64
	}
	var rows []row
	q := fmt.Sprintf(`
		SELECT date_trunc('day', order_timestamp) AS day, %s AS value
		FROM fact_orders
		WHERE order_timestamp >= now() - make_interval(days => ?)
		GROUP BY 1
		ORDER BY 1`, agg)
	if err := s.db.WithContext(ctx).Raw(q, days).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("warehouse: daily order series: %w", err)
	}
	out := make([]float64, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Value)
	}
	return out, nil
}

func (s *PostgresStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
