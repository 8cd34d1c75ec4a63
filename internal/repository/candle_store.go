package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"Confluence/internal/domain/models"
	domrepo "Confluence/internal/domain/repository"
	pkgch "Confluence/pkg/clickhouse"
	applogger "Confluence/pkg/logger"
)

// CHCandleStore serves OHLCV history from a 1m candle table in ClickHouse,
// rolling it up to coarser timeframes at query time.
type CHCandleStore struct {
	db    *sql.DB
	table string
	l     *applogger.Logger
}

func NewCHCandleStore(ch *pkgch.Client, table string, l *applogger.Logger) *CHCandleStore {
	if l == nil {
		l = applogger.Nop()
	}
	return &CHCandleStore{db: ch.DB(), table: table, l: l}
}

func (s *CHCandleStore) GetLatestNCandles(ctx context.Context, symbol string, n int, tf domrepo.Timeframe) ([]models.Candle, error) {
	start := time.Now()
	q, err := latestCandlesQuery(s.table, tf)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, q, symbol, n)
	if err != nil {
		s.l.Error("clickhouse latest_candles query error",
			applogger.String("table", s.table),
			applogger.String("symbol", symbol),
			applogger.String("tf", string(tf)),
			applogger.Error(err),
		)
		return nil, fmt.Errorf("get latest candles: %w", err)
	}
	defer rows.Close()

	out := make([]models.Candle, 0, n)
	for rows.Next() {
		var c models.Candle
		if err := rows.Scan(&c.Bucket, &c.Symbol, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("scan candle: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	reverseCandles(out)

	s.l.Debug("clickhouse latest_candles ok",
		applogger.String("symbol", symbol),
		applogger.String("tf", string(tf)),
		applogger.Int("rows", len(out)),
		applogger.Duration("duration", time.Since(start)),
	)
	return out, nil
}

// latestCandlesQuery selects the newest n buckets, newest first.
func latestCandlesQuery(table string, tf domrepo.Timeframe) (string, error) {
	if !domrepo.IsValidTimeframe(tf) {
		return "", fmt.Errorf("unsupported timeframe: %s", tf)
	}
	const qtpl = `
        SELECT toStartOfInterval(bucket, INTERVAL %d SECOND) AS b, symbol,
               argMin(open, bucket), max(high), min(low), argMax(close, bucket), sum(vol)
        FROM %s
        WHERE symbol = ?
        GROUP BY b, symbol
        ORDER BY b DESC
        LIMIT ?
    `
	return fmt.Sprintf(qtpl, int(tf.Duration().Seconds()), table), nil
}

func reverseCandles(cs []models.Candle) {
	for i, j := 0, len(cs)-1; i < j; i, j = i+1, j-1 {
		cs[i], cs[j] = cs[j], cs[i]
	}
}

var _ domrepo.CandleStore = (*CHCandleStore)(nil)
