package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/metacoder87/investment-matrix/internal/domain/model"
)

// insertChunk bounds rows per INSERT statement to stay under the driver
// placeholder limits.
const insertChunk = 100

// InsertTrades writes all rows in one transaction; either every row is
// committed or none is.
func (s *Store) InsertTrades(ctx context.Context, trades []model.PersistedTrade) (err error) {
	if len(trades) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin insert: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				s.log.Error("insert rollback failed", "error", rbErr)
			}
		}
	}()

	for start := 0; start < len(trades); start += insertChunk {
		chunk := trades[start:min(start+insertChunk, len(trades))]
		query, qargs := buildInsert(chunk)
		if _, err = tx.ExecContext(ctx, query, qargs...); err != nil {
			return fmt.Errorf("failed to insert %d trades: %w", len(chunk), err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit %d trades: %w", len(trades), err)
	}
	return nil
}

func buildInsert(trades []model.PersistedTrade) (string, []any) {
	var b strings.Builder
	b.WriteString(`INSERT INTO market_trades (exchange, symbol, timestamp, receipt_timestamp, price, amount, side) VALUES `)

	a := make(args, 0, len(trades)*7)
	for i, t := range trades {
		if i > 0 {
			b.WriteString(", ")
		}
		var recv any
		if t.ReceiptTime != nil {
			recv = t.ReceiptTime.UTC()
		}
		var side any
		if t.Side != nil {
			side = *t.Side
		}
		fmt.Fprintf(&b, "(%s, %s, %s, %s, %s, %s, %s)",
			a.add(t.Exchange),
			a.add(t.Symbol),
			a.add(t.EventTime.UTC()),
			a.add(recv),
			a.add(t.Price),
			a.add(t.Amount),
			a.add(side),
		)
	}
	return b.String(), a
}

// RecentTrades returns the newest q.Limit trades in ascending time order.
func (s *Store) RecentTrades(ctx context.Context, q model.TradeQuery) ([]model.PersistedTrade, error) {
	var a args
	where := []string{"symbol = " + a.add(q.Symbol)}
	if q.Exchange != "" {
		where = append(where, "exchange = "+a.add(q.Exchange))
	}
	if !q.Since.IsZero() {
		where = append(where, "timestamp >= "+a.add(q.Since.UTC()))
	}
	if !q.Until.IsZero() {
		where = append(where, "timestamp <= "+a.add(q.Until.UTC()))
	}

	query := `SELECT id, exchange, symbol, timestamp, receipt_timestamp, price, amount, side
		FROM market_trades WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY timestamp DESC, id DESC LIMIT ` + a.add(q.Limit)

	rows, err := s.db.QueryContext(ctx, query, a...)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	var out []model.PersistedTrade
	for rows.Next() {
		var (
			t     model.PersistedTrade
			recv  sql.NullTime
			side  sql.NullString
			price decimal.Decimal
			amt   decimal.Decimal
		)
		if err := rows.Scan(&t.ID, &t.Exchange, &t.Symbol, &t.EventTime, &recv, &price, &amt, &side); err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		t.EventTime = t.EventTime.UTC()
		t.Price, t.Amount = price, amt
		if recv.Valid {
			r := recv.Time.UTC()
			t.ReceiptTime = &r
		}
		if side.Valid && side.String != "" {
			sd := side.String
			t.Side = &sd
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read trades: %w", err)
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *Store) Coverage(ctx context.Context, exchange, symbol string) (model.Coverage, error) {
	cov := model.Coverage{Exchange: exchange, Symbol: symbol}

	const countQuery = `SELECT COUNT(*) FROM market_trades WHERE exchange = $1 AND symbol = $2`
	if err := s.db.QueryRowContext(ctx, countQuery, exchange, symbol).Scan(&cov.Trades); err != nil {
		return cov, fmt.Errorf("failed to count trades: %w", err)
	}
	if cov.Trades == 0 {
		return cov, nil
	}

	first, err := s.edgeTimestamp(ctx, exchange, symbol, "ASC")
	if err != nil {
		return cov, err
	}
	last, err := s.edgeTimestamp(ctx, exchange, symbol, "DESC")
	if err != nil {
		return cov, err
	}
	cov.FirstTimestamp, cov.LastTimestamp = &first, &last
	return cov, nil
}

// edgeTimestamp reads the column itself rather than MIN/MAX so SQLite keeps
// the declared type and scans into time.Time.
func (s *Store) edgeTimestamp(ctx context.Context, exchange, symbol, order string) (time.Time, error) {
	query := `SELECT timestamp FROM market_trades WHERE exchange = $1 AND symbol = $2 ORDER BY timestamp ` + order + ` LIMIT 1`
	var ts time.Time
	if err := s.db.QueryRowContext(ctx, query, exchange, symbol).Scan(&ts); err != nil {
		return time.Time{}, fmt.Errorf("failed to read coverage bounds: %w", err)
	}
	return ts.UTC(), nil
}
