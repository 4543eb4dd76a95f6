package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	_ "github.com/jackc/pgx/v4/stdlib"
	"github.com/jmoiron/sqlx"

	"github.com/lumaline/payrecon/internal/app/entity"
	"github.com/lumaline/payrecon/internal/app/logger"
)

var schema = `
CREATE TABLE IF NOT EXISTS reconciliations(
	order_id		TEXT PRIMARY KEY,
	state			VARCHAR(30) NOT NULL,
	attempts		INTEGER NOT NULL DEFAULT 0,
	entity			TEXT NOT NULL DEFAULT '',
	reference		TEXT NOT NULL DEFAULT '',
	gateway_tx_id	TEXT NOT NULL DEFAULT '',
	amount			BIGINT NOT NULL DEFAULT 0,
	has_conf		BOOLEAN NOT NULL DEFAULT FALSE,
	effect_applied	BOOLEAN NOT NULL DEFAULT FALSE,
	order_json		TEXT NOT NULL DEFAULT '{}',
	updated_at		TIMESTAMP WITH TIME ZONE NOT NULL
);`

type recRow struct {
	OrderID       string    `db:"order_id"`
	State         string    `db:"state"`
	Attempts      int       `db:"attempts"`
	Entity        string    `db:"entity"`
	Reference     string    `db:"reference"`
	GatewayTxID   string    `db:"gateway_tx_id"`
	Amount        int64     `db:"amount"`
	HasConf       bool      `db:"has_conf"`
	EffectApplied bool      `db:"effect_applied"`
	OrderJSON     string    `db:"order_json"`
	UpdatedAt     time.Time `db:"updated_at"`
}

func (r recRow) record() entity.ReconciliationRecord {
	rec := entity.ReconciliationRecord{
		OrderID:       r.OrderID,
		State:         r.State,
		Attempts:      r.Attempts,
		EffectApplied: r.EffectApplied,
		UpdatedAt:     r.UpdatedAt,
	}
	if r.HasConf {
		rec.Confirmation = &entity.Confirmation{
			OrderID:     r.OrderID,
			Entity:      r.Entity,
			Reference:   r.Reference,
			GatewayTxID: r.GatewayTxID,
			Amount:      r.Amount,
		}
	}
	if r.OrderJSON != "" {
		if err := json.Unmarshal([]byte(r.OrderJSON), &rec.Order); err != nil {
			logger.Logger.Err(err).Str("orderID", r.OrderID).Msg("order snapshot decode")
		}
	}
	return rec
}

func rowFrom(rec entity.ReconciliationRecord) recRow {
	row := recRow{
		OrderID:       rec.OrderID,
		State:         rec.State,
		Attempts:      rec.Attempts,
		EffectApplied: rec.EffectApplied,
		UpdatedAt:     rec.UpdatedAt,
	}
	if rec.Confirmation != nil {
		row.HasConf = true
		row.Entity = rec.Confirmation.Entity
		row.Reference = rec.Confirmation.Reference
		row.GatewayTxID = rec.Confirmation.GatewayTxID
		row.Amount = rec.Confirmation.Amount
	}
	if buf, err := json.Marshal(rec.Order); err == nil {
		row.OrderJSON = string(buf)
	}
	return row
}

// RepoDB stores reconciliation records in Postgres. Per-key atomicity comes
// from SELECT .. FOR UPDATE inside a transaction.
type RepoDB struct {
	db *sqlx.DB
}

func NewRepoDB(databaseURI string) (*RepoDB, error) {
	db, err := sqlx.Connect("pgx", databaseURI)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	db.MustExec(schema)

	return &RepoDB{db: db}, nil
}

func (r *RepoDB) Upsert(ctx context.Context, orderID string, fn Mutator) (entity.ReconciliationRecord, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return entity.ReconciliationRecord{}, classify(err)
	}
	defer func(tx *sqlx.Tx) {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			logger.Logger.Err(err).Msg("rollback")
		}
	}(tx)

	var row recRow
	queryLock := `SELECT order_id, state, attempts, entity, reference, gateway_tx_id, amount, has_conf, effect_applied, order_json, updated_at
		FROM reconciliations WHERE order_id = ($1) FOR UPDATE`
	err = tx.GetContext(ctx, &row, queryLock, orderID)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return entity.ReconciliationRecord{}, classify(err)
		}
		row = recRow{OrderID: orderID, State: entity.StateReceived}
	}

	rec := row.record()
	if err := fn(&rec); err != nil {
		return entity.ReconciliationRecord{}, err
	}
	rec.OrderID = orderID
	rec.UpdatedAt = time.Now()

	queryUpsert := `INSERT INTO reconciliations (order_id, state, attempts, entity, reference, gateway_tx_id, amount, has_conf, effect_applied, order_json, updated_at)
		VALUES (:order_id, :state, :attempts, :entity, :reference, :gateway_tx_id, :amount, :has_conf, :effect_applied, :order_json, :updated_at)
		ON CONFLICT (order_id) DO UPDATE SET
			state = EXCLUDED.state, attempts = EXCLUDED.attempts,
			entity = EXCLUDED.entity, reference = EXCLUDED.reference,
			gateway_tx_id = EXCLUDED.gateway_tx_id, amount = EXCLUDED.amount,
			has_conf = EXCLUDED.has_conf, effect_applied = EXCLUDED.effect_applied,
			order_json = EXCLUDED.order_json, updated_at = EXCLUDED.updated_at`
	if _, err := tx.NamedExecContext(ctx, queryUpsert, rowFrom(rec)); err != nil {
		return entity.ReconciliationRecord{}, classify(err)
	}

	if err := tx.Commit(); err != nil {
		return entity.ReconciliationRecord{}, classify(err)
	}
	return rec, nil
}

func (r *RepoDB) Get(ctx context.Context, orderID string) (entity.ReconciliationRecord, error) {
	var row recRow
	queryGet := `SELECT order_id, state, attempts, entity, reference, gateway_tx_id, amount, has_conf, effect_applied, order_json, updated_at
		FROM reconciliations WHERE order_id = ($1)`
	err := r.db.GetContext(ctx, &row, queryGet, orderID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return entity.ReconciliationRecord{}, ErrNotFound
		}
		return entity.ReconciliationRecord{}, classify(err)
	}
	return row.record(), nil
}

func (r *RepoDB) Delete(ctx context.Context, orderID string) error {
	queryDelete := `DELETE FROM reconciliations WHERE order_id = ($1)`
	if _, err := r.db.ExecContext(ctx, queryDelete, orderID); err != nil {
		return classify(err)
	}
	return nil
}

func (r *RepoDB) Expire(ctx context.Context, horizon time.Duration) (int, error) {
	queryExpire := `DELETE FROM reconciliations
		WHERE state IN ($1, $2, $3) AND updated_at < ($4)`
	res, err := r.db.ExecContext(ctx, queryExpire,
		entity.StateEffectApplied, entity.StateAbandoned, entity.StateRejected,
		time.Now().Add(-horizon))
	if err != nil {
		return 0, classify(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, classify(err)
	}
	return int(n), nil
}

func (r *RepoDB) Close() {
	r.db.Close()
}

// classify maps connection-level Postgres failures onto ErrUnavailable so the
// engine can tell a retryable outage from a permanent fault.
func classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgerrcode.IsConnectionException(pgErr.Code) || pgerrcode.IsOperatorIntervention(pgErr.Code) {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return err
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
