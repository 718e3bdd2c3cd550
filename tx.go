package fkorm

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/syssam/fkorm/dialect"
	"github.com/syssam/fkorm/dialect/sql"
)

// Tx is a transaction holding one connection until Commit or Rollback.
type Tx struct {
	id     uuid.UUID
	tx     dialect.Tx
	client *Client
	ctx    context.Context
	done   atomic.Bool
}

// BeginTx starts a transaction. Operations of Tx.Client run inside it.
// It returns ErrTxStarted when c is already bound to a transaction.
func (c *Client) BeginTx(ctx context.Context) (*Tx, error) {
	if c.inTx() {
		return nil, ErrTxStarted
	}
	tx, err := c.driver.Tx(ctx)
	if err != nil {
		return nil, fmt.Errorf("fkorm: starting a transaction: %w", err)
	}
	t := &Tx{id: uuid.New(), tx: tx, ctx: ctx}
	cfg := c.config
	cfg.driver = &txDriver{drv: c.driver, tx: tx}
	// A transaction owns a single connection.
	cfg.limit = 1
	t.client = &Client{config: cfg, schema: c.schema}
	c.log.Trace(ctx, "transaction started", "tx", t.id.String())
	return t, nil
}

// ID returns the transaction identifier used in log records.
func (t *Tx) ID() uuid.UUID {
	return t.id
}

// Client returns a client bound to the transaction.
func (t *Tx) Client() *Client {
	return t.client
}

// Commit commits the transaction. A commit failure is returned without
// rolling back. Calling Commit or Rollback again logs a warning and
// returns nil.
func (t *Tx) Commit() error {
	if !t.done.CompareAndSwap(false, true) {
		t.client.log.Warn("transaction already finished", "tx", t.id.String(), "op", "commit")
		return nil
	}
	if err := t.tx.Commit(); err != nil {
		// Still open for Rollback.
		t.done.Store(false)
		return fmt.Errorf("fkorm: committing transaction %s: %w", t.id, err)
	}
	t.client.log.Trace(t.ctx, "transaction committed", "tx", t.id.String())
	return nil
}

// Rollback rolls back the transaction.
func (t *Tx) Rollback() error {
	if !t.done.CompareAndSwap(false, true) {
		t.client.log.Warn("transaction already finished", "tx", t.id.String(), "op", "rollback")
		return nil
	}
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("fkorm: rolling back transaction %s: %w", t.id, err)
	}
	t.client.log.Trace(t.ctx, "transaction rolled back", "tx", t.id.String())
	return nil
}

// WithTx runs fn with a client bound to a transaction, committing when fn
// succeeds and rolling back when it fails. When c is already bound to a
// transaction fn runs within it and the caller keeps control of the outcome.
func (c *Client) WithTx(ctx context.Context, fn func(*Client) error) error {
	if c.inTx() {
		return fn(c)
	}
	tx, err := c.BeginTx(ctx)
	if err != nil {
		return err
	}
	if err := fn(tx.Client()); err != nil {
		if rerr := tx.Rollback(); rerr != nil {
			return &RollbackError{Err: err, Rollback: rerr}
		}
		return err
	}
	return tx.Commit()
}

// inTx reports whether c is bound to a transaction.
func (c *Client) inTx() bool {
	drv := c.driver
	if d, ok := drv.(*sql.DebugDriver); ok {
		drv = d.Driver
	}
	_, ok := drv.(*txDriver)
	return ok
}

// txDriver is the driver of a transaction-bound client.
type txDriver struct {
	drv dialect.Driver
	tx  dialect.Tx
}

// Exec calls tx.Exec.
func (d *txDriver) Exec(ctx context.Context, query string, args, v any) error {
	return d.tx.Exec(ctx, query, args, v)
}

// Query calls tx.Query.
func (d *txDriver) Query(ctx context.Context, query string, args, v any) error {
	return d.tx.Query(ctx, query, args, v)
}

// Tx returns ErrTxStarted. Transactions do not nest.
func (*txDriver) Tx(context.Context) (dialect.Tx, error) {
	return nil, ErrTxStarted
}

// Close is a nop. The connection is released by Commit or Rollback.
func (*txDriver) Close() error { return nil }

// Dialect returns the dialect of the underlying driver.
func (d *txDriver) Dialect() string { return d.drv.Dialect() }

var _ dialect.Driver = (*txDriver)(nil)
