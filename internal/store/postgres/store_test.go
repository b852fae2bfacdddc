package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"contractgen/internal/store"
	"contractgen/pkg/contractapi"
)

// stubConn emulates the state table: one payload per bucket.
type stubConn struct {
	mu         sync.Mutex
	rows       map[string][]byte
	order      []string
	execs      []string
	failPing   bool
	failCommit bool
}

type stubDriver struct{ conn *stubConn }

func (d stubDriver) Open(string) (driver.Conn, error) { return d.conn, nil }

func (c *stubConn) Prepare(string) (driver.Stmt, error) { return nil, errors.New("not implemented") }
func (c *stubConn) Close() error                        { return nil }
func (c *stubConn) Begin() (driver.Tx, error)           { return stubTx{c}, nil }

func (c *stubConn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	return stubTx{c}, nil
}

func (c *stubConn) Ping(context.Context) error {
	if c.failPing {
		return errors.New("connection refused")
	}
	return nil
}

func (c *stubConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.execs = append(c.execs, strings.Fields(query)[0])
	if strings.HasPrefix(query, "INSERT INTO contract_state") {
		bucket, _ := args[0].Value.(string)
		payload, _ := args[1].Value.([]byte)
		if _, ok := c.rows[bucket]; !ok {
			c.order = append(c.order, bucket)
		}
		c.rows[bucket] = payload
	}
	return driver.RowsAffected(1), nil
}

func (c *stubConn) QueryContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Rows, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !strings.HasPrefix(query, "SELECT bucket, payload FROM contract_state") {
		return nil, fmt.Errorf("unexpected query %q", query)
	}
	out := &stubRows{}
	for _, b := range c.order {
		out.rows = append(out.rows, []driver.Value{b, c.rows[b]})
	}
	return out, nil
}

type stubTx struct{ conn *stubConn }

func (t stubTx) Commit() error {
	if t.conn.failCommit {
		return errors.New("commit fail")
	}
	return nil
}
func (t stubTx) Rollback() error { return nil }

type stubRows struct {
	rows [][]driver.Value
	idx  int
}

func (r *stubRows) Columns() []string { return []string{"bucket", "payload"} }
func (r *stubRows) Close() error      { return nil }
func (r *stubRows) Next(dest []driver.Value) error {
	if r.idx >= len(r.rows) {
		return io.EOF
	}
	copy(dest, r.rows[r.idx])
	r.idx++
	return nil
}

var stubSeq atomic.Int64

func useStub(t *testing.T, conn *stubConn) {
	t.Helper()
	name := fmt.Sprintf("stubpg%d", stubSeq.Add(1))
	sql.Register(name, stubDriver{conn: conn})
	restore := OverrideSQLOpen(func(driverName, dsn string) (*sql.DB, error) {
		if driverName != "pgx" {
			t.Errorf("expected pgx driver, got %s", driverName)
		}
		return sql.Open(name, dsn)
	})
	t.Cleanup(restore)
}

func TestStorePersistsAndReloads(t *testing.T) {
	conn := &stubConn{rows: map[string][]byte{}}
	useStub(t, conn)
	ctx := context.Background()
	s, err := New(ctx, "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	err = s.RunInTransaction(ctx, func(tx store.Tx) error {
		tx.PutTemplate(contractapi.Template{ID: "t1", Title: "Lease"})
		tx.PutInstance(contractapi.Instance{ID: "i1", TemplateID: "t1", Hash: "h", Version: 1, Active: true})
		return nil
	})
	if err != nil {
		t.Fatalf("RunInTransaction: %v", err)
	}
	if len(conn.rows) != 2 {
		t.Fatalf("expected both buckets persisted, got %v", conn.order)
	}

	reloaded, err := New(ctx, "postgres://ignored")
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Driver() != store.DriverPostgres {
		t.Fatalf("unexpected driver %s", reloaded.Driver())
	}
	_ = reloaded.View(ctx, func(v store.View) error {
		if tpl, ok := v.FindTemplate("t1"); !ok || tpl.Title != "Lease" {
			t.Fatalf("template not reloaded: %+v", tpl)
		}
		if got := v.ListInstances(store.InstanceFilter{ActiveOnly: true}); len(got) != 1 {
			t.Fatalf("instance not reloaded: %+v", got)
		}
		return nil
	})
}

func TestStoreFailures(t *testing.T) {
	ctx := context.Background()
	conn := &stubConn{rows: map[string][]byte{}, failPing: true}
	useStub(t, conn)
	if _, err := New(ctx, ""); err == nil || !strings.Contains(err.Error(), "ping postgres") {
		t.Fatalf("expected ping failure, got %v", err)
	}

	conn.failPing = false
	conn.failCommit = true
	s, err := New(ctx, "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	err = s.RunInTransaction(ctx, func(tx store.Tx) error {
		tx.PutTemplate(contractapi.Template{ID: "t1"})
		return nil
	})
	if err == nil || !strings.Contains(err.Error(), "commit") {
		t.Fatalf("expected commit failure, got %v", err)
	}
}
