package testutil

import (
	"context"
	"database/sql/driver"
	"testing"
)

func TestStubDBStoresAndQueriesRows(t *testing.T) {
	ctx := context.Background()
	_, conn := NewStubDB()

	if err := conn.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	_, err := conn.ExecContext(ctx, "INSERT INTO pokemon_forms (pokemon_id, form_name) VALUES ($1,$2)", []driver.NamedValue{
		{Value: int64(1)},
		{Value: "bulbasaur"},
	})
	if err != nil {
		t.Fatalf("ExecContext insert: %v", err)
	}
	if len(conn.Tables["pokemon_forms"]) != 1 {
		t.Fatalf("expected row to be stored, got %v", conn.Tables["pokemon_forms"])
	}

	rows, err := conn.QueryContext(ctx, "SELECT pokemon_id, form_name FROM pokemon_forms WHERE pokemon_id = $1 ORDER BY form_name", []driver.NamedValue{{Value: int64(1)}})
	if err != nil {
		t.Fatalf("QueryContext: %v", err)
	}
	dest := make([]driver.Value, 2)
	if err := rows.Next(dest); err != nil {
		t.Fatalf("Next: %v", err)
	}
	if dest[0] != int64(1) || dest[1] != "bulbasaur" {
		t.Fatalf("unexpected row values: %v", dest)
	}

	rows, _ = conn.QueryContext(ctx, "SELECT pokemon_id, form_name FROM pokemon_forms WHERE pokemon_id = $1", []driver.NamedValue{{Value: int64(2)}})
	if err := rows.Next(dest); err == nil {
		t.Fatalf("expected no rows for a different id")
	}

	_, err = conn.ExecContext(ctx, "DELETE FROM pokemon_forms WHERE pokemon_id = $1", []driver.NamedValue{{Value: int64(1)}})
	if err != nil {
		t.Fatalf("ExecContext delete: %v", err)
	}
	if len(conn.Tables["pokemon_forms"]) != 0 {
		t.Fatalf("expected delete to remove the row")
	}
}

func TestStubSavepointsAndRollback(t *testing.T) {
	ctx := context.Background()
	_, conn := NewStubDB()
	tx, err := conn.BeginTx(ctx, driver.TxOptions{})
	if err != nil {
		t.Fatalf("BeginTx: %v", err)
	}
	insert := func(name string) {
		if _, err := conn.ExecContext(ctx, "INSERT INTO pokemon (id, name) VALUES ($1,$2)", []driver.NamedValue{{Value: name}, {Value: name}}); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	insert("a")
	_, _ = conn.ExecContext(ctx, "SAVEPOINT entity_1", nil)
	insert("b")
	_, _ = conn.ExecContext(ctx, "ROLLBACK TO SAVEPOINT entity_1", nil)
	if len(conn.Tables["pokemon"]) != 1 {
		t.Fatalf("expected savepoint rollback to drop b, got %v", conn.Tables["pokemon"])
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	if len(conn.Tables["pokemon"]) != 0 {
		t.Fatalf("expected tx rollback to drop a, got %v", conn.Tables["pokemon"])
	}
}

func TestStubAggregate(t *testing.T) {
	ctx := context.Background()
	_, conn := NewStubDB()
	conn.Tables["pokemon"] = []map[string]any{{"updated_at": "2024-01-01"}, {"updated_at": "2024-02-01"}}
	rows, err := conn.QueryContext(ctx, "SELECT COUNT(*), MAX(updated_at) FROM pokemon", nil)
	if err != nil {
		t.Fatalf("QueryContext: %v", err)
	}
	dest := make([]driver.Value, 2)
	if err := rows.Next(dest); err != nil {
		t.Fatalf("Next: %v", err)
	}
	if dest[0] != int64(2) || dest[1] != "2024-02-01" {
		t.Fatalf("unexpected aggregate %v", dest)
	}
}
