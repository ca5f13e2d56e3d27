package warehouse

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"testing"

	"go.uber.org/zap"
)

// stubState tracks one test's pass through the stub driver. Tests run
// sequentially, so a single shared instance is enough.
type stubState struct {
	failAt    int // 1-based exec that fails, 0 for none
	execs     int
	commits   int
	rollbacks int
}

func (s *stubState) reset(failAt int) {
	*s = stubState{failAt: failAt}
}

var stub = &stubState{}

type stubDriver struct{}

func (stubDriver) Open(string) (driver.Conn, error) { return stubConn{}, nil }

type stubConn struct{}

func (stubConn) Prepare(string) (driver.Stmt, error) { return stubStmt{}, nil }
func (stubConn) Close() error                        { return nil }
func (stubConn) Begin() (driver.Tx, error)           { return stubTx{}, nil }

type stubTx struct{}

func (stubTx) Commit() error {
	stub.commits++
	return nil
}

func (stubTx) Rollback() error {
	stub.rollbacks++
	return nil
}

type stubStmt struct{}

func (stubStmt) Close() error  { return nil }
func (stubStmt) NumInput() int { return -1 }

func (stubStmt) Exec([]driver.Value) (driver.Result, error) {
	stub.execs++
	if stub.failAt > 0 && stub.execs == stub.failAt {
		return nil, fmt.Errorf("value violates check constraint")
	}
	return driver.RowsAffected(1), nil
}

func (stubStmt) Query([]driver.Value) (driver.Rows, error) {
	return nil, fmt.Errorf("not supported")
}

func init() {
	sql.Register("loaderstub", stubDriver{})
}

func stubLoader(t *testing.T) *Loader {
	t.Helper()
	db, err := sql.Open("loaderstub", "")
	if err != nil {
		t.Fatalf("open stub db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return &Loader{db: db, table: "fact_hicp", logger: zap.NewNop()}
}

func snapshotRows(n int) []Row {
	rows := make([]Row, 0, n)
	for i := 0; i < n; i++ {
		rows = append(rows, Row{
			Time:        fmt.Sprintf("2024-%02d-01", i+1),
			Geo:         "LU",
			Coicop:      "CP00",
			Unit:        "I15",
			Value:       100.0 + float64(i),
			ProcessedAt: "2026-08-01T12:00:00Z",
			RawBlob:     "raw/blob.json",
		})
	}
	return rows
}

func TestLoadCommitsWholeSnapshot(t *testing.T) {
	loader := stubLoader(t)
	stub.reset(0)

	rows := snapshotRows(5)
	if err := loader.Load(context.Background(), rows); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if stub.execs != len(rows) {
		t.Errorf("execs = %d, want %d", stub.execs, len(rows))
	}
	if stub.commits != 1 || stub.rollbacks != 0 {
		t.Errorf("commits = %d, rollbacks = %d, want (1, 0)", stub.commits, stub.rollbacks)
	}
}

func TestLoadRollsBackOnRowFailure(t *testing.T) {
	loader := stubLoader(t)
	stub.reset(3)

	rows := snapshotRows(5)
	err := loader.Load(context.Background(), rows)
	var loadErr *LoadError
	if !errors.As(err, &loadErr) {
		t.Fatalf("expected LoadError, got %v", err)
	}
	if loadErr.Key != rows[2].Key() {
		t.Errorf("LoadError.Key = %q, want %q", loadErr.Key, rows[2].Key())
	}

	// One violating row among N commits nothing.
	if stub.commits != 0 {
		t.Errorf("commits = %d, want 0", stub.commits)
	}
	if stub.rollbacks != 1 {
		t.Errorf("rollbacks = %d, want 1", stub.rollbacks)
	}
	if stub.execs != 3 {
		t.Errorf("execs = %d, want 3 (stop at the failing row)", stub.execs)
	}
}

func TestLoadEmptySnapshot(t *testing.T) {
	loader := stubLoader(t)
	stub.reset(0)

	if err := loader.Load(context.Background(), nil); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if stub.execs != 0 || stub.commits != 0 {
		t.Errorf("execs = %d, commits = %d, want no work", stub.execs, stub.commits)
	}
}

func TestRowKey(t *testing.T) {
	row := Row{
		Time:   "2024-02-01",
		Geo:    "LU",
		Coicop: "CP00",
		Unit:   "I15",
	}
	if got, want := row.Key(), "2024-02-01|LU|CP00|I15"; got != want {
		t.Errorf("Key() = %q, want %q", got, want)
	}
}

func TestLoadError(t *testing.T) {
	cause := errors.New("duplicate key value violates unique constraint")

	err := &LoadError{Key: "2024-02-01|LU|CP00|I15", Err: cause}
	if !strings.Contains(err.Error(), "2024-02-01|LU|CP00|I15") {
		t.Errorf("Error() = %q, want the offending key", err.Error())
	}
	if !errors.Is(err, cause) {
		t.Error("expected LoadError to unwrap to its cause")
	}

	bare := &LoadError{Err: cause}
	if strings.Contains(bare.Error(), "at row") {
		t.Errorf("Error() = %q, want no row reference without a key", bare.Error())
	}
}
