package pipeline

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"log"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	gormpg "gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// sqlRecorder captures every statement the ORM issues and can fail the ones
// matching failContains, standing in for constraint violations.
type sqlRecorder struct {
	mu           sync.Mutex
	stmts        []recordedStmt
	failContains string
	failErr      error
}

type recordedStmt struct {
	query string
	args  []driver.NamedValue
}

func (r *sqlRecorder) record(query string, args []driver.NamedValue) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stmts = append(r.stmts, recordedStmt{query: query, args: args})
	if r.failContains != "" && strings.Contains(query, r.failContains) {
		return r.failErr
	}
	return nil
}

func (r *sqlRecorder) indexOf(substr string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, stmt := range r.stmts {
		if strings.Contains(stmt.query, substr) {
			return i
		}
	}
	return -1
}

func (r *sqlRecorder) argsOf(substr string) []driver.NamedValue {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, stmt := range r.stmts {
		if strings.Contains(stmt.query, substr) {
			return stmt.args
		}
	}
	return nil
}

type recorderConnector struct{ rec *sqlRecorder }

func (c recorderConnector) Connect(context.Context) (driver.Conn, error) {
	return &recorderConn{rec: c.rec}, nil
}
func (c recorderConnector) Driver() driver.Driver { return recorderDriver{} }

type recorderDriver struct{}

func (recorderDriver) Open(string) (driver.Conn, error) { return nil, errors.New("use the connector") }

type recorderConn struct{ rec *sqlRecorder }

func (c *recorderConn) Prepare(string) (driver.Stmt, error) {
	return nil, errors.New("prepared statements not supported")
}
func (c *recorderConn) Close() error              { return nil }
func (c *recorderConn) Begin() (driver.Tx, error) { return recorderTx{}, nil }

func (c *recorderConn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	return recorderTx{}, nil
}

func (c *recorderConn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	if err := c.rec.record(query, args); err != nil {
		return nil, err
	}
	return driver.RowsAffected(1), nil
}

func (c *recorderConn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	if err := c.rec.record(query, args); err != nil {
		return nil, err
	}
	return emptyRows{}, nil
}

type recorderTx struct{}

func (recorderTx) Commit() error   { return nil }
func (recorderTx) Rollback() error { return nil }

type emptyRows struct{}

func (emptyRows) Columns() []string         { return nil }
func (emptyRows) Close() error              { return nil }
func (emptyRows) Next([]driver.Value) error { return io.EOF }

func newRecordedORM(t *testing.T, rec *sqlRecorder) *gorm.DB {
	t.Helper()
	orm, err := gorm.Open(gormpg.New(gormpg.Config{Conn: sql.OpenDB(recorderConnector{rec: rec})}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open orm: %v", err)
	}
	return orm
}

func newPublishedExecution(runID uuid.UUID) *Execution {
	exec := NewExecution(runID, DefaultDefinition(), TriggerEvent{Ref: "v1.2.0", RefType: RefTag}, "", nil)
	exec.State = StatePublished
	exec.Artifact = &CapturedArtifact{
		ID:         uuid.New(),
		Name:       "win64-satsuki",
		Kind:       "bundle",
		BinaryName: "satsuki.exe",
		SHA256:     "ab",
		Size:       1,
		URL:        "s3://bundles/x",
	}
	exec.Release = &ReleaseRecord{
		ID:         uuid.New(),
		Tag:        "v1.2.0",
		ArtifactID: exec.Artifact.ID,
		Notes:      "notes",
	}
	return exec
}

func argValues(args []driver.NamedValue) []any {
	out := make([]any, 0, len(args))
	for _, arg := range args {
		out = append(out, arg.Value)
	}
	return out
}

func hasValue(args []driver.NamedValue, want string) bool {
	for _, arg := range args {
		if s, ok := arg.Value.(string); ok && s == want {
			return true
		}
	}
	return false
}

// A duplicate release (the tag's unique index) is a terminal run failure:
// the run row must end up failed, not success/published.
func TestFinishRunReleaseInsertFailureMarksRunFailed(t *testing.T) {
	rec := &sqlRecorder{
		failContains: `"releases"`,
		failErr:      errors.New(`duplicate key value violates unique constraint "idx_releases_tag"`),
	}
	e := &Engine{orm: newRecordedORM(t, rec), logger: log.New(io.Discard, "", 0)}

	runID := uuid.New()
	err := e.finishRun(context.Background(), runID, DefaultDefinition(), newPublishedExecution(runID), nil)
	if err == nil || !strings.Contains(err.Error(), "duplicate key") {
		t.Fatalf("finishRun() error = %v, want duplicate key failure", err)
	}

	relIdx := rec.indexOf(`"releases"`)
	updIdx := rec.indexOf(`UPDATE "runs"`)
	if relIdx < 0 || updIdx < 0 {
		t.Fatalf("missing statements, got %d recorded", len(rec.stmts))
	}
	if relIdx > updIdx {
		t.Fatal("run row updated before the release insert")
	}

	args := rec.argsOf(`UPDATE "runs"`)
	if !hasValue(args, StatusFailed) || !hasValue(args, string(StateFailed)) {
		t.Fatalf("run row update args = %v, want failed status and state", argValues(args))
	}
	if hasValue(args, StatusSuccess) {
		t.Fatalf("run row update args = %v, must not say success", argValues(args))
	}
}

func TestFinishRunInsertsReleaseBeforeFinalUpdate(t *testing.T) {
	rec := &sqlRecorder{}
	e := &Engine{orm: newRecordedORM(t, rec), logger: log.New(io.Discard, "", 0)}

	runID := uuid.New()
	if err := e.finishRun(context.Background(), runID, DefaultDefinition(), newPublishedExecution(runID), nil); err != nil {
		t.Fatalf("finishRun() error = %v", err)
	}

	relIdx := rec.indexOf(`"releases"`)
	updIdx := rec.indexOf(`UPDATE "runs"`)
	if relIdx < 0 || updIdx < 0 {
		t.Fatalf("missing statements, got %d recorded", len(rec.stmts))
	}
	if relIdx > updIdx {
		t.Fatal("run row updated before the release insert")
	}

	args := rec.argsOf(`UPDATE "runs"`)
	if !hasValue(args, StatusSuccess) || !hasValue(args, string(StatePublished)) {
		t.Fatalf("run row update args = %v, want success status and published state", argValues(args))
	}
}
