// Package observability records per-request audit rows in a local sqlite
// database. Inserts never block or fail a request: write errors are logged
// and dropped.
package observability

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS http_request_logs (
	request_id  TEXT PRIMARY KEY,
	method      TEXT NOT NULL,
	path        TEXT NOT NULL,
	status      INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL,
	bytes_out   INTEGER NOT NULL,
	created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_request_logs_created ON http_request_logs(created_at);
`

// RequestLogger writes one row per completed HTTP request.
type RequestLogger struct {
	db *sql.DB
}

// NewRequestLogger opens (or creates) the audit database at path.
func NewRequestLogger(path string) (*RequestLogger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init audit schema: %w", err)
	}
	return &RequestLogger{db: db}, nil
}

// Close releases the underlying database handle.
func (l *RequestLogger) Close() error { return l.db.Close() }

// Middleware records method, path, status, duration and response size.
func (l *RequestLogger) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)

		_, err := l.db.ExecContext(context.WithoutCancel(r.Context()), `
			INSERT INTO http_request_logs (
				request_id, method, path, status, duration_ms, bytes_out, created_at
			) VALUES (?,?,?,?,?,?,?)`,
			uuid.NewString(), r.Method, r.URL.Path, rec.status,
			time.Since(start).Milliseconds(), rec.bytes, time.Now().Unix())
		if err != nil {
			slog.Error("request audit log failed", "error", err, "path", r.URL.Path)
		}
	})
}

// Cleanup deletes rows older than retentionDays. Zero or negative disables it.
func (l *RequestLogger) Cleanup(ctx context.Context, retentionDays int) error {
	if retentionDays <= 0 {
		return nil
	}
	cutoff := time.Now().Unix() - int64(retentionDays)*86400
	if _, err := l.db.ExecContext(ctx,
		`DELETE FROM http_request_logs WHERE created_at < ?`, cutoff); err != nil {
		return fmt.Errorf("audit cleanup: %w", err)
	}
	return nil
}

// statusRecorder captures the status code and body size written downstream.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(p []byte) (int, error) {
	n, err := r.ResponseWriter.Write(p)
	r.bytes += int64(n)
	return n, err
}

// Flush forwards to the wrapped writer so NDJSON streaming keeps working
// behind the middleware.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
