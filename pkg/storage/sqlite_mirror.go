package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"multiview/pkg/common"
	"multiview/pkg/logging"
)

var ErrNoRow = errors.New("no matching row")

// ViewDef is the name and ordered key columns of one unique view.
type ViewDef struct {
	Name   string
	Fields []common.Field
}

// Mirror keeps the same records as the index in an in-memory SQLite table,
// with one UNIQUE index per view. SQLite enforces the constraints
// independently, which makes it a reference model for the hash views.
type Mirror struct {
	db     *sql.DB
	mu     sync.Mutex
	views  map[string]ViewDef
	logger *zap.SugaredLogger
}

func NewMirror(views []ViewDef, logger *zap.SugaredLogger) (*Mirror, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Every pooled connection would otherwise get its own empty database.
	db.SetMaxOpenConns(1)

	m := &Mirror{
		db:     db,
		views:  make(map[string]ViewDef, len(views)),
		logger: logging.OrNop(logger),
	}

	query := `
	CREATE TABLE records (
		handle   INTEGER PRIMARY KEY,
		id       INTEGER NOT NULL,
		name     TEXT NOT NULL,
		age      INTEGER NOT NULL,
		nickname TEXT NOT NULL,
		language TEXT NOT NULL
	);`
	if _, err := db.Exec(query); err != nil {
		db.Close()
		return nil, fmt.Errorf("init table: %w", err)
	}

	for _, v := range views {
		cols := make([]string, len(v.Fields))
		for i, f := range v.Fields {
			if !f.Valid() {
				db.Close()
				return nil, fmt.Errorf("view %q: unknown field %q", v.Name, f)
			}
			cols[i] = string(f)
		}
		stmt := fmt.Sprintf(`CREATE UNIQUE INDEX %q ON records (%s)`, "ux_"+v.Name, strings.Join(cols, ", "))
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("create index for view %q: %w", v.Name, err)
		}
		m.views[v.Name] = v
	}
	return m, nil
}

// Insert writes rec under handle in one transaction. A constraint failure
// rolls the transaction back and is returned as the driver reported it.
func (m *Mirror) Insert(handle uint64, rec common.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx, err := m.db.Begin()
	if err != nil {
		return err
	}
	_, err = tx.Exec("INSERT INTO records (handle, id, name, age, nickname, language) VALUES (?, ?, ?, ?, ?, ?)",
		int64(handle), int64(rec.ID), rec.Name.String(), int64(rec.Age), rec.Nickname.String(), rec.Language.String())
	if err != nil {
		tx.Rollback()
		m.logger.Debugw("mirror insert rejected", "id", rec.ID, "error", err)
		return err
	}
	return tx.Commit()
}

// Lookup returns the handle of the row whose view columns equal values.
func (m *Mirror) Lookup(view string, values ...any) (uint64, error) {
	v, ok := m.views[view]
	if !ok {
		return 0, fmt.Errorf("unknown view %q", view)
	}
	if len(values) != len(v.Fields) {
		return 0, fmt.Errorf("view %q takes %d values, got %d", view, len(v.Fields), len(values))
	}
	conds := make([]string, len(v.Fields))
	args := make([]any, len(values))
	for i, f := range v.Fields {
		conds[i] = string(f) + " = ?"
		args[i] = values[i]
		if u, ok := values[i].(uint64); ok {
			args[i] = int64(u)
		}
	}

	var handle int64
	err := m.db.QueryRow("SELECT handle FROM records WHERE "+strings.Join(conds, " AND "), args...).Scan(&handle)
	if err == sql.ErrNoRows {
		return 0, ErrNoRow
	}
	if err != nil {
		return 0, err
	}
	return uint64(handle), nil
}

func (m *Mirror) Count() (int, error) {
	var n int
	err := m.db.QueryRow("SELECT COUNT(*) FROM records").Scan(&n)
	return n, err
}

func (m *Mirror) Close() {
	m.db.Close()
}
