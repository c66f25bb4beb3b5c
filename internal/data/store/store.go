package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"declimp/pkg/resolve"
)

const sqliteDriverName = "sqlite"

// Store persists resolution snapshots so dependency queries survive across
// runs. One database can hold several projects, distinguished by project key.
type Store struct {
	db         *sql.DB
	projectKey string
}

func Open(path, projectKey string) (*Store, error) {
	cleanPath := strings.TrimSpace(path)
	if cleanPath == "" {
		return nil, fmt.Errorf("snapshot store path must not be empty")
	}
	if info, err := os.Stat(cleanPath); err == nil && info.IsDir() {
		return nil, fmt.Errorf("snapshot store path %q is a directory, expected file", cleanPath)
	}

	dir := filepath.Dir(cleanPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create snapshot store directory %q: %w", dir, err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", cleanPath)
	db, err := sql.Open(sqliteDriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open snapshot store %q: %w", cleanPath, err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping snapshot store %q: %w", cleanPath, err)
	}

	if err := migrateSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	key := strings.TrimSpace(projectKey)
	if key == "" {
		key = "default"
	}
	return &Store{db: db, projectKey: key}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func migrateSchema(db *sql.DB) error {
	var version int
	_ = db.QueryRow(`PRAGMA user_version`).Scan(&version)

	if version == 0 {
		_, err := db.Exec(`
CREATE TABLE declarations (
  project_key TEXT NOT NULL,
  handle TEXT NOT NULL,
  module_path TEXT NOT NULL,
  decl_name TEXT NOT NULL,
  kind TEXT NOT NULL,
  state TEXT NOT NULL,
  PRIMARY KEY (project_key, handle)
);
CREATE INDEX idx_declarations_project_module ON declarations(project_key, module_path);

CREATE TABLE dependency_edges (
  project_key TEXT NOT NULL,
  handle TEXT NOT NULL,
  seq INTEGER NOT NULL,
  target_module TEXT NOT NULL,
  reason TEXT NOT NULL,
  PRIMARY KEY (project_key, handle, seq)
);
CREATE INDEX idx_edges_project_target ON dependency_edges(project_key, target_module);

PRAGMA user_version = 1;
`)
		if err != nil {
			return fmt.Errorf("create v1 schema: %w", err)
		}
	}
	return nil
}

// SaveSnapshot replaces the project's persisted state with the given
// snapshot in one transaction.
func (s *Store) SaveSnapshot(decls []resolve.DeclarationSummary) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("store not initialized")
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin snapshot tx: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM declarations WHERE project_key = ?`, s.projectKey); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("clear declarations: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM dependency_edges WHERE project_key = ?`, s.projectKey); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("clear dependency edges: %w", err)
	}

	declStmt, err := tx.Prepare(`INSERT INTO declarations (project_key, handle, module_path, decl_name, kind, state) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare declaration insert: %w", err)
	}
	defer declStmt.Close()

	edgeStmt, err := tx.Prepare(`INSERT INTO dependency_edges (project_key, handle, seq, target_module, reason) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare edge insert: %w", err)
	}
	defer edgeStmt.Close()

	for _, d := range decls {
		if _, err := declStmt.Exec(s.projectKey, string(d.Handle), d.Module, d.Name, d.Kind, d.State); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert declaration %s.%s: %w", d.Module, d.Name, err)
		}
		for seq, dep := range d.Dependencies {
			if _, err := edgeStmt.Exec(s.projectKey, string(d.Handle), seq, dep.Module.String(), string(dep.Reason)); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("insert edge %s -> %s: %w", d.Name, dep.Module, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot tx: %w", err)
	}
	return nil
}

// DeclRow is one persisted declaration with its ordered dependency targets.
type DeclRow struct {
	Handle  string
	Module  string
	Name    string
	Kind    string
	State   string
	Targets []EdgeRow
}

type EdgeRow struct {
	TargetModule string
	Reason       string
}

// LoadSnapshot reads the project's declarations and edges back, declarations
// ordered by module then name, edges by recorded sequence.
func (s *Store) LoadSnapshot() ([]DeclRow, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("store not initialized")
	}

	rows, err := s.db.Query(`SELECT handle, module_path, decl_name, kind, state
FROM declarations WHERE project_key = ? ORDER BY module_path, decl_name`, s.projectKey)
	if err != nil {
		return nil, fmt.Errorf("query declarations: %w", err)
	}
	defer rows.Close()

	out := make([]DeclRow, 0)
	index := make(map[string]int)
	for rows.Next() {
		var d DeclRow
		if err := rows.Scan(&d.Handle, &d.Module, &d.Name, &d.Kind, &d.State); err != nil {
			return nil, fmt.Errorf("scan declaration row: %w", err)
		}
		index[d.Handle] = len(out)
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate declaration rows: %w", err)
	}

	edgeRows, err := s.db.Query(`SELECT handle, target_module, reason
FROM dependency_edges WHERE project_key = ? ORDER BY handle, seq`, s.projectKey)
	if err != nil {
		return nil, fmt.Errorf("query dependency edges: %w", err)
	}
	defer edgeRows.Close()

	for edgeRows.Next() {
		var handle string
		var e EdgeRow
		if err := edgeRows.Scan(&handle, &e.TargetModule, &e.Reason); err != nil {
			return nil, fmt.Errorf("scan edge row: %w", err)
		}
		if i, ok := index[handle]; ok {
			out[i].Targets = append(out[i].Targets, e)
		}
	}
	if err := edgeRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate edge rows: %w", err)
	}
	return out, nil
}
