package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/neomorfeo/stageline/internal/domain"
	"github.com/pressly/goose/v3"

	_ "modernc.org/sqlite" // Register SQLite driver.
)

//go:embed migrations/*.sql
var migrations embed.FS

// querier is the subset of *sql.DB and *sql.Tx the repository needs, so
// the same query code serves both transactional and plain access.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// StageRepository implements domain.StageStore using SQLite. The catalog,
// overlay, and ticket tables live in one database so the removal protocol
// can run inside a single transaction.
type StageRepository struct {
	q  querier
	db *sql.DB // nil when this repository is transaction-scoped
}

// Compile-time check: StageRepository implements domain.StageStore.
var _ domain.StageStore = (*StageRepository)(nil)

// New opens a SQLite database, runs migrations, and returns a ready
// repository.
func New(dataSourceName string) (*StageRepository, error) {
	db, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// A single connection serializes writers, so two concurrent removal
	// attempts on the same stage cannot race the coverage check.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	return NewFromDB(db)
}

// NewFromDB wraps an existing database connection, runs migrations, and
// returns a ready repository. Use this when the *sql.DB has been
// pre-configured (e.g., with otelsql instrumentation).
func NewFromDB(db *sql.DB) (*StageRepository, error) {
	if err := runMigrations(db); err != nil {
		return nil, err
	}

	return &StageRepository{q: db, db: db}, nil
}

// Close closes the underlying database connection.
func (r *StageRepository) Close() error {
	return r.db.Close()
}

// DB returns the underlying database connection for use by other adapters
// (e.g., river).
func (r *StageRepository) DB() *sql.DB {
	return r.db
}

func runMigrations(db *sql.DB) error {
	goose.SetBaseFS(migrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("setting goose dialect: %w", err)
	}

	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	return nil
}

const timeFormat = "2006-01-02T15:04:05Z"

// InTx runs fn against a transaction-scoped repository. A nested call on an
// already transaction-scoped repository joins the outer transaction.
func (r *StageRepository) InTx(ctx context.Context, fn func(tx domain.StageStore) error) error {
	if r.db == nil {
		return fn(r)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	if err := fn(&StageRepository{q: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rolling back after %w: %v", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// stageColumns selects a stage with its effective position and hidden flag
// resolved from the tenant's overlay. Bind the tenant id once for the join.
const stageColumns = `
	SELECT s.id, COALESCE(s.tenant_id, ''), s.name, s.color, s.category,
	       COALESCE(o.position, s.position) AS effective_position,
	       o.hidden_at IS NOT NULL AS hidden,
	       s.created_at, s.updated_at
	FROM stages s
	LEFT JOIN stage_overlays o ON o.stage_id = s.id AND o.tenant_id = ?`

func (r *StageRepository) ListVisible(ctx context.Context, tenantID string) ([]domain.Stage, error) {
	rows, err := r.q.QueryContext(ctx, stageColumns+`
		WHERE s.deleted_at IS NULL
		  AND (s.tenant_id IS NULL OR s.tenant_id = ?)
		  AND o.hidden_at IS NULL
		ORDER BY effective_position ASC, s.id ASC`,
		tenantID, tenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing visible stages: %w", err)
	}
	return scanStages(rows)
}

func (r *StageRepository) ListGeneric(ctx context.Context, tenantID string) ([]domain.Stage, error) {
	// Two-tier sort key: visible stages first by position, hidden ones
	// after regardless of their numeric position.
	rows, err := r.q.QueryContext(ctx, stageColumns+`
		WHERE s.tenant_id IS NULL AND s.deleted_at IS NULL
		ORDER BY hidden ASC, effective_position ASC, s.id ASC`,
		tenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing generic stages: %w", err)
	}
	return scanStages(rows)
}

func (r *StageRepository) ListOwned(ctx context.Context, tenantID string) ([]domain.Stage, error) {
	rows, err := r.q.QueryContext(ctx, stageColumns+`
		WHERE s.tenant_id = ? AND s.deleted_at IS NULL
		ORDER BY s.position ASC, s.id ASC`,
		tenantID, tenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing owned stages: %w", err)
	}
	return scanStages(rows)
}

func (r *StageRepository) GetStage(ctx context.Context, tenantID, id string) (domain.Stage, error) {
	return scanStage(r.q.QueryRowContext(ctx, stageColumns+`
		WHERE s.id = ? AND s.deleted_at IS NULL
		  AND (s.tenant_id IS NULL OR s.tenant_id = ?)`,
		tenantID, id, tenantID,
	))
}

func (r *StageRepository) CreateOwned(ctx context.Context, s domain.Stage) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO stages (id, tenant_id, name, color, category, position, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.TenantID, s.Name, s.Color, string(s.Category), s.Position,
		s.CreatedAt.Format(timeFormat),
		s.UpdatedAt.Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("inserting stage: %w", err)
	}
	return nil
}

func (r *StageRepository) UpdateOwned(ctx context.Context, s domain.Stage) error {
	result, err := r.q.ExecContext(ctx,
		`UPDATE stages SET name = ?, color = ?, category = ?, position = ?, updated_at = ?
		 WHERE id = ? AND tenant_id = ? AND deleted_at IS NULL`,
		s.Name, s.Color, string(s.Category), s.Position,
		time.Now().UTC().Format(timeFormat), s.ID, s.TenantID,
	)
	if err != nil {
		return fmt.Errorf("updating stage: %w", err)
	}
	return requireRow(result)
}

func (r *StageRepository) CountOwnedInCategory(ctx context.Context, tenantID string, category domain.Category, excludeID string) (int, error) {
	var n int
	err := r.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM stages
		 WHERE tenant_id = ? AND category = ? AND deleted_at IS NULL AND id <> ?`,
		tenantID, string(category), excludeID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting stages in category: %w", err)
	}
	return n, nil
}

func (r *StageRepository) HideGeneric(ctx context.Context, tenantID, stageID string) error {
	now := time.Now().UTC().Format(timeFormat)
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO stage_overlays (tenant_id, stage_id, hidden_at, hidden_by)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (tenant_id, stage_id)
		 DO UPDATE SET hidden_at = excluded.hidden_at, hidden_by = excluded.hidden_by`,
		tenantID, stageID, now, tenantID,
	)
	if err != nil {
		return fmt.Errorf("recording hide overlay: %w", err)
	}
	return nil
}

func (r *StageRepository) Unhide(ctx context.Context, tenantID, stageID string) error {
	if _, err := r.q.ExecContext(ctx,
		`UPDATE stage_overlays SET hidden_at = NULL, hidden_by = NULL
		 WHERE tenant_id = ? AND stage_id = ?`,
		tenantID, stageID,
	); err != nil {
		return fmt.Errorf("clearing hide overlay: %w", err)
	}

	// Keep the overlay table sparse: drop rows that no longer carry
	// a hidden flag or a custom position.
	if _, err := r.q.ExecContext(ctx,
		`DELETE FROM stage_overlays
		 WHERE tenant_id = ? AND stage_id = ? AND hidden_at IS NULL AND position IS NULL`,
		tenantID, stageID,
	); err != nil {
		return fmt.Errorf("pruning overlay row: %w", err)
	}
	return nil
}

func (r *StageRepository) SoftDeleteOwned(ctx context.Context, tenantID, stageID string) error {
	result, err := r.q.ExecContext(ctx,
		`UPDATE stages SET deleted_at = ?, updated_at = ?
		 WHERE id = ? AND tenant_id = ? AND deleted_at IS NULL`,
		time.Now().UTC().Format(timeFormat),
		time.Now().UTC().Format(timeFormat),
		stageID, tenantID,
	)
	if err != nil {
		return fmt.Errorf("soft-deleting stage: %w", err)
	}
	return requireRow(result)
}

func (r *StageRepository) CountReferences(ctx context.Context, tenantID, stageID string) (int64, error) {
	var n int64
	err := r.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tickets WHERE tenant_id = ? AND stage_id = ?`,
		tenantID, stageID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting references: %w", err)
	}
	return n, nil
}

func (r *StageRepository) ReassignReferences(ctx context.Context, tenantID, fromID, toID string) (int64, error) {
	result, err := r.q.ExecContext(ctx,
		`UPDATE tickets SET stage_id = ? WHERE tenant_id = ? AND stage_id = ?`,
		toID, tenantID, fromID,
	)
	if err != nil {
		return 0, fmt.Errorf("reassigning references: %w", err)
	}
	moved, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return moved, nil
}

func (r *StageRepository) SetStageOrder(ctx context.Context, tenantID string, orderedIDs []string) error {
	now := time.Now().UTC().Format(timeFormat)

	for i, id := range orderedIDs {
		// Tenant-owned rows take the position directly.
		result, err := r.q.ExecContext(ctx,
			`UPDATE stages SET position = ?, updated_at = ?
			 WHERE id = ? AND tenant_id = ? AND deleted_at IS NULL`,
			i, now, id, tenantID,
		)
		if err != nil {
			return fmt.Errorf("positioning stage %q: %w", id, err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("checking rows affected: %w", err)
		}
		if n > 0 {
			continue
		}

		// Generic rows get a per-tenant position overlay instead; the
		// shared row is never touched.
		if _, err := r.q.ExecContext(ctx,
			`INSERT INTO stage_overlays (tenant_id, stage_id, position)
			 VALUES (?, ?, ?)
			 ON CONFLICT (tenant_id, stage_id) DO UPDATE SET position = excluded.position`,
			tenantID, id, i,
		); err != nil {
			return fmt.Errorf("positioning generic stage %q: %w", id, err)
		}
	}

	// Re-rank hidden generic stages after all visible ones, preserving
	// their relative order. The hidden flag is the primary sort tier, so
	// these positions only break ties among the hidden stages themselves.
	rows, err := r.q.QueryContext(ctx,
		`SELECT s.id FROM stages s
		 JOIN stage_overlays o ON o.stage_id = s.id AND o.tenant_id = ?
		 WHERE s.tenant_id IS NULL AND s.deleted_at IS NULL AND o.hidden_at IS NOT NULL
		 ORDER BY COALESCE(o.position, s.position) ASC, s.id ASC`,
		tenantID,
	)
	if err != nil {
		return fmt.Errorf("listing hidden stages: %w", err)
	}
	var hiddenIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("scanning hidden stage id: %w", err)
		}
		hiddenIDs = append(hiddenIDs, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating hidden stages: %w", err)
	}

	for j, id := range hiddenIDs {
		if _, err := r.q.ExecContext(ctx,
			`UPDATE stage_overlays SET position = ? WHERE tenant_id = ? AND stage_id = ?`,
			len(orderedIDs)+j, tenantID, id,
		); err != nil {
			return fmt.Errorf("positioning hidden stage %q: %w", id, err)
		}
	}

	return nil
}

func (r *StageRepository) SetOwnedOrder(ctx context.Context, tenantID string, orderedIDs []string) error {
	now := time.Now().UTC().Format(timeFormat)
	for i, id := range orderedIDs {
		result, err := r.q.ExecContext(ctx,
			`UPDATE stages SET position = ?, updated_at = ?
			 WHERE id = ? AND tenant_id = ? AND deleted_at IS NULL`,
			i, now, id, tenantID,
		)
		if err != nil {
			return fmt.Errorf("positioning stage %q: %w", id, err)
		}
		if err := requireRow(result); err != nil {
			return err
		}
	}
	return nil
}

// CreateGeneric inserts a platform-maintained shared stage. This is a
// platform operation: it is used by seeding and tests, never exposed to
// tenants.
func (r *StageRepository) CreateGeneric(ctx context.Context, s domain.Stage) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO stages (id, tenant_id, name, color, category, position, created_at, updated_at)
		 VALUES (?, NULL, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.Name, s.Color, string(s.Category), s.Position,
		s.CreatedAt.Format(timeFormat),
		s.UpdatedAt.Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("inserting generic stage: %w", err)
	}
	return nil
}

// CreateTicket inserts a referencing entity. Ticket management is external
// to the engine; this exists for seeding and tests of the removal protocol.
func (r *StageRepository) CreateTicket(ctx context.Context, t domain.Ticket) error {
	created := t.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO tickets (id, tenant_id, stage_id, subject, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		t.ID, t.TenantID, t.StageID, t.Subject, created.Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("inserting ticket: %w", err)
	}
	return nil
}

// defaultCatalog is the platform's baseline shared catalog. It covers every
// required category so a fresh tenant satisfies the coverage invariant
// before any configuration.
var defaultCatalog = []struct {
	id       string
	name     string
	color    string
	category domain.Category
}{
	{"gen-new", "New", "#4f86f7", domain.CategoryWaiting},
	{"gen-triage", "Triage", "#f7b84f", domain.CategoryAnalysis},
	{"gen-progress", "In Progress", "#9b59b6", domain.CategoryAction},
	{"gen-resolved", "Resolved", "#2ecc71", domain.CategoryFinal},
	{"gen-cancelled", "Cancelled", "#95a5a6", domain.CategoryCancel},
}

// EnsureDefaultCatalog seeds the shared default stages if the catalog holds
// no generic rows yet. Called once at startup; idempotent.
func (r *StageRepository) EnsureDefaultCatalog(ctx context.Context) error {
	var n int
	err := r.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM stages WHERE tenant_id IS NULL`,
	).Scan(&n)
	if err != nil {
		return fmt.Errorf("counting generic stages: %w", err)
	}
	if n > 0 {
		return nil
	}

	now := time.Now().UTC()
	for i, d := range defaultCatalog {
		stage := domain.Stage{
			ID:        d.id,
			Name:      d.name,
			Color:     d.color,
			Category:  d.category,
			Position:  i,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := r.CreateGeneric(ctx, stage); err != nil {
			return fmt.Errorf("seeding default catalog: %w", err)
		}
	}
	return nil
}

func requireRow(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return domain.ErrStageNotFound
	}
	return nil
}

// scanStage scans a single row from QueryRow into a domain.Stage.
func scanStage(row *sql.Row) (domain.Stage, error) {
	var s domain.Stage
	var category, createdAt, updatedAt string

	err := row.Scan(&s.ID, &s.TenantID, &s.Name, &s.Color, &category,
		&s.Position, &s.Hidden, &createdAt, &updatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.Stage{}, domain.ErrStageNotFound
		}
		return domain.Stage{}, fmt.Errorf("scanning stage: %w", err)
	}

	s.Category = domain.Category(category)
	if s.CreatedAt, err = time.Parse(timeFormat, createdAt); err != nil {
		return domain.Stage{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if s.UpdatedAt, err = time.Parse(timeFormat, updatedAt); err != nil {
		return domain.Stage{}, fmt.Errorf("parsing updated_at: %w", err)
	}

	return s, nil
}

// scanStages drains rows into domain stages.
func scanStages(rows *sql.Rows) ([]domain.Stage, error) {
	defer rows.Close()

	var stages []domain.Stage
	for rows.Next() {
		var s domain.Stage
		var category, createdAt, updatedAt string

		if err := rows.Scan(&s.ID, &s.TenantID, &s.Name, &s.Color, &category,
			&s.Position, &s.Hidden, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning stage row: %w", err)
		}

		s.Category = domain.Category(category)
		created, err := time.Parse(timeFormat, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		updated, err := time.Parse(timeFormat, updatedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing updated_at: %w", err)
		}
		s.CreatedAt, s.UpdatedAt = created, updated
		stages = append(stages, s)
	}

	return stages, rows.Err()
}
