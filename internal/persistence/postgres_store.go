package persistence

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"

	"github.com/vextrus/vextrus-erp-sub018/pkg/api"
)

// PostgresStore is an InstanceStore and HistoryStore backed by PostgreSQL.
//
// It expects an *sql.DB using a Postgres driver, typically pgx through its
// database/sql adapter:
//
//	import _ "github.com/jackc/pgx/v5/stdlib"
type PostgresStore struct {
	db *sql.DB
}

var (
	_ InstanceStore = (*PostgresStore)(nil)
	_ HistoryStore  = (*PostgresStore)(nil)
)

// NewPostgresStore initializes the required schema and returns a new
// PostgresStore.
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	s := &PostgresStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS workflow_instances (
			id TEXT PRIMARY KEY,
			workflow_type TEXT NOT NULL,
			tenant_id TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			record BYTEA NOT NULL,
			created_at BIGINT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_workflow_instances_filter
			ON workflow_instances(tenant_id, status, workflow_type);

		CREATE TABLE IF NOT EXISTS workflow_history (
			instance_id TEXT NOT NULL,
			seq BIGINT NOT NULL,
			event BYTEA NOT NULL,
			PRIMARY KEY (instance_id, seq)
		);`,
	)
	return err
}

func (s *PostgresStore) SaveInstance(ctx context.Context, inst *api.WorkflowInstance) error {
	record, err := EncodeInstance(inst)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO workflow_instances (id, workflow_type, tenant_id, status, record, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING`,
		inst.ID,
		inst.Type,
		inst.TenantID,
		string(inst.Status),
		record,
		inst.CreatedAt.UnixNano(),
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrDuplicateInstance
	}
	return nil
}

func (s *PostgresStore) UpdateInstance(ctx context.Context, inst *api.WorkflowInstance) error {
	record, err := EncodeInstance(inst)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE workflow_instances
		SET workflow_type = $1, tenant_id = $2, status = $3, record = $4
		WHERE id = $5`,
		inst.Type,
		inst.TenantID,
		string(inst.Status),
		record,
		inst.ID,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrInstanceNotFound
	}
	return nil
}

func (s *PostgresStore) GetInstance(ctx context.Context, id string) (*api.WorkflowInstance, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT record FROM workflow_instances WHERE id = $1`, id)

	var record []byte
	if err := row.Scan(&record); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInstanceNotFound
		}
		return nil, err
	}
	return DecodeInstance(record)
}

func (s *PostgresStore) ListInstances(ctx context.Context, filter api.ListFilter) ([]*api.WorkflowInstance, error) {
	query := `SELECT record FROM workflow_instances`
	var args []any
	var clauses []string

	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	if filter.TenantID != "" {
		clauses = append(clauses, "tenant_id = "+arg(filter.TenantID))
	}
	if filter.Status != "" {
		clauses = append(clauses, "status = "+arg(string(filter.Status)))
	}
	if filter.Type != "" {
		clauses = append(clauses, "workflow_type = "+arg(filter.Type))
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var instances []*api.WorkflowInstance
	for rows.Next() {
		var record []byte
		if err := rows.Scan(&record); err != nil {
			return nil, err
		}
		inst, err := DecodeInstance(record)
		if err != nil {
			return nil, err
		}
		instances = append(instances, inst)
	}
	return instances, rows.Err()
}

func (s *PostgresStore) AppendEvents(ctx context.Context, instanceID string, events []api.HistoryEvent) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, ev := range events {
		data, err := EncodeEvent(ev)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO workflow_history (instance_id, seq, event)
			VALUES ($1, $2, $3)`,
			instanceID, ev.Seq, data,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *PostgresStore) LoadHistory(ctx context.Context, instanceID string) ([]api.HistoryEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT event FROM workflow_history
		WHERE instance_id = $1
		ORDER BY seq ASC`, instanceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []api.HistoryEvent
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		ev, err := DecodeEvent(data)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
