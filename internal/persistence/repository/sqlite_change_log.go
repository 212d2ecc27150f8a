package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hilthontt/reelsync/internal/domain"
	"github.com/hilthontt/reelsync/internal/infrastructure/feed"
)

const changeRecordColumns = `id, project_id, actor_id, change_type, entity_type, entity_id,
	old_value, new_value, timestamp, actor_counter, clock`

type sqliteChangeLogRepository struct {
	db     *sql.DB
	broker *feed.Broker[domain.ChangeRecord]
	// serializes insert+publish so feed order matches seq order
	mu sync.Mutex
}

func NewSQLiteChangeLogRepository(db *sql.DB, buffer int) domain.ChangeLog {
	return &sqliteChangeLogRepository{
		db:     db,
		broker: feed.NewBroker[domain.ChangeRecord](buffer),
	}
}

func (r *sqliteChangeLogRepository) Append(ctx context.Context, record *domain.ChangeRecord) error {
	if record == nil || record.ID == "" || record.ProjectID == "" || record.ActorID == "" {
		return domain.ErrInvalidInput
	}

	clock, err := json.Marshal(record.Clock)
	if err != nil {
		return fmt.Errorf("encoding clock: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	_, err = r.db.ExecContext(ctx, `INSERT INTO change_records (`+changeRecordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID,
		record.ProjectID,
		record.ActorID,
		string(record.ChangeType),
		string(record.EntityType),
		nullString(record.EntityID),
		nullRaw(record.OldValue),
		nullRaw(record.NewValue),
		record.Timestamp.UnixNano(),
		int64(record.ActorCounter),
		string(clock),
	)
	if err != nil {
		return translateSQLiteErr("inserting change record", err)
	}

	r.broker.Publish(record.ProjectID, record.Clone())
	return nil
}

func (r *sqliteChangeLogRepository) List(ctx context.Context, projectID string, limit int) ([]domain.ChangeRecord, error) {
	if projectID == "" {
		return nil, domain.ErrInvalidInput
	}
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}

	rows, err := r.db.QueryContext(ctx, `SELECT `+changeRecordColumns+` FROM (
			SELECT * FROM change_records WHERE project_id = ? ORDER BY seq DESC LIMIT ?
		) ORDER BY seq ASC`, projectID, limit)
	if err != nil {
		return nil, translateSQLiteErr("listing change records", err)
	}
	defer rows.Close()

	records := make([]domain.ChangeRecord, 0)
	for rows.Next() {
		rec, err := scanChangeRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, translateSQLiteErr("listing change records", err)
	}
	return records, nil
}

func (r *sqliteChangeLogRepository) LastCounter(ctx context.Context, projectID, actorID string) (uint64, error) {
	var counter int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(actor_counter), 0) FROM change_records WHERE project_id = ? AND actor_id = ?`,
		projectID, actorID,
	).Scan(&counter)
	if err != nil {
		return 0, translateSQLiteErr("reading actor counter", err)
	}
	return uint64(counter), nil
}

func (r *sqliteChangeLogRepository) OnDrop(fn func(projectID string)) {
	r.broker.OnDrop(fn)
}

func (r *sqliteChangeLogRepository) Subscribe(ctx context.Context, projectID string) (domain.ChangeSubscription, error) {
	if projectID == "" {
		return nil, domain.ErrInvalidInput
	}
	return changeSubscription{r.broker.Subscribe(ctx, projectID)}, nil
}

func scanChangeRecord(rows *sql.Rows) (domain.ChangeRecord, error) {
	var (
		rec                 domain.ChangeRecord
		changeType, entType string
		entityID            sql.NullString
		oldValue, newValue  sql.NullString
		timestamp, counter  int64
		clock               string
	)
	if err := rows.Scan(
		&rec.ID, &rec.ProjectID, &rec.ActorID, &changeType, &entType, &entityID,
		&oldValue, &newValue, &timestamp, &counter, &clock,
	); err != nil {
		return rec, fmt.Errorf("scanning change record: %w", err)
	}

	rec.ChangeType = domain.ChangeType(changeType)
	rec.EntityType = domain.EntityType(entType)
	if entityID.Valid {
		id := entityID.String
		rec.EntityID = &id
	}
	if oldValue.Valid {
		rec.OldValue = json.RawMessage(oldValue.String)
	}
	if newValue.Valid {
		rec.NewValue = json.RawMessage(newValue.String)
	}
	rec.Timestamp = time.Unix(0, timestamp).UTC()
	rec.ActorCounter = uint64(counter)
	if err := json.Unmarshal([]byte(clock), &rec.Clock); err != nil {
		return rec, fmt.Errorf("decoding clock: %w", err)
	}
	return rec, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullRaw(raw json.RawMessage) sql.NullString {
	if len(raw) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(raw), Valid: true}
}

// translateSQLiteErr maps a missing schema to ErrStoreUnavailable so callers
// can degrade instead of failing every request.
func translateSQLiteErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if strings.Contains(err.Error(), "no such table") {
		return fmt.Errorf("%s: %w: %v", op, domain.ErrStoreUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
