package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hilthontt/reelsync/internal/domain"
	"github.com/hilthontt/reelsync/internal/infrastructure/feed"
)

type sqlitePresenceRepository struct {
	db     *sql.DB
	broker *feed.Broker[domain.PresenceEvent]
}

func NewSQLitePresenceRepository(db *sql.DB, buffer int) domain.PresenceStore {
	return &sqlitePresenceRepository{
		db:     db,
		broker: feed.NewBroker[domain.PresenceEvent](buffer),
	}
}

func (r *sqlitePresenceRepository) Upsert(ctx context.Context, record *domain.PresenceRecord) error {
	if record == nil || record.ProjectID == "" || record.ActorID == "" {
		return domain.ErrInvalidInput
	}

	var focusType sql.NullString
	if record.FocusEntityType != "" {
		focusType = sql.NullString{String: string(record.FocusEntityType), Valid: true}
	}

	_, err := r.db.ExecContext(ctx, `INSERT INTO presence (project_id, actor_id, focus_entity_type, focus_entity_id, last_seen)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (project_id, actor_id) DO UPDATE SET
			focus_entity_type = excluded.focus_entity_type,
			focus_entity_id   = excluded.focus_entity_id,
			last_seen         = excluded.last_seen`,
		record.ProjectID,
		record.ActorID,
		focusType,
		nullString(record.FocusEntityID),
		record.LastSeen.UnixNano(),
	)
	if err != nil {
		return translateSQLiteErr("upserting presence", err)
	}

	r.broker.Publish(record.ProjectID, domain.PresenceEvent{
		Kind:   domain.PresenceUpserted,
		Record: record.Clone(),
	})
	return nil
}

func (r *sqlitePresenceRepository) Delete(ctx context.Context, projectID, actorID string) error {
	if projectID == "" || actorID == "" {
		return domain.ErrInvalidInput
	}

	res, err := r.db.ExecContext(ctx, `DELETE FROM presence WHERE project_id = ? AND actor_id = ?`, projectID, actorID)
	if err != nil {
		return translateSQLiteErr("deleting presence", err)
	}

	if n, err := res.RowsAffected(); err == nil && n > 0 {
		r.broker.Publish(projectID, domain.PresenceEvent{
			Kind:   domain.PresenceDeleted,
			Record: domain.PresenceRecord{ProjectID: projectID, ActorID: actorID},
		})
	}
	return nil
}

func (r *sqlitePresenceRepository) ListSince(ctx context.Context, projectID string, since time.Time) ([]domain.PresenceRecord, error) {
	if projectID == "" {
		return nil, domain.ErrInvalidInput
	}

	rows, err := r.db.QueryContext(ctx, `SELECT project_id, actor_id, focus_entity_type, focus_entity_id, last_seen
		FROM presence WHERE project_id = ? AND last_seen >= ? ORDER BY actor_id`,
		projectID, since.UnixNano(),
	)
	if err != nil {
		return nil, translateSQLiteErr("listing presence", err)
	}
	defer rows.Close()

	out := make([]domain.PresenceRecord, 0)
	for rows.Next() {
		var (
			rec       domain.PresenceRecord
			focusType sql.NullString
			focusID   sql.NullString
			lastSeen  int64
		)
		if err := rows.Scan(&rec.ProjectID, &rec.ActorID, &focusType, &focusID, &lastSeen); err != nil {
			return nil, fmt.Errorf("scanning presence: %w", err)
		}
		rec.FocusEntityType = domain.EntityType(focusType.String)
		if focusID.Valid {
			id := focusID.String
			rec.FocusEntityID = &id
		}
		rec.LastSeen = time.Unix(0, lastSeen).UTC()
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, translateSQLiteErr("listing presence", err)
	}
	return out, nil
}

func (r *sqlitePresenceRepository) OnDrop(fn func(projectID string)) {
	r.broker.OnDrop(fn)
}

func (r *sqlitePresenceRepository) Subscribe(ctx context.Context, projectID string) (domain.PresenceSubscription, error) {
	if projectID == "" {
		return nil, domain.ErrInvalidInput
	}
	return presenceSubscription{r.broker.Subscribe(ctx, projectID)}, nil
}
