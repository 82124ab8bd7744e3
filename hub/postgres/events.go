// Copyright (c) chanhub authors
// SPDX-License-Identifier: Apache-2.0

package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/werg/chanhub/hub"
	"github.com/werg/chanhub/pkg/errors"
	repoerr "github.com/werg/chanhub/pkg/errors/repository"
	"github.com/werg/chanhub/pkg/postgres"
)

var _ hub.MessageStore = (*repository)(nil)

type repository struct {
	db postgres.Database
}

// NewRepository instantiates a PostgreSQL implementation of the message store.
func NewRepository(db postgres.Database) hub.MessageStore {
	return &repository{db: db}
}

func (repo *repository) Append(ctx context.Context, event hub.Event) (hub.Event, error) {
	q := `INSERT INTO events (channel, type, sender, payload, created_at)
		VALUES (:channel, :type, :sender, :payload, :created_at)
		RETURNING id, channel, type, sender, payload, created_at`

	dbe, err := toDBEvent(event)
	if err != nil {
		return hub.Event{}, errors.Wrap(repoerr.ErrCreateEntity, err)
	}
	if dbe.CreatedAt.IsZero() {
		dbe.CreatedAt = time.Now().UTC()
	}

	rows, err := repo.db.NamedQueryContext(ctx, q, dbe)
	if err != nil {
		return hub.Event{}, handleError(repoerr.ErrCreateEntity, err)
	}
	defer rows.Close()

	if !rows.Next() {
		return hub.Event{}, repoerr.ErrCreateEntity
	}
	var saved dbEvent
	if err := rows.StructScan(&saved); err != nil {
		return hub.Event{}, errors.Wrap(repoerr.ErrCreateEntity, err)
	}

	return toEvent(saved)
}

func (repo *repository) Query(ctx context.Context, channel string, sinceID, limit uint64) ([]hub.Event, error) {
	q := `SELECT id, channel, type, sender, payload, created_at FROM events
		WHERE channel = :channel AND id > :since_id ORDER BY id ASC`
	if limit > 0 {
		q += ` LIMIT :limit`
	}

	params := map[string]interface{}{
		"channel":  channel,
		"since_id": sinceID,
		"limit":    limit,
	}

	return repo.query(ctx, q, params)
}

func (repo *repository) Presence(ctx context.Context, channel string) ([]hub.Event, error) {
	q := `SELECT id, channel, type, sender, payload, created_at FROM events
		WHERE channel = :channel AND type = :type ORDER BY id ASC`

	params := map[string]interface{}{
		"channel": channel,
		"type":    hub.PresenceEventType,
	}

	return repo.query(ctx, q, params)
}

func (repo *repository) query(ctx context.Context, q string, params map[string]interface{}) ([]hub.Event, error) {
	rows, err := repo.db.NamedQueryContext(ctx, q, params)
	if err != nil {
		return nil, handleError(repoerr.ErrViewEntity, err)
	}
	defer rows.Close()

	events := []hub.Event{}
	for rows.Next() {
		var dbe dbEvent
		if err := rows.StructScan(&dbe); err != nil {
			return nil, errors.Wrap(repoerr.ErrViewEntity, err)
		}
		event, err := toEvent(dbe)
		if err != nil {
			return nil, errors.Wrap(repoerr.ErrViewEntity, err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(repoerr.ErrViewEntity, err)
	}

	return events, nil
}

type dbEvent struct {
	ID        uint64    `db:"id"`
	Channel   string    `db:"channel"`
	Type      string    `db:"type"`
	Sender    string    `db:"sender"`
	Payload   []byte    `db:"payload"`
	CreatedAt time.Time `db:"created_at"`
}

func toDBEvent(event hub.Event) (dbEvent, error) {
	var payload []byte
	if len(event.Payload) > 0 {
		if !json.Valid(event.Payload) {
			return dbEvent{}, repoerr.ErrMalformedEntity
		}
		payload = event.Payload
	}

	return dbEvent{
		ID:        event.ID,
		Channel:   event.Channel,
		Type:      event.Type,
		Sender:    event.Sender,
		Payload:   payload,
		CreatedAt: event.CreatedAt,
	}, nil
}

func toEvent(dbe dbEvent) (hub.Event, error) {
	var payload json.RawMessage
	if len(dbe.Payload) > 0 {
		payload = json.RawMessage(dbe.Payload)
	}

	return hub.Event{
		ID:        dbe.ID,
		Channel:   dbe.Channel,
		Type:      dbe.Type,
		Sender:    dbe.Sender,
		Payload:   payload,
		CreatedAt: dbe.CreatedAt,
	}, nil
}

func handleError(wrapper error, err error) error {
	pqErr, ok := err.(*pgconn.PgError)
	if ok {
		switch pqErr.Code {
		case pgerrcode.InvalidTextRepresentation:
			return errors.Wrap(repoerr.ErrMalformedEntity, err)
		case pgerrcode.UniqueViolation:
			return errors.Wrap(repoerr.ErrConflict, err)
		case pgerrcode.StringDataRightTruncationDataException:
			return errors.Wrap(repoerr.ErrMalformedEntity, err)
		}
	}

	return errors.Wrap(wrapper, err)
}
