// Copyright (c) chanhub authors
// SPDX-License-Identifier: Apache-2.0

package postgres

import (
	migrate "github.com/rubenv/sql-migrate"
)

// Migration of the events table. The id column is the authoritative event
// ordering: BIGSERIAL assignment at insert time gives every persisted event
// a unique, strictly increasing ID across all channels.
func Migration() *migrate.MemoryMigrationSource {
	return &migrate.MemoryMigrationSource{
		Migrations: []*migrate.Migration{
			{
				Id: "events_01",
				Up: []string{
					`CREATE TABLE IF NOT EXISTS events (
						id         BIGSERIAL PRIMARY KEY,
						channel    VARCHAR(254) NOT NULL,
						type       VARCHAR(254) NOT NULL,
						sender     VARCHAR(254) NOT NULL,
						payload    JSONB,
						created_at TIMESTAMPTZ NOT NULL DEFAULT now()
					)`,
					`CREATE INDEX IF NOT EXISTS idx_events_channel_id ON events(channel, id)`,
					`CREATE INDEX IF NOT EXISTS idx_events_channel_type ON events(channel, type)`,
				},
				Down: []string{
					`DROP TABLE IF EXISTS events`,
				},
			},
		},
	}
}
