package db

import (
	"context"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS trip_plans (
  trip_id            text PRIMARY KEY,
  driver_id          text NOT NULL,
  current_location   text NOT NULL DEFAULT '',
  pickup_location    text NOT NULL DEFAULT '',
  dropoff_location   text NOT NULL DEFAULT '',
  cycle_used_sec     bigint NOT NULL DEFAULT 0,
  cycle_used_end_sec bigint NOT NULL DEFAULT 0,
  start_at           timestamptz NOT NULL,
  end_at             timestamptz NOT NULL,
  total_miles        double precision NOT NULL DEFAULT 0,
  total_driving_sec  bigint NOT NULL DEFAULT 0,
  restarts           integer NOT NULL DEFAULT 0,
  vehicle_number     text NOT NULL DEFAULT '',
  trailer_number     text NOT NULL DEFAULT '',
  shipper_name       text NOT NULL DEFAULT '',
  commodity          text NOT NULL DEFAULT '',
  load_number        text NOT NULL DEFAULT '',
  route              jsonb NOT NULL DEFAULT '{}',
  created_at         timestamptz NOT NULL DEFAULT now()
)`,
	`ALTER TABLE trip_plans ADD COLUMN IF NOT EXISTS route jsonb NOT NULL DEFAULT '{}'`,
	`CREATE INDEX IF NOT EXISTS trip_plans_driver_idx ON trip_plans (driver_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS trip_stops (
  id          uuid PRIMARY KEY,
  trip_id     text NOT NULL REFERENCES trip_plans(trip_id) ON DELETE CASCADE,
  seq         integer NOT NULL,
  stop_type   text NOT NULL,
  location    text NOT NULL DEFAULT '',
  lat         double precision,
  lng         double precision,
  mile_marker double precision NOT NULL DEFAULT 0,
  arrival     timestamptz NOT NULL,
  departure   timestamptz NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS trip_stops_trip_idx ON trip_stops (trip_id, seq)`,
	`CREATE TABLE IF NOT EXISTS duty_events (
  id          uuid PRIMARY KEY,
  trip_id     text NOT NULL REFERENCES trip_plans(trip_id) ON DELETE CASCADE,
  driver_id   text NOT NULL,
  seq         integer NOT NULL,
  status      text NOT NULL,
  start_at    timestamptz NOT NULL,
  end_at      timestamptz NOT NULL,
  location    text NOT NULL DEFAULT '',
  remarks     text NOT NULL DEFAULT '',
  truck_moved boolean NOT NULL DEFAULT false,
  miles       double precision NOT NULL DEFAULT 0,
  CHECK (end_at >= start_at)
)`,
	`CREATE INDEX IF NOT EXISTS duty_events_trip_idx ON duty_events (trip_id, seq)`,
	`CREATE INDEX IF NOT EXISTS duty_events_driver_idx ON duty_events (driver_id, start_at)`,
}

// Migrate creates the tables if they do not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	for i, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate step %d: %w", i+1, err)
		}
	}
	return nil
}
