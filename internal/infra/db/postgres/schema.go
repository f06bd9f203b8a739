package postgres

// schema is applied by Migrate. Every statement is idempotent.
//
// bookings_no_overlap is the final guard against double booking: two active
// bookings on one unit can never share a day, whatever the application did.
const schema = `
CREATE EXTENSION IF NOT EXISTS btree_gist;

CREATE TABLE IF NOT EXISTS fleet_groups (
	id                   text PRIMARY KEY,
	name                 text NOT NULL,
	vehicle_type         text NOT NULL,
	total_quantity       integer NOT NULL,
	strategy             text NOT NULL,
	naming_template      text NOT NULL,
	share_pricing        boolean NOT NULL,
	share_specifications boolean NOT NULL,
	share_images         boolean NOT NULL,
	created_at           timestamptz NOT NULL,
	updated_at           timestamptz NOT NULL,
	version              bigint NOT NULL
);

CREATE TABLE IF NOT EXISTS fleet_units (
	id               text PRIMARY KEY,
	group_id         text,
	position         integer NOT NULL DEFAULT 0,
	display_name     text NOT NULL,
	is_group_primary boolean NOT NULL DEFAULT false,
	available        boolean NOT NULL DEFAULT true,
	vehicle_type     text NOT NULL,
	price_per_day    numeric(14,4) NOT NULL DEFAULT 0,
	specifications   jsonb NOT NULL DEFAULT '{}',
	images           jsonb NOT NULL DEFAULT '[]',
	description      text NOT NULL DEFAULT '',
	created_at       timestamptz NOT NULL,
	updated_at       timestamptz NOT NULL,
	version          bigint NOT NULL
);
CREATE INDEX IF NOT EXISTS fleet_units_group_idx ON fleet_units (group_id, position);

CREATE TABLE IF NOT EXISTS bookings (
	id          text PRIMARY KEY,
	unit_id     text NOT NULL,
	group_id    text,
	customer_id text NOT NULL,
	start_date  date NOT NULL,
	end_date    date NOT NULL,
	status      text NOT NULL,
	created_at  timestamptz NOT NULL,
	updated_at  timestamptz NOT NULL,
	version     bigint NOT NULL,
	CHECK (end_date > start_date),
	CONSTRAINT bookings_no_overlap EXCLUDE USING gist (
		unit_id WITH =,
		daterange(start_date, end_date, '[)') WITH &&
	) WHERE (status IN ('pending', 'confirmed'))
);
CREATE INDEX IF NOT EXISTS bookings_unit_idx ON bookings (unit_id, created_at);

CREATE TABLE IF NOT EXISTS app_outbox (
	id              text PRIMARY KEY,
	name            text NOT NULL,
	payload         bytea NOT NULL,
	occurred_at     timestamptz NOT NULL,
	aggregate       text NOT NULL,
	headers         jsonb NOT NULL DEFAULT '{}',
	state           text NOT NULL,
	attempts        integer NOT NULL DEFAULT 0,
	next_attempt_at timestamptz NOT NULL,
	claimed_by      text,
	claimed_at      timestamptz,
	sent_at         timestamptz,
	last_error      text,
	created_at      timestamptz NOT NULL
);
CREATE INDEX IF NOT EXISTS app_outbox_due_idx ON app_outbox (state, next_attempt_at);

CREATE TABLE IF NOT EXISTS app_idempotency (
	key         text PRIMARY KEY,
	command     text NOT NULL,
	payload     bytea NOT NULL,
	occurred_at timestamptz NOT NULL,
	created_at  timestamptz NOT NULL
);
`
