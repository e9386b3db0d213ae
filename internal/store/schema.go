package store

// Timestamps are stored as Unix seconds and money as decimal strings.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		venue TEXT NOT NULL DEFAULT '',
		start_time INTEGER NOT NULL,
		end_time INTEGER NOT NULL,
		registration_deadline INTEGER,
		max_attendees INTEGER,
		status TEXT NOT NULL DEFAULT 'draft',
		is_external INTEGER NOT NULL DEFAULT 0,
		external_url TEXT NOT NULL DEFAULT '',
		require_approval INTEGER NOT NULL DEFAULT 0,
		require_consent INTEGER NOT NULL DEFAULT 0,
		questions TEXT NOT NULL DEFAULT '[]',
		created_at INTEGER NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS ticket_types (
		id TEXT PRIMARY KEY,
		event_id TEXT NOT NULL REFERENCES events(id),
		name TEXT NOT NULL,
		price TEXT NOT NULL DEFAULT '0',
		max_quantity INTEGER,
		current_quantity INTEGER NOT NULL DEFAULT 0,
		is_active INTEGER NOT NULL DEFAULT 1,
		gift_invites INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS price_tiers (
		id TEXT PRIMARY KEY,
		ticket_type_id TEXT NOT NULL REFERENCES ticket_types(id),
		quantity INTEGER NOT NULL,
		price TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS registrations (
		id TEXT PRIMARY KEY,
		event_id TEXT NOT NULL REFERENCES events(id),
		user_id TEXT NOT NULL,
		ticket_type_id TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		answers TEXT NOT NULL DEFAULT '{}',
		project_id TEXT NOT NULL DEFAULT '',
		invite_code TEXT NOT NULL DEFAULT '',
		consent INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		UNIQUE(event_id, user_id)
	)`,

	`CREATE TABLE IF NOT EXISTS orders (
		id TEXT PRIMARY KEY,
		public_code TEXT NOT NULL,
		event_id TEXT NOT NULL REFERENCES events(id),
		user_id TEXT NOT NULL,
		ticket_type_id TEXT NOT NULL,
		tier_id TEXT NOT NULL DEFAULT '',
		quantity INTEGER NOT NULL DEFAULT 1,
		amount TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		payment TEXT NOT NULL DEFAULT '',
		answers TEXT NOT NULL DEFAULT '{}',
		project_id TEXT NOT NULL DEFAULT '',
		invite_code TEXT NOT NULL DEFAULT '',
		consent INTEGER NOT NULL DEFAULT 0,
		gateway_ref TEXT NOT NULL DEFAULT '',
		expired_at INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		paid_at INTEGER,
		cancelled_at INTEGER
	)`,

	// One non-terminal order per (user, event).
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_orders_one_pending
		ON orders(event_id, user_id) WHERE status = 'pending'`,

	`CREATE TABLE IF NOT EXISTS invites (
		id TEXT PRIMARY KEY,
		order_id TEXT NOT NULL REFERENCES orders(id),
		event_id TEXT NOT NULL,
		code TEXT NOT NULL UNIQUE,
		redeemed INTEGER NOT NULL DEFAULT 0,
		redeemed_by TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		redeemed_at INTEGER
	)`,
}

func (s *Store) migrate() error {
	for _, stmt := range schema {
		if _, err := s.db.NewQuery(stmt).Execute(); err != nil {
			return err
		}
	}
	return nil
}
