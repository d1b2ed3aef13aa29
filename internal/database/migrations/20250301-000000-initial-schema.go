package migrations

func init() {
	Register(Migration{
		Version:     "20250301-000000",
		Description: "Initial schema",
		Up: []string{
			// Tenants - the account entity owning keys, jobs, and credits.
			// Never deleted, only deactivated.
			`CREATE TABLE IF NOT EXISTS tenants (
				id TEXT PRIMARY KEY,
				email TEXT NOT NULL,
				tier TEXT NOT NULL DEFAULT 'FREE',
				monthly_credits INTEGER NOT NULL DEFAULT 250,
				used_credits INTEGER NOT NULL DEFAULT 0,
				last_reset_at TEXT NOT NULL,
				is_active INTEGER NOT NULL DEFAULT 1,
				webhook_url TEXT,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_tenants_email ON tenants(email)`,

			// Dashboard users
			`CREATE TABLE IF NOT EXISTS users (
				id TEXT PRIMARY KEY,
				tenant_id TEXT NOT NULL REFERENCES tenants(id),
				email TEXT UNIQUE NOT NULL,
				display_name TEXT,
				avatar_url TEXT,
				password_hash TEXT,
				last_login_at TEXT,
				created_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_users_tenant_id ON users(tenant_id)`,

			// OAuth provider linkage
			`CREATE TABLE IF NOT EXISTS oauth_links (
				id TEXT PRIMARY KEY,
				user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				provider TEXT NOT NULL,
				external_id TEXT NOT NULL,
				created_at TEXT NOT NULL
			)`,
			`CREATE UNIQUE INDEX IF NOT EXISTS idx_oauth_provider_external ON oauth_links(provider, external_id)`,

			// API keys - only the SHA-256 digest of the secret is stored
			`CREATE TABLE IF NOT EXISTS api_keys (
				id TEXT PRIMARY KEY,
				tenant_id TEXT NOT NULL REFERENCES tenants(id),
				name TEXT NOT NULL,
				key_hash TEXT UNIQUE NOT NULL,
				key_prefix TEXT NOT NULL,
				is_active INTEGER NOT NULL DEFAULT 1,
				last_used_at TEXT,
				created_at TEXT NOT NULL,
				revoked_at TEXT
			)`,
			`CREATE INDEX IF NOT EXISTS idx_api_keys_tenant_id ON api_keys(tenant_id)`,
			`CREATE INDEX IF NOT EXISTS idx_api_keys_key_hash ON api_keys(key_hash)`,

			// Sessions - opaque token digest only
			`CREATE TABLE IF NOT EXISTS sessions (
				id TEXT PRIMARY KEY,
				user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				token_hash TEXT UNIQUE NOT NULL,
				csrf_token TEXT NOT NULL,
				user_agent TEXT,
				ip_address TEXT,
				expires_at TEXT NOT NULL,
				created_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_sessions_user_id ON sessions(user_id)`,
			`CREATE INDEX IF NOT EXISTS idx_sessions_expires_at ON sessions(expires_at)`,

			// Jobs - unified table for screenshot and PDF jobs.
			// html content, request headers, and cookies are never stored here.
			`CREATE TABLE IF NOT EXISTS jobs (
				id TEXT PRIMARY KEY,
				tenant_id TEXT NOT NULL REFERENCES tenants(id),
				kind TEXT NOT NULL,
				status TEXT NOT NULL DEFAULT 'PENDING',
				source_kind TEXT NOT NULL,
				source_url TEXT,
				format TEXT NOT NULL,
				options_json TEXT,
				storage_key TEXT,
				download_url TEXT,
				file_size INTEGER,
				page_count INTEGER,
				error TEXT,
				url_hash TEXT,
				url_domain TEXT,
				webhook_url TEXT,
				expires_at TEXT NOT NULL,
				created_at TEXT NOT NULL,
				completed_at TEXT
			)`,
			`CREATE INDEX IF NOT EXISTS idx_jobs_tenant_id ON jobs(tenant_id)`,
			`CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status)`,
			`CREATE INDEX IF NOT EXISTS idx_jobs_created_at ON jobs(created_at)`,
			`CREATE INDEX IF NOT EXISTS idx_jobs_expires_at ON jobs(expires_at)`,

			// Usage events - append-only credit spend log
			`CREATE TABLE IF NOT EXISTS usage_events (
				id TEXT PRIMARY KEY,
				tenant_id TEXT NOT NULL REFERENCES tenants(id),
				event_type TEXT NOT NULL,
				credits INTEGER NOT NULL,
				metadata_json TEXT,
				created_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_usage_events_tenant ON usage_events(tenant_id, created_at)`,

			// Webhook events - dedup record for incoming billing events
			`CREATE TABLE IF NOT EXISTS webhook_events (
				id TEXT PRIMARY KEY,
				provider_event_id TEXT UNIQUE NOT NULL,
				event_type TEXT NOT NULL,
				payload TEXT,
				processed INTEGER NOT NULL DEFAULT 0,
				processed_at TEXT,
				error TEXT,
				created_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_webhook_events_provider ON webhook_events(provider_event_id)`,

			// Subscriptions - billing provider linkage
			`CREATE TABLE IF NOT EXISTS subscriptions (
				id TEXT PRIMARY KEY,
				tenant_id TEXT NOT NULL REFERENCES tenants(id),
				provider_sub_id TEXT UNIQUE NOT NULL,
				provider_cust_id TEXT,
				tier TEXT NOT NULL,
				status TEXT NOT NULL,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_subscriptions_tenant ON subscriptions(tenant_id)`,
		},
	})
}
