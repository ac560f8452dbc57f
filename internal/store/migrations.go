package store

type migration struct {
	name string
	sql  string
}

var migrations = []migration{
	{
		name: "create users and sessions",
		sql: `
			CREATE TABLE IF NOT EXISTS users (
				id TEXT PRIMARY KEY,
				username TEXT NOT NULL,
				email TEXT UNIQUE NOT NULL COLLATE NOCASE,
				password_hash TEXT NOT NULL DEFAULT '',
				avatar TEXT NOT NULL DEFAULT '',
				created_at TEXT NOT NULL
			);
			CREATE TABLE IF NOT EXISTS sessions (
				id TEXT PRIMARY KEY,
				user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				expires_at INTEGER NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id);
		`,
	},
	{
		name: "create workspaces",
		sql: `
			CREATE TABLE IF NOT EXISTS workspaces (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				slug TEXT UNIQUE NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				owner_id TEXT NOT NULL REFERENCES users(id),
				created_at TEXT NOT NULL
			);
			CREATE TABLE IF NOT EXISTS workspace_members (
				workspace_id TEXT NOT NULL REFERENCES workspaces(id) ON DELETE CASCADE,
				user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				role TEXT NOT NULL DEFAULT 'member',
				joined_at TEXT NOT NULL,
				PRIMARY KEY (workspace_id, user_id)
			);
			CREATE INDEX IF NOT EXISTS idx_workspace_members_user ON workspace_members(user_id);
		`,
	},
	{
		name: "create channels and direct conversations",
		sql: `
			CREATE TABLE IF NOT EXISTS channels (
				id TEXT PRIMARY KEY,
				workspace_id TEXT NOT NULL REFERENCES workspaces(id) ON DELETE CASCADE,
				name TEXT NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				topic TEXT NOT NULL DEFAULT '',
				is_private INTEGER NOT NULL DEFAULT 0,
				created_by TEXT NOT NULL REFERENCES users(id),
				created_at TEXT NOT NULL,
				UNIQUE (workspace_id, name)
			);
			CREATE TABLE IF NOT EXISTS channel_members (
				channel_id TEXT NOT NULL REFERENCES channels(id) ON DELETE CASCADE,
				user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				PRIMARY KEY (channel_id, user_id)
			);
			CREATE TABLE IF NOT EXISTS dm_conversations (
				id TEXT PRIMARY KEY,
				user1_id TEXT NOT NULL REFERENCES users(id),
				user2_id TEXT NOT NULL REFERENCES users(id),
				created_at TEXT NOT NULL,
				UNIQUE (user1_id, user2_id)
			);
		`,
	},
	{
		name: "create messages",
		sql: `
			CREATE TABLE IF NOT EXISTS messages (
				id TEXT PRIMARY KEY,
				channel_id TEXT REFERENCES channels(id) ON DELETE CASCADE,
				dm_conversation_id TEXT REFERENCES dm_conversations(id) ON DELETE CASCADE,
				thread_id TEXT REFERENCES messages(id) ON DELETE CASCADE,
				user_id TEXT NOT NULL REFERENCES users(id),
				content TEXT NOT NULL DEFAULT '',
				file_url TEXT,
				file_name TEXT,
				created_at TEXT NOT NULL,
				edited_at TEXT,
				CHECK ((channel_id IS NULL) != (dm_conversation_id IS NULL))
			);
			CREATE INDEX IF NOT EXISTS idx_messages_channel ON messages(channel_id, created_at);
			CREATE INDEX IF NOT EXISTS idx_messages_dm ON messages(dm_conversation_id, created_at);
			CREATE INDEX IF NOT EXISTS idx_messages_thread ON messages(thread_id, created_at);
		`,
	},
	{
		name: "create reactions and pins",
		sql: `
			CREATE TABLE IF NOT EXISTS message_reactions (
				id TEXT PRIMARY KEY,
				message_id TEXT NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
				user_id TEXT NOT NULL REFERENCES users(id),
				emoji TEXT NOT NULL,
				created_at TEXT NOT NULL,
				UNIQUE (message_id, user_id, emoji)
			);
			CREATE TABLE IF NOT EXISTS pinned_messages (
				message_id TEXT PRIMARY KEY REFERENCES messages(id) ON DELETE CASCADE,
				channel_id TEXT,
				dm_conversation_id TEXT,
				pinned_by_user_id TEXT NOT NULL REFERENCES users(id),
				pinned_at TEXT NOT NULL
			);
		`,
	},
	{
		name: "create presence and read markers",
		sql: `
			CREATE TABLE IF NOT EXISTS user_presence (
				user_id TEXT PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
				status TEXT NOT NULL DEFAULT 'offline',
				custom_status TEXT NOT NULL DEFAULT '',
				status_emoji TEXT NOT NULL DEFAULT '',
				last_activity TEXT NOT NULL
			);
			CREATE TABLE IF NOT EXISTS channel_reads (
				user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				channel_id TEXT NOT NULL REFERENCES channels(id) ON DELETE CASCADE,
				last_read_at TEXT NOT NULL,
				PRIMARY KEY (user_id, channel_id)
			);
			CREATE TABLE IF NOT EXISTS dm_reads (
				user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				dm_conversation_id TEXT NOT NULL REFERENCES dm_conversations(id) ON DELETE CASCADE,
				last_read_at TEXT NOT NULL,
				PRIMARY KEY (user_id, dm_conversation_id)
			);
		`,
	},
}
