package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE kv_entries (
				key TEXT PRIMARY KEY,
				value JSONB NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);
		`,
		2: `
			-- Prefix listing relies on text_pattern_ops so LIKE 'prefix%' can use the index
			CREATE INDEX idx_kv_entries_key_pattern ON kv_entries (key text_pattern_ops);
			CREATE INDEX idx_kv_entries_updated_at ON kv_entries (updated_at);
		`,
	}
}
