package storage

// Schema is the full DDL for the memorypg tables, indexes, the derived
// active-message view, and the counter triggers.
//
// Session counters are maintained exclusively by the triggers below. The
// increment/decrement arithmetic must be preserved exactly: insert adds to
// the active counters, an archive transition moves a message from the
// active counters to the archived counters, and a soft delete removes it
// from whichever side currently holds it. Any drift is repaired only by
// ReconcileSessionCounters.
const Schema = `
CREATE TABLE IF NOT EXISTS sessions (
    id              TEXT PRIMARY KEY,
    title           TEXT NOT NULL DEFAULT '',
    workspace_path  TEXT NOT NULL DEFAULT '',
    engine_id       TEXT NOT NULL DEFAULT '',
    message_count   INTEGER NOT NULL DEFAULT 0,
    total_tokens    INTEGER NOT NULL DEFAULT 0,
    archived_count  INTEGER NOT NULL DEFAULT 0,
    archived_tokens INTEGER NOT NULL DEFAULT 0,
    is_deleted      BOOLEAN NOT NULL DEFAULT FALSE,
    is_pinned       BOOLEAN NOT NULL DEFAULT FALSE,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_sessions_workspace_path ON sessions (workspace_path);

CREATE TABLE IF NOT EXISTS messages (
    id               TEXT PRIMARY KEY,
    session_id       TEXT NOT NULL REFERENCES sessions(id),
    role             TEXT NOT NULL,
    content          TEXT NOT NULL DEFAULT '',
    tokens           INTEGER NOT NULL DEFAULT 0,
    is_archived      BOOLEAN NOT NULL DEFAULT FALSE,
    archived_at      TIMESTAMPTZ,
    importance_score INTEGER NOT NULL DEFAULT 0,
    is_deleted       BOOLEAN NOT NULL DEFAULT FALSE,
    tool_calls       JSONB,
    ts               TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_messages_session ON messages (session_id);
CREATE INDEX IF NOT EXISTS idx_messages_session_archived ON messages (session_id, is_archived);
CREATE INDEX IF NOT EXISTS idx_messages_session_ts ON messages (session_id, ts DESC);

CREATE TABLE IF NOT EXISTS conversation_summaries (
    id            TEXT PRIMARY KEY,
    session_id    TEXT NOT NULL REFERENCES sessions(id),
    start_time    TIMESTAMPTZ NOT NULL,
    end_time      TIMESTAMPTZ NOT NULL,
    message_count INTEGER NOT NULL DEFAULT 0,
    total_tokens  INTEGER NOT NULL DEFAULT 0,
    summary       TEXT NOT NULL,
    key_points    JSONB,
    model_used    TEXT NOT NULL DEFAULT '',
    cost_tokens   INTEGER NOT NULL DEFAULT 0,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_summaries_session ON conversation_summaries (session_id);

CREATE TABLE IF NOT EXISTS long_term_memories (
    id             TEXT PRIMARY KEY,
    type           TEXT NOT NULL,
    key            TEXT NOT NULL,
    value          JSONB NOT NULL,
    value_text     TEXT NOT NULL DEFAULT '',
    workspace_path TEXT NOT NULL DEFAULT '',
    session_id     TEXT,
    hit_count      INTEGER NOT NULL DEFAULT 0,
    last_hit_at    TIMESTAMPTZ,
    confidence     DOUBLE PRECISION NOT NULL DEFAULT 0,
    is_deleted     BOOLEAN NOT NULL DEFAULT FALSE,
    created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_memories_key_live
    ON long_term_memories (key) WHERE NOT is_deleted;
CREATE INDEX IF NOT EXISTS idx_memories_type ON long_term_memories (type);
CREATE INDEX IF NOT EXISTS idx_memories_workspace ON long_term_memories (workspace_path);
CREATE INDEX IF NOT EXISTS idx_memories_hit_count ON long_term_memories (hit_count DESC);

CREATE OR REPLACE VIEW session_activity AS
SELECT
    session_id,
    COUNT(*) FILTER (WHERE NOT is_archived AND NOT is_deleted)          AS active_count,
    COALESCE(SUM(tokens) FILTER (WHERE NOT is_archived AND NOT is_deleted), 0) AS active_tokens,
    COUNT(*) FILTER (WHERE is_archived AND NOT is_deleted)              AS archived_count,
    COALESCE(SUM(tokens) FILTER (WHERE is_archived AND NOT is_deleted), 0)     AS archived_tokens
FROM messages
GROUP BY session_id;

CREATE OR REPLACE FUNCTION memorypg_message_insert() RETURNS TRIGGER AS $$
BEGIN
    IF NOT NEW.is_deleted AND NOT NEW.is_archived THEN
        UPDATE sessions SET
            message_count = message_count + 1,
            total_tokens  = total_tokens + NEW.tokens,
            updated_at    = NOW()
        WHERE id = NEW.session_id;
    ELSIF NOT NEW.is_deleted AND NEW.is_archived THEN
        UPDATE sessions SET
            archived_count  = archived_count + 1,
            archived_tokens = archived_tokens + NEW.tokens,
            updated_at      = NOW()
        WHERE id = NEW.session_id;
    END IF;
    RETURN NEW;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS trg_message_insert ON messages;
CREATE TRIGGER trg_message_insert
    AFTER INSERT ON messages
    FOR EACH ROW EXECUTE FUNCTION memorypg_message_insert();

CREATE OR REPLACE FUNCTION memorypg_message_update() RETURNS TRIGGER AS $$
BEGIN
    -- Archive transition: active -> archived.
    IF NOT OLD.is_deleted AND NOT NEW.is_deleted
        AND NOT OLD.is_archived AND NEW.is_archived THEN
        UPDATE sessions SET
            message_count   = message_count - 1,
            total_tokens    = total_tokens - OLD.tokens,
            archived_count  = archived_count + 1,
            archived_tokens = archived_tokens + NEW.tokens,
            updated_at      = NOW()
        WHERE id = NEW.session_id;
    -- Soft delete of an active message.
    ELSIF NOT OLD.is_deleted AND NEW.is_deleted AND NOT OLD.is_archived THEN
        UPDATE sessions SET
            message_count = message_count - 1,
            total_tokens  = total_tokens - OLD.tokens,
            updated_at    = NOW()
        WHERE id = NEW.session_id;
    -- Soft delete of an archived message.
    ELSIF NOT OLD.is_deleted AND NEW.is_deleted AND OLD.is_archived THEN
        UPDATE sessions SET
            archived_count  = archived_count - 1,
            archived_tokens = archived_tokens - OLD.tokens,
            updated_at      = NOW()
        WHERE id = NEW.session_id;
    END IF;
    RETURN NEW;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS trg_message_update ON messages;
CREATE TRIGGER trg_message_update
    AFTER UPDATE ON messages
    FOR EACH ROW EXECUTE FUNCTION memorypg_message_update();
`
