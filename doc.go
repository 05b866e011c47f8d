// Package memorypg provides a memory management engine for AI coding
// assistants, backed by PostgreSQL.
//
// MemoryPG keeps an assistant's working context inside a token budget and
// its conversation history inside configurable size, count, and age bounds.
// It is opinionated (Anthropic + PostgreSQL + pgx) and library-shaped: one
// Engine per application, no global state.
//
// # Key Features
//
//   - Token-budgeted context selection with per-source priorities and
//     per-query boosts for the files the user is working on
//   - Automatic conversation compression: LLM summarization plus archival,
//     driven by token, count, and age triggers
//   - Six-dimension message importance scoring that protects high-value
//     turns from compression
//   - Long-term knowledge extraction (file paths, decisions, code patterns,
//     FAQs, usage preferences) with dedup-by-key persistence
//   - Relevance-ranked memory retrieval with proactive reminders
//   - Durable PostgreSQL storage with trigger-maintained session counters,
//     plus an in-memory store for tests and embedded use
//
// # Quick Start
//
// Create an engine over a store:
//
//	pool, _ := pgxpool.New(ctx, os.Getenv("DATABASE_URL"))
//	store := storage.NewPostgresStore(pool)
//	client := anthropic.NewClient()
//	engine, err := memorypg.New(store, memorypg.DefaultConfig(),
//	    memorypg.WithAnthropicClient(&client),
//	)
//	defer engine.Close()
//
// Record a conversation; compression schedules itself:
//
//	session, _ := engine.CreateSession(ctx, "/work/project", "claude", "refactor auth")
//	engine.SaveMessage(ctx, &types.Message{
//	    SessionID: session.ID,
//	    Role:      types.RoleUser,
//	    Content:   "the login handler in src/auth.go panics on empty tokens",
//	})
//
// Build a budgeted prompt from live context:
//
//	engine.UpsertContext(&types.ContextEntry{
//	    Type:    types.TypeFile,
//	    Source:  types.SourceUserSelection,
//	    Content: types.EntryContent{Path: "src/auth.go", Text: code},
//	})
//	prompt, res, _ := engine.BuildPrompt(&selection.Request{
//	    CurrentFile: "src/auth.go",
//	}, selection.FormatMarkdown)
//
// # Compression
//
// A session is compressed when its active history crosses any configured
// threshold. The strategy follows a fixed decision order: an exceeded age
// threshold archives old messages wholesale, an exceeded token threshold
// archives oldest-first toward the target ratio, and everything else
// archives the least important messages while protecting high scorers. The
// summary row is always persisted before a single message is archived, and
// a failed pass reports itself in the result instead of interrupting the
// conversation:
//
//	result := engine.Compress(ctx, session.ID)
//	if !result.Success {
//	    log.Printf("compression skipped: %v", result.Error)
//	}
//
// # Long-Term Memory
//
// Knowledge survives across sessions. Initialize the memory layer once,
// then extract and retrieve:
//
//	engine.Init(ctx)
//	engine.ExtractSession(ctx, session.ID)
//	hits, _ := engine.FindRelevantMemories(ctx, "auth.go", "/work/project", 5)
//	if remind, text, _ := engine.ShouldRemind(ctx, "auth.go", "/work/project"); remind {
//	    fmt.Println(text)
//	}
package memorypg
