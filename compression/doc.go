// Package compression keeps conversation history inside budget by
// summarizing and archiving old or low-value messages.
//
// A Scheduler watches three triggers (total active tokens, active message
// count, and oldest message age) and picks exactly one strategy per pass:
// the age threshold selects Time, otherwise the token threshold selects
// Size, otherwise Importance. Every pass follows the same pipeline:
// summarize the selected slice with the remote LLM, persist the
// ConversationSummary, then archive the messages. The archive step never
// runs before a summary row exists, so a failure cannot leave a session
// partially archived without its summary.
//
// Compression never panics and never returns an error from Compress:
// failures are reported in the CompressionResult and the caller continues
// against uncompressed history.
package compression
