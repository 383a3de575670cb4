// Package observability provides monitoring and debugging capabilities for
// the orchestration core through metrics, structured logging, and a
// per-run event timeline.
//
// # Overview
//
// The package covers three surfaces:
//
//  1. Metrics - Quantitative measurements using Prometheus
//  2. Logging - Structured logs with sensitive data redaction
//  3. Events - A per-run timeline of tool/LLM lifecycle events, recorded in
//     memory and surfaced through the /trace command
//
// # Metrics
//
// Metrics are implemented using Prometheus client libraries and track:
//   - LLM request latency and token usage, per provider/model
//   - Tool execution latency and outcome
//   - Error rates by component and type
//
// Example usage:
//
//	metrics := observability.NewMetrics()
//	// ... serve metrics.Registry() via promhttp.HandlerFor ...
//
//	start := time.Now()
//	// ... make LLM request ...
//	metrics.RecordLLMRequest("anthropic", "claude-sonnet-4", "success",
//	    time.Since(start).Seconds(), promptTokens, completionTokens)
//
// # Logging
//
// Logging is built on Go's slog package with enhancements for:
//   - Automatic request/run ID correlation from context
//   - Sensitive data redaction (API keys, passwords, tokens)
//   - JSON output for production, text for development
//   - Configurable log levels
//
// Example usage:
//
//	logger := observability.NewLogger(observability.LogConfig{
//	    Level:  "info",
//	    Format: "json",
//	})
//
//	ctx = observability.AddRequestID(ctx, requestID)
//	logger.Info(ctx, "processing turn", "agent", agentName)
//
// Components that are typed against *slog.Logger (persistence.Store,
// tool.Registry, turn.Engine) take Logger.Slog() rather than the wrapper
// itself.
//
// # Events
//
// EventRecorder backed by a MemoryEventStore records each run's lifecycle
// (RecordRunStart/RecordRunEnd, RecordToolStart/RecordToolEnd) so that a
// completed turn's Timeline can be rendered on demand without needing an
// external tracing backend.
//
// # Security Considerations
//
// The logging component automatically redacts:
//   - API keys (Anthropic, OpenAI, Gemini, generic)
//   - Passwords and secrets
//   - JWT tokens
//   - Bearer tokens
//   - Custom patterns via configuration
package observability
