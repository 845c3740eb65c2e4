/*
Package log provides structured logging for ACS using zerolog.

The log package wraps the zerolog library to provide JSON-structured logging
with component-specific loggers, configurable log levels, and helper functions
for common logging patterns. Child loggers carry the identifiers the rest of
the system correlates on: component, tenant_id, correlation_id.

# Usage

Initialize once at process startup:

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
	})

Create component loggers near where they are used:

	logger := log.WithComponent("process-manager")
	logger.Info().Str("tenant_id", id).Msg("worker started")

Gateway request paths should prefer WithCorrelationID so every line ties back
to the originating HTTP request.
*/
package log
