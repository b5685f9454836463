/*
Package log provides structured logging for the auth bridge using zerolog.

The log package wraps the zerolog library to provide JSON-structured logging
with component-specific child loggers, configurable log levels, and helper
functions for common logging patterns. All logs include timestamps and support
filtering by severity level for production debugging.
*/
package log
