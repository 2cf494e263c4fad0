// Package icmerr defines the typed failure kinds shared by every store and
// the tool dispatcher built on top of them.
package icmerr

import (
	"errors"
	"fmt"
)

// Sentinel kinds. Callers compare with errors.Is; wrapped errors carry the
// operation-specific detail via fmt.Errorf("%w: ...").
var (
	// ErrNotFound indicates the requested id has no corresponding row.
	ErrNotFound = errors.New("not found")
	// ErrDatabase indicates a failure of the underlying storage engine.
	ErrDatabase = errors.New("database error")
	// ErrSerialization indicates malformed or unmarshalable JSON-valued data.
	ErrSerialization = errors.New("serialization error")
	// ErrConfig indicates an invalid or missing configuration value.
	ErrConfig = errors.New("config error")
	// ErrEmbedding indicates a failure of the optional embedding capability.
	// Callers treat this kind as non-fatal.
	ErrEmbedding = errors.New("embedding error")
)

// NotFoundf wraps ErrNotFound with a formatted detail message.
func NotFoundf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{ErrNotFound}, args...)...)
}

// Databasef wraps ErrDatabase with a formatted detail message.
func Databasef(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{ErrDatabase}, args...)...)
}

// Serializationf wraps ErrSerialization with a formatted detail message.
func Serializationf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{ErrSerialization}, args...)...)
}

// Configf wraps ErrConfig with a formatted detail message.
func Configf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{ErrConfig}, args...)...)
}

// Embeddingf wraps ErrEmbedding with a formatted detail message.
func Embeddingf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{ErrEmbedding}, args...)...)
}

// Is reports whether err carries the given sentinel kind.
func Is(err, kind error) bool {
	return errors.Is(err, kind)
}
