package commonModels

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrSourceNotFound      = errors.New("source not found")
	ErrDimensionMismatch   = errors.New("embedding dimension does not match the collection, re-create the source with the current embedding backend")
	ErrStoreLocked         = errors.New("local vector store is locked by another running process")
	ErrEmptyCollectionName = errors.New("empty collection name")
	ErrUnauthorized        = errors.New("not authorized, check user_id and api_token")
	ErrRemoteUnavailable   = errors.New("remote service unavailable")
	ErrNoSources           = errors.New("no sources could be searched")
)

// InvalidSourceError is returned when a requested source is not registered.
type InvalidSourceError struct {
	Unknown []string
	Valid   []string
}

func (e *InvalidSourceError) Error() string {
	msg := fmt.Sprintf("unknown source(s): %s", strings.Join(e.Unknown, ", "))
	if len(e.Valid) == 0 {
		return msg + " (no sources have been added yet)"
	}
	return msg + "; valid sources: " + strings.Join(e.Valid, ", ")
}

func (e *InvalidSourceError) Is(target error) bool {
	return target == ErrSourceNotFound
}
