// Package store keeps small JSON documents keyed by namespace and scope.
//
// A namespace belongs to one module (daypass, circle, settings) and a scope
// is a guild id. Read-modify-write sequences go through Update, which is
// serialized per (namespace, scope) by every backend.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Update gave up because other writers kept changing the document
var ErrConflict = errors.New("store: too many concurrent updates")

type Store interface {
	// Get returns nil data and no error when the document does not exist
	Get(ctx context.Context, namespace string, scope string) ([]byte, error)
	// Update calls fn with the current document (nil if absent) and stores
	// what it returns. A nil result deletes the document. If fn fails nothing
	// is written. fn may be called more than once and must not have side
	// effects outside of its return value
	Update(ctx context.Context, namespace string, scope string, fn func(current []byte) ([]byte, error)) error
	// Scopes lists the scopes holding a document in the namespace
	Scopes(ctx context.Context, namespace string) ([]string, error)
	Close() error
}

// Load decodes the document into a T, returning the zero T if absent
func Load[T any](ctx context.Context, s Store, namespace string, scope string) (T, error) {

	var value T
	data, err := s.Get(ctx, namespace, scope)
	if err != nil {
		return value, err
	}
	if data == nil {
		return value, nil
	}
	if err := json.Unmarshal(data, &value); err != nil {
		return value, fmt.Errorf("decoding %s document of scope %s: %w", namespace, scope, err)
	}
	return value, nil
}

// Mutate is the typed version of Update. fn receives a fresh decoded copy
// of the document on every attempt
func Mutate[T any](ctx context.Context, s Store, namespace string, scope string, fn func(value *T) error) error {

	return s.Update(ctx, namespace, scope, func(current []byte) ([]byte, error) {
		var value T
		if current != nil {
			if err := json.Unmarshal(current, &value); err != nil {
				return nil, fmt.Errorf("decoding %s document of scope %s: %w", namespace, scope, err)
			}
		}
		if err := fn(&value); err != nil {
			return nil, err
		}
		return json.Marshal(value)
	})
}
