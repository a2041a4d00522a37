// Package ledger holds a registry of Ledger implementations,
// which live in its subpackages,
// and the connection metadata for a deployed ledger program.
package ledger

import (
	"context"
	"fmt"

	"github.com/bobg/posts"
)

// Factory creates a Ledger from a configuration map.
type Factory func(context.Context, map[string]interface{}) (posts.Ledger, error)

var registry = make(map[string]Factory)

// Register makes a ledger type available to Create.
func Register(key string, f Factory) {
	registry[key] = f
}

// Create creates a ledger of the registered type key.
func Create(ctx context.Context, key string, conf map[string]interface{}) (posts.Ledger, error) {
	f, ok := registry[key]
	if !ok {
		return nil, fmt.Errorf("key %s not found in registry", key)
	}
	return f(ctx, conf)
}
