// Package content holds a registry of ContentStore implementations,
// which live in its subpackages.
// Importing a subpackage registers its store under a short name,
// so a store can be chosen by configuration.
package content

import (
	"context"
	"fmt"
	"sort"

	"github.com/pkg/errors"

	"github.com/bobg/posts"
)

// Factory creates a ContentStore from a configuration map.
type Factory func(context.Context, map[string]interface{}) (posts.ContentStore, error)

var registry = make(map[string]Factory)

// Register makes a store type available to Create.
func Register(key string, f Factory) {
	registry[key] = f
}

// Create creates a store of the registered type key.
func Create(ctx context.Context, key string, conf map[string]interface{}) (posts.ContentStore, error) {
	f, ok := registry[key]
	if !ok {
		return nil, fmt.Errorf("key %s not found in registry", key)
	}
	return f(ctx, conf)
}

// Types lists the registered store types.
func Types() []string {
	var result []string
	for k := range registry {
		result = append(result, k)
	}
	sort.Strings(result)
	return result
}

// Nested creates the store described by the "nested" parameter of conf.
// It is for stores that wrap other stores.
func Nested(ctx context.Context, conf map[string]interface{}) (posts.ContentStore, error) {
	nested, ok := conf["nested"].(map[string]interface{})
	if !ok {
		return nil, errors.New(`missing "nested" parameter`)
	}
	nestedType, ok := nested["type"].(string)
	if !ok {
		return nil, errors.New(`"nested" parameter missing "type"`)
	}
	s, err := Create(ctx, nestedType, nested)
	return s, errors.Wrap(err, "creating nested store")
}

// AsLister returns s as a posts.Lister,
// or an error if s cannot list its content.
// Decorators use it to pass ListIDs through to the store they wrap.
func AsLister(s posts.ContentStore) (posts.Lister, error) {
	l, ok := s.(posts.Lister)
	if !ok {
		return nil, fmt.Errorf("%T cannot list its content", s)
	}
	return l, nil
}
