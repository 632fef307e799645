package history

import (
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/recenthistory/errors"
)

// ErrUnknownStoreType is returned when no factory is registered under a name.
var ErrUnknownStoreType = errors.New("unknown history store type")

// Defaults shared by the durable backends.
const (
	DefaultPurgeInterval = time.Minute
	DefaultEntryTTL      = 2 * time.Minute
)

// Options configures a store created through a Factory.
type Options struct {
	// Connection is the backend target: a SQLite path or a PostgreSQL DSN.
	Connection      string
	TablePrefix     string
	PurgeInterval   time.Duration
	EntryTTL        time.Duration
	BackgroundPurge bool
	Logger          *zap.SugaredLogger
}

// WithDefaults fills unset durations with their defaults.
func (o Options) WithDefaults() Options {
	if o.PurgeInterval <= 0 {
		o.PurgeInterval = DefaultPurgeInterval
	}
	if o.EntryTTL <= 0 {
		o.EntryTTL = DefaultEntryTTL
	}
	return o
}

// Factory builds a Store from Options.
type Factory func(ctx context.Context, opts Options) (Store, error)

// Factories maps store type names to constructors.
type Factories struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewFactories returns an empty registry.
func NewFactories() *Factories {
	return &Factories{factories: make(map[string]Factory)}
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Register adds or replaces the factory for name. Names are case-insensitive.
func (f *Factories) Register(name string, factory Factory) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.factories[normalize(name)] = factory
}

// Names lists registered store types in sorted order.
func (f *Factories) Names() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	names := make([]string, 0, len(f.factories))
	for name := range f.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Create builds a store of the named type.
func (f *Factories) Create(ctx context.Context, name string, opts Options) (Store, error) {
	f.mu.RLock()
	factory, ok := f.factories[normalize(name)]
	f.mu.RUnlock()

	if !ok {
		return nil, errors.WithHintf(
			errors.Wrapf(ErrUnknownStoreType, "%q", name),
			"available store types: %s", strings.Join(f.Names(), ", "),
		)
	}

	store, err := factory(ctx, opts.WithDefaults())
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create %s history store", normalize(name))
	}
	return store, nil
}

// Close releases resources held by s when it owns any.
func Close(s Store) error {
	if c, ok := s.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
