package testfixtures

import (
	"io"
	"log/slog"
	"time"

	"github.com/example/lounge-reconciler/internal/docstore/memory"
	"github.com/example/lounge-reconciler/internal/notify"
)

// ServiceFactory assists tests with constructing job collaborators using
// deterministic identifiers, clocks and a recording push client.
type ServiceFactory struct {
	Clock       *Clock
	IDGenerator *IDGenerator
	Push        *PushRecorder
	Logger      *slog.Logger
}

// ServiceFactoryOption configures a ServiceFactory instance.
type ServiceFactoryOption func(*ServiceFactory)

// NewServiceFactory constructs a ServiceFactory with defaults. Logs are
// discarded unless WithLogger is given.
func NewServiceFactory(opts ...ServiceFactoryOption) *ServiceFactory {
	factory := &ServiceFactory{
		Clock:       NewClock(time.Time{}),
		IDGenerator: NewIDGenerator("id"),
		Push:        NewPushRecorder(),
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(factory)
	}
	if factory.Clock == nil {
		factory.Clock = NewClock(time.Time{})
	}
	if factory.IDGenerator == nil {
		factory.IDGenerator = NewIDGenerator("id")
	}
	if factory.Push == nil {
		factory.Push = NewPushRecorder()
	}
	return factory
}

// WithClock overrides the clock used by the factory.
func WithClock(clock *Clock) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Clock = clock
	}
}

// WithIDGenerator overrides the identifier generator used by the factory.
func WithIDGenerator(generator *IDGenerator) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.IDGenerator = generator
	}
}

// WithLogger overrides the discarding logger.
func WithLogger(logger *slog.Logger) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		if logger != nil {
			factory.Logger = logger
		}
	}
}

// NewMemoryStore returns an empty in-memory store.
func (f *ServiceFactory) NewMemoryStore(opts ...memory.Option) *memory.Store {
	return memory.New(opts...)
}

// NewDispatcher builds a dispatcher that sends through the factory's
// recorder and purges tokens in store.
func (f *ServiceFactory) NewDispatcher(store notify.Committer, opts ...notify.Option) *notify.Dispatcher {
	opts = append([]notify.Option{notify.WithLogger(f.Logger)}, opts...)
	return notify.NewDispatcher(f.Push, store, opts...)
}
