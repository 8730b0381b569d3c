package testfixtures

import (
	"io"
	"log/slog"
	"time"

	"github.com/Mostafa-DE/gatherly-sub002/internal/application"
	"github.com/Mostafa-DE/gatherly-sub002/internal/persistence"
)

// ServiceFactory assists tests with constructing application services using
// deterministic identifiers and clocks.
type ServiceFactory struct {
	Clock       *Clock
	IDGenerator *IDGenerator
	Cache       *application.ConflictCache
	Logger      *slog.Logger
}

// ServiceFactoryOption configures a ServiceFactory instance.
type ServiceFactoryOption func(*ServiceFactory)

// NewServiceFactory constructs a ServiceFactory with a clock that ticks one
// second per read and a discarding logger.
func NewServiceFactory(opts ...ServiceFactoryOption) *ServiceFactory {
	factory := &ServiceFactory{}
	for _, opt := range opts {
		opt(factory)
	}
	if factory.Clock == nil {
		factory.Clock = NewTickingClock(time.Time{}, time.Second)
	}
	if factory.IDGenerator == nil {
		factory.IDGenerator = NewIDGenerator("p")
	}
	if factory.Cache == nil {
		factory.Cache = application.NewConflictCache(64, time.Minute)
	}
	if factory.Logger == nil {
		factory.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
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

// WithLogger overrides the logger handed to services.
func WithLogger(logger *slog.Logger) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Logger = logger
	}
}

// ParticipationService builds a participation service over store.
func (f *ServiceFactory) ParticipationService(store persistence.Store) *application.ParticipationService {
	return application.NewParticipationService(store, f.Cache, f.IDGenerator.NextFunc(), f.Clock.NowFunc(), f.Logger)
}

// SessionService builds a session service over store sharing the factory's
// conflict cache.
func (f *ServiceFactory) SessionService(store persistence.Store) *application.SessionService {
	return application.NewSessionService(store, f.Cache, f.IDGenerator.NextFunc(), f.Clock.NowFunc(), f.Logger)
}
