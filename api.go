// Licensed under the Apache License, Version 2.0
// Details: https://raw.githubusercontent.com/square/permitbucket/master/LICENSE

package permitbucket

import (
	"context"
	"time"

	"github.com/gorilla/mux"

	"github.com/square/permitbucket/admin"
	"github.com/square/permitbucket/config"
	"github.com/square/permitbucket/events"
	"github.com/square/permitbucket/logging"
	"github.com/square/permitbucket/stats"
)

// The Server interface is what you get when you create a new permitbucket service.
type Server interface {
	Start() (bool, error)
	Stop() (bool, error)
	SetLogger(logger logging.Logger)
	SetListener(listener events.Listener, eventQueueBufSize int)
	SetStatsListener(listener stats.Listener)
	ServeAdminConsole(router *mux.Router)

	// Allow takes a permit from the named bucket and uses it to acquire tokens. A refused caller
	// gets a *BucketError; for capacity errors it carries how long to wait, from now, before trying
	// again. Allow never blocks or sleeps.
	Allow(ctx context.Context, name string, tokens uint64) (time.Duration, error)

	GetServerAdministrable() admin.Administrable
}

// NewWithDefaultConfig creates a service holding an in-memory copy of the default config.
func NewWithDefaultConfig() Server {
	return New(config.NewMemoryConfig(config.NewDefaultServiceConfig()), config.NewReaperConfig(), 0)
}

// New creates a new permitbucket service, configured from whatever persister holds. Config
// changes are applied after a random delay of up to maxJitterMillis, so a fleet of services
// sharing a persister doesn't reload in lockstep.
func New(persister config.ConfigPersister, reaperConfig config.ReaperConfig, maxJitterMillis int) Server {
	return &server{
		persister:       persister,
		reaperConfig:    reaperConfig,
		maxJitterMillis: maxJitterMillis,
		clock:           SystemClock,
		stopper:         make(chan struct{})}
}
