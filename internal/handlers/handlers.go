package handlers

import (
	"context"
	"time"

	"media-server/internal/codec"
	"media-server/internal/events"
	"media-server/internal/hls"
	"media-server/internal/media"
	"media-server/internal/probe"
	"media-server/internal/startup"
	"media-server/internal/transcoder"
)

// MediaProber describes media files. *probe.Prober satisfies it.
type MediaProber interface {
	Probe(ctx context.Context, path string) probe.Result
}

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependencies are the components the handlers serve requests with.
type Dependencies struct {
	Supervisor *transcoder.Supervisor
	Sessions   *hls.SessionManager
	Prober     MediaProber
	Selector   *codec.Selector
	Previews   *media.PreviewGenerator
	DB         Pinger
	Hub        *events.Hub
}

// Handlers holds the HTTP handlers of the streaming engine.
type Handlers struct {
	supervisor *transcoder.Supervisor
	sessions   *hls.SessionManager
	prober     MediaProber
	selector   *codec.Selector
	previews   *media.PreviewGenerator
	db         Pinger
	hub        *events.Hub
	mediaDir   string
	startTime  time.Time
}

// New creates the handlers.
func New(config *startup.Config, deps Dependencies) *Handlers {
	return &Handlers{
		supervisor: deps.Supervisor,
		sessions:   deps.Sessions,
		prober:     deps.Prober,
		selector:   deps.Selector,
		previews:   deps.Previews,
		db:         deps.DB,
		hub:        deps.Hub,
		mediaDir:   config.MediaDir,
		startTime:  time.Now(),
	}
}
