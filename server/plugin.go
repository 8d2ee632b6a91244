package main

import (
	"sync"
	"time"

	"github.com/mattermost/mattermost/server/public/model"
	"github.com/mattermost/mattermost/server/public/plugin"
	"github.com/mattermost/mattermost/server/public/pluginapi"
	"github.com/pkg/errors"

	"github.com/mattermost/mattermost-plugin-safewalk/server/location"
	"github.com/mattermost/mattermost-plugin-safewalk/server/logger"
	"github.com/mattermost/mattermost-plugin-safewalk/server/poster"
	"github.com/mattermost/mattermost-plugin-safewalk/server/session"
	"github.com/mattermost/mattermost-plugin-safewalk/server/tracker"
)

const (
	// SessionSweepInterval is how often idle walking sessions are pruned
	SessionSweepInterval = 5 * time.Minute

	// SessionIdleTimeout is how long a session that is not tracking survives without requests
	SessionIdleTimeout = 30 * time.Minute
)

// Plugin implements the interface expected by the Mattermost server to communicate between the server and plugin processes.
type Plugin struct {
	plugin.MattermostPlugin

	// client is the Mattermost server API client.
	client *pluginapi.Client

	// configurationLock synchronizes access to the configuration.
	configurationLock sync.RWMutex

	// configuration is the active plugin configuration. Consult getConfiguration and
	// setConfiguration for usage.
	configuration *configuration

	// registry holds every user's walking session.
	registry *session.Registry

	stopSweep chan struct{}
	sweepDone chan struct{}

	// botID is the user that sends alerts.
	botID string

	// services caches the safety service client for the current configuration.
	services serviceCache
}

// OnActivate is invoked when the plugin is activated. If an error is returned, the plugin will be deactivated.
func (p *Plugin) OnActivate() error {
	p.client = pluginapi.NewClient(p.API, p.Driver)
	p.registry = session.NewRegistry()

	config := p.getConfiguration()

	botID, err := p.API.EnsureBotUser(&model.Bot{
		Username:    config.botUsername(),
		DisplayName: config.botDisplayName(),
		Description: "Warns you about reported crimes near your walking route",
	})
	if err != nil {
		return errors.Wrap(err, "failed to ensure bot user")
	}
	p.botID = botID

	p.API.LogInfo("Bot user initialized", "botID", botID, "username", config.botUsername())

	if config.ServiceURL == "" {
		p.API.LogWarn("Safety service URL is not configured; walks cannot be started until it is set")
	}

	p.startSessionSweep(SessionSweepInterval, SessionIdleTimeout)

	return nil
}

// OnDeactivate is invoked when the plugin is deactivated.
func (p *Plugin) OnDeactivate() error {
	p.stopSessionSweep()

	if p.registry != nil {
		count := p.registry.Count()
		p.registry.UnregisterAll()
		p.API.LogInfo("Closed all walking sessions", "count", count)
	}

	return nil
}

// startSessionSweep prunes sessions that are not tracking and have been
// unused for longer than idle, checking every interval.
func (p *Plugin) startSessionSweep(interval, idle time.Duration) {
	p.stopSweep = make(chan struct{})
	p.sweepDone = make(chan struct{})

	go p.sweepLoop(p.registry, interval, idle, p.stopSweep, p.sweepDone)
}

// stopSessionSweep stops the sweep loop and waits for it to exit.
func (p *Plugin) stopSessionSweep() {
	if p.stopSweep == nil {
		return
	}

	close(p.stopSweep)
	<-p.sweepDone
	p.stopSweep = nil
	p.sweepDone = nil
}

func (p *Plugin) sweepLoop(registry *session.Registry, interval, idle time.Duration, stop <-chan struct{}, done chan<- struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	defer close(done)

	for {
		select {
		case now := <-ticker.C:
			if pruned := registry.PruneIdle(now.Add(-idle)); pruned > 0 {
				p.API.LogDebug("Pruned idle walking sessions", "count", pruned, "remaining", registry.Count())
			}
		case <-stop:
			return
		}
	}
}

// logger returns the structured logger handed to the tracking engine.
func (p *Plugin) logger() logger.Logger {
	if p.client == nil {
		return logger.Nop()
	}
	return &p.client.Log
}

// newSession builds a session for a user from the current configuration.
func (p *Plugin) newSession(userID string) *session.Session {
	config := p.getConfiguration()
	feed := location.NewFeed()
	service := &serviceProxy{plugin: p}

	trk := tracker.New(tracker.Config{
		Service:             service,
		Sharer:              service,
		Stream:              feed,
		Prompter:            poster.New(p.API, p.botID, userID),
		Policy:              config.samplingPolicy(),
		DegradedThreshold:   config.degradedThreshold(),
		ArrivalRadiusMeters: config.ArrivalRadiusMeters,
		QueryTimeout:        config.requestTimeout(),
		Logger:              p.logger(),
	})

	s := session.New(userID, feed, trk)
	p.API.LogDebug("Created walking session", "userID", userID, "sessionID", s.ID)
	return s
}

// See https://developers.mattermost.com/extend/plugins/server/reference/
