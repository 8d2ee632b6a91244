package main

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/mattermost/mattermost-plugin-safewalk/server/geo"
	"github.com/mattermost/mattermost-plugin-safewalk/server/safety"
)

var errServiceNotConfigured = errors.New("safety service URL is not configured")

// serviceCache rebuilds the safety client whenever its settings change.
type serviceCache struct {
	mu      sync.Mutex
	client  *safety.Client
	baseURL string
	timeout time.Duration
}

// getService returns a client for the configured service.
func (p *Plugin) getService() (*safety.Client, error) {
	config := p.getConfiguration()
	if config.ServiceURL == "" {
		return nil, errServiceNotConfigured
	}

	timeout := config.requestTimeout()

	p.services.mu.Lock()
	defer p.services.mu.Unlock()

	if p.services.client == nil || p.services.baseURL != config.ServiceURL || p.services.timeout != timeout {
		p.services.client = safety.NewClient(config.ServiceURL, timeout, p.logger())
		p.services.baseURL = config.ServiceURL
		p.services.timeout = timeout
	}

	return p.services.client, nil
}

// serviceProxy resolves the current client on every call so configuration
// changes reach sessions that are already running.
type serviceProxy struct {
	plugin *Plugin
}

func (s *serviceProxy) RequestRoute(ctx context.Context, origin geo.Coordinate, destination string) (*safety.Route, error) {
	client, err := s.plugin.getService()
	if err != nil {
		return nil, err
	}
	return client.RequestRoute(ctx, origin, destination)
}

func (s *serviceProxy) CheckProximity(ctx context.Context, at geo.Coordinate) (*safety.ProximityResult, error) {
	client, err := s.plugin.getService()
	if err != nil {
		return nil, err
	}
	return client.CheckProximity(ctx, at)
}

func (s *serviceProxy) ShareLocation(ctx context.Context, at geo.Coordinate) error {
	client, err := s.plugin.getService()
	if err != nil {
		return err
	}
	return client.ShareLocation(ctx, at)
}
