package main

import (
	"reflect"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/mattermost/mattermost-plugin-safewalk/server/location"
	"github.com/mattermost/mattermost-plugin-safewalk/server/safety"
	"github.com/mattermost/mattermost-plugin-safewalk/server/tracker"
)

const (
	defaultBotUsername    = "safewalk"
	defaultBotDisplayName = "SafeWalk"
)

// configuration captures the plugin's external configuration as exposed in the Mattermost server
// configuration, as well as values computed from the configuration. Any public fields will be
// deserialized from the Mattermost server configuration in OnConfigurationChange.
//
// As plugins are inherently concurrent (hooks being called asynchronously), and the plugin
// configuration can change at any time, access to the configuration must be synchronized. The
// strategy used in this plugin is to guard a pointer to the configuration, and clone the entire
// struct whenever it changes.
//
// Tracker settings apply to sessions created after the change. The service URL and timeout
// apply to the next request of every session.
type configuration struct {
	// ServiceURL is the base URL of the routing and crime-proximity service.
	ServiceURL string `validate:"omitempty,url"`

	// RequestTimeoutSeconds bounds each call to the service. Zero uses the default.
	RequestTimeoutSeconds int `validate:"gte=0,lte=300"`

	// MinSampleDistanceMeters drops location samples closer than this to the previous one.
	MinSampleDistanceMeters float64 `validate:"gte=0"`

	// DegradedFailureThreshold is the number of consecutive failed proximity checks
	// before the user is warned. Zero uses the default.
	DegradedFailureThreshold int `validate:"gte=0,lte=100"`

	// ArrivalRadiusMeters stops tracking near the destination. Zero disables it.
	ArrivalRadiusMeters float64 `validate:"gte=0"`

	BotUsername    string `validate:"omitempty,max=64"`
	BotDisplayName string `validate:"omitempty,max=64"`
}

var validate = validator.New()

// Clone shallow copies the configuration. Your implementation may require a deep copy if
// your configuration has reference types.
func (c *configuration) Clone() *configuration {
	clone := *c
	return &clone
}

// IsValid checks the configuration's field constraints.
func (c *configuration) IsValid() error {
	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			first := fieldErrs[0]
			return errors.Errorf("invalid setting %s: failed %q constraint", first.Field(), first.Tag())
		}
		return err
	}
	return nil
}

func (c *configuration) requestTimeout() time.Duration {
	if c.RequestTimeoutSeconds <= 0 {
		return safety.DefaultTimeout
	}
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

func (c *configuration) samplingPolicy() location.SamplingPolicy {
	if c.MinSampleDistanceMeters <= 0 {
		return location.SamplingPolicy{MinDistanceMeters: location.DefaultMinDistanceMeters}
	}
	return location.SamplingPolicy{MinDistanceMeters: c.MinSampleDistanceMeters}
}

func (c *configuration) degradedThreshold() int {
	if c.DegradedFailureThreshold <= 0 {
		return tracker.DefaultDegradedThreshold
	}
	return c.DegradedFailureThreshold
}

func (c *configuration) botUsername() string {
	if c.BotUsername == "" {
		return defaultBotUsername
	}
	return c.BotUsername
}

func (c *configuration) botDisplayName() string {
	if c.BotDisplayName == "" {
		return defaultBotDisplayName
	}
	return c.BotDisplayName
}

// getConfiguration retrieves the active configuration under lock, making it safe to use
// concurrently. The active configuration may change underneath the client of this method, but
// the struct returned by this API call is considered immutable.
func (p *Plugin) getConfiguration() *configuration {
	p.configurationLock.RLock()
	defer p.configurationLock.RUnlock()

	if p.configuration == nil {
		return &configuration{}
	}

	return p.configuration
}

// setConfiguration replaces the active configuration under lock.
//
// Do not call setConfiguration while holding the configurationLock, as sync.Mutex is not
// reentrant. In particular, avoid using the plugin API entirely, as this may in turn trigger a
// hook back into the plugin. If that hook attempts to acquire this lock, a deadlock may occur.
//
// This method panics if setConfiguration is called with the existing configuration. This almost
// certainly means that the configuration was modified without being cloned and may result in
// an unsafe access.
func (p *Plugin) setConfiguration(configuration *configuration) {
	p.configurationLock.Lock()
	defer p.configurationLock.Unlock()

	if configuration != nil && p.configuration == configuration {
		// Ignore assignment if the configuration struct is empty. Go will optimize the
		// allocation for same to point at the same memory address, breaking the check
		// above.
		if reflect.ValueOf(*configuration).NumField() == 0 {
			return
		}

		panic("setConfiguration called with the existing configuration")
	}

	p.configuration = configuration
}

// OnConfigurationChange is invoked when configuration changes may have been made.
func (p *Plugin) OnConfigurationChange() error {
	var newConfig = new(configuration)

	// Load the public configuration fields from the Mattermost server configuration.
	if err := p.API.LoadPluginConfiguration(newConfig); err != nil {
		return errors.Wrap(err, "failed to load plugin configuration")
	}

	if err := newConfig.IsValid(); err != nil {
		return errors.Wrap(err, "invalid plugin configuration")
	}

	oldConfig := p.getConfiguration()
	if oldConfig.ServiceURL != newConfig.ServiceURL {
		p.API.LogInfo("Safety service changed", "serviceURL", newConfig.ServiceURL)
	}

	p.setConfiguration(newConfig)

	return nil
}
