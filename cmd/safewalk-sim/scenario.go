package main

import (
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/mattermost/mattermost-plugin-safewalk/server/geo"
	"github.com/mattermost/mattermost-plugin-safewalk/server/polyline"
)

const defaultInterval = 2 * time.Second

// Scenario is a scripted walk loaded from YAML.
//
//	destination: Union Square, San Francisco
//	origin: "37.7793,-122.4193"
//	interval: 2s
//	samples:
//	  - "37.7800,-122.4180"
//	  - "37.7810,-122.4165"
//
// Samples may be given as an encoded polyline instead of a list.
type Scenario struct {
	Destination string        `yaml:"destination" validate:"required"`
	Origin      string        `yaml:"origin"`
	Interval    time.Duration `yaml:"interval" validate:"gte=0"`
	Samples     []string      `yaml:"samples" validate:"required_without=Polyline,dive,required"`
	Polyline    string        `yaml:"polyline" validate:"required_without=Samples"`
}

// Walk is a scenario resolved into coordinates.
type Walk struct {
	Destination string
	Origin      geo.Coordinate
	Interval    time.Duration
	Samples     []geo.Coordinate
}

var validate = validator.New()

// LoadScenario reads, validates and resolves the scenario at path.
func LoadScenario(path string) (*Walk, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read scenario")
	}

	return ParseScenario(data)
}

// ParseScenario validates and resolves a YAML scenario.
func ParseScenario(data []byte) (*Walk, error) {
	var scenario Scenario
	if err := yaml.Unmarshal(data, &scenario); err != nil {
		return nil, errors.Wrap(err, "failed to parse scenario")
	}

	if err := validate.Struct(scenario); err != nil {
		return nil, errors.Wrap(err, "invalid scenario")
	}

	return scenario.resolve()
}

func (s Scenario) resolve() (*Walk, error) {
	walk := &Walk{
		Destination: s.Destination,
		Interval:    s.Interval,
	}
	if walk.Interval == 0 {
		walk.Interval = defaultInterval
	}

	if s.Polyline != "" {
		samples, err := polyline.Decode(s.Polyline)
		if err != nil {
			return nil, errors.Wrap(err, "invalid scenario polyline")
		}
		walk.Samples = samples
	}

	for i, raw := range s.Samples {
		sample, err := geo.ParseCoordinate(raw)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid sample %d", i)
		}
		walk.Samples = append(walk.Samples, sample)
	}

	if len(walk.Samples) == 0 {
		return nil, errors.New("scenario has no samples")
	}

	walk.Origin = walk.Samples[0]
	if s.Origin != "" {
		origin, err := geo.ParseCoordinate(s.Origin)
		if err != nil {
			return nil, errors.Wrap(err, "invalid origin")
		}
		walk.Origin = origin
	}

	return walk, nil
}

// EncodedSamples returns the walk's samples as a polyline, for pasting into
// a more compact scenario.
func (w *Walk) EncodedSamples() string {
	return polyline.Encode(w.Samples)
}
