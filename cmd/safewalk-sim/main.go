// Command safewalk-sim replays a scripted walk against a live safety service
// and prints the warnings the tracker raises along the way.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/leesper/holmes"
	"github.com/pkg/errors"

	"github.com/mattermost/mattermost-plugin-safewalk/server/alert"
	"github.com/mattermost/mattermost-plugin-safewalk/server/location"
	"github.com/mattermost/mattermost-plugin-safewalk/server/logger"
	"github.com/mattermost/mattermost-plugin-safewalk/server/safety"
	"github.com/mattermost/mattermost-plugin-safewalk/server/tracker"
)

const serviceURLEnv = "SAFEWALK_SERVICE_URL"

type options struct {
	scenario      string
	serviceURL    string
	timeout       time.Duration
	minDistance   float64
	arrivalRadius float64
	settle        time.Duration
	autoAck       bool
	debug         bool
	printPolyline bool
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
		os.Exit(1)
	}

	var opts options
	flag.StringVar(&opts.scenario, "scenario", "scenario.yaml", "path to the walk scenario")
	flag.StringVar(&opts.serviceURL, "service", os.Getenv(serviceURLEnv), "safety service base URL (default $"+serviceURLEnv+")")
	flag.DurationVar(&opts.timeout, "timeout", safety.DefaultTimeout, "per-request timeout")
	flag.Float64Var(&opts.minDistance, "min-distance", location.DefaultMinDistanceMeters, "minimum movement in meters between samples")
	flag.Float64Var(&opts.arrivalRadius, "arrival-radius", 25, "stop once this close to the destination, in meters (0 disables)")
	flag.DurationVar(&opts.settle, "settle", 5*time.Second, "how long to wait for late results after the last sample")
	flag.BoolVar(&opts.autoAck, "auto-ack", false, "acknowledge every prompt without asking")
	flag.BoolVar(&opts.debug, "debug", false, "enable debug logging")
	flag.BoolVar(&opts.printPolyline, "print-polyline", false, "print the scenario samples as an encoded polyline and exit")
	flag.Parse()

	level := holmes.InfoLevel
	if opts.debug {
		level = holmes.DebugLevel
	}
	defer holmes.Start(level).Stop()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, os.Stdin, os.Stdout, holmesLogger{}); err != nil {
		holmes.Errorln(err.Error())
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options, in io.Reader, out io.Writer, log logger.Logger) error {
	walk, err := LoadScenario(opts.scenario)
	if err != nil {
		return err
	}

	if opts.printPolyline {
		fmt.Fprintln(out, walk.EncodedSamples())
		return nil
	}

	if opts.serviceURL == "" {
		return errors.Errorf("service URL is required, set -service or %s", serviceURLEnv)
	}

	client := safety.NewClient(opts.serviceURL, opts.timeout, log)

	var lines <-chan string
	if !opts.autoAck {
		lines = readLines(in)
	}
	term := NewTerminal(out, lines, opts.autoAck)

	replay := location.NewReplay(walk.Samples, walk.Interval)

	trk := tracker.New(tracker.Config{
		Service:             client,
		Sharer:              client,
		Stream:              replay,
		Prompter:            term,
		Policy:              location.SamplingPolicy{MinDistanceMeters: opts.minDistance},
		ArrivalRadiusMeters: opts.arrivalRadius,
		QueryTimeout:        opts.timeout,
		Logger:              log,
	})
	defer trk.Close()

	route, err := trk.RequestRoute(ctx, walk.Destination, walk.Origin)
	if err != nil {
		return errors.Wrap(err, "failed to start walk")
	}
	term.PrintRoute(walk.Destination, route)

	acknowledged := driveWalk(ctx, trk, term, replay.Finished(), opts.settle, log)

	term.Printf("\nWalk ended: %d alert(s) acknowledged\n", acknowledged)
	return nil
}

// walker is the part of the tracker the decision loop drives.
type walker interface {
	Acknowledge(promptID string) error
	ShareLocation(ctx context.Context, promptID string) error
}

// driveWalk answers prompts until the walk arrives, the replay has finished
// and settled, or ctx is cancelled. Returns the number of prompts acknowledged.
func driveWalk(ctx context.Context, w walker, term *Terminal, finished <-chan struct{}, settle time.Duration, log logger.Logger) int {
	var settled <-chan time.Time
	acknowledged := 0

	for {
		select {
		case <-ctx.Done():
			return acknowledged
		case <-term.Arrived():
			return acknowledged
		case <-finished:
			finished = nil
			settled = time.After(settle)
		case <-settled:
			return acknowledged
		case prompt := <-term.Prompts():
			decision, err := term.Decide(ctx, prompt)
			if ctx.Err() != nil {
				return acknowledged
			}
			if err != nil {
				log.Debug("No decision read, acknowledging", "promptId", prompt.ID, "error", err.Error())
			}

			if decision == DecisionShare {
				if err := w.ShareLocation(ctx, prompt.ID); err != nil && !errors.Is(err, alert.ErrUnknownPrompt) {
					log.Warn("Failed to share location", "promptId", prompt.ID, "error", err.Error())
				}
			}

			if err := w.Acknowledge(prompt.ID); err != nil {
				log.Debug("Prompt no longer outstanding", "promptId", prompt.ID)
				continue
			}
			acknowledged++
		}
	}
}
