package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/mattermost/mattermost-plugin-safewalk/server/alert"
	"github.com/mattermost/mattermost-plugin-safewalk/server/tracker"
)

// Decision is the user's answer to a prompt.
type Decision int

const (
	DecisionAcknowledge Decision = iota
	DecisionShare
)

const promptBacklog = 16

// Terminal is an alert.Prompter that prints to a writer and hands prompts to
// the decision loop through a channel, so it never blocks the tracker.
type Terminal struct {
	out     io.Writer
	lines   <-chan string
	autoAck bool

	mu      sync.Mutex
	prompts chan alert.Prompt
	arrived chan struct{}
	once    sync.Once
}

// NewTerminal creates a Terminal. lines supplies user input and may be nil
// when autoAck is set.
func NewTerminal(out io.Writer, lines <-chan string, autoAck bool) *Terminal {
	return &Terminal{
		out:     out,
		lines:   lines,
		autoAck: autoAck,
		prompts: make(chan alert.Prompt, promptBacklog),
		arrived: make(chan struct{}),
	}
}

// ShowPrompt implements alert.Prompter.
func (t *Terminal) ShowPrompt(prompt alert.Prompt) error {
	incident := prompt.Incident

	t.mu.Lock()
	fmt.Fprintf(t.out, "\n🚨 Crime alert near %s\n", incident.Location)
	fmt.Fprintf(t.out, "   rating: %s  crime rate: %.2f  distance: %.2f meters\n", incident.Rating, incident.CrimeRate, incident.DistanceMeters)
	if prompt.Remaining > 0 {
		fmt.Fprintf(t.out, "   %d more alert(s) waiting\n", prompt.Remaining)
	}
	t.mu.Unlock()

	select {
	case t.prompts <- prompt:
		return nil
	default:
		return fmt.Errorf("prompt backlog full, dropping prompt %s", prompt.ID)
	}
}

// ShowNotice implements alert.Prompter.
func (t *Terminal) ShowNotice(notice alert.Notice) error {
	t.mu.Lock()
	fmt.Fprintf(t.out, "\n%s %s\n", noticeSymbol(notice.Kind), notice.Message)
	t.mu.Unlock()

	if notice.Kind == alert.NoticeArrived {
		t.once.Do(func() { close(t.arrived) })
	}
	return nil
}

// Prompts delivers every prompt shown, in order.
func (t *Terminal) Prompts() <-chan alert.Prompt {
	return t.prompts
}

// Arrived is closed once the arrival notice has been shown.
func (t *Terminal) Arrived() <-chan struct{} {
	return t.arrived
}

// Decide returns the decision for prompt, asking the user unless auto
// acknowledge is on.
func (t *Terminal) Decide(ctx context.Context, prompt alert.Prompt) (Decision, error) {
	if t.autoAck || t.lines == nil {
		return DecisionAcknowledge, nil
	}

	for {
		t.mu.Lock()
		fmt.Fprint(t.out, "   [a]cknowledge or [s]hare location? ")
		t.mu.Unlock()

		select {
		case <-ctx.Done():
			return DecisionAcknowledge, ctx.Err()
		case line, ok := <-t.lines:
			if !ok {
				return DecisionAcknowledge, io.EOF
			}
			switch strings.ToLower(strings.TrimSpace(line)) {
			case "", "a", "ack", "acknowledge":
				return DecisionAcknowledge, nil
			case "s", "share":
				return DecisionShare, nil
			}
		}
	}
}

// Printf writes to the terminal without interleaving with prompt output.
func (t *Terminal) Printf(format string, args ...interface{}) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.out, format, args...)
}

// PrintRoute prints the summary of a freshly requested route.
func (t *Terminal) PrintRoute(destination string, route *tracker.Route) {
	t.mu.Lock()
	defer t.mu.Unlock()

	fmt.Fprintf(t.out, "Tracking walk to %s: %d waypoints, ending at %s\n", destination, len(route.Waypoints), route.Destination)
	for _, incident := range route.NearbyIncidents {
		fmt.Fprintf(t.out, "   • %s (%s, %.0f m)\n", incident.Location, incident.Rating, incident.DistanceMeters)
	}
}

func noticeSymbol(kind alert.NoticeKind) string {
	switch kind {
	case alert.NoticeShareSucceeded, alert.NoticeRecovered, alert.NoticeArrived:
		return "✅"
	case alert.NoticeShareFailed, alert.NoticeDegraded:
		return "⚠️"
	default:
		return "ℹ️"
	}
}

// readLines streams lines from r until it is exhausted.
func readLines(r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()
	return lines
}
