// Package alert presents incident warnings one at a time and never repeats one
// within a tracking session.
package alert

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/mattermost/mattermost-plugin-safewalk/server/geo"
	"github.com/mattermost/mattermost-plugin-safewalk/server/logger"
	"github.com/mattermost/mattermost-plugin-safewalk/server/safety"
)

var (
	// ErrUnknownPrompt is returned for a decision on a prompt that is not outstanding.
	ErrUnknownPrompt = errors.New("prompt is not outstanding")

	// ErrNoPosition is returned when a share is requested before any position is known.
	ErrNoPosition = errors.New("current position unknown")
)

// Prompt is a single warning waiting for a user decision.
type Prompt struct {
	// ID correlates the user's decision with this prompt.
	ID       string
	Incident safety.Incident

	// Remaining is the number of incidents queued behind this one when it was shown.
	Remaining int
}

// NoticeKind classifies informational messages.
type NoticeKind string

const (
	NoticeShareSucceeded NoticeKind = "share_succeeded"
	NoticeShareFailed    NoticeKind = "share_failed"
	NoticeDegraded       NoticeKind = "degraded"
	NoticeRecovered      NoticeKind = "recovered"
	NoticeArrived        NoticeKind = "arrived"
)

// Notice is an informational message that needs no decision.
type Notice struct {
	Kind    NoticeKind
	Message string
}

// Prompter shows prompts and notices to the user. ShowPrompt must not block
// waiting for the decision. It is called without the Sequencer's lock held.
type Prompter interface {
	ShowPrompt(prompt Prompt) error
	ShowNotice(notice Notice) error
}

// Sharer sends a one-shot location share.
type Sharer interface {
	ShareLocation(ctx context.Context, at geo.Coordinate) error
}

// Locator returns the current tracked position.
type Locator func() (geo.Coordinate, bool)

// Sequencer queues incident batches and shows them strictly one at a time,
// in arrival order, skipping anything already alerted, queued, or on screen.
type Sequencer struct {
	mu          sync.Mutex
	alerted     *AlertedSet
	queue       []safety.Incident
	queued      map[string]struct{}
	outstanding *Prompt
	epoch       uint64

	prompter Prompter
	sharer   Sharer
	locate   Locator
	logger   logger.Logger
}

// NewSequencer creates a sequencer with an empty AlertedSet.
func NewSequencer(prompter Prompter, sharer Sharer, locate Locator, log logger.Logger) *Sequencer {
	if log == nil {
		log = logger.Nop()
	}

	return &Sequencer{
		alerted:  NewAlertedSet(),
		queued:   make(map[string]struct{}),
		prompter: prompter,
		sharer:   sharer,
		locate:   locate,
		logger:   log,
	}
}

// Key returns the deduplication key for an incident: its id, or its location
// and coordinate when the service sent none.
func Key(incident safety.Incident) string {
	if incident.ID != "" {
		return incident.ID
	}
	return fmt.Sprintf("%s@%.5f,%.5f", incident.Location, incident.Coordinate.Latitude, incident.Coordinate.Longitude)
}

// Present merges a batch into the queue and shows the next prompt if none is outstanding.
// Returns the number of incidents newly queued.
func (s *Sequencer) Present(incidents []safety.Incident) int {
	s.mu.Lock()
	added, next := s.presentLocked(incidents)
	s.mu.Unlock()

	s.show(next)
	return added
}

// PresentIn is Present for a batch gathered during epoch. The batch is dropped,
// and false returned, when the sequencer has been Reset since.
func (s *Sequencer) PresentIn(epoch uint64, incidents []safety.Incident) (int, bool) {
	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return 0, false
	}
	added, next := s.presentLocked(incidents)
	s.mu.Unlock()

	s.show(next)
	return added, true
}

func (s *Sequencer) presentLocked(incidents []safety.Incident) (int, *Prompt) {
	added := 0
	for _, incident := range incidents {
		key := Key(incident)

		if s.alerted.Contains(key) {
			s.logger.Debug("Skipping already alerted incident", "incidentId", key)
			continue
		}
		if _, exists := s.queued[key]; exists {
			continue
		}
		if s.outstanding != nil && Key(s.outstanding.Incident) == key {
			continue
		}

		s.queue = append(s.queue, incident)
		s.queued[key] = struct{}{}
		added++
	}

	return added, s.nextLocked()
}

// Acknowledge records the outstanding incident as alerted and shows the next one.
func (s *Sequencer) Acknowledge(promptID string) error {
	s.mu.Lock()
	if s.outstanding == nil || s.outstanding.ID != promptID {
		s.mu.Unlock()
		return ErrUnknownPrompt
	}

	s.alerted.Record(Key(s.outstanding.Incident))
	s.outstanding = nil
	next := s.nextLocked()
	s.mu.Unlock()

	s.show(next)
	return nil
}

// ShareLocation shares the current tracked position (not the incident's) and
// reports the outcome as a notice. The prompt stays outstanding.
func (s *Sequencer) ShareLocation(ctx context.Context, promptID string) error {
	s.mu.Lock()
	if s.outstanding == nil || s.outstanding.ID != promptID {
		s.mu.Unlock()
		return ErrUnknownPrompt
	}
	s.mu.Unlock()

	var err error
	at, ok := geo.Coordinate{}, false
	if s.locate != nil {
		at, ok = s.locate()
	}

	switch {
	case !ok:
		err = ErrNoPosition
	case s.sharer == nil:
		err = errors.New("location sharing is not configured")
	default:
		err = s.sharer.ShareLocation(ctx, at)
	}

	notice := Notice{Kind: NoticeShareSucceeded, Message: "Location shared successfully!"}
	if err != nil {
		s.logger.Warn("Failed to share location", "promptId", promptID, "error", err.Error())
		notice = Notice{Kind: NoticeShareFailed, Message: "Failed to share location."}
	}

	if showErr := s.prompter.ShowNotice(notice); showErr != nil {
		s.logger.Error("Failed to show share result", "promptId", promptID, "error", showErr.Error())
	}

	return err
}

// Notify shows an informational notice.
func (s *Sequencer) Notify(notice Notice) {
	if err := s.prompter.ShowNotice(notice); err != nil {
		s.logger.Error("Failed to show notice", "kind", string(notice.Kind), "error", err.Error())
	}
}

// Outstanding returns the prompt waiting for a decision, if any.
func (s *Sequencer) Outstanding() (Prompt, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.outstanding == nil {
		return Prompt{}, false
	}
	return *s.outstanding, true
}

// Pending returns the number of incidents queued behind the outstanding prompt.
func (s *Sequencer) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// AlertedCount returns the size of the AlertedSet.
func (s *Sequencer) AlertedCount() int {
	return s.alerted.Len()
}

// Epoch identifies the current session. It changes on every Reset.
func (s *Sequencer) Epoch() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch
}

// Reset drops the queue, the outstanding prompt and the AlertedSet, and starts a new epoch.
func (s *Sequencer) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.epoch++
	s.queue = nil
	s.queued = make(map[string]struct{})
	s.outstanding = nil
	s.alerted.Reset()
}

// nextLocked makes the next presentable incident outstanding when no prompt is.
// The caller delivers the returned prompt with show after unlocking.
func (s *Sequencer) nextLocked() *Prompt {
	if s.outstanding != nil {
		return nil
	}

	for len(s.queue) > 0 {
		incident := s.queue[0]
		s.queue = s.queue[1:]

		key := Key(incident)
		delete(s.queued, key)

		if s.alerted.Contains(key) {
			continue
		}

		s.outstanding = &Prompt{
			ID:        uuid.NewString(),
			Incident:  incident,
			Remaining: len(s.queue),
		}
		prompt := *s.outstanding
		return &prompt
	}

	return nil
}

// show delivers prompt without holding the lock. A prompt that cannot be
// delivered is dropped without being recorded and the next one is tried.
func (s *Sequencer) show(prompt *Prompt) {
	for prompt != nil {
		err := s.prompter.ShowPrompt(*prompt)
		if err == nil {
			return
		}

		s.logger.Error("Failed to show incident prompt", "incidentId", Key(prompt.Incident), "error", err.Error())

		s.mu.Lock()
		if s.outstanding == nil || s.outstanding.ID != prompt.ID {
			s.mu.Unlock()
			return
		}
		s.outstanding = nil
		prompt = s.nextLocked()
		s.mu.Unlock()
	}
}
