package main

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/mattermost/mattermost/server/public/model"
	"github.com/mattermost/mattermost/server/public/plugin"
	"github.com/pkg/errors"

	"github.com/mattermost/mattermost-plugin-safewalk/server/alert"
	"github.com/mattermost/mattermost-plugin-safewalk/server/formatter"
	"github.com/mattermost/mattermost-plugin-safewalk/server/geo"
	"github.com/mattermost/mattermost-plugin-safewalk/server/location"
	"github.com/mattermost/mattermost-plugin-safewalk/server/poster"
	"github.com/mattermost/mattermost-plugin-safewalk/server/safety"
	"github.com/mattermost/mattermost-plugin-safewalk/server/tracker"
)

const userIDHeader = "Mattermost-User-ID"

// inactivePromptText answers clicks on prompts that are no longer outstanding.
const inactivePromptText = "This alert is no longer active."

type routeRequest struct {
	Destination string   `json:"destination"`
	Latitude    *float64 `json:"latitude"`
	Longitude   *float64 `json:"longitude"`
}

type locationRequest struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type permissionRequest struct {
	Granted bool `json:"granted"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// ServeHTTP handles HTTP requests for the plugin.
// The root URL is currently <siteUrl>/plugins/com.mattermost.plugin-safewalk/api/v1/.
func (p *Plugin) ServeHTTP(c *plugin.Context, w http.ResponseWriter, r *http.Request) {
	router := mux.NewRouter()

	// Middleware to require that the user is logged in
	router.Use(p.MattermostAuthorizationRequired)

	apiRouter := router.PathPrefix("/api/v1").Subrouter()

	apiRouter.HandleFunc("/route", p.handleRoute).Methods(http.MethodPost)
	apiRouter.HandleFunc("/location", p.handleLocation).Methods(http.MethodPost)
	apiRouter.HandleFunc("/location/permission", p.handlePermission).Methods(http.MethodPost)
	apiRouter.HandleFunc("/stop", p.handleStop).Methods(http.MethodPost)
	apiRouter.HandleFunc("/status", p.handleStatus).Methods(http.MethodGet)
	apiRouter.HandleFunc("/prompts/{promptId}/acknowledge", p.handleAcknowledge).Methods(http.MethodPost)
	apiRouter.HandleFunc("/prompts/{promptId}/share", p.handleShare).Methods(http.MethodPost)

	router.ServeHTTP(w, r)
}

func (p *Plugin) MattermostAuthorizationRequired(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get(userIDHeader)
		if userID == "" {
			http.Error(w, "Not authorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (p *Plugin) handleRoute(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(userIDHeader)

	var req routeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		p.writeError(w, http.StatusBadRequest, errors.Wrap(err, "invalid request body"))
		return
	}

	s := p.registry.GetOrCreate(userID, p.newSession)

	var origin geo.Coordinate
	var ok bool
	if req.Latitude != nil && req.Longitude != nil {
		origin, ok = geo.Coordinate{Latitude: *req.Latitude, Longitude: *req.Longitude}, true
	} else {
		origin, ok = s.Feed.Last()
	}
	if !ok {
		p.writeError(w, http.StatusBadRequest, errors.New("origin is required until a location has been reported"))
		return
	}

	route, err := s.Tracker.RequestRoute(r.Context(), req.Destination, origin)
	if err != nil {
		p.API.LogWarn("Failed to start walk", "userID", userID, "error", err.Error())
		p.writeError(w, routeErrorStatus(err), err)
		return
	}

	if err := poster.New(p.API, p.botID, userID).PostRoute(req.Destination, route); err != nil {
		p.API.LogError("Failed to post route summary", "userID", userID, "error", err.Error())
	}

	p.writeJSON(w, http.StatusOK, route)
}

// routeErrorStatus maps a route failure to an HTTP status.
func routeErrorStatus(err error) int {
	var unavailable *tracker.RouteUnavailableError
	switch {
	case errors.Is(err, location.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, location.ErrLocationUnavailable), errors.Is(err, tracker.ErrClosed), errors.Is(err, errServiceNotConfigured):
		return http.StatusServiceUnavailable
	case errors.Is(err, tracker.ErrSuperseded):
		return http.StatusConflict
	case errors.Is(err, tracker.ErrEmptyDestination):
		return http.StatusBadRequest
	case safety.IsNetworkError(err):
		return http.StatusBadGateway
	case errors.As(err, &unavailable):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (p *Plugin) handleLocation(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(userIDHeader)

	var req locationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		p.writeError(w, http.StatusBadRequest, errors.Wrap(err, "invalid request body"))
		return
	}

	s := p.registry.GetOrCreate(userID, p.newSession)

	err := s.Feed.Publish(geo.Coordinate{Latitude: req.Latitude, Longitude: req.Longitude})
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, location.ErrPermissionDenied):
		p.writeError(w, http.StatusForbidden, err)
	case errors.Is(err, location.ErrLocationUnavailable):
		p.writeError(w, http.StatusGone, err)
	default:
		p.writeError(w, http.StatusBadRequest, err)
	}
}

func (p *Plugin) handlePermission(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(userIDHeader)

	var req permissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		p.writeError(w, http.StatusBadRequest, errors.Wrap(err, "invalid request body"))
		return
	}

	s := p.registry.GetOrCreate(userID, p.newSession)
	s.Feed.SetPermission(req.Granted)

	p.API.LogDebug("Location permission updated", "userID", userID, "granted", req.Granted)
	w.WriteHeader(http.StatusNoContent)
}

func (p *Plugin) handleStop(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(userIDHeader)

	if s := p.registry.Get(userID); s != nil {
		s.Tracker.StopTracking()
	}

	w.WriteHeader(http.StatusNoContent)
}

func (p *Plugin) handleStatus(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(userIDHeader)

	status := tracker.Status{State: tracker.Idle}
	if s := p.registry.Get(userID); s != nil {
		status = s.Tracker.Status()
	}

	p.writeJSON(w, http.StatusOK, status)
}

func (p *Plugin) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(userIDHeader)
	promptID := mux.Vars(r)["promptId"]

	s := p.registry.Get(userID)
	if s == nil {
		p.writeJSON(w, http.StatusOK, &model.PostActionIntegrationResponse{EphemeralText: inactivePromptText})
		return
	}

	prompt, outstanding := s.Tracker.OutstandingPrompt()

	if err := s.Tracker.Acknowledge(promptID); err != nil {
		if !errors.Is(err, alert.ErrUnknownPrompt) {
			p.API.LogError("Failed to acknowledge prompt", "userID", userID, "promptId", promptID, "error", err.Error())
		}
		p.writeJSON(w, http.StatusOK, &model.PostActionIntegrationResponse{EphemeralText: inactivePromptText})
		return
	}

	response := &model.PostActionIntegrationResponse{}
	if outstanding && prompt.ID == promptID {
		update := &model.Post{Props: model.StringInterface{}}
		model.ParseSlackAttachment(update, []*model.SlackAttachment{formatter.FormatResolvedPrompt(prompt)})
		response.Update = update
	}

	p.writeJSON(w, http.StatusOK, response)
}

func (p *Plugin) handleShare(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(userIDHeader)
	promptID := mux.Vars(r)["promptId"]

	s := p.registry.Get(userID)
	if s == nil {
		p.writeJSON(w, http.StatusOK, &model.PostActionIntegrationResponse{EphemeralText: inactivePromptText})
		return
	}

	// The outcome is reported to the user as a notice by the sequencer.
	if err := s.Tracker.ShareLocation(r.Context(), promptID); err != nil {
		if errors.Is(err, alert.ErrUnknownPrompt) {
			p.writeJSON(w, http.StatusOK, &model.PostActionIntegrationResponse{EphemeralText: inactivePromptText})
			return
		}
		p.API.LogWarn("Failed to share location", "userID", userID, "promptId", promptID, "error", err.Error())
	}

	p.writeJSON(w, http.StatusOK, &model.PostActionIntegrationResponse{})
}

func (p *Plugin) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		p.API.LogError("Failed to write response", "error", err.Error())
	}
}

func (p *Plugin) writeError(w http.ResponseWriter, status int, err error) {
	p.writeJSON(w, status, errorResponse{Error: err.Error()})
}
