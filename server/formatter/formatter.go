package formatter

import (
	"fmt"
	"strings"

	"github.com/mattermost/mattermost/server/public/model"

	"github.com/mattermost/mattermost-plugin-safewalk/server/alert"
	"github.com/mattermost/mattermost-plugin-safewalk/server/geo"
	"github.com/mattermost/mattermost-plugin-safewalk/server/safety"
	"github.com/mattermost/mattermost-plugin-safewalk/server/tracker"
)

// PluginID is the manifest id; action URLs are routed through it.
const PluginID = "com.mattermost.plugin-safewalk"

// Rating colors
const (
	ColorHigh     = "#FF0000" // Red 🔴
	ColorModerate = "#FF9900" // Orange 🟠
	ColorLow      = "#FFFF00" // Yellow 🟡
	ColorUnknown  = "#808080" // Gray ⚪
)

// Rating emojis
const (
	EmojiHigh     = "🔴"
	EmojiModerate = "🟠"
	EmojiLow      = "🟡"
	EmojiUnknown  = "⚪"
)

// Prompt action identifiers, also the last path segment of their callback URL.
const (
	ActionAcknowledge = "acknowledge"
	ActionShare       = "share"
)

// maxRouteIncidents caps the incidents listed in a route summary.
const maxRouteIncidents = 5

// FormatPrompt converts an incident prompt into a SlackAttachment with the
// incident details and the Acknowledge / Share location buttons.
func FormatPrompt(prompt alert.Prompt) *model.SlackAttachment {
	incident := prompt.Incident

	attachment := &model.SlackAttachment{
		Fallback: fmt.Sprintf("Crime alert near %s", locationName(incident)),
		Text:     fmt.Sprintf("#### %s Crime Alert", getRatingEmoji(incident.Rating)),
		Color:    getRatingColor(incident.Rating),
	}

	attachment.Fields = []*model.SlackAttachmentField{
		{
			Title: "Location",
			Value: locationName(incident),
			Short: false,
		},
		{
			Title: "Rating",
			Value: ratingLabel(incident.Rating),
			Short: true,
		},
		{
			Title: "Crime Rate",
			Value: fmt.Sprintf("%.2f", incident.CrimeRate),
			Short: true,
		},
		{
			Title: "Distance",
			Value: formatDistance(incident.DistanceMeters),
			Short: true,
		},
	}

	attachment.Actions = []*model.PostAction{
		{
			Id:    ActionAcknowledge,
			Name:  "Acknowledge",
			Type:  model.PostActionTypeButton,
			Style: "primary",
			Integration: &model.PostActionIntegration{
				URL: PromptActionURL(prompt.ID, ActionAcknowledge),
			},
		},
		{
			Id:    ActionShare,
			Name:  "Share location",
			Type:  model.PostActionTypeButton,
			Style: "danger",
			Integration: &model.PostActionIntegration{
				URL: PromptActionURL(prompt.ID, ActionShare),
			},
		},
	}

	if prompt.Remaining > 0 {
		attachment.Footer = fmt.Sprintf("%d more alert(s) waiting", prompt.Remaining)
	}

	return attachment
}

// FormatResolvedPrompt renders a prompt after the user acknowledged it: the same
// details, no buttons.
func FormatResolvedPrompt(prompt alert.Prompt) *model.SlackAttachment {
	attachment := FormatPrompt(prompt)
	attachment.Actions = nil
	attachment.Footer = "Acknowledged"
	return attachment
}

// FormatNotice renders an informational notice as a post message.
func FormatNotice(notice alert.Notice) string {
	return fmt.Sprintf("%s %s", getNoticeEmoji(notice.Kind), notice.Message)
}

// FormatRoute summarizes an accepted route, listing the incidents along it.
func FormatRoute(destination string, route *tracker.Route) *model.SlackAttachment {
	attachment := &model.SlackAttachment{
		Fallback: fmt.Sprintf("Tracking your walk to %s", destination),
		Text:     fmt.Sprintf("#### Tracking your walk to %s", destination),
		Color:    ColorUnknown,
	}

	attachment.Fields = []*model.SlackAttachmentField{
		{
			Title: "Route Length",
			Value: formatDistance(geo.PathLengthMeters(route.Waypoints)),
			Short: true,
		},
		{
			Title: "Destination",
			Value: formatCoordinate(route.Destination),
			Short: true,
		},
	}

	if len(route.NearbyIncidents) > 0 {
		attachment.Fields = append(attachment.Fields, &model.SlackAttachmentField{
			Title: "Incidents Along Route",
			Value: formatIncidentList(route.NearbyIncidents),
			Short: false,
		})
	}

	attachment.Footer = "You will be alerted when you get close to a reported incident."

	return attachment
}

// PromptActionURL is the plugin-relative callback URL of a prompt button.
func PromptActionURL(promptID, action string) string {
	return fmt.Sprintf("/plugins/%s/api/v1/prompts/%s/%s", PluginID, promptID, action)
}

// getRatingColor returns the color code for a rating
func getRatingColor(rating safety.Rating) string {
	switch strings.ToLower(string(rating)) {
	case "high":
		return ColorHigh
	case "moderate":
		return ColorModerate
	case "low":
		return ColorLow
	default:
		return ColorUnknown
	}
}

// getRatingEmoji returns the emoji for a rating
func getRatingEmoji(rating safety.Rating) string {
	switch strings.ToLower(string(rating)) {
	case "high":
		return EmojiHigh
	case "moderate":
		return EmojiModerate
	case "low":
		return EmojiLow
	default:
		return EmojiUnknown
	}
}

func getNoticeEmoji(kind alert.NoticeKind) string {
	switch kind {
	case alert.NoticeShareSucceeded, alert.NoticeRecovered, alert.NoticeArrived:
		return "✅"
	case alert.NoticeShareFailed, alert.NoticeDegraded:
		return "⚠️"
	default:
		return "ℹ️"
	}
}

func ratingLabel(rating safety.Rating) string {
	if rating == "" {
		return "Unknown"
	}
	return string(rating)
}

// locationName prefers the nearest intersection and falls back to coordinates.
func locationName(incident safety.Incident) string {
	if incident.Location != "" {
		return incident.Location
	}
	return formatCoordinate(incident.Coordinate)
}

// formatDistance formats meters with two decimals
func formatDistance(meters float64) string {
	return fmt.Sprintf("%.2f meters", meters)
}

func formatCoordinate(c geo.Coordinate) string {
	return fmt.Sprintf("(%.6f, %.6f)", c.Latitude, c.Longitude)
}

// formatIncidentList formats incidents as a bulleted list
func formatIncidentList(incidents []tracker.IncidentSummary) string {
	shown := incidents
	if len(shown) > maxRouteIncidents {
		shown = shown[:maxRouteIncidents]
	}

	bullets := make([]string, 0, len(shown)+1)
	for _, incident := range shown {
		name := incident.Location
		if name == "" {
			name = formatCoordinate(incident.Coordinate)
		}
		bullets = append(bullets, fmt.Sprintf("• %s %s (%s)", getRatingEmoji(safety.Rating(incident.Rating)), name, ratingLabel(safety.Rating(incident.Rating))))
	}

	if extra := len(incidents) - len(shown); extra > 0 {
		bullets = append(bullets, fmt.Sprintf("• and %d more", extra))
	}

	return strings.Join(bullets, "\n")
}
