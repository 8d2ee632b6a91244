package formatter

import (
	"strings"
	"testing"

	"github.com/mattermost/mattermost/server/public/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattermost/mattermost-plugin-safewalk/server/alert"
	"github.com/mattermost/mattermost-plugin-safewalk/server/geo"
	"github.com/mattermost/mattermost-plugin-safewalk/server/safety"
	"github.com/mattermost/mattermost-plugin-safewalk/server/tracker"
)

func TestFormatPrompt_FullIncident(t *testing.T) {
	prompt := alert.Prompt{
		ID: "prompt-1",
		Incident: safety.Incident{
			ID:             "c1",
			Location:       "W 4th St & 6th Ave",
			Rating:         safety.RatingHigh,
			CrimeRate:      12.5,
			DistanceMeters: 120.456,
			Coordinate:     geo.Coordinate{Latitude: 40.73, Longitude: -74.0},
		},
		Remaining: 2,
	}

	attachment := FormatPrompt(prompt)

	assert.Contains(t, attachment.Text, "Crime Alert")
	assert.Contains(t, attachment.Text, EmojiHigh)
	assert.Equal(t, ColorHigh, attachment.Color)
	assert.Equal(t, "2 more alert(s) waiting", attachment.Footer)

	require.Len(t, attachment.Fields, 4)

	assert.Equal(t, "Location", attachment.Fields[0].Title)
	assert.Equal(t, "W 4th St & 6th Ave", attachment.Fields[0].Value)
	assert.Equal(t, model.SlackCompatibleBool(false), attachment.Fields[0].Short)

	assert.Equal(t, "Rating", attachment.Fields[1].Title)
	assert.Equal(t, "High", attachment.Fields[1].Value)

	assert.Equal(t, "Crime Rate", attachment.Fields[2].Title)
	assert.Equal(t, "12.50", attachment.Fields[2].Value)

	assert.Equal(t, "Distance", attachment.Fields[3].Title)
	assert.Equal(t, "120.46 meters", attachment.Fields[3].Value)
	assert.Equal(t, model.SlackCompatibleBool(true), attachment.Fields[3].Short)

	require.Len(t, attachment.Actions, 2)

	ack := attachment.Actions[0]
	assert.Equal(t, ActionAcknowledge, ack.Id)
	assert.Equal(t, "Acknowledge", ack.Name)
	assert.Equal(t, model.PostActionTypeButton, ack.Type)
	require.NotNil(t, ack.Integration)
	assert.Equal(t, "/plugins/com.mattermost.plugin-safewalk/api/v1/prompts/prompt-1/acknowledge", ack.Integration.URL)

	share := attachment.Actions[1]
	assert.Equal(t, ActionShare, share.Id)
	assert.Equal(t, "Share location", share.Name)
	require.NotNil(t, share.Integration)
	assert.Equal(t, "/plugins/com.mattermost.plugin-safewalk/api/v1/prompts/prompt-1/share", share.Integration.URL)
}

func TestFormatPrompt_MinimalIncident(t *testing.T) {
	prompt := alert.Prompt{
		ID: "prompt-2",
		Incident: safety.Incident{
			ID:         "c2",
			Coordinate: geo.Coordinate{Latitude: 1.5, Longitude: 2.5},
		},
	}

	attachment := FormatPrompt(prompt)

	assert.Equal(t, ColorUnknown, attachment.Color)
	assert.Contains(t, attachment.Text, EmojiUnknown)
	assert.Empty(t, attachment.Footer, "no footer when nothing is queued")
	assert.Equal(t, "(1.500000, 2.500000)", attachment.Fields[0].Value, "falls back to coordinates")
	assert.Equal(t, "Unknown", attachment.Fields[1].Value)
	assert.Equal(t, "0.00", attachment.Fields[2].Value)
	assert.Equal(t, "0.00 meters", attachment.Fields[3].Value)
}

func TestFormatPrompt_RatingColors(t *testing.T) {
	tests := []struct {
		rating safety.Rating
		color  string
		emoji  string
	}{
		{safety.RatingHigh, ColorHigh, EmojiHigh},
		{safety.RatingModerate, ColorModerate, EmojiModerate},
		{safety.RatingLow, ColorLow, EmojiLow},
		{"high", ColorHigh, EmojiHigh},
		{"Severe", ColorUnknown, EmojiUnknown},
	}

	for _, tt := range tests {
		t.Run(string(tt.rating), func(t *testing.T) {
			assert.Equal(t, tt.color, getRatingColor(tt.rating))
			assert.Equal(t, tt.emoji, getRatingEmoji(tt.rating))
		})
	}
}

func TestFormatResolvedPrompt(t *testing.T) {
	prompt := alert.Prompt{ID: "p", Incident: safety.Incident{Location: "Here", Rating: safety.RatingLow}, Remaining: 3}

	attachment := FormatResolvedPrompt(prompt)

	assert.Empty(t, attachment.Actions)
	assert.Equal(t, "Acknowledged", attachment.Footer)
	assert.Equal(t, "Here", attachment.Fields[0].Value)
}

func TestFormatNotice(t *testing.T) {
	assert.Equal(t, "✅ Location shared successfully!", FormatNotice(alert.Notice{Kind: alert.NoticeShareSucceeded, Message: "Location shared successfully!"}))
	assert.True(t, strings.HasPrefix(FormatNotice(alert.Notice{Kind: alert.NoticeDegraded, Message: "x"}), "⚠️"))
	assert.True(t, strings.HasPrefix(FormatNotice(alert.Notice{Kind: "other", Message: "x"}), "ℹ️"))
}

func TestFormatRoute(t *testing.T) {
	route := &tracker.Route{
		Waypoints: []geo.Coordinate{
			{Latitude: 0, Longitude: 0},
			{Latitude: 0, Longitude: 0.01},
		},
		Destination: geo.Coordinate{Latitude: 0, Longitude: 0.01},
	}

	t.Run("without incidents", func(t *testing.T) {
		attachment := FormatRoute("Campus Library", route)

		assert.Contains(t, attachment.Text, "Campus Library")
		require.Len(t, attachment.Fields, 2)
		assert.Equal(t, "Route Length", attachment.Fields[0].Title)
		assert.True(t, strings.HasSuffix(attachment.Fields[0].Value.(string), " meters"))
		assert.Equal(t, "(0.000000, 0.010000)", attachment.Fields[1].Value)
	})

	t.Run("incident list is capped", func(t *testing.T) {
		withIncidents := *route
		for i := 0; i < 7; i++ {
			withIncidents.NearbyIncidents = append(withIncidents.NearbyIncidents, tracker.IncidentSummary{
				Location: "Corner",
				Rating:   "Moderate",
			})
		}

		attachment := FormatRoute("Campus Library", &withIncidents)

		require.Len(t, attachment.Fields, 3)
		list := attachment.Fields[2].Value.(string)
		assert.Equal(t, 5, strings.Count(list, "Corner"))
		assert.Contains(t, list, "• and 2 more")
		assert.Contains(t, list, EmojiModerate)
	})
}
