package poster

import (
	"testing"

	"github.com/mattermost/mattermost/server/public/model"
	"github.com/mattermost/mattermost/server/public/plugin/plugintest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mattermost/mattermost-plugin-safewalk/server/alert"
	"github.com/mattermost/mattermost-plugin-safewalk/server/geo"
	"github.com/mattermost/mattermost-plugin-safewalk/server/safety"
	"github.com/mattermost/mattermost-plugin-safewalk/server/tracker"
)

const (
	botID     = "bot-user-id"
	userID    = "user-id"
	channelID = "dm-channel-id"
)

func testPrompt() alert.Prompt {
	return alert.Prompt{
		ID: "prompt-1",
		Incident: safety.Incident{
			ID:             "c1",
			Location:       "Canal St & Broadway",
			Rating:         safety.RatingModerate,
			CrimeRate:      3.2,
			DistanceMeters: 250,
		},
	}
}

func TestShowPrompt_Success(t *testing.T) {
	api := &plugintest.API{}
	defer api.AssertExpectations(t)

	api.On("GetDirectChannel", userID, botID).Return(&model.Channel{Id: channelID}, nil).Once()

	api.On("CreatePost", mock.MatchedBy(func(post *model.Post) bool {
		assert.Equal(t, botID, post.UserId, "Post should use bot user ID")
		assert.Equal(t, channelID, post.ChannelId, "Post should target the DM channel")
		assert.Equal(t, model.PostTypeSlackAttachment, post.Type, "Post should be slack_attachment type")

		attachments := post.Attachments()
		require.Len(t, attachments, 1)
		assert.Len(t, attachments[0].Actions, 2, "Prompt should carry both buttons")

		return true
	})).Return(&model.Post{Id: "post-id"}, nil).Once()

	poster := New(api, botID, userID)
	require.NoError(t, poster.ShowPrompt(testPrompt()))
}

func TestShowPrompt_ReusesDirectChannel(t *testing.T) {
	api := &plugintest.API{}
	defer api.AssertExpectations(t)

	api.On("GetDirectChannel", userID, botID).Return(&model.Channel{Id: channelID}, nil).Once()
	api.On("CreatePost", mock.Anything).Return(&model.Post{Id: "post-id"}, nil).Times(3)

	poster := New(api, botID, userID)
	require.NoError(t, poster.ShowPrompt(testPrompt()))
	require.NoError(t, poster.ShowPrompt(testPrompt()))
	require.NoError(t, poster.ShowNotice(alert.Notice{Kind: alert.NoticeArrived, Message: "Arrived"}))
}

func TestShowPrompt_DirectChannelError(t *testing.T) {
	api := &plugintest.API{}
	defer api.AssertExpectations(t)

	expectedErr := &model.AppError{
		Id:         "api.channel.create_direct_channel.invalid_user.app_error",
		Message:    "Invalid user",
		StatusCode: 400,
	}
	api.On("GetDirectChannel", userID, botID).Return(nil, expectedErr).Once()

	poster := New(api, botID, userID)
	err := poster.ShowPrompt(testPrompt())

	require.Error(t, err)
	assert.Equal(t, expectedErr, err)
	api.AssertNotCalled(t, "CreatePost", mock.Anything)
}

func TestShowPrompt_CreatePostError(t *testing.T) {
	api := &plugintest.API{}
	defer api.AssertExpectations(t)

	api.On("GetDirectChannel", userID, botID).Return(&model.Channel{Id: channelID}, nil).Once()

	expectedErr := &model.AppError{
		Id:         "api.context.permissions.app_error",
		Message:    "You do not have permission",
		StatusCode: 403,
	}
	api.On("CreatePost", mock.Anything).Return(nil, expectedErr).Once()

	poster := New(api, botID, userID)
	err := poster.ShowPrompt(testPrompt())

	require.Error(t, err)
	assert.Equal(t, expectedErr, err)
}

func TestShowNotice(t *testing.T) {
	api := &plugintest.API{}
	defer api.AssertExpectations(t)

	api.On("GetDirectChannel", userID, botID).Return(&model.Channel{Id: channelID}, nil).Once()
	api.On("CreatePost", mock.MatchedBy(func(post *model.Post) bool {
		assert.Equal(t, channelID, post.ChannelId)
		assert.Equal(t, "✅ Location shared successfully!", post.Message)
		assert.Empty(t, post.Type, "Notices are plain posts")
		return true
	})).Return(&model.Post{Id: "post-id"}, nil).Once()

	poster := New(api, botID, userID)
	require.NoError(t, poster.ShowNotice(alert.Notice{Kind: alert.NoticeShareSucceeded, Message: "Location shared successfully!"}))
}

func TestPostRoute(t *testing.T) {
	api := &plugintest.API{}
	defer api.AssertExpectations(t)

	api.On("GetDirectChannel", userID, botID).Return(&model.Channel{Id: channelID}, nil).Once()
	api.On("CreatePost", mock.MatchedBy(func(post *model.Post) bool {
		attachments := post.Attachments()
		require.Len(t, attachments, 1)
		assert.Contains(t, attachments[0].Text, "Campus Library")
		return true
	})).Return(&model.Post{Id: "post-id"}, nil).Once()

	route := &tracker.Route{
		Waypoints:   []geo.Coordinate{{Latitude: 1, Longitude: 1}, {Latitude: 1.001, Longitude: 1}},
		Destination: geo.Coordinate{Latitude: 1.001, Longitude: 1},
	}

	poster := New(api, botID, userID)
	require.NoError(t, poster.PostRoute("Campus Library", route))
}
