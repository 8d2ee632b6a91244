package poster

import (
	"sync"

	"github.com/mattermost/mattermost/server/public/model"
	"github.com/mattermost/mattermost/server/public/plugin"

	"github.com/mattermost/mattermost-plugin-safewalk/server/alert"
	"github.com/mattermost/mattermost-plugin-safewalk/server/formatter"
	"github.com/mattermost/mattermost-plugin-safewalk/server/tracker"
)

// Poster delivers prompts and notices to one user as direct messages from the bot.
// It implements alert.Prompter.
type Poster struct {
	api    plugin.API
	botID  string
	userID string

	mu        sync.Mutex
	channelID string
}

// New creates a new Poster for the given user.
func New(api plugin.API, botID, userID string) *Poster {
	return &Poster{
		api:    api,
		botID:  botID,
		userID: userID,
	}
}

// ShowPrompt posts an incident prompt with its action buttons.
func (p *Poster) ShowPrompt(prompt alert.Prompt) error {
	return p.postAttachment(formatter.FormatPrompt(prompt))
}

// ShowNotice posts a plain informational message.
func (p *Poster) ShowNotice(notice alert.Notice) error {
	channelID, err := p.directChannel()
	if err != nil {
		return err
	}

	post := &model.Post{
		UserId:    p.botID,
		ChannelId: channelID,
		Message:   formatter.FormatNotice(notice),
	}

	if _, appErr := p.api.CreatePost(post); appErr != nil {
		return appErr
	}
	return nil
}

// PostRoute posts the summary of an accepted route.
func (p *Poster) PostRoute(destination string, route *tracker.Route) error {
	return p.postAttachment(formatter.FormatRoute(destination, route))
}

func (p *Poster) postAttachment(attachment *model.SlackAttachment) error {
	channelID, err := p.directChannel()
	if err != nil {
		return err
	}

	post := &model.Post{
		UserId:    p.botID,
		ChannelId: channelID,
		Type:      model.PostTypeSlackAttachment,
		Props:     model.StringInterface{},
	}

	model.ParseSlackAttachment(post, []*model.SlackAttachment{attachment})

	if _, appErr := p.api.CreatePost(post); appErr != nil {
		return appErr
	}
	return nil
}

// directChannel resolves, once, the DM channel between the bot and the user.
func (p *Poster) directChannel() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channelID != "" {
		return p.channelID, nil
	}

	channel, appErr := p.api.GetDirectChannel(p.userID, p.botID)
	if appErr != nil {
		return "", appErr
	}

	p.channelID = channel.Id
	return p.channelID, nil
}
