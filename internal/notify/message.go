// Package notify builds Slack messages and delivers them through an incoming
// webhook.
package notify

import (
	"fmt"

	"github.com/slack-go/slack"

	"alarm-relay/internal/timefmt"
)

// Style selects the webhook payload layout.
type Style string

const (
	// StyleBlocks sends top-level blocks with a text fallback.
	StyleBlocks Style = "blocks"
	// StyleAttachment wraps the blocks in a single colored attachment.
	StyleAttachment Style = "attachment"
)

// Attachment colors.
const (
	ColorTriggered = "#de4c1f"
	ColorResolved  = "#00aa00"
)

// Message is the content of one notification.
type Message struct {
	Subject   string
	Timestamp string
	Context   string
	Logs      []string
	Color     string
}

// Options controls how messages are laid out.
type Options struct {
	Style    Style
	Username string
}

// Build renders m as a webhook payload.
func Build(m Message, opts Options) *slack.WebhookMessage {
	blocks := []slack.Block{
		slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, m.Subject, false, false), nil, nil),
		slack.NewContextBlock("", slack.NewTextBlockObject(slack.PlainTextType,
			fmt.Sprintf("TS: %s.  %s", timefmt.ShortFormat(m.Timestamp), m.Context), false, false)),
	}

	if opts.Style == StyleAttachment && len(m.Logs) > 0 {
		blocks = append(blocks, slack.NewDividerBlock())
	}
	blocks = append(blocks, codeBlocks(m.Logs)...)

	if opts.Style == StyleAttachment {
		color := m.Color
		if color == "" {
			color = ColorTriggered
		}
		return &slack.WebhookMessage{
			Username: opts.Username,
			Attachments: []slack.Attachment{{
				Color:    color,
				Fallback: m.Subject,
				Blocks:   slack.Blocks{BlockSet: blocks},
			}},
		}
	}

	return &slack.WebhookMessage{
		// Slack needs text alongside blocks for notification previews.
		Text:   m.Subject,
		Blocks: &slack.Blocks{BlockSet: blocks},
	}
}

// Section builds a blocks-style payload holding a single mrkdwn section.
func Section(text string) *slack.WebhookMessage {
	return &slack.WebhookMessage{
		Text: text,
		Blocks: &slack.Blocks{BlockSet: []slack.Block{
			slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, text, false, false), nil, nil),
		}},
	}
}

func codeBlocks(lines []string) []slack.Block {
	out := make([]slack.Block, 0, len(lines))
	for _, line := range lines {
		out = append(out, slack.NewSectionBlock(
			slack.NewTextBlockObject(slack.MarkdownType, "```\n"+line+"\n```", false, false), nil, nil))
	}
	return out
}
