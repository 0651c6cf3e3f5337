package telegram

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/tanq16/teraleech/internal/queue"
	"github.com/tanq16/teraleech/internal/utils"
)

const (
	helpText = "Send a Terabox share link and I will upload the files here.\n" +
		"Large videos are split into parts.\n\n/cancel stops your running job."
	maxLinksPerMessage = 5
)

type Enqueuer interface {
	Enqueue(ctx context.Context, p queue.LeechPayload) error
}

type ActiveJobs interface {
	Get(ctx context.Context, userID int64) (string, error)
}

type CancelRequester interface {
	Request(ctx context.Context, jobID string) error
}

type UpdatesAPI interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Bot dispatches incoming messages. Work itself happens in the workers.
type Bot struct {
	updates UpdatesAPI
	client  *Client
	enq     Enqueuer
	active  ActiveJobs
	cancels CancelRequester
}

func NewBot(updates UpdatesAPI, client *Client, enq Enqueuer, active ActiveJobs, cancels CancelRequester) *Bot {
	return &Bot{updates: updates, client: client, enq: enq, active: active, cancels: cancels}
}

// Run polls for updates until ctx ends.
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := b.updates.GetUpdatesChan(u)
	defer b.updates.StopReceivingUpdates()
	for {
		select {
		case <-ctx.Done():
			return nil
		case upd, ok := <-updates:
			if !ok {
				return nil
			}
			if upd.Message != nil {
				b.HandleMessage(ctx, upd.Message)
			}
		}
	}
}

func (b *Bot) HandleMessage(ctx context.Context, m *tgbotapi.Message) {
	var userID int64
	if m.From != nil {
		userID = m.From.ID
	}
	log.Info().Str("op", "telegram/bot").Int64("chat_id", m.Chat.ID).Int64("user_id", userID).Msg("message received")

	if m.IsCommand() {
		switch m.Command() {
		case "start", "help":
			b.reply(ctx, m.Chat.ID, helpText)
		case "cancel":
			b.cancel(ctx, m.Chat.ID, userID)
		default:
			b.reply(ctx, m.Chat.ID, "Unknown command. Send a share link to start.")
		}
		return
	}

	text := m.Text
	if text == "" {
		text = m.Caption
	}
	links := ExtractLinks(text)
	if len(links) == 0 {
		b.reply(ctx, m.Chat.ID, "Send a Terabox share link to start.")
		return
	}
	if len(links) > maxLinksPerMessage {
		b.reply(ctx, m.Chat.ID, fmt.Sprintf("Only the first %d links are queued.", maxLinksPerMessage))
		links = links[:maxLinksPerMessage]
	}
	for _, link := range links {
		b.queue(ctx, m.Chat.ID, userID, link)
	}
}

func (b *Bot) queue(ctx context.Context, chatID, userID int64, link string) {
	status, err := b.client.SendText(ctx, chatID, "⏳ Queued: "+link)
	if err != nil {
		log.Error().Str("op", "telegram/bot").Err(err).Msg("could not send status message")
		return
	}
	p := queue.LeechPayload{
		JobID:           uuid.NewString(),
		ChatID:          chatID,
		UserID:          userID,
		StatusMessageID: status.MessageID,
		URL:             link,
	}
	if err := b.enq.Enqueue(ctx, p); err != nil {
		log.Error().Str("op", "telegram/bot").Str("job", p.JobID).Err(err).Msg("could not queue link")
		if err := b.client.EditMessageText(ctx, chatID, status.MessageID, "❌ Could not queue the link. Try again later."); err != nil {
			log.Warn().Str("op", "telegram/bot").Err(err).Msg("could not edit status message")
		}
	}
}

func (b *Bot) cancel(ctx context.Context, chatID, userID int64) {
	jobID, err := b.active.Get(ctx, userID)
	if err != nil {
		log.Error().Str("op", "telegram/bot").Err(err).Msg("could not look up active job")
		b.reply(ctx, chatID, "❌ Could not reach the job queue.")
		return
	}
	if jobID == "" {
		b.reply(ctx, chatID, "Nothing to cancel.")
		return
	}
	if err := b.cancels.Request(ctx, jobID); err != nil {
		log.Error().Str("op", "telegram/bot").Str("job", jobID).Err(err).Msg("could not request cancel")
		b.reply(ctx, chatID, "❌ Could not cancel the job.")
		return
	}
	b.reply(ctx, chatID, "🛑 Cancelling your job...")
}

func (b *Bot) reply(ctx context.Context, chatID int64, text string) {
	if _, err := b.client.SendText(ctx, chatID, text); err != nil {
		log.Warn().Str("op", "telegram/bot").Err(err).Msg("could not reply")
	}
}

var linkPattern = regexp.MustCompile(`https?://[^\s<>"']+`)

// ExtractLinks returns the distinct share links in text, in order.
func ExtractLinks(text string) []string {
	var links []string
	seen := map[string]bool{}
	for _, raw := range linkPattern.FindAllString(text, -1) {
		raw = strings.TrimRight(raw, ".,;:!?)]}")
		if !IsShareLink(raw) || seen[raw] {
			continue
		}
		seen[raw] = true
		links = append(links, raw)
	}
	return links
}

// IsShareLink reports whether raw points at one of the storage hosts.
func IsShareLink(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, h := range utils.StorageHosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}
