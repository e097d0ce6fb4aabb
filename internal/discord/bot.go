// Package discord implements a second chat collaborator (spec §6) over
// Discord, alongside internal/telegram, so a deployment can drive the
// core from either.
package discord

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/televibecode/televibe/internal/format"
	"github.com/televibecode/televibe/internal/store"
	"github.com/televibecode/televibe/internal/tracker"
)

// MessageHandler is invoked for incoming text not consumed as a pending
// approval reply.
type MessageHandler func(ctx context.Context, channelID int64, username, text string)

// Bot wraps discordgo with the chat-collaborator contract. Channel and
// message snowflakes are numeric strings, so they round-trip through the
// tracker's int64/int fields without a side lookup table.
type Bot struct {
	session      *discordgo.Session
	guildID      string
	allowedChans map[int64]bool

	onMessage MessageHandler

	pendingMu sync.Mutex
	pending   map[int64]chan string
}

func New(token, guildID string, allowedChannelIDs []string) (*Bot, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord: create session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentsMessageContent

	allowed := make(map[int64]bool, len(allowedChannelIDs))
	for _, id := range allowedChannelIDs {
		n, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("discord: invalid allowed channel id %q: %w", id, err)
		}
		allowed[n] = true
	}

	b := &Bot{session: session, guildID: guildID, allowedChans: allowed, pending: make(map[int64]chan string)}
	session.AddHandler(b.handleMessage)
	session.AddHandler(b.handleInteraction)
	session.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		log.Printf("discord: connected as %s#%s", r.User.Username, r.User.Discriminator)
	})
	return b, nil
}

func (b *Bot) SetMessageHandler(fn MessageHandler) { b.onMessage = fn }

func (b *Bot) Start(ctx context.Context) error {
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("discord: open session: %w", err)
	}
	go func() {
		<-ctx.Done()
		if err := b.session.Close(); err != nil {
			log.Printf("discord: close session: %v", err)
		}
	}()
	return nil
}

func (b *Bot) allowed(channelID int64) bool {
	if len(b.allowedChans) == 0 {
		return true
	}
	return b.allowedChans[channelID]
}

func (b *Bot) handleMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if s.State != nil && s.State.User != nil && m.Author.ID == s.State.User.ID {
		return
	}
	if b.guildID != "" && m.GuildID != b.guildID {
		return
	}

	channelID, err := strconv.ParseInt(m.ChannelID, 10, 64)
	if err != nil || !b.allowed(channelID) {
		return
	}

	b.pendingMu.Lock()
	ch, ok := b.pending[channelID]
	if ok {
		delete(b.pending, channelID)
	}
	b.pendingMu.Unlock()
	if ok {
		ch <- m.Content
		return
	}

	if b.onMessage != nil {
		b.onMessage(context.Background(), channelID, m.Author.Username, m.Content)
	}
}

// handleInteraction resolves button-component presses (approval and
// tracker keyboard actions encoded as their custom id).
func (b *Bot) handleInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionMessageComponent {
		return
	}
	data := i.MessageComponentData().CustomID
	channelID, err := strconv.ParseInt(i.ChannelID, 10, 64)
	if err != nil || !b.allowed(channelID) {
		return
	}

	_ = s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredMessageUpdate,
	})

	b.pendingMu.Lock()
	ch, ok := b.pending[channelID]
	if ok {
		delete(b.pending, channelID)
	}
	b.pendingMu.Unlock()
	if ok {
		ch <- data
		return
	}

	if b.onMessage != nil {
		b.onMessage(context.Background(), channelID, "", data)
	}
}

// NotifyApprovalOpened implements approval.Notifier.
func (b *Bot) NotifyApprovalOpened(ctx context.Context, a store.Approval) error {
	channelID, err := channelIDFromLocator(a.ChatLocator)
	if err != nil {
		return err
	}
	text := fmt.Sprintf("**Approval needed**: %s\n\n%s", a.Type, a.Description)
	kb := &tracker.Keyboard{Rows: [][]tracker.Button{
		{
			{Label: "Approve", Callback: "approval:" + a.ID + ":yes"},
			{Label: "Deny", Callback: "approval:" + a.ID + ":no"},
		},
	}}
	_, err = b.SendMessage(ctx, channelID, text, kb)
	return err
}

func channelIDFromLocator(locator string) (int64, error) {
	parts := strings.SplitN(locator, ":", 2)
	if len(parts) == 0 || parts[0] == "" {
		return 0, fmt.Errorf("discord: empty channel locator")
	}
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("discord: invalid channel locator %q: %w", locator, err)
	}
	return id, nil
}

// SendMessage implements tracker.ChatCollaborator.
func (b *Bot) SendMessage(ctx context.Context, channelID int64, text string, kb *tracker.Keyboard) (int, error) {
	send := &discordgo.MessageSend{Content: format.ToDiscordMarkdown(text)}
	if kb != nil {
		send.Components = toComponents(kb)
	}
	msg, err := b.session.ChannelMessageSendComplex(strconv.FormatInt(channelID, 10), send)
	if err != nil {
		return 0, err
	}
	messageID, err := strconv.ParseInt(msg.ID, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("discord: non-numeric message id %q: %w", msg.ID, err)
	}
	return int(messageID), nil
}

// EditMessage implements tracker.ChatCollaborator. Discord returns no
// "message not modified" error the way Telegram does, so no swallowing
// is needed here.
func (b *Bot) EditMessage(ctx context.Context, channelID int64, messageID int, text string, kb *tracker.Keyboard) error {
	edit := discordgo.NewMessageEdit(strconv.FormatInt(channelID, 10), strconv.Itoa(messageID))
	content := format.ToDiscordMarkdown(text)
	edit.Content = &content
	if kb != nil {
		components := toComponents(kb)
		edit.Components = &components
	}
	_, err := b.session.ChannelMessageEditComplex(edit)
	return err
}

// ReplyToMessage implements tracker.ChatCollaborator.
func (b *Bot) ReplyToMessage(ctx context.Context, channelID int64, parentMessageID int, text string) error {
	_, err := b.session.ChannelMessageSendComplex(strconv.FormatInt(channelID, 10), &discordgo.MessageSend{
		Content:   format.ToDiscordMarkdown(text),
		Reference: &discordgo.MessageReference{MessageID: strconv.Itoa(parentMessageID), ChannelID: strconv.FormatInt(channelID, 10)},
	})
	return err
}

// AskYesNo sends a prompt with yes/no/always-allow buttons and blocks for
// the reply, mirroring internal/telegram's AskYesNo.
func (b *Bot) AskYesNo(ctx context.Context, channelID int64, question string) (string, error) {
	respCh := make(chan string, 1)
	b.pendingMu.Lock()
	b.pending[channelID] = respCh
	b.pendingMu.Unlock()

	kb := &tracker.Keyboard{Rows: [][]tracker.Button{
		{{Label: "Yes", Callback: "yes"}, {Label: "No", Callback: "no"}},
		{{Label: "Always Allow", Callback: "always allow"}},
	}}
	if _, err := b.SendMessage(ctx, channelID, question, kb); err != nil {
		b.pendingMu.Lock()
		delete(b.pending, channelID)
		b.pendingMu.Unlock()
		return "", err
	}

	select {
	case <-ctx.Done():
		b.pendingMu.Lock()
		delete(b.pending, channelID)
		b.pendingMu.Unlock()
		return "", ctx.Err()
	case resp := <-respCh:
		return resp, nil
	}
}

func toComponents(kb *tracker.Keyboard) []discordgo.MessageComponent {
	rows := make([]discordgo.MessageComponent, len(kb.Rows))
	for i, row := range kb.Rows {
		buttons := make([]discordgo.MessageComponent, len(row))
		for j, btn := range row {
			buttons[j] = discordgo.Button{
				Label:    btn.Label,
				Style:    discordgo.SecondaryButton,
				CustomID: btn.Callback,
			}
		}
		rows[i] = discordgo.ActionsRow{Components: buttons}
	}
	return rows
}
