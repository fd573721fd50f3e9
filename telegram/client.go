// Copyright (c) 2025 BVK Chaitanya

// Package telegram implements a telegram bot that sends supervisor
// notifications to the authorized users and responds to their bot commands.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"runtime/debug"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/bvk/rangebot/ctxutil"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/visvasity/cli"
)

// botCommand is a bot command handler. Handler output written to the
// cli.Stdout of its context is sent back as the reply.
type botCommand struct {
	purpose string
	run     cli.CmdFunc
}

type Client struct {
	cg ctxutil.CloseGroup

	bot  *bot.Bot
	self *models.User

	secrets   *Secrets
	statePath string

	mu       sync.Mutex
	state    *State
	handlers map[string]*botCommand
}

var startTime = time.Now()

// New creates a telegram bot client and starts receiving the bot updates in
// the background. Chat ids of the authorized users are saved in the statePath
// file, which is optional.
func New(ctx context.Context, statePath string, secrets *Secrets) (_ *Client, status error) {
	if err := secrets.Check(); err != nil {
		return nil, err
	}
	state, err := loadState(statePath)
	if err != nil {
		return nil, err
	}

	c := &Client{
		secrets:   secrets.Clone(),
		statePath: statePath,
		state:     state,
		handlers: map[string]*botCommand{
			"uptime":  {purpose: "Prints supervisor uptime", run: uptime},
			"version": {purpose: "Prints supervisor build version", run: version},
		},
	}

	b, err := bot.New(secrets.BotToken, bot.WithDefaultHandler(c.handleUpdate))
	if err != nil {
		return nil, fmt.Errorf("could not create telegram bot: %w", err)
	}
	defer func() {
		if status != nil {
			b.Close(ctx)
		}
	}()
	c.bot = b

	if c.self, err = b.GetMe(ctx); err != nil {
		return nil, fmt.Errorf("could not fetch telegram bot information: %w", err)
	}
	if err := c.publishCommands(ctx); err != nil {
		return nil, err
	}

	c.cg.Go(c.bot.Start)
	return c, nil
}

// Close stops receiving bot updates.
func (c *Client) Close() error {
	c.cg.Close()
	return nil
}

func (c *Client) BotUserName() string {
	return c.self.Username
}

func (c *Client) OwnerUserName() string {
	return c.secrets.OwnerID
}

// AddCommand registers a new bot command and updates the command menu.
func (c *Client) AddCommand(ctx context.Context, name, purpose string, handler cli.CmdFunc) error {
	if len(name) == 0 || len(purpose) == 0 || handler == nil {
		return os.ErrInvalid
	}

	c.mu.Lock()
	_, exists := c.handlers[name]
	if !exists {
		c.handlers[name] = &botCommand{purpose: purpose, run: handler}
	}
	c.mu.Unlock()

	if exists {
		return fmt.Errorf("bot command %q is already registered: %w", name, os.ErrExist)
	}
	return c.publishCommands(ctx)
}

func (c *Client) publishCommands(ctx context.Context) error {
	c.mu.Lock()
	params := &bot.SetMyCommandsParams{}
	for _, name := range slices.Sorted(maps.Keys(c.handlers)) {
		params.Commands = append(params.Commands, models.BotCommand{
			Command:     name,
			Description: c.handlers[name].purpose,
		})
	}
	c.mu.Unlock()

	ok, err := c.bot.SetMyCommands(ctx, params)
	if err != nil {
		return fmt.Errorf("could not set bot commands: %w", err)
	}
	if !ok {
		return fmt.Errorf("bot commands are not accepted by telegram")
	}
	return nil
}

// parseCommand splits a bot command message into the command name and its
// arguments.
func parseCommand(msg *models.Message) (string, []string, error) {
	if msg == nil || len(msg.Entities) == 0 {
		return "", nil, os.ErrInvalid
	}
	entity := msg.Entities[0]
	if entity.Type != models.MessageEntityTypeBotCommand || entity.Offset != 0 {
		return "", nil, os.ErrInvalid
	}
	if entity.Length < 2 || entity.Length > len(msg.Text) || msg.Text[0] != '/' {
		return "", nil, os.ErrInvalid
	}
	// Commands in group chats are suffixed with the bot name.
	name, _, _ := strings.Cut(msg.Text[1:entity.Length], "@")
	return name, strings.Fields(msg.Text[entity.Length:]), nil
}

// recipients returns the chat ids of all authorized users that have messaged
// the bot before.
func (c *Client) recipients() map[string]int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	chats := make(map[string]int64)
	for _, user := range append([]string{c.secrets.OwnerID}, c.secrets.OtherIDs...) {
		if id, ok := c.state.UserChatIDMap[user]; ok {
			chats[user] = id
		} else {
			slog.Warn("authorized user has no chat id yet; user cannot be notified", "user", user)
		}
	}
	return chats
}

// SendMessage sends the text to all authorized users with a known chat id.
func (c *Client) SendMessage(ctx context.Context, at time.Time, text string) error {
	msg := at.Format("2006-01-02 15:04:05 MST") + " " + text

	var errs []error
	for user, chatID := range c.recipients() {
		params := &bot.SendMessageParams{ChatID: chatID, Text: msg}
		if _, err := c.bot.SendMessage(ctx, params); err != nil {
			errs = append(errs, fmt.Errorf("could not send message to %q: %w", user, err))
		}
	}
	return errors.Join(errs...)
}

func (c *Client) handleUpdate(ctx context.Context, b *bot.Bot, update *models.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil {
		return
	}

	sender := msg.From.Username
	if !c.secrets.isValidUser(sender) {
		slog.Warn("received message from unauthorized user (ignored)", "sender", sender, "message", msg.Text)
		return
	}
	c.saveChatID(sender, msg.Chat.ID)

	reply := c.execute(ctx, msg)
	if len(reply) == 0 {
		return
	}
	disabled := true
	params := &bot.SendMessageParams{
		ChatID:             msg.Chat.ID,
		Text:               reply,
		ReplyParameters:    &models.ReplyParameters{MessageID: msg.ID},
		LinkPreviewOptions: &models.LinkPreviewOptions{IsDisabled: &disabled},
	}
	if _, err := b.SendMessage(ctx, params); err != nil {
		slog.Error("could not reply to user command (ignored)", "user", sender, "err", err)
	}
}

// execute runs the bot command in the message and returns the reply text,
// which is the error message when command fails.
func (c *Client) execute(ctx context.Context, msg *models.Message) (reply string) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("CAUGHT PANIC", "panic", r)
			slog.Error(string(debug.Stack()))
			reply = fmt.Sprintf("command handler panicked: %v", r)
		}
	}()

	name, args, err := parseCommand(msg)
	if err != nil {
		return fmt.Sprintf("message is not a bot command: %v", err)
	}

	c.mu.Lock()
	cmd, ok := c.handlers[name]
	c.mu.Unlock()
	if !ok {
		return fmt.Sprintf("command %q is not supported", name)
	}

	var sb strings.Builder
	if err := cmd.run(cli.WithStdout(ctx, &sb), args); err != nil {
		slog.Error("bot command has failed", "command", name, "user", msg.From.Username, "err", err)
		return err.Error()
	}
	return sb.String()
}

func (c *Client) saveChatID(user string, chatID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if id, ok := c.state.UserChatIDMap[user]; ok && id == chatID {
		return
	}
	c.state.UserChatIDMap[user] = chatID
	slog.Info("saving chat id of an authorized user", "user", user, "chat-id", chatID)

	if err := saveState(c.statePath, c.state); err != nil {
		slog.Error("could not save telegram state (ignored)", "path", c.statePath, "err", err)
	}
}

func uptime(ctx context.Context, _ []string) error {
	const day = 24 * time.Hour
	d := time.Since(startTime).Round(time.Second)
	if d < day {
		fmt.Fprintf(cli.Stdout(ctx), "%v", d)
		return nil
	}
	fmt.Fprintf(cli.Stdout(ctx), "%dd%v", d/day, d%day)
	return nil
}

func version(ctx context.Context, _ []string) error {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return fmt.Errorf("could not read build information")
	}
	w := cli.Stdout(ctx)
	fmt.Fprintf(w, "%s %s (%s)\n", info.Main.Path, info.Main.Version, info.GoVersion)
	for _, s := range info.Settings {
		if strings.HasPrefix(s.Key, "vcs.") {
			fmt.Fprintf(w, "%s: %s\n", s.Key, s.Value)
		}
	}
	return nil
}
