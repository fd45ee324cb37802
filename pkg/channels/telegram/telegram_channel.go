package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"chatagent/pkg/api"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	pollTimeoutSec = 60
	retryDelay     = 3 * time.Second
	failureReply   = "Sorry, I couldn't process that. Please try again later."
	helpReply      = "Ask me about the weather somewhere, or tell me your skills and I'll suggest a job."
)

// TelegramConfig encapsulates the credentials required to authenticate with
// the Telegram Bot API.
type TelegramConfig struct {
	Token string `json:"token"` // The secret BOT API string provided by @BotFather
}

// botAPI is the subset of *tgbotapi.BotAPI the channel uses.
type botAPI interface {
	GetUpdates(config tgbotapi.UpdateConfig) ([]tgbotapi.Update, error)
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramChannel is the api.Channel implementation for Telegram. Every
// inbound text message is one single-message conversation whose thread id
// is the chat id.
type TelegramChannel struct {
	bot          botAPI
	transport    *http.Transport
	messageLimit int
	stopCtx      context.Context    // Cancelled by Stop; aborts polling and in-flight conversations
	stopCancel   context.CancelFunc // Function to trigger the abort
	wg           sync.WaitGroup
	stopOnce     sync.Once
}

func NewTelegramChannel(cfg TelegramConfig, msgLimit int) (*TelegramChannel, error) {
	ctx, cancel := context.WithCancel(context.Background())

	// Tie every dial to stopCtx so an active long poll is aborted on Stop
	// instead of lingering and causing a 409 Conflict on restart.
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: func(dialCtx context.Context, network, addr string) (net.Conn, error) {
			mergedCtx, mergedCancel := context.WithCancel(dialCtx)
			go func() {
				select {
				case <-ctx.Done():
					mergedCancel()
				case <-mergedCtx.Done():
				}
			}()
			conn, err := dialer.DialContext(mergedCtx, network, addr)
			if err != nil {
				mergedCancel()
				return nil, err
			}
			return newCancelConn(conn, ctx, mergedCancel), nil
		},
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	botHTTPClient := &http.Client{
		Timeout:   (pollTimeoutSec + 10) * time.Second,
		Transport: transport,
	}

	bot, err := tgbotapi.NewBotAPIWithClient(cfg.Token, tgbotapi.APIEndpoint, botHTTPClient)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	slog.Info("Telegram bot authorized", "username", bot.Self.UserName)

	t := newChannel(ctx, cancel, bot, msgLimit)
	t.transport = transport
	return t, nil
}

func newChannel(ctx context.Context, cancel context.CancelFunc, bot botAPI, msgLimit int) *TelegramChannel {
	if msgLimit <= 0 {
		msgLimit = 4000
	}
	return &TelegramChannel{
		bot:          bot,
		messageLimit: msgLimit,
		stopCtx:      ctx,
		stopCancel:   cancel,
	}
}

// cancelConn closes the underlying connection once stop is cancelled, which
// unblocks a read stuck in a long poll. Close also ends the watcher.
type cancelConn struct {
	net.Conn
	stop    context.Context
	release context.CancelFunc
	done    chan struct{}
	once    sync.Once
	watch   sync.Once
}

func newCancelConn(conn net.Conn, stop context.Context, release context.CancelFunc) *cancelConn {
	return &cancelConn{Conn: conn, stop: stop, release: release, done: make(chan struct{})}
}

func (c *cancelConn) Read(p []byte) (int, error) {
	c.watch.Do(func() {
		go func() {
			select {
			case <-c.stop.Done():
				c.Close()
			case <-c.done:
			}
		}()
	})
	return c.Conn.Read(p)
}

func (c *cancelConn) Close() error {
	var err error
	c.once.Do(func() {
		close(c.done)
		err = c.Conn.Close()
		c.release()
	})
	return err
}

// ID returns the unique platform identifier "telegram".
func (t *TelegramChannel) ID() string {
	return "telegram"
}

// Start initiates the long-polling update loop in a background goroutine.
func (t *TelegramChannel) Start(ctx api.ChannelContext) error {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.poll(ctx)
	}()
	return nil
}

func (t *TelegramChannel) poll(ctx api.ChannelContext) {
	offset := 0
	for {
		select {
		case <-t.stopCtx.Done():
			return // Gracefully exit on shutdown
		default:
		}

		reqConfig := tgbotapi.NewUpdate(offset)
		reqConfig.Timeout = pollTimeoutSec

		// GetUpdates rather than GetUpdatesChan keeps offset and shutdown under our control.
		updates, err := t.bot.GetUpdates(reqConfig)
		if err != nil {
			select {
			case <-t.stopCtx.Done():
				return // Ignore error if we are shutting down
			case <-time.After(retryDelay):
				slog.Debug("Failed to get telegram updates", "error", err)
				continue
			}
		}

		for _, update := range updates {
			if update.UpdateID < offset {
				continue
			}
			offset = update.UpdateID + 1
			if update.Message == nil || update.Message.Chat == nil {
				continue
			}

			t.wg.Add(1)
			go func(msg *tgbotapi.Message) {
				defer t.wg.Done()
				t.handleMessage(ctx, msg)
			}(update.Message)
		}
	}
}

func (t *TelegramChannel) handleMessage(ctx api.ChannelContext, message *tgbotapi.Message) {
	chatID := message.Chat.ID
	var reply string

	switch message.Command() {
	case "start", "help":
		reply = helpReply
	case "":
		text := message.Text
		if text == "" {
			text = message.Caption
		}
		if text == "" {
			return
		}

		// Best effort; the conversation proceeds either way.
		if _, err := t.bot.Send(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)); err != nil {
			slog.Debug("Failed to send typing action", "chat", chatID, "error", err)
		}

		reqCtx := api.WithChannelID(t.stopCtx, t.ID())
		answer, err := ctx.Chat(reqCtx, api.ChatRequest{
			Messages: []string{text},
			ThreadID: strconv.FormatInt(chatID, 10),
		})
		if err != nil {
			if t.stopCtx.Err() != nil {
				return
			}
			slog.Error("Telegram conversation failed", "chat", chatID, "error", err)
			reply = failureReply
		} else {
			reply = answer
		}
	default:
		reply = "Unknown command. Try /help"
	}

	if err := t.Send(chatID, reply, message.MessageID); err != nil {
		slog.Error("Telegram send failed", "chat", chatID, "error", err)
	}
}

// Send delivers text, split into chunks of at most messageLimit runes. The
// first chunk replies to replyTo when it is non-zero.
func (t *TelegramChannel) Send(chatID int64, text string, replyTo int) error {
	for i, chunk := range splitMessage(text, t.messageLimit) {
		msg := tgbotapi.NewMessage(chatID, chunk)
		if i == 0 && replyTo != 0 {
			msg.ReplyToMessageID = replyTo
		}
		if _, err := t.bot.Send(msg); err != nil {
			return fmt.Errorf("telegram send chunk %d failed: %w", i, err)
		}
	}
	return nil
}

// splitMessage cuts text into pieces of at most limit runes. Empty text
// yields no pieces.
func splitMessage(text string, limit int) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	if limit <= 0 || len(runes) <= limit {
		return []string{text}
	}
	chunks := make([]string, 0, len(runes)/limit+1)
	for i := 0; i < len(runes); i += limit {
		end := min(i+limit, len(runes))
		chunks = append(chunks, string(runes[i:end]))
	}
	return chunks
}

func (t *TelegramChannel) Stop() error {
	t.stopOnce.Do(func() {
		t.stopCancel() // Cancel the long-polling loop and running conversations
		if t.transport != nil {
			t.transport.CloseIdleConnections()
		}
	})
	t.wg.Wait()
	return nil
}
