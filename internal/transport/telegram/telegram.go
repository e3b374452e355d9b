package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	tele "gopkg.in/telebot.v4"

	rtsup "relaybot/internal/runtime/supervisor"
	kit "relaybot/internal/transport"
	logx "relaybot/pkg/logx"
)

type Config struct {
	Token       string
	PollTimeout time.Duration
}

type Adapter struct {
	cfg Config
	log logx.Logger

	bot *tele.Bot
	out atomic.Value // stores (chan<- kit.Update)

	runMu   sync.Mutex
	running bool

	menuMu   sync.Mutex
	menuHash uint64

	// sup owns adapter internal goroutines (poll loop, drop logger).
	sup *rtsup.Supervisor

	// droppedUpdates counts updates dropped because the consumer was slower
	// than the Telegram poll loop. Logged periodically to avoid per-update spam.
	droppedUpdates uint64
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	a := &Adapter{cfg: cfg, log: log, bot: b}
	// Ensure atomic.Value is initialized with a stable dynamic type.
	var nilOut chan<- kit.Update
	a.out.Store(nilOut)
	a.registerHandlers()
	return a, nil
}

func (a *Adapter) registerHandlers() {
	// Handlers forward to the CURRENT output channel. Start() may swap it.
	a.bot.Handle(tele.OnText, func(c tele.Context) error {
		a.forwardMessage(c.Message(), nil)
		return nil
	})

	media := map[string]func(m *tele.Message) *kit.Media{
		tele.OnPhoto: func(m *tele.Message) *kit.Media {
			if m.Photo == nil {
				return nil
			}
			return &kit.Media{Kind: kit.MediaPhoto, FileID: m.Photo.FileID, Caption: m.Caption}
		},
		tele.OnVideo: func(m *tele.Message) *kit.Media {
			if m.Video == nil {
				return nil
			}
			return &kit.Media{Kind: kit.MediaVideo, FileID: m.Video.FileID, Caption: m.Caption}
		},
		tele.OnDocument: func(m *tele.Message) *kit.Media {
			if m.Document == nil {
				return nil
			}
			return &kit.Media{Kind: kit.MediaDocument, FileID: m.Document.FileID, Caption: m.Caption}
		},
		tele.OnAudio: func(m *tele.Message) *kit.Media {
			if m.Audio == nil {
				return nil
			}
			return &kit.Media{Kind: kit.MediaAudio, FileID: m.Audio.FileID, Caption: m.Caption}
		},
		tele.OnVoice: func(m *tele.Message) *kit.Media {
			if m.Voice == nil {
				return nil
			}
			return &kit.Media{Kind: kit.MediaVoice, FileID: m.Voice.FileID}
		},
		tele.OnAnimation: func(m *tele.Message) *kit.Media {
			if m.Animation == nil {
				return nil
			}
			return &kit.Media{Kind: kit.MediaAnimation, FileID: m.Animation.FileID, Caption: m.Caption}
		},
	}
	for endpoint, extract := range media {
		ex := extract
		a.bot.Handle(endpoint, func(c tele.Context) error {
			m := c.Message()
			if m == nil {
				return nil
			}
			a.forwardMessage(m, ex(m))
			return nil
		})
	}

	a.bot.Handle(tele.OnCallback, func(c tele.Context) error {
		cb := c.Callback()
		m := c.Message()
		if cb == nil || m == nil {
			return nil
		}
		a.sendUpdate(kit.Update{
			Kind: kit.UpdateCallback,
			Callback: &kit.Callback{
				ID:        cb.ID,
				ChatID:    m.Chat.ID,
				FromID:    cb.Sender.ID,
				MessageID: m.ID,
				// telebot prefixes callback data with "\f"; normalize it away.
				Data: strings.TrimPrefix(strings.TrimSpace(cb.Data), "\f"),
			},
		})
		return nil
	})
}

func (a *Adapter) forwardMessage(m *tele.Message, media *kit.Media) {
	if m == nil || m.Sender == nil {
		return
	}
	a.sendUpdate(kit.Update{
		Kind: kit.UpdateMessage,
		Message: &kit.Message{
			ID:           m.ID,
			ChatID:       m.Chat.ID,
			FromID:       m.Sender.ID,
			FromUsername: m.Sender.Username,
			Text:         m.Text,
			Media:        media,
		},
	})
}

func (a *Adapter) sendUpdate(up kit.Update) {
	v := a.out.Load()
	out, _ := v.(chan<- kit.Update)
	if out == nil {
		return
	}
	select {
	case out <- up:
	default:
		atomic.AddUint64(&a.droppedUpdates, 1)
	}
}

func (a *Adapter) Start(ctx context.Context, out chan<- kit.Update) error {
	if ctx == nil {
		ctx = context.Background()
	}
	a.runMu.Lock()
	if a.running {
		a.runMu.Unlock()
		return nil
	}
	a.running = true
	a.out.Store(out)
	a.sup = rtsup.New(ctx, a.log.With(logx.String("comp", "telegram.adapter")))
	sup := a.sup
	a.runMu.Unlock()

	// Periodic summary for dropped updates (avoid noisy per-update logs).
	sup.Go("updates.drop_report", func(c context.Context) {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-c.Done():
				if n := atomic.SwapUint64(&a.droppedUpdates, 0); n > 0 {
					a.log.Warn("incoming updates dropped (channel full)", logx.Int64("count", int64(n)))
				}
				return
			case <-ticker.C:
				if n := atomic.SwapUint64(&a.droppedUpdates, 0); n > 0 {
					a.log.Warn("incoming updates dropped (channel full)", logx.Int64("count", int64(n)))
				}
			}
		}
	})

	sup.Go("telebot.stop_on_cancel", func(c context.Context) {
		<-c.Done()
		if a.bot != nil {
			a.bot.Stop()
		}
	})

	// Telebot's Start() is a long-running loop. In some failure modes it can
	// exit unexpectedly; run it under a restart loop so the adapter self-heals.
	sup.GoRestart("telebot.poll", func(c context.Context) {
		if c.Err() != nil {
			return
		}
		a.log.Info("polling started")
		a.bot.Start() // blocks until Stop()
		a.log.Info("polling stopped")
	}, 500*time.Millisecond)

	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	sup := a.sup
	a.sup = nil
	wasRunning := a.running
	a.running = false
	var nilOut chan<- kit.Update
	a.out.Store(nilOut)
	a.runMu.Unlock()

	if !wasRunning {
		return nil
	}
	if sup != nil {
		sup.Cancel()
	}
	// telebot Stop is expected to be fast; run it async just in case.
	go a.bot.Stop()

	// Grace window: keep shutdown snappy even if getUpdates long-poll is
	// still waiting.
	wctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if sup != nil {
		if err := sup.Wait(wctx); err != nil {
			a.log.Warn("telegram stop timed out", logx.Err(err))
		}
	}
	return nil
}

func (a *Adapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	if strings.TrimSpace(text) == "" {
		return kit.MessageRef{}, errors.New("empty message text")
	}
	msg, err := a.bot.Send(tele.ChatID(to.ChatID), text, sendOptions(opt))
	if err != nil {
		return kit.MessageRef{}, fmt.Errorf("send text to %d: %w", to.ChatID, err)
	}
	return kit.MessageRef{ChatID: to.ChatID, MessageID: msg.ID}, nil
}

func (a *Adapter) SendMedia(ctx context.Context, to kit.ChatTarget, m kit.Media, opt *kit.SendOptions) (kit.MessageRef, error) {
	what, err := sendable(m)
	if err != nil {
		return kit.MessageRef{}, err
	}
	msg, err := a.bot.Send(tele.ChatID(to.ChatID), what, sendOptions(opt))
	if err != nil {
		return kit.MessageRef{}, fmt.Errorf("send %s to %d: %w", m.Kind, to.ChatID, err)
	}
	return kit.MessageRef{ChatID: to.ChatID, MessageID: msg.ID}, nil
}

func (a *Adapter) EditText(ctx context.Context, ref kit.MessageRef, text string, opt *kit.SendOptions) error {
	msg := &tele.Message{ID: ref.MessageID, Chat: &tele.Chat{ID: ref.ChatID}}
	if _, err := a.bot.Edit(msg, text, sendOptions(opt)); err != nil {
		return fmt.Errorf("edit message %d in %d: %w", ref.MessageID, ref.ChatID, err)
	}
	return nil
}

func (a *Adapter) AnswerCallback(ctx context.Context, callbackID string, text string) error {
	return a.bot.Respond(&tele.Callback{ID: callbackID}, &tele.CallbackResponse{Text: text})
}

// UpdateMenuCommands updates Telegram's global /menu command list
// (setMyCommands). Best-effort: it only performs a network call when the
// command list changes.
func (a *Adapter) UpdateMenuCommands(ctx context.Context, cmds []kit.BotCommand) error {
	a.menuMu.Lock()
	defer a.menuMu.Unlock()

	h := fnv.New64a()
	for _, c := range cmds {
		h.Write([]byte(c.Command))
		h.Write([]byte{0})
		h.Write([]byte(c.Description))
		h.Write([]byte{0})
	}
	sum := h.Sum64()
	if sum == a.menuHash {
		return nil
	}

	type cmd struct {
		Command     string `json:"command"`
		Description string `json:"description"`
	}
	payload := struct {
		Commands []cmd `json:"commands"`
	}{Commands: make([]cmd, 0, len(cmds))}

	for _, c := range cmds {
		if c.Command == "" {
			continue
		}
		d := c.Description
		if d == "" {
			d = c.Command
		}
		if len(d) > 256 {
			d = d[:256]
		}
		payload.Commands = append(payload.Commands, cmd{Command: c.Command, Description: d})
		if len(payload.Commands) >= 100 {
			break
		}
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	url := "https://api.telegram.org/bot" + strings.TrimSpace(a.cfg.Token) + "/setMyCommands"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 8 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var out struct {
		OK          bool   `json:"ok"`
		ErrorCode   int    `json:"error_code"`
		Description string `json:"description"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&out)

	if resp.StatusCode/100 != 2 || !out.OK {
		if out.Description != "" {
			return fmt.Errorf("telegram setMyCommands failed: %s (code=%d http=%d)", out.Description, out.ErrorCode, resp.StatusCode)
		}
		return fmt.Errorf("telegram setMyCommands failed: http=%d", resp.StatusCode)
	}

	a.menuHash = sum
	a.log.Info("menu commands updated", logx.Int("count", len(payload.Commands)))
	return nil
}

func sendable(m kit.Media) (any, error) {
	f := tele.File{FileID: m.FileID}
	switch m.Kind {
	case kit.MediaPhoto:
		return &tele.Photo{File: f, Caption: m.Caption}, nil
	case kit.MediaVideo:
		return &tele.Video{File: f, Caption: m.Caption}, nil
	case kit.MediaDocument:
		return &tele.Document{File: f, Caption: m.Caption}, nil
	case kit.MediaAudio:
		return &tele.Audio{File: f, Caption: m.Caption}, nil
	case kit.MediaVoice:
		// Voice notes carry no caption; callers send footer text separately.
		return &tele.Voice{File: f}, nil
	case kit.MediaAnimation:
		return &tele.Animation{File: f, Caption: m.Caption}, nil
	default:
		return nil, fmt.Errorf("unsupported media kind %q", m.Kind)
	}
}

func sendOptions(opt *kit.SendOptions) *tele.SendOptions {
	if opt == nil {
		return &tele.SendOptions{}
	}
	so := &tele.SendOptions{
		DisableWebPagePreview: opt.DisablePreview,
		ParseMode:             opt.ParseMode,
	}
	if rm, ok := opt.ReplyMarkup.(*tele.ReplyMarkup); ok {
		so.ReplyMarkup = rm
	}
	return so
}
