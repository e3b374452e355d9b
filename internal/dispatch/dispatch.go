// Package dispatch delivers posts to destination channels with pacing
// and per-destination failure isolation.
package dispatch

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"relaybot/internal/metrics"
	"relaybot/internal/model"
	kit "relaybot/internal/transport"
	logx "relaybot/pkg/logx"
)

// Telegram rejects captions longer than this.
const captionMax = 1024

type Config struct {
	// DestinationDelay is the minimum gap between consecutive sends to
	// different destinations. Zero disables pacing (tests).
	DestinationDelay time.Duration
	// PostDelay is the extra gap inserted between posts of one firing.
	PostDelay time.Duration
}

// Failure records one destination that could not be delivered to.
type Failure struct {
	ChatID int64
	PostID string
	Err    error
}

// Report tallies one broadcast. Attempted counts (post, destination)
// pairs; a destination failing on one post does not stop the others.
type Report struct {
	Attempted int
	Delivered int
	Failures  []Failure
}

func (r Report) AllFailed() bool { return r.Attempted > 0 && r.Delivered == 0 }

// Sender paces deliveries through a shared rate limiter so broadcasts
// never burst past the provider's flood limits.
type Sender struct {
	adapter   kit.Adapter
	limiter   *rate.Limiter
	postDelay time.Duration
	log       logx.Logger
}

func New(adapter kit.Adapter, cfg Config, log logx.Logger) *Sender {
	if log.IsZero() {
		log = logx.Nop()
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.DestinationDelay > 0 {
		limiter = rate.NewLimiter(rate.Every(cfg.DestinationDelay), 1)
	}
	return &Sender{
		adapter:   adapter,
		limiter:   limiter,
		postDelay: cfg.PostDelay,
		log:       log,
	}
}

// Broadcast sends every post to every destination, in order. The footer
// is appended to each payload. Errors are tallied, never fatal; only a
// cancelled context stops the broadcast early.
func (s *Sender) Broadcast(ctx context.Context, posts []model.Post, dests []model.Destination, footer string) Report {
	var rep Report
	for i, p := range posts {
		if i > 0 && s.postDelay > 0 {
			select {
			case <-time.After(s.postDelay):
			case <-ctx.Done():
				return rep
			}
		}
		for _, d := range dests {
			if err := s.limiter.Wait(ctx); err != nil {
				return rep
			}
			rep.Attempted++
			if err := s.sendOne(ctx, d.ID, p, footer); err != nil {
				rep.Failures = append(rep.Failures, Failure{ChatID: d.ID, PostID: p.ID, Err: err})
				metrics.SendFailuresTotal.Inc()
				s.log.Warn("dispatch: send failed",
					logx.Int64("chat_id", d.ID),
					logx.String("post_id", p.ID),
					logx.Err(err))
				continue
			}
			rep.Delivered++
			metrics.SendsTotal.Inc()
		}
	}
	return rep
}

func (s *Sender) sendOne(ctx context.Context, chatID int64, p model.Post, footer string) error {
	to := kit.ChatTarget{ChatID: chatID}
	switch {
	case p.Kind == model.KindText:
		_, err := s.adapter.SendText(ctx, to, withFooter(p.Body, footer), nil)
		return err

	case p.Kind == model.KindVoice:
		// Voice notes cannot carry captions; the footer follows as its
		// own message.
		_, err := s.adapter.SendMedia(ctx, to, kit.Media{Kind: kit.MediaVoice, FileID: p.MediaRef}, nil)
		if err != nil {
			return err
		}
		if footer != "" {
			_, err = s.adapter.SendText(ctx, to, footer, nil)
		}
		return err

	default:
		m := kit.Media{
			Kind:    mediaKind(p.Kind),
			FileID:  p.MediaRef,
			Caption: clipRunes(withFooter(p.Caption, footer), captionMax),
		}
		_, err := s.adapter.SendMedia(ctx, to, m, nil)
		return err
	}
}

func withFooter(body, footer string) string {
	if footer == "" {
		return body
	}
	if body == "" {
		return footer
	}
	return body + "\n\n" + footer
}

func clipRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func mediaKind(k model.Kind) kit.MediaKind {
	switch k {
	case model.KindPhoto:
		return kit.MediaPhoto
	case model.KindVideo:
		return kit.MediaVideo
	case model.KindDocument:
		return kit.MediaDocument
	case model.KindAudio:
		return kit.MediaAudio
	case model.KindAnimation:
		return kit.MediaAnimation
	default:
		return kit.MediaDocument
	}
}
