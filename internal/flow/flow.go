// Package flow implements the durable per-owner conversation state
// machine behind the schedule wizard and the content-input flows.
//
// State lives in the store, not in process memory, so an in-progress
// flow survives restarts and concurrent owners never share anything.
// Invalid input at any step re-prompts without advancing.
package flow

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"relaybot/internal/metrics"
	"relaybot/internal/model"
	"relaybot/internal/storage"
	kit "relaybot/internal/transport"
	logx "relaybot/pkg/logx"
)

const (
	cmdDone   = "/done"
	cmdCancel = "/cancel"

	maxTimesPerSchedule = 12
	minPostsPerFiring   = 1
	maxPostsPerFiring   = 10
)

// Machine drives all conversation flows. Inbound messages for one owner
// must be delivered to it serially; the surrounding update loop
// guarantees that.
type Machine struct {
	store storage.Store
	log   logx.Logger
}

func New(store storage.Store, log logx.Logger) *Machine {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Machine{store: store, log: log}
}

// StartScheduleSetup begins the schedule creation wizard, replacing any
// flow the owner already had in progress.
func (m *Machine) StartScheduleSetup(ctx context.Context, ownerID int64) (string, error) {
	if err := m.put(ctx, ownerID, model.FlowScheduleSetup, model.StepTimeInput, model.TempData{}); err != nil {
		return "", err
	}
	return "🕐 Let's set up a schedule.\n\n" +
		"Send me a firing time in 24-hour format, e.g. 09:30 or 18:00.\n" +
		"Add as many times as you like, then send /done. Send /cancel to abort.", nil
}

// StartPostManagement begins the post-addition flow.
func (m *Machine) StartPostManagement(ctx context.Context, ownerID int64) (string, error) {
	if err := m.put(ctx, ownerID, model.FlowPostManagement, model.StepAddPost, model.TempData{}); err != nil {
		return "", err
	}
	return "📝 Send me the content to save: text, photo, video, document, " +
		"audio, voice or GIF.\n\nSend /done when finished, /cancel to abort.", nil
}

// StartFooterInput begins the footer replacement flow.
func (m *Machine) StartFooterInput(ctx context.Context, ownerID int64) (string, error) {
	if err := m.put(ctx, ownerID, model.FlowFooterInput, model.StepAwaitText, model.TempData{}); err != nil {
		return "", err
	}
	return "✍️ Send the new footer text. It will be appended to every " +
		"delivered post. Send /cancel to keep the current footer.", nil
}

// StartChannelInput begins adding or removing a destination channel.
func (m *Machine) StartChannelInput(ctx context.Context, ownerID int64, remove bool) (string, error) {
	if err := m.put(ctx, ownerID, model.FlowChannelInput, model.StepAwaitText, model.TempData{Remove: remove}); err != nil {
		return "", err
	}
	if remove {
		return "Send the numeric chat ID of the channel to remove, or /cancel.", nil
	}
	return "Send the numeric chat ID of the channel to add (e.g. -1001234567890), or /cancel.\n" +
		"The bot must already be an administrator there.", nil
}

// HandleMessage routes an inbound message into the owner's live flow.
// It reports false when the owner has no flow in progress, in which case
// the caller should treat the message as a plain command.
func (m *Machine) HandleMessage(ctx context.Context, msg *kit.Message) (bool, []string, error) {
	st, err := m.store.GetState(ctx, msg.FromID)
	if err != nil {
		return false, nil, fmt.Errorf("load state: %w", err)
	}
	if st == nil {
		return false, nil, nil
	}

	text := strings.TrimSpace(msg.Text)
	if strings.EqualFold(text, cmdCancel) {
		if err := m.store.ClearState(ctx, msg.FromID); err != nil {
			return true, nil, err
		}
		return true, []string{"❌ Cancelled."}, nil
	}

	var replies []string
	switch st.Flow {
	case model.FlowScheduleSetup:
		replies, err = m.stepScheduleSetup(ctx, st, text)
	case model.FlowPostManagement:
		replies, err = m.stepAddPost(ctx, st, msg)
	case model.FlowFooterInput:
		replies, err = m.stepFooter(ctx, st, text)
	case model.FlowChannelInput:
		replies, err = m.stepChannel(ctx, st, text)
	default:
		// Unknown flow in the store, likely from an older build. Drop it.
		m.log.Warn("flow: clearing unknown flow",
			logx.Int64("owner_id", st.OwnerID), logx.String("flow", string(st.Flow)))
		err = m.store.ClearState(ctx, st.OwnerID)
	}
	return true, replies, err
}

func (m *Machine) stepScheduleSetup(ctx context.Context, st *model.ConvState, text string) ([]string, error) {
	switch st.Step {
	case model.StepTimeInput:
		return m.stepTimeInput(ctx, st, text)
	case model.StepPostCount:
		return m.stepPostCount(ctx, st, text)
	default:
		return m.resetBrokenState(ctx, st)
	}
}

func (m *Machine) stepTimeInput(ctx context.Context, st *model.ConvState, text string) ([]string, error) {
	if strings.EqualFold(text, cmdDone) {
		if len(st.Temp.Times) == 0 {
			return []string{"Add at least one time before /done, e.g. 09:30."}, nil
		}
		st.Step = model.StepPostCount
		if err := m.save(ctx, st); err != nil {
			return nil, err
		}
		return []string{fmt.Sprintf(
			"Times saved: %s\n\nHow many posts should be sent at each firing? (%d-%d)",
			strings.Join(st.Temp.Times, ", "), minPostsPerFiring, maxPostsPerFiring)}, nil
	}

	hhmm, ok := ParseHHMM(text)
	if !ok {
		return []string{"⚠️ That doesn't look like a valid time. " +
			"Use 24-hour HH:MM, e.g. 09:30 or 18:00."}, nil
	}
	for _, existing := range st.Temp.Times {
		if existing == hhmm {
			return []string{fmt.Sprintf("⚠️ %s is already on the list.", hhmm)}, nil
		}
	}
	if len(st.Temp.Times) >= maxTimesPerSchedule {
		return []string{fmt.Sprintf(
			"⚠️ A schedule can have at most %d times. Send /done to continue.",
			maxTimesPerSchedule)}, nil
	}
	st.Temp.Times = append(st.Temp.Times, hhmm)
	if err := m.save(ctx, st); err != nil {
		return nil, err
	}
	return []string{fmt.Sprintf("✅ Added %s. Times so far: %s\n\nAdd another or send /done.",
		hhmm, strings.Join(st.Temp.Times, ", "))}, nil
}

func (m *Machine) stepPostCount(ctx context.Context, st *model.ConvState, text string) ([]string, error) {
	n, err := strconv.Atoi(text)
	if err != nil || n < minPostsPerFiring || n > maxPostsPerFiring {
		return []string{fmt.Sprintf("⚠️ Send a number between %d and %d.",
			minPostsPerFiring, maxPostsPerFiring)}, nil
	}

	posts, err := m.store.PostsByOwner(ctx, st.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("load posts: %w", err)
	}
	if len(posts) == 0 {
		return []string{"⚠️ You have no saved posts yet. " +
			"Use /manage_posts to add some first, then send the count again."}, nil
	}
	if n > len(posts) {
		return []string{fmt.Sprintf(
			"⚠️ You asked for %d posts per firing but only have %d saved. "+
				"Send a smaller number, or add posts with /manage_posts first.",
			n, len(posts))}, nil
	}

	// The pool is the owner's whole library at this moment; the count
	// only controls how many are sampled per firing.
	pool := make([]string, len(posts))
	for i, p := range posts {
		pool[i] = p.ID
	}
	sc := &model.Schedule{
		ID:             model.NewScheduleID(),
		OwnerID:        st.OwnerID,
		FiringTimes:    st.Temp.Times,
		PostPool:       pool,
		PostsPerFiring: n,
		IsActive:       true,
		CreatedAt:      time.Now(),
	}
	if err := m.store.SaveSchedule(ctx, sc); err != nil {
		return nil, fmt.Errorf("save schedule: %w", err)
	}
	if err := m.store.ClearState(ctx, st.OwnerID); err != nil {
		return nil, err
	}
	return []string{fmt.Sprintf(
		"🎉 Schedule created!\n\nTimes: %s\nPosts per firing: %d (from %d saved)\nStatus: active\n\n"+
			"Manage it with /my_schedules.",
		strings.Join(sc.FiringTimes, ", "), n, len(pool))}, nil
}

func (m *Machine) stepAddPost(ctx context.Context, st *model.ConvState, msg *kit.Message) ([]string, error) {
	text := strings.TrimSpace(msg.Text)
	if strings.EqualFold(text, cmdDone) {
		posts, err := m.store.PostsByOwner(ctx, st.OwnerID)
		if err != nil {
			return nil, err
		}
		if err := m.store.ClearState(ctx, st.OwnerID); err != nil {
			return nil, err
		}
		return []string{fmt.Sprintf("✅ Done. You now have %d saved post(s).", len(posts))}, nil
	}

	p, ok := postFromMessage(msg)
	if !ok {
		return []string{"⚠️ I can save text, photos, videos, documents, audio, " +
			"voice notes and GIFs. Send one of those, or /done."}, nil
	}
	if err := m.store.SavePost(ctx, p); err != nil {
		return nil, fmt.Errorf("save post: %w", err)
	}
	if err := m.touch(ctx, st); err != nil {
		return nil, err
	}
	return []string{fmt.Sprintf("✅ Saved: %s\n\nSend more or /done.", p.Title)}, nil
}

func (m *Machine) stepFooter(ctx context.Context, st *model.ConvState, text string) ([]string, error) {
	if strings.EqualFold(text, cmdDone) {
		// There is nothing to finalize here; keep the current footer.
		if err := m.store.ClearState(ctx, st.OwnerID); err != nil {
			return nil, err
		}
		return []string{"❌ Cancelled. The footer is unchanged."}, nil
	}
	if text == "" || strings.HasPrefix(text, "/") {
		return []string{"⚠️ Send the footer as plain text, or /cancel."}, nil
	}
	if err := m.store.SetFooter(ctx, text); err != nil {
		return nil, fmt.Errorf("save footer: %w", err)
	}
	if err := m.store.ClearState(ctx, st.OwnerID); err != nil {
		return nil, err
	}
	return []string{"✅ Footer updated. It will be appended to every delivered post."}, nil
}

func (m *Machine) stepChannel(ctx context.Context, st *model.ConvState, text string) ([]string, error) {
	chatID, err := strconv.ParseInt(text, 10, 64)
	if err != nil || chatID == 0 {
		return []string{"⚠️ Send a numeric chat ID, e.g. -1001234567890, or /cancel."}, nil
	}

	if st.Temp.Remove {
		err = m.store.RemoveDestination(ctx, chatID)
		if err == storage.ErrNotFound {
			return []string{fmt.Sprintf("⚠️ %d is not on the channel list. "+
				"Check /list_channels and try again, or /cancel.", chatID)}, nil
		}
		if err != nil {
			return nil, fmt.Errorf("remove destination: %w", err)
		}
		if err := m.store.ClearState(ctx, st.OwnerID); err != nil {
			return nil, err
		}
		return []string{fmt.Sprintf("✅ Channel %d removed.", chatID)}, nil
	}

	if !strings.HasPrefix(text, "-100") {
		return []string{"⚠️ Channel IDs start with -100, e.g. -1001234567890. " +
			"Forward a message from the channel to @userinfobot to find it, or /cancel."}, nil
	}
	if err := m.store.AddDestination(ctx, chatID); err != nil {
		return nil, fmt.Errorf("add destination: %w", err)
	}
	if err := m.store.ClearState(ctx, st.OwnerID); err != nil {
		return nil, err
	}
	return []string{fmt.Sprintf("✅ Channel %d added. Scheduled posts will be delivered there.", chatID)}, nil
}

func (m *Machine) resetBrokenState(ctx context.Context, st *model.ConvState) ([]string, error) {
	m.log.Warn("flow: clearing state with unknown step",
		logx.Int64("owner_id", st.OwnerID),
		logx.String("flow", string(st.Flow)),
		logx.String("step", st.Step))
	if err := m.store.ClearState(ctx, st.OwnerID); err != nil {
		return nil, err
	}
	return []string{"Something went out of sync, the flow was reset. Start again from /menu."}, nil
}

// EvictStale removes conversation states idle for longer than ttl.
// Safety net against abandoned flows, invisible to users.
func (m *Machine) EvictStale(ctx context.Context, ttl time.Duration) (int, error) {
	n, err := m.store.DeleteIdleStates(ctx, time.Now().Add(-ttl))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		metrics.StatesEvictedTotal.Add(float64(n))
		m.log.Info("flow: evicted stale states", logx.Int("count", n))
	}
	return n, nil
}

func (m *Machine) put(ctx context.Context, ownerID int64, fl model.Flow, step string, temp model.TempData) error {
	return m.store.PutState(ctx, &model.ConvState{
		OwnerID:        ownerID,
		Flow:           fl,
		Step:           step,
		Temp:           temp,
		LastActivityAt: time.Now(),
	})
}

func (m *Machine) save(ctx context.Context, st *model.ConvState) error {
	st.LastActivityAt = time.Now()
	return m.store.PutState(ctx, st)
}

func (m *Machine) touch(ctx context.Context, st *model.ConvState) error {
	return m.save(ctx, st)
}

func postFromMessage(msg *kit.Message) (*model.Post, bool) {
	now := time.Now()
	if msg.Media != nil {
		kind, ok := postKind(msg.Media.Kind)
		if !ok {
			return nil, false
		}
		return &model.Post{
			ID:        model.NewPostID(),
			OwnerID:   msg.FromID,
			Kind:      kind,
			MediaRef:  msg.Media.FileID,
			Caption:   msg.Media.Caption,
			Title:     model.DeriveTitle(kind, "", msg.Media.Caption, ""),
			CreatedAt: now,
		}, true
	}
	text := strings.TrimSpace(msg.Text)
	if text == "" || strings.HasPrefix(text, "/") {
		return nil, false
	}
	return &model.Post{
		ID:        model.NewPostID(),
		OwnerID:   msg.FromID,
		Kind:      model.KindText,
		Body:      text,
		Title:     model.DeriveTitle(model.KindText, text, "", ""),
		CreatedAt: now,
	}, true
}

func postKind(mk kit.MediaKind) (model.Kind, bool) {
	switch mk {
	case kit.MediaPhoto:
		return model.KindPhoto, true
	case kit.MediaVideo:
		return model.KindVideo, true
	case kit.MediaDocument:
		return model.KindDocument, true
	case kit.MediaAudio:
		return model.KindAudio, true
	case kit.MediaVoice:
		return model.KindVoice, true
	case kit.MediaAnimation:
		return model.KindAnimation, true
	}
	return "", false
}
