package bot

import (
	"context"
	"fmt"
	"strconv"

	"relaybot/internal/model"
	"relaybot/internal/storage"
	kit "relaybot/internal/transport"
	logx "relaybot/pkg/logx"
	"relaybot/pkg/tgui"
)

const postsPerPage = 8

// Renderers below are pure: given entities, they produce the message.
// All store access and Edit plumbing lives in the callback handlers, so
// the menu layout is testable without a transport or a database.

func renderMainMenu() tgui.Message {
	kb := tgui.NewInline().
		Row(tgui.Btn("🕐 Schedules", tgui.Data("menu", "schedules", "")),
			tgui.Btn("📝 Posts", tgui.Data("menu", "posts", ""))).
		Row(tgui.Btn("📡 Channels", tgui.Data("menu", "channels", "")),
			tgui.Btn("➕ New schedule", tgui.Data("menu", "new_schedule", ""))).
		Row(tgui.Btn("📥 Add posts", tgui.Data("menu", "add_posts", "")),
			tgui.Btn("✍️ Footer", tgui.Data("menu", "footer", "")))
	return tgui.New().
		Title("🤖", "Content Scheduler").
		Blank().
		Line("Pick an area to manage.").
		Inline(kb).
		Build()
}

func renderScheduleList(schedules []model.Schedule) tgui.Message {
	b := tgui.New().Title("🕐", "Schedules")
	if len(schedules) == 0 {
		b.Blank().Line("No schedules yet. Create one with ➕ below.")
	}
	kb := tgui.NewInline()
	for i, sc := range schedules {
		status := "🟢"
		if !sc.IsActive {
			status = "⏸"
		}
		label := fmt.Sprintf("%s #%d • %s • %d post(s)",
			status, i+1, joinTimes(sc.FiringTimes), sc.PostsPerFiring)
		kb.Row(tgui.Btn(tgui.TruncRunes(label, 60), tgui.Data("sch", "show", sc.ID)))
	}
	kb.Row(tgui.Btn("➕ New schedule", tgui.Data("menu", "new_schedule", "")),
		tgui.Btn("« Back", tgui.Data("menu", "main", "")))
	return b.Inline(kb).Build()
}

func renderScheduleDetail(sc model.Schedule, poolSize int) tgui.Message {
	b := tgui.New().Title("🕐", "Schedule").
		Blank().
		KV("Times", joinTimes(sc.FiringTimes)).
		KV("Posts per firing", strconv.Itoa(sc.PostsPerFiring)).
		KV("Pool size", strconv.Itoa(poolSize)).
		KV("Status", activeLabel(sc.IsActive))
	if sc.LastExecutedAt != nil {
		b.KV("Last fired", sc.LastExecutedAt.Format("2006-01-02 15:04"))
	} else {
		b.KV("Last fired", "never")
	}
	toggle := "⏸ Disable"
	if !sc.IsActive {
		toggle = "▶️ Enable"
	}
	kb := tgui.NewInline().
		Row(tgui.Btn(toggle, tgui.Data("sch", "tog", sc.ID)),
			tgui.Btn("🗑 Delete", tgui.Data("sch", "del", sc.ID))).
		Row(tgui.Btn("« Schedules", tgui.Data("menu", "schedules", "")))
	return b.Inline(kb).Build()
}

func renderScheduleDeleteConfirm(sc model.Schedule) tgui.Message {
	kb := tgui.ConfirmInline(
		tgui.Btn("✅ Yes, delete", tgui.Data("sch", "delok", sc.ID)),
		tgui.Btn("« Keep it", tgui.Data("sch", "show", sc.ID)))
	return tgui.New().
		Title("🗑", "Delete schedule?").
		Blank().
		Line(fmt.Sprintf("Times %s will stop firing permanently.", joinTimes(sc.FiringTimes))).
		Inline(kb).
		Build()
}

func renderPostsPage(posts []model.Post, page int) tgui.Message {
	b := tgui.New().Title("📝", "Saved posts")
	if len(posts) == 0 {
		b.Blank().Line("No posts yet. Add some with 📥 below.")
	} else {
		b.Blank().Line(tgui.PageLabel(page, postsPerPage, len(posts)))
	}
	sub, hasPrev, hasNext := tgui.PaginateSlice(posts, page, postsPerPage)
	kb := tgui.NewInline()
	for _, p := range sub {
		kb.Row(tgui.Btn(tgui.TruncRunes(kindEmoji(p.Kind)+" "+p.Title, 60),
			tgui.Data("post", "show", p.ID)))
	}
	switch {
	case hasPrev && hasNext:
		kb.Row(tgui.Btn("« Prev", tgui.Data("post", "page", strconv.Itoa(page-1))),
			tgui.Btn("Next »", tgui.Data("post", "page", strconv.Itoa(page+1))))
	case hasPrev:
		kb.Row(tgui.Btn("« Prev", tgui.Data("post", "page", strconv.Itoa(page-1))))
	case hasNext:
		kb.Row(tgui.Btn("Next »", tgui.Data("post", "page", strconv.Itoa(page+1))))
	}
	kb.Row(tgui.Btn("📥 Add posts", tgui.Data("menu", "add_posts", "")),
		tgui.Btn("« Back", tgui.Data("menu", "main", "")))
	return b.Inline(kb).Build()
}

func renderPostDetail(p model.Post) tgui.Message {
	b := tgui.New().Title(kindEmoji(p.Kind), "Post").
		Blank().
		KV("Title", p.Title).
		KV("Kind", string(p.Kind)).
		KV("Created", p.CreatedAt.Format("2006-01-02 15:04"))
	kb := tgui.NewInline().
		Row(tgui.Btn("🗑 Delete", tgui.Data("post", "del", p.ID))).
		Row(tgui.Btn("« Posts", tgui.Data("post", "page", "0")))
	return b.Inline(kb).Build()
}

func renderChannelList(dests []model.Destination) tgui.Message {
	b := tgui.New().Title("📡", "Destination channels")
	if len(dests) == 0 {
		b.Blank().Line("No channels yet. Add one with /add_channel.")
	} else {
		b.Blank()
		for _, d := range dests {
			b.RawLine("• " + tgui.Code(strconv.FormatInt(d.ID, 10)).String())
		}
	}
	kb := tgui.NewInline().Row(tgui.Btn("« Back", tgui.Data("menu", "main", "")))
	return b.Inline(kb).Build()
}

func joinTimes(times []string) string {
	out := ""
	for i, t := range times {
		if i > 0 {
			out += ", "
		}
		out += t
	}
	return out
}

func activeLabel(active bool) string {
	if active {
		return "active"
	}
	return "paused"
}

func kindEmoji(k model.Kind) string {
	switch k {
	case model.KindText:
		return "💬"
	case model.KindPhoto:
		return "🖼"
	case model.KindVideo:
		return "🎬"
	case model.KindDocument:
		return "📄"
	case model.KindAudio:
		return "🎵"
	case model.KindVoice:
		return "🎤"
	case model.KindAnimation:
		return "🎞"
	default:
		return "📦"
	}
}

// ---- senders / callback plumbing ----

func (a *App) sendMainMenu(ctx context.Context, chatID int64) {
	if _, err := renderMainMenu().Send(ctx, a.adapter, kit.ChatTarget{ChatID: chatID}); err != nil {
		a.log.Warn("menu send failed", logx.Err(err))
	}
}

func (a *App) sendScheduleList(ctx context.Context, chatID, ownerID int64) {
	schedules, err := a.store.SchedulesByOwner(ctx, ownerID)
	if err != nil {
		a.log.Error("schedule list failed", logx.Err(err))
		a.reply(ctx, chatID, "⚠️ Could not load schedules.")
		return
	}
	if _, err := renderScheduleList(schedules).Send(ctx, a.adapter, kit.ChatTarget{ChatID: chatID}); err != nil {
		a.log.Warn("menu send failed", logx.Err(err))
	}
}

func (a *App) routeCallback(ctx context.Context, cb *kit.Callback) {
	area, action, payload := tgui.Parse(cb.Data)
	ref := kit.MessageRef{ChatID: cb.ChatID, MessageID: cb.MessageID}

	var err error
	ack := ""
	switch area {
	case "menu":
		ack, err = a.cbMenu(ctx, cb, ref, action)
	case "sch":
		ack, err = a.cbSchedule(ctx, cb, ref, action, payload)
	case "post":
		ack, err = a.cbPost(ctx, cb, ref, action, payload)
	default:
		ack = "Unknown button"
	}
	if err != nil {
		a.log.Error("callback failed",
			logx.String("data", cb.Data), logx.Err(err))
		ack = "Something went wrong"
	}
	if err := a.adapter.AnswerCallback(ctx, cb.ID, ack); err != nil {
		a.log.Debug("callback answer failed", logx.Err(err))
	}
}

func (a *App) cbMenu(ctx context.Context, cb *kit.Callback, ref kit.MessageRef, action string) (string, error) {
	switch action {
	case "main":
		return "", renderMainMenu().Edit(ctx, a.adapter, ref)
	case "schedules":
		schedules, err := a.store.SchedulesByOwner(ctx, cb.FromID)
		if err != nil {
			return "", err
		}
		return "", renderScheduleList(schedules).Edit(ctx, a.adapter, ref)
	case "posts":
		return "", a.editPostsPage(ctx, cb, ref, 0)
	case "channels":
		dests, err := a.store.Destinations(ctx)
		if err != nil {
			return "", err
		}
		return "", renderChannelList(dests).Edit(ctx, a.adapter, ref)
	case "new_schedule":
		prompt, err := a.machine.StartScheduleSetup(ctx, cb.FromID)
		if err != nil {
			return "", err
		}
		a.reply(ctx, cb.ChatID, prompt)
		return "Schedule setup started", nil
	case "add_posts":
		prompt, err := a.machine.StartPostManagement(ctx, cb.FromID)
		if err != nil {
			return "", err
		}
		a.reply(ctx, cb.ChatID, prompt)
		return "Send me content", nil
	case "footer":
		prompt, err := a.machine.StartFooterInput(ctx, cb.FromID)
		if err != nil {
			return "", err
		}
		a.reply(ctx, cb.ChatID, prompt)
		return "Send the footer text", nil
	}
	return "Unknown button", nil
}

func (a *App) cbSchedule(ctx context.Context, cb *kit.Callback, ref kit.MessageRef, action, id string) (string, error) {
	switch action {
	case "show":
		return "", a.editScheduleDetail(ctx, cb, ref, id)
	case "tog":
		active, err := a.store.ToggleSchedule(ctx, id, cb.FromID)
		if err == storage.ErrNotFound {
			return "Schedule is gone", a.editScheduleListFor(ctx, cb, ref)
		}
		if err != nil {
			return "", err
		}
		ack := "Schedule paused"
		if active {
			ack = "Schedule enabled"
		}
		return ack, a.editScheduleDetail(ctx, cb, ref, id)
	case "del":
		sc, err := a.scheduleByID(ctx, cb.FromID, id)
		if err != nil {
			return "", err
		}
		if sc == nil {
			return "Schedule is gone", a.editScheduleListFor(ctx, cb, ref)
		}
		return "", renderScheduleDeleteConfirm(*sc).Edit(ctx, a.adapter, ref)
	case "delok":
		err := a.store.DeleteSchedule(ctx, id, cb.FromID)
		if err != nil && err != storage.ErrNotFound {
			return "", err
		}
		return "Schedule deleted", a.editScheduleListFor(ctx, cb, ref)
	}
	return "Unknown button", nil
}

func (a *App) cbPost(ctx context.Context, cb *kit.Callback, ref kit.MessageRef, action, payload string) (string, error) {
	switch action {
	case "page":
		page, _ := strconv.Atoi(payload)
		return "", a.editPostsPage(ctx, cb, ref, page)
	case "show":
		posts, err := a.store.PostsByIDs(ctx, []string{payload})
		if err != nil {
			return "", err
		}
		if len(posts) == 0 || posts[0].OwnerID != cb.FromID {
			return "Post is gone", a.editPostsPage(ctx, cb, ref, 0)
		}
		return "", renderPostDetail(posts[0]).Edit(ctx, a.adapter, ref)
	case "del":
		err := a.store.DeletePost(ctx, payload, cb.FromID)
		if err != nil && err != storage.ErrNotFound {
			return "", err
		}
		return "Post deleted", a.editPostsPage(ctx, cb, ref, 0)
	}
	return "Unknown button", nil
}

func (a *App) editPostsPage(ctx context.Context, cb *kit.Callback, ref kit.MessageRef, page int) error {
	posts, err := a.store.PostsByOwner(ctx, cb.FromID)
	if err != nil {
		return err
	}
	return renderPostsPage(posts, page).Edit(ctx, a.adapter, ref)
}

func (a *App) editScheduleListFor(ctx context.Context, cb *kit.Callback, ref kit.MessageRef) error {
	schedules, err := a.store.SchedulesByOwner(ctx, cb.FromID)
	if err != nil {
		return err
	}
	return renderScheduleList(schedules).Edit(ctx, a.adapter, ref)
}

func (a *App) editScheduleDetail(ctx context.Context, cb *kit.Callback, ref kit.MessageRef, id string) error {
	sc, err := a.scheduleByID(ctx, cb.FromID, id)
	if err != nil {
		return err
	}
	if sc == nil {
		return a.editScheduleListFor(ctx, cb, ref)
	}
	pool, err := a.store.PostsByIDs(ctx, sc.PostPool)
	if err != nil {
		return err
	}
	return renderScheduleDetail(*sc, len(pool)).Edit(ctx, a.adapter, ref)
}

func (a *App) scheduleByID(ctx context.Context, ownerID int64, id string) (*model.Schedule, error) {
	schedules, err := a.store.SchedulesByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	for i := range schedules {
		if schedules[i].ID == id {
			return &schedules[i], nil
		}
	}
	return nil, nil
}
