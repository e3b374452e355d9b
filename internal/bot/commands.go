package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"relaybot/internal/flow"
	"relaybot/internal/metrics"
	"relaybot/internal/storage"
	kit "relaybot/internal/transport"
	logx "relaybot/pkg/logx"
)

func commandMenu() []kit.BotCommand {
	return []kit.BotCommand{
		{Command: "menu", Description: "Main menu"},
		{Command: "schedule", Description: "Create a schedule"},
		{Command: "my_schedules", Description: "List schedules"},
		{Command: "manage_posts", Description: "Add or review posts"},
		{Command: "add_channel", Description: "Add a destination channel"},
		{Command: "remove_channel", Description: "Remove a destination channel"},
		{Command: "list_channels", Description: "List destination channels"},
		{Command: "footer", Description: "Set the post footer"},
		{Command: "clearfooter", Description: "Clear the post footer"},
		{Command: "trigger", Description: "Fire due schedules now"},
		{Command: "help", Description: "Help"},
	}
}

const helpText = `🤖 Content scheduler bot

/menu - interactive main menu
/schedule - create a recurring schedule
/my_schedules - list, toggle or delete schedules
/manage_posts - save content for delivery
/add_channel <id> - add a destination channel
/remove_channel <id> - remove a destination channel
/list_channels - show destination channels
/footer <text> - set the footer appended to every post
/clearfooter - remove the footer
/trigger [HH:MM] - run due schedules immediately
/cancel - abort the current flow`

func (a *App) dispatchLoop(c context.Context) {
	for {
		select {
		case <-c.Done():
			return
		case up, ok := <-a.updates:
			if !ok {
				return
			}
			metrics.UpdatesTotal.WithLabelValues(string(up.Kind)).Inc()
			if a.tickOnUpdates {
				// Liveness fallback for hosts that suspend idle processes;
				// the engine watermark collapses duplicates.
				a.sup.Go("tick.update", func(tc context.Context) {
					if err := a.eng.Tick(tc, "update"); err != nil {
						a.log.Error("opportunistic tick failed", logx.Err(err))
					}
				})
			}
			a.route(c, up)
		}
	}
}

func (a *App) route(ctx context.Context, up kit.Update) {
	switch up.Kind {
	case kit.UpdateMessage:
		if up.Message == nil {
			return
		}
		if up.Message.FromID != a.adminID {
			a.log.Debug("ignoring non-admin message", logx.Int64("from_id", up.Message.FromID))
			return
		}
		a.routeMessage(ctx, up.Message)
	case kit.UpdateCallback:
		if up.Callback == nil {
			return
		}
		if up.Callback.FromID != a.adminID {
			_ = a.adapter.AnswerCallback(ctx, up.Callback.ID, "Not authorized")
			return
		}
		a.routeCallback(ctx, up.Callback)
	}
}

func (a *App) routeMessage(ctx context.Context, msg *kit.Message) {
	// A live conversation flow consumes everything first, including
	// /done and /cancel.
	handled, replies, err := a.machine.HandleMessage(ctx, msg)
	if err != nil {
		a.log.Error("flow step failed", logx.Int64("owner_id", msg.FromID), logx.Err(err))
		a.reply(ctx, msg.ChatID, "⚠️ Something went wrong, please try again.")
		return
	}
	if handled {
		for _, r := range replies {
			a.reply(ctx, msg.ChatID, r)
		}
		return
	}

	text := strings.TrimSpace(msg.Text)
	if !strings.HasPrefix(text, "/") {
		a.reply(ctx, msg.ChatID, "Use /menu to get started, or /help for commands.")
		return
	}

	parts := strings.Fields(text)
	word := strings.TrimPrefix(parts[0], "/")
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
	}
	args := parts[1:]

	switch word {
	case "start", "help":
		a.reply(ctx, msg.ChatID, helpText)
	case "menu":
		a.sendMainMenu(ctx, msg.ChatID)
	case "schedule":
		a.startFlow(ctx, msg.ChatID, func() (string, error) {
			return a.machine.StartScheduleSetup(ctx, msg.FromID)
		})
	case "manage_posts":
		a.startFlow(ctx, msg.ChatID, func() (string, error) {
			return a.machine.StartPostManagement(ctx, msg.FromID)
		})
	case "my_schedules":
		a.sendScheduleList(ctx, msg.ChatID, msg.FromID)
	case "add_channel":
		a.cmdAddChannel(ctx, msg, args)
	case "remove_channel":
		a.cmdRemoveChannel(ctx, msg, args)
	case "list_channels":
		a.cmdListChannels(ctx, msg.ChatID)
	case "footer":
		a.cmdFooter(ctx, msg, args)
	case "clearfooter":
		a.cmdClearFooter(ctx, msg.ChatID)
	case "trigger":
		a.cmdTrigger(ctx, msg.ChatID, args)
	case "cancel", "done":
		a.reply(ctx, msg.ChatID, "Nothing in progress. Use /menu to start.")
	default:
		a.reply(ctx, msg.ChatID, "Unknown command. Try /help.")
	}
}

func (a *App) startFlow(ctx context.Context, chatID int64, start func() (string, error)) {
	prompt, err := start()
	if err != nil {
		a.log.Error("flow start failed", logx.Err(err))
		a.reply(ctx, chatID, "⚠️ Could not start, please try again.")
		return
	}
	a.reply(ctx, chatID, prompt)
}

func (a *App) cmdAddChannel(ctx context.Context, msg *kit.Message, args []string) {
	if len(args) == 0 {
		a.startFlow(ctx, msg.ChatID, func() (string, error) {
			return a.machine.StartChannelInput(ctx, msg.FromID, false)
		})
		return
	}
	id, ok := parseChannelID(args[0])
	if !ok {
		a.reply(ctx, msg.ChatID, "⚠️ Channel IDs look like -1001234567890.")
		return
	}
	if err := a.store.AddDestination(ctx, id); err != nil {
		a.log.Error("add destination failed", logx.Err(err))
		a.reply(ctx, msg.ChatID, "⚠️ Could not save the channel, please try again.")
		return
	}
	a.reply(ctx, msg.ChatID, fmt.Sprintf("✅ Channel %d added.", id))
}

func (a *App) cmdRemoveChannel(ctx context.Context, msg *kit.Message, args []string) {
	if len(args) == 0 {
		a.startFlow(ctx, msg.ChatID, func() (string, error) {
			return a.machine.StartChannelInput(ctx, msg.FromID, true)
		})
		return
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		a.reply(ctx, msg.ChatID, "⚠️ Send the numeric channel ID shown by /list_channels.")
		return
	}
	switch err := a.store.RemoveDestination(ctx, id); err {
	case nil:
		a.reply(ctx, msg.ChatID, fmt.Sprintf("✅ Channel %d removed.", id))
	case storage.ErrNotFound:
		a.reply(ctx, msg.ChatID, fmt.Sprintf("⚠️ Channel %d is not on the list.", id))
	default:
		a.log.Error("remove destination failed", logx.Err(err))
		a.reply(ctx, msg.ChatID, "⚠️ Could not remove the channel, please try again.")
	}
}

func (a *App) cmdListChannels(ctx context.Context, chatID int64) {
	dests, err := a.store.Destinations(ctx)
	if err != nil {
		a.log.Error("list destinations failed", logx.Err(err))
		a.reply(ctx, chatID, "⚠️ Could not load the channel list.")
		return
	}
	if len(dests) == 0 {
		a.reply(ctx, chatID, "No destination channels yet. Add one with /add_channel.")
		return
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📡 Destination channels (%d):\n", len(dests)))
	for _, d := range dests {
		fmt.Fprintf(&b, "• %d\n", d.ID)
	}
	a.reply(ctx, chatID, b.String())
}

func (a *App) cmdFooter(ctx context.Context, msg *kit.Message, args []string) {
	if len(args) == 0 {
		a.startFlow(ctx, msg.ChatID, func() (string, error) {
			return a.machine.StartFooterInput(ctx, msg.FromID)
		})
		return
	}
	text := commandArgText(msg.Text)
	if err := a.store.SetFooter(ctx, text); err != nil {
		a.log.Error("set footer failed", logx.Err(err))
		a.reply(ctx, msg.ChatID, "⚠️ Could not save the footer.")
		return
	}
	a.reply(ctx, msg.ChatID, "✅ Footer updated.")
}

func (a *App) cmdClearFooter(ctx context.Context, chatID int64) {
	if err := a.store.SetFooter(ctx, ""); err != nil {
		a.log.Error("clear footer failed", logx.Err(err))
		a.reply(ctx, chatID, "⚠️ Could not clear the footer.")
		return
	}
	a.reply(ctx, chatID, "✅ Footer cleared.")
}

func (a *App) cmdTrigger(ctx context.Context, chatID int64, args []string) {
	if len(args) > 0 {
		hhmm, ok := flow.ParseHHMM(args[0])
		if !ok {
			a.reply(ctx, chatID, "⚠️ Use /trigger or /trigger HH:MM.")
			return
		}
		if err := a.eng.ForceAt(ctx, hhmm, "manual"); err != nil {
			a.log.Error("manual trigger failed", logx.Err(err))
			a.reply(ctx, chatID, "⚠️ Trigger failed, check the logs.")
			return
		}
		a.reply(ctx, chatID, fmt.Sprintf("✅ Ran schedules for %s.", hhmm))
		return
	}
	if err := a.eng.Force(ctx, "manual"); err != nil {
		a.log.Error("manual trigger failed", logx.Err(err))
		a.reply(ctx, chatID, "⚠️ Trigger failed, check the logs.")
		return
	}
	a.reply(ctx, chatID, "✅ Ran schedules for the current minute.")
}

func (a *App) reply(ctx context.Context, chatID int64, text string) {
	if _, err := a.adapter.SendText(ctx, kit.ChatTarget{ChatID: chatID}, text, nil); err != nil {
		a.log.Warn("reply failed", logx.Int64("chat_id", chatID), logx.Err(err))
	}
}

// commandArgText returns everything after the command token with inner
// whitespace preserved. The token may carry an @botname suffix.
func commandArgText(raw string) string {
	raw = strings.TrimSpace(raw)
	fields := strings.Fields(raw)
	if len(fields) < 2 {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(raw, fields[0]))
}

// parseChannelID accepts Telegram channel/supergroup IDs, which carry a
// -100 prefix.
func parseChannelID(s string) (int64, bool) {
	if !strings.HasPrefix(s, "-100") {
		return 0, false
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
