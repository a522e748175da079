package telegram

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"truewater/api/internal/view"
)

func (r *Router) handleCallback(cb tgbotapi.CallbackQuery) {
	if cb.Message == nil {
		return
	}
	cid := cb.Message.Chat.ID
	_, _ = r.Bot.Request(tgbotapi.NewCallback(cb.ID, "")) // ack

	switch {
	case strings.HasPrefix(cb.Data, cbSelect):
		r.onSelect(cid, strings.TrimPrefix(cb.Data, cbSelect))
	case cb.Data == cbRetest:
		r.askRetest(cid)
	}
}

func (r *Router) onSelect(chatID int64, id string) {
	o := r.session(chatID)
	if err := o.SelectSample(context.Background(), id); err != nil {
		r.SendError(chatID, err)
		return
	}
	d := view.Project(o.CurrentView())
	r.sendView(chatID, d)
	if d.Analysis != nil && !d.Analysis.HasHistory && len(view.History(d.Selected.TestID, o.Samples())) >= 2 {
		go r.followSummary(chatID, id)
	}
}
