package telegram

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"truewater/api/internal/orchestrator"
	"truewater/api/internal/sample"
	"truewater/api/internal/util"
	"truewater/api/internal/view"
)

// Bot is the subset of *tgbotapi.BotAPI the router uses.
type Bot interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
}

// Router serves every chat with its own orchestrator.
type Router struct {
	Bot Bot
	// NewOrchestrator builds the orchestrator of one chat; n delivers its notifications.
	NewOrchestrator func(chatID int64, n orchestrator.Notifier) *orchestrator.Orchestrator
	Engines         string // shown by /engine
	Debounce        time.Duration
	Download        func(url string) ([]byte, error)

	mu       sync.Mutex
	snapshot []sample.Record
	hasSnap  bool

	sessions  sync.Map // chatID -> *orchestrator.Orchestrator
	chatMode  sync.Map // chatID -> string: "", modeAwaitRetest
	locations sync.Map // chatID -> sample.Location (last shared)
	batches   sync.Map // key -> *photoBatch
}

// ApplySnapshot fans a store snapshot out to every chat.
func (r *Router) ApplySnapshot(records []sample.Record) {
	r.mu.Lock()
	r.snapshot = append([]sample.Record(nil), records...)
	r.hasSnap = true
	r.mu.Unlock()

	r.sessions.Range(func(_, v any) bool {
		v.(*orchestrator.Orchestrator).ApplySnapshot(records)
		return true
	})
}

func (r *Router) session(chatID int64) *orchestrator.Orchestrator {
	if v, ok := r.sessions.Load(chatID); ok {
		return v.(*orchestrator.Orchestrator)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.sessions.Load(chatID); ok {
		return v.(*orchestrator.Orchestrator)
	}
	o := r.NewOrchestrator(chatID, chatNotifier{r: r, chatID: chatID})
	if r.hasSnap {
		o.ApplySnapshot(r.snapshot)
	}
	r.sessions.Store(chatID, o)
	return o
}

func (r *Router) HandleUpdate(upd tgbotapi.Update) {
	if upd.CallbackQuery != nil {
		r.handleCallback(*upd.CallbackQuery)
		return
	}
	if upd.Message == nil {
		return
	}
	msg := upd.Message
	cid := msg.Chat.ID

	switch {
	case msg.IsCommand():
		r.HandleCommand(*msg)
	case msg.Location != nil:
		r.locations.Store(cid, sample.Location{Latitude: msg.Location.Latitude, Longitude: msg.Location.Longitude})
		r.send(cid, "📍 Location saved. Now send a photo of the water sample; the caption becomes the location name.")
	case len(msg.Photo) > 0:
		r.acceptPhoto(*msg)
	default:
		r.send(cid, "Send a photo of a water sample, or use /history to browse results.")
	}
}

func (r *Router) HandleCommand(msg tgbotapi.Message) {
	cid := msg.Chat.ID
	switch msg.Command() {
	case "start", "help":
		r.send(cid, "Share the sampling location, then send a photo of the water sample and I will count the algae.\n"+
			"Commands: /history, /current, /retest, /engine, /health")
	case "health":
		r.send(cid, "✅ OK")
	case "engine":
		r.send(cid, "Engines: "+r.Engines)
	case "history":
		cards := view.ProjectList(r.session(cid).Samples())
		if len(cards) == 0 {
			r.send(cid, "No samples yet.")
			return
		}
		m := tgbotapi.NewMessage(cid, "Sample locations:")
		m.ReplyMarkup = makeHistoryKeyboard(cards)
		_, _ = r.Bot.Send(m)
	case "current":
		r.sendView(cid, view.Project(r.session(cid).CurrentView()))
	case "retest":
		r.askRetest(cid)
	default:
		r.send(cid, "Unknown command")
	}
}

func (r *Router) askRetest(cid int64) {
	v := r.session(cid).CurrentView()
	if v.Selected == nil {
		r.SendError(cid, sample.ErrNoActiveSample)
		return
	}
	setMode(&r.chatMode, cid, modeAwaitRetest)
	r.send(cid, fmt.Sprintf("Send a new photo for %s (test #%d).",
		v.Selected.Data().Location.DisplayName(), v.Selected.Data().TestNumber+1))
}

// followSummary reports the history summary once it arrives for the sample
// that is still selected.
func (r *Router) followSummary(cid int64, id string) {
	o := r.session(cid)
	ch, cancel := o.Watch()
	defer cancel()
	ctx, stop := context.WithTimeout(context.Background(), 90*time.Second)
	defer stop()
	for {
		select {
		case v := <-ch:
			if sample.ID(v.Selected) != id {
				return
			}
			if v.Analysis.HistorySummary != nil {
				r.send(cid, "📈 History: "+*v.Analysis.HistorySummary)
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (r *Router) send(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, util.Truncate(text, 3900))
	if _, err := r.Bot.Send(msg); err != nil {
		log.Printf("telegram: send to %d: %v", chatID, err)
	}
}

func (r *Router) sendView(chatID int64, d view.Display) {
	if d.Selected == nil {
		r.send(chatID, "No sample selected. Use /history or send a photo.")
		return
	}
	msg := tgbotapi.NewMessage(chatID, util.Truncate(formatDisplay(d), 3900))
	if !d.Selected.Pending {
		msg.ReplyMarkup = makeSampleKeyboard()
	}
	_, _ = r.Bot.Send(msg)
}

func (r *Router) SendError(chatID int64, err error) {
	r.send(chatID, "❌ "+errorText(err))
}

// chatNotifier turns orchestrator notifications into chat messages.
type chatNotifier struct {
	r      *Router
	chatID int64
}

func (n chatNotifier) Notify(note orchestrator.Notification) {
	switch note.Kind {
	case orchestrator.KindSuccess:
		n.r.send(n.chatID, "✅ "+note.Title+"\n"+note.Message)
	case orchestrator.KindNotDurable:
		n.r.send(n.chatID, "⚠️ "+note.Title+"\n"+note.Message)
	default:
		n.r.send(n.chatID, "❌ "+note.Title+": "+errorText(note.Err))
	}
}

func errorText(err error) string {
	if err == nil {
		return "unknown error"
	}
	switch sample.Kind(err) {
	case "no_active_sample":
		return "Select a sample first (/history)."
	case "pipeline_busy":
		return "This sample is still being analyzed, wait for the result."
	case "classifier_unavailable":
		return "The classifier is unavailable, try again later."
	case "malformed_response":
		return "The classifier returned an unreadable result."
	case "permission_denied":
		return "Saving is not permitted."
	}
	return strings.TrimSpace(err.Error())
}
