package telegram

import (
	"sync"
	"time"
)

const (
	debounce  = 1200 * time.Millisecond
	maxPixels = 18_000_000

	modeAwaitRetest = "await_retest"
)

func setMode(m *sync.Map, chatID int64, mode string) { m.Store(chatID, mode) }
func getMode(m *sync.Map, chatID int64) string {
	if v, ok := m.Load(chatID); ok {
		if s, _ := v.(string); s != "" {
			return s
		}
	}
	return ""
}
func clearMode(m *sync.Map, chatID int64) { m.Delete(chatID) }

// photoBatch collects the photos of one album (several microscope fields of
// the same sample) until the debounce timer fires.
type photoBatch struct {
	ChatID  int64
	Key     string // "grp:<mediaGroupID>" | "chat:<chatID>"
	Caption string
	Retest  bool

	mu     sync.Mutex
	images [][]byte
	timer  *time.Timer
}
