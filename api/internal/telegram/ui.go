package telegram

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"truewater/api/internal/view"
)

const (
	cbSelect = "sel:"
	cbRetest = "retest"
	maxRows  = 20
)

// One button per sample location, newest first.
func makeHistoryKeyboard(cards []view.SampleCard) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(cards))
	for i, c := range cards {
		if i == maxRows {
			break
		}
		label := fmt.Sprintf("%s · #%d · %s", c.LocationName, c.TestNumber, c.Date.Format("2006-01-02"))
		if c.Pending {
			label = "⏳ " + label
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(label, cbSelect+c.ID)))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func makeSampleKeyboard() tgbotapi.InlineKeyboardMarkup {
	btn := tgbotapi.NewInlineKeyboardButtonData("🔁 Retest", cbRetest)
	return tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(btn))
}
