package bot

import (
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/tazhate/medremind/internal/domain"
	"github.com/tazhate/medremind/internal/notify"
)

// Callback prefixes besides domain's act: for dose actions.
const (
	prefixMedicine   = "med"
	prefixPermission = "perm"
)

func permissionKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Allow", prefixPermission+":allow"),
			tgbotapi.NewInlineKeyboardButtonData("🚫 Deny", prefixPermission+":deny"),
		),
	)
}

// actionKeyboard puts every notification action on one row. Dose actions
// target a reminder, expiry and stock actions a medicine.
func actionKeyboard(actions []notify.Action) tgbotapi.InlineKeyboardMarkup {
	row := make([]tgbotapi.InlineKeyboardButton, 0, len(actions))
	for _, a := range actions {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(a.Title, callbackFor(a)))
	}
	return tgbotapi.NewInlineKeyboardMarkup(row)
}

func callbackFor(a notify.Action) string {
	switch a.ID {
	case domain.ActionAcknowledge, domain.ActionReplace:
		return prefixMedicine + ":" + a.TargetID + ":" + a.ID
	}
	return domain.CallbackData(a.TargetID, a.ID, a.Minutes)
}

func parseMedicineCallback(data string) (medicineID, action string, ok bool) {
	parts := strings.Split(data, ":")
	if len(parts) != 3 || parts[0] != prefixMedicine || parts[1] == "" {
		return "", "", false
	}
	return parts[1], parts[2], true
}

// doneMarkup replaces the buttons of an answered message.
func doneMarkup() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.InlineKeyboardMarkup{InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{}}
}
