package voice

import (
	"fmt"

	"github.com/tazhate/medremind/internal/domain"
)

type catalog struct {
	reminders []string // format args: name, dosage
	before    string
	after     string
	emergency string
	stockLow  string // name, days
	stockSoon string
	stockOK   string
	streak30  string // days
	streak7   string
	streak    string
	scanOK    string // name
	scanFail  string
}

var catalogs = map[domain.VoiceLanguage]catalog{
	domain.VoiceHindi: {
		reminders: []string{
			"नमस्ते, अब %s लेने का समय है। %s खुराक लें।",
			"दवा का समय हो गया है। कृपया %s की %s खुराक लें।",
			"%s लेना न भूलें। %s की खुराक का समय है।",
			"आपकी दवा %s लेने का समय आ गया है। %s लें।",
		},
		before:    "खाना खाने से पहले यह दवा लें। भोजन के साथ पानी भी पिएं।",
		after:     "खाना खाने के बाद यह दवा लें। पेट भरने के बाद दवा लेना बेहतर है।",
		emergency: "आपातकाल! तुरंत डॉक्टर को कॉल करें या नजदीकी अस्पताल जाएं। परिवार के सदस्यों को भी सूचना दी जा रही है।",
		stockLow:  "चेतावनी! %s की दवा केवल %d दिन के लिए बची है। तुरंत नई दवा खरीदें।",
		stockSoon: "सूचना: %s की दवा %d दिन में खत्म हो जाएगी। नई दवा खरीदने की तैयारी करें।",
		stockOK:   "%s की स्टॉक जांच: अभी %d दिन की दवा बची है।",
		streak30:  "बहुत बढ़िया! आपने %d दिन नियमित दवा ली है। इसी तरह जारी रखें।",
		streak7:   "शाबाश! %d दिन से नियमित दवा ले रहे हैं। बहुत अच्छा काम कर रहे हैं।",
		streak:    "आपने %d दिन नियमित दवा ली है। इसी तरह जारी रखें।",
		scanOK:    "दवा की पहचान हो गई: %s",
		scanFail:  "दवा की जानकारी स्पष्ट नहीं मिली। कृपया दोबारा कोशिश करें।",
	},
	domain.VoiceEnglish: {
		reminders: []string{
			"Hello, it is time to take %s. Please take %s.",
			"Medicine time. Please take your %s, %s.",
			"Don't forget %s. It is time for your %s dose.",
			"It is time for your medicine %s. Take %s.",
		},
		before:    "Take this medicine before your meal, with a glass of water.",
		after:     "Take this medicine after your meal.",
		emergency: "Emergency! Call a doctor or go to the nearest hospital now. Your family is being informed.",
		stockLow:  "Warning! Only %[2]d days of %[1]s are left. Please buy more today.",
		stockSoon: "Notice: %[1]s will run out in %[2]d days. Plan to buy more.",
		stockOK:   "%s stock check: %d days of medicine left.",
		streak30:  "Excellent! You have taken your medicine regularly for %d days. Keep it up.",
		streak7:   "Well done! %d days of regular medicine. Great work.",
		streak:    "You have taken your medicine regularly for %d days. Keep it up.",
		scanOK:    "Medicine recognised: %s",
		scanFail:  "Could not read the label clearly. Please try again.",
	},
}

func catalogFor(lang domain.VoiceLanguage) catalog {
	if c, ok := catalogs[lang]; ok {
		return c
	}
	return catalogs[domain.VoiceHindi]
}

// ReminderMessage picks one of the reminder phrasings; pick chooses the
// index in [0, n).
func ReminderMessage(lang domain.VoiceLanguage, name, dosage string, pick func(n int) int) string {
	msgs := catalogFor(lang).reminders
	i := 0
	if pick != nil {
		i = pick(len(msgs))
		if i < 0 || i >= len(msgs) {
			i = 0
		}
	}
	return fmt.Sprintf(msgs[i], name, dosage)
}

// FoodMessage is empty unless the timing is before or after food.
func FoodMessage(lang domain.VoiceLanguage, timing domain.FoodTiming) string {
	switch timing {
	case domain.FoodBefore:
		return catalogFor(lang).before
	case domain.FoodAfter:
		return catalogFor(lang).after
	}
	return ""
}

func EmergencyMessage(lang domain.VoiceLanguage) string {
	return catalogFor(lang).emergency
}

// StockMessage returns the message and its priority: two days or less is
// urgent.
func StockMessage(lang domain.VoiceLanguage, name string, days int) (string, Priority) {
	c := catalogFor(lang)
	switch {
	case days <= 2:
		return fmt.Sprintf(c.stockLow, name, days), PriorityHigh
	case days <= 7:
		return fmt.Sprintf(c.stockSoon, name, days), PriorityMedium
	default:
		return fmt.Sprintf(c.stockOK, name, days), PriorityMedium
	}
}

func AdherenceMessage(lang domain.VoiceLanguage, streak int) string {
	c := catalogFor(lang)
	switch {
	case streak >= 30:
		return fmt.Sprintf(c.streak30, streak)
	case streak >= 7:
		return fmt.Sprintf(c.streak7, streak)
	default:
		return fmt.Sprintf(c.streak, streak)
	}
}

// ScanMessage announces a label scan result. An empty name means failure.
func ScanMessage(lang domain.VoiceLanguage, name string) string {
	c := catalogFor(lang)
	if name == "" {
		return c.scanFail
	}
	return fmt.Sprintf(c.scanOK, name)
}
