package locale

import (
	"fmt"
	"strings"
)

// Locale selects the string catalog used for system generated text.
type Locale string

const (
	English Locale = "english"
	Tamil   Locale = "tamil"
)

// Primary is the locale new sessions start in unless configured otherwise.
const Primary = English

// Parse accepts the locale names and a few common aliases.
func Parse(raw string) (Locale, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "english", "en", "en-us", "en-gb", "primary":
		return English, nil
	case "tamil", "ta", "ta-in", "ta-lk", "secondary":
		return Tamil, nil
	default:
		return "", fmt.Errorf("unsupported locale %q", raw)
	}
}

// Toggle flips between the two supported locales.
func (l Locale) Toggle() Locale {
	if l == Tamil {
		return English
	}
	return Tamil
}

// Catalog returns the fixed templates for the locale. Unknown values fall back to English.
func (l Locale) Catalog() Catalog {
	if l == Tamil {
		return tamilCatalog
	}
	return englishCatalog
}

// Catalog holds every system string the triage workflow renders.
type Catalog struct {
	// EmergencyAck takes the emergency number.
	EmergencyAck string
	// EscalationScheduled takes the responder name and contact line.
	EscalationScheduled string
	// ContactFallback is shown when a responder has no contact info on file.
	ContactFallback string
	NoResponder     string
	GenericError    string
	Cleared         string
	ClearFailed     string
	UserLabel       string
	BotLabel        string
	DefaultUserName string
	PromptPreamble  string
	PromptClosing   string
}

// Emergency renders the emergency acknowledgment.
func (c Catalog) Emergency(number string) string {
	return fmt.Sprintf(c.EmergencyAck, number)
}

// Escalated renders the escalation message. A nil contact uses ContactFallback.
func (c Catalog) Escalated(responderName string, contact *string) string {
	line := c.ContactFallback
	if contact != nil && strings.TrimSpace(*contact) != "" {
		line = strings.TrimSpace(*contact)
	}
	return fmt.Sprintf(c.EscalationScheduled, responderName, line)
}

var englishCatalog = Catalog{
	EmergencyAck:        "⚠️ This seems like an emergency. Calling %s for immediate help...",
	EscalationScheduled: "📞 A call has been scheduled with %s (%s). Please stay calm – you are not alone.",
	ContactFallback:     "they will contact you through the app",
	NoResponder:         "⚠️ We could not arrange a call with a counsellor right now. If you feel unsafe, please call 1926 or your local emergency number.",
	GenericError:        "❌ Sorry, something went wrong. Please try again.",
	Cleared:             "Your chat has been cleared.",
	ClearFailed:         "Failed to clear chat.",
	UserLabel:           "User",
	BotLabel:            "Bot",
	DefaultUserName:     "User",
	PromptPreamble:      "Please respond to this conversation with empathy and clarity in English:",
	PromptClosing:       "Give a helpful and supportive response.",
}

var tamilCatalog = Catalog{
	EmergencyAck:        "⚠️ இது அவசர நிலை போன்றதாக தெரிகிறது. உடனடி உதவிக்காக %s எண்ணை அழைக்கிறோம்...",
	EscalationScheduled: "📞 %s (%s) உடன் ஒரு அழைப்பு ஏற்பாடு செய்யப்பட்டுள்ளது. தயவுசெய்து பொறுமையாக இருங்கள் – நீங்கள் தனியாக இல்லை.",
	ContactFallback:     "அவர்கள் செயலி மூலம் உங்களைத் தொடர்புகொள்வார்கள்",
	NoResponder:         "⚠️ இப்போது ஆலோசகருடன் அழைப்பை ஏற்பாடு செய்ய முடியவில்லை. நீங்கள் பாதுகாப்பாக இல்லை என உணர்ந்தால், 1926 அல்லது உங்கள் அவசர எண்ணை அழைக்கவும்.",
	GenericError:        "❌ மன்னிக்கவும், ஏதோ தவறு ஏற்பட்டது. தயவுசெய்து மீண்டும் முயற்சிக்கவும்.",
	Cleared:             "உங்கள் உரையாடல் அழிக்கப்பட்டது.",
	ClearFailed:         "உரையாடலை அழிக்க முடியவில்லை.",
	UserLabel:           "பயனர்",
	BotLabel:            "Bot",
	DefaultUserName:     "பயனர்",
	PromptPreamble:      "தயவுசெய்து இந்த உரையாடலைத் தொடர்ந்து மனிதனை அனுதாபத்துடன், தெளிவாகவும், தமிழ் மொழியில் பதிலளி:",
	PromptClosing:       "பொறுத்தமான பதிலை தமிழில் அளி.",
}
