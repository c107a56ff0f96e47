package privacy

import "strings"

// MaskPhoneNumber masks a phone number, keeping only the last 4 digits.
// Example: "+15551234567" -> "+*******4567". Sender numbers go through every
// log line the ingestion path emits, so masking happens at the logging call
// site, not in the data model.
func MaskPhoneNumber(phone string) string {
	if phone == "" {
		return ""
	}

	if strings.HasPrefix(phone, "+") {
		if len(phone) <= 5 {
			return "+" + strings.Repeat("*", len(phone)-1)
		}
		return "+" + strings.Repeat("*", len(phone)-5) + phone[len(phone)-4:]
	}

	if len(phone) <= 4 {
		return strings.Repeat("*", len(phone))
	}
	return strings.Repeat("*", len(phone)-4) + phone[len(phone)-4:]
}

// MaskSender masks the sender field of an inbound message. Senders are
// usually phone numbers but can be alphanumeric short codes or display
// names; non-numeric senders keep their first 2 characters.
func MaskSender(sender string) string {
	if sender == "" {
		return ""
	}
	if strings.HasPrefix(sender, "+") || isNumeric(sender) {
		return MaskPhoneNumber(sender)
	}
	if len(sender) <= 2 {
		return strings.Repeat("*", len(sender))
	}
	return sender[:2] + strings.Repeat("*", len(sender)-2)
}

// MaskAPIKey keeps the last 4 characters of an api key for correlation.
func MaskAPIKey(key string) string {
	if len(key) <= 4 {
		return strings.Repeat("*", len(key))
	}
	return strings.Repeat("*", len(key)-4) + key[len(key)-4:]
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
