package privacy

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"chatrelay/internal/constants"
)

// MaskID masks an identifier showing only the last few characters
// Example: "64f1c2a9e3" -> "******a9e3"
func MaskID(id string) string {
	return maskString(id, constants.DefaultIDMaskKeep)
}

// MaskEmail keeps the first character of the local part and the domain
// Example: "alice@example.com" -> "a****@example.com"
func MaskEmail(email string) string {
	if email == "" {
		return ""
	}

	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return maskString(email, 0)
	}

	local, domain := email[:at], email[at:]
	first, size := utf8.DecodeRuneInString(local)
	return string(first) + strings.Repeat("*", utf8.RuneCountInString(local[size:])) + domain
}

// MaskText hides message content, keeping only its length for debugging
// Example: "hello there" -> "[11 chars]"
func MaskText(text string) string {
	if text == "" {
		return ""
	}
	return fmt.Sprintf("[%d chars]", utf8.RuneCountInString(text))
}

// maskString masks a string showing only the last n characters
func maskString(s string, keepLast int) string {
	if s == "" {
		return ""
	}

	runes := []rune(s)
	if len(runes) <= keepLast {
		return strings.Repeat("*", len(runes))
	}
	return strings.Repeat("*", len(runes)-keepLast) + string(runes[len(runes)-keepLast:])
}

// MaskSensitiveFields applies appropriate masking to common logging fields
func MaskSensitiveFields(fields map[string]interface{}) map[string]interface{} {
	if fields == nil {
		return nil
	}

	masked := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		s, isString := v.(string)
		if !isString {
			masked[k] = v
			continue
		}

		switch k {
		case "user_id", "userId", "sender_id", "senderId", "receiver_id", "receiverId":
			masked[k] = MaskID(s)
		case "email", "senderEmail":
			masked[k] = MaskEmail(s)
		case "message", "text", "body":
			masked[k] = MaskText(s)
		case "password", "token", "secret":
			masked[k] = "[redacted]"
		default:
			masked[k] = v
		}
	}
	return masked
}
