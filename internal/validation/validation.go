package validation

import (
	"fmt"
	"net/mail"
	"strings"
	"unicode"
	"unicode/utf8"

	"chatrelay/internal/constants"
	"chatrelay/internal/errors"
)

// ValidateUserID validates a user identifier as sent by clients
func ValidateUserID(field, id string) error {
	return validateIdentifier(field, id)
}

// ValidateConversationID validates a conversation identifier
func ValidateConversationID(id string) error {
	return validateIdentifier("conversationId", id)
}

func validateIdentifier(field, id string) error {
	if id == "" {
		return errors.NewValidationError(field, id, "cannot be empty")
	}

	if len(id) > constants.MaxUserIDLength {
		return errors.NewValidationError(field, id,
			fmt.Sprintf("too long (max %d characters)", constants.MaxUserIDLength))
	}

	for _, char := range id {
		if unicode.IsControl(char) || unicode.IsSpace(char) {
			return errors.NewValidationError(field, id, "contains invalid characters")
		}
	}

	return nil
}

// ValidateEmail checks that email is a bare address without a display name
func ValidateEmail(email string) error {
	if email == "" {
		return errors.NewValidationError("email", email, "cannot be empty")
	}

	if len(email) > constants.MaxEmailLength {
		return errors.NewValidationError("email", email,
			fmt.Sprintf("too long (max %d characters)", constants.MaxEmailLength))
	}

	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return errors.NewValidationError("email", email, "is not a valid address")
	}

	return nil
}

// ValidatePassword enforces length bounds; bcrypt ignores bytes past 72
func ValidatePassword(password string) error {
	if len(password) < constants.MinPasswordLength {
		return errors.NewValidationError("password", "",
			fmt.Sprintf("too short (min %d characters)", constants.MinPasswordLength))
	}

	if len(password) > constants.MaxPasswordLength {
		return errors.NewValidationError("password", "",
			fmt.Sprintf("too long (max %d bytes)", constants.MaxPasswordLength))
	}

	return nil
}

// ValidateFullName validates a display name
func ValidateFullName(name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return errors.NewValidationError("fullName", name, "cannot be empty")
	}

	if utf8.RuneCountInString(trimmed) > constants.MaxFullNameLength {
		return errors.NewValidationError("fullName", name,
			fmt.Sprintf("too long (max %d characters)", constants.MaxFullNameLength))
	}

	for _, char := range trimmed {
		if unicode.IsControl(char) {
			return errors.NewValidationError("fullName", name, "contains invalid characters")
		}
	}

	return nil
}

// ValidateMessageText validates the body of a chat message
func ValidateMessageText(text string) error {
	if strings.TrimSpace(text) == "" {
		return errors.NewValidationError("message", "", "cannot be empty")
	}

	if utf8.RuneCountInString(text) > constants.MaxMessageLength {
		return errors.NewValidationError("message", "",
			fmt.Sprintf("too long (max %d characters)", constants.MaxMessageLength))
	}

	if !utf8.ValidString(text) {
		return errors.NewValidationError("message", "", "is not valid UTF-8")
	}

	return nil
}

// ValidateSearchTerm validates a user search prefix
func ValidateSearchTerm(term string) error {
	if term == "" {
		return errors.NewValidationError("email", term, "search term cannot be empty")
	}

	if len(term) > constants.MaxSearchTermLength {
		return errors.NewValidationError("email", term,
			fmt.Sprintf("search term too long (max %d characters)", constants.MaxSearchTermLength))
	}

	return nil
}
