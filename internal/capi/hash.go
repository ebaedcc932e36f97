package capi

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
	"unicode"
)

// HashPhone normalizes a phone-like identifier to digits only and returns
// its hex-encoded SHA-256. Raw values are never sent to the API.
func HashPhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if digits == "" {
		return ""
	}
	return hashSHA256(digits)
}

// HashText normalizes a name/email-like identifier (lowercase, all
// whitespace stripped) before hashing.
func HashText(value string) string {
	norm := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return unicode.ToLower(r)
	}, value)
	if norm == "" {
		return ""
	}
	return hashSHA256(norm)
}

// EventID derives a deterministic event id from the event name, the contact
// id, and the event time, so the API can deduplicate retried sends.
func EventID(eventName, waID string, eventTime time.Time) string {
	composite := fmt.Sprintf("%s|%s|%d", eventName, waID, eventTime.Unix())
	return hashSHA256(composite)
}

func hashSHA256(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}
