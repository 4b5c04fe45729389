// Package attachment enforces the upload policy for chat file attachments:
// size ceiling, content-type allow-list, and collision-resistant storage key
// generation. Validation always happens before any byte reaches storage.
package attachment

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// Validation failures. Both leave the connection open; the offending frame
// is simply not persisted or broadcast.
var (
	ErrPayloadTooLarge = errors.New("attachment: payload too large")
	ErrUnsupportedType = errors.New("attachment: unsupported content type")
)

// DefaultMaxBytes is the upload ceiling (10 MiB).
const DefaultMaxBytes = 10 << 20

// DefaultAllowedTypes is the document allow-list for the platform.
var DefaultAllowedTypes = []string{
	"application/pdf",
	"image/jpeg",
	"image/png",
}

// Validator checks decoded attachment payloads against policy and produces
// safe storage keys.
type Validator struct {
	maxBytes int64
	allowed  map[string]bool
	// now is swappable for tests; storage keys are date-namespaced.
	now func() time.Time
}

// NewValidator creates a Validator with the given ceiling and allow-list.
// Zero/nil arguments select the defaults.
func NewValidator(maxBytes int64, allowedTypes []string) *Validator {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if len(allowedTypes) == 0 {
		allowedTypes = DefaultAllowedTypes
	}
	allowed := make(map[string]bool, len(allowedTypes))
	for _, t := range allowedTypes {
		allowed[t] = true
	}
	return &Validator{maxBytes: maxBytes, allowed: allowed, now: time.Now}
}

// Validate checks the decoded payload against the size ceiling and the
// content-type allow-list, then generates a storage key for it. The declared
// type must be on the allow-list and must agree with what the payload bytes
// actually look like.
func (v *Validator) Validate(data []byte, declaredType, name string) (string, error) {
	if int64(len(data)) > v.maxBytes {
		return "", fmt.Errorf("%w: %d bytes (max %d)", ErrPayloadTooLarge, len(data), v.maxBytes)
	}
	if !v.allowed[declaredType] {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedType, declaredType)
	}

	// Sniff the actual bytes; a declared type the content does not match is
	// treated the same as a disallowed one.
	if !mimetype.Detect(data).Is(declaredType) {
		return "", fmt.Errorf("%w: declared %q does not match content", ErrUnsupportedType, declaredType)
	}

	return v.storageKey(name), nil
}

// storageKey builds a date-namespaced, collision-resistant key:
// chat_files/YYYY/MM/DD/<random-hex>_<sanitized-name>.
func (v *Validator) storageKey(name string) string {
	u := uuid.New()
	return fmt.Sprintf("chat_files/%s/%s_%s",
		v.now().UTC().Format("2006/01/02"),
		hex.EncodeToString(u[:]),
		SanitizeFilename(name),
	)
}

// DecodeDataURI splits a "<mime>;base64,<data>" data URI (with or without
// the leading "data:" scheme) into its declared content type and decoded
// bytes.
func DecodeDataURI(uri string) (string, []byte, error) {
	meta, payload, found := strings.Cut(uri, ";base64,")
	if !found {
		return "", nil, fmt.Errorf("attachment: malformed data URI")
	}
	contentType := strings.TrimPrefix(meta, "data:")
	if contentType == "" {
		return "", nil, fmt.Errorf("attachment: data URI missing content type")
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("attachment: base64 decode: %w", err)
	}
	return contentType, data, nil
}

// SanitizeFilename strips path components and replaces any character outside
// [A-Za-z0-9._-] with an underscore, so client-supplied names can never
// escape the storage namespace.
func SanitizeFilename(name string) string {
	// Drop any directory part, whichever separator the client used.
	if i := strings.LastIndexAny(name, "/\\"); i >= 0 {
		name = name[i+1:]
	}

	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}

	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "file"
	}
	return out
}
