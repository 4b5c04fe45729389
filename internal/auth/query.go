package auth

import "strings"

// TokenFromQuery extracts the "token" parameter from a raw query string.
// Each pair is split on the first "=" only, so token values that themselves
// contain "=" (JWT base64 padding, for example) come through intact.
func TokenFromQuery(rawQuery string) string {
	for _, pair := range strings.Split(rawQuery, "&") {
		key, value, found := strings.Cut(pair, "=")
		if !found {
			continue
		}
		if key == "token" {
			return value
		}
	}
	return ""
}
