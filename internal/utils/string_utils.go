package utils

import "strings"

func Capitalize(str string) string {
	if len(str) == 0 {
		return ""
	}
	return strings.ToUpper(string([]rune(str)[0])) + string([]rune(str)[1:])
}

// SanitizeUsername strips the characters the media server rejects in usernames.
// An empty result means the caller should fall back to a placeholder.
func SanitizeUsername(input string) string {
	replacer := strings.NewReplacer("@", "", ".", "", " ", "")
	return replacer.Replace(strings.TrimSpace(input))
}

func EmailLocalPart(email string) string {
	local, _, _ := strings.Cut(email, "@")
	return local
}
