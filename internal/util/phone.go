package util

import (
	"regexp"
	"strings"
)

// NormalizePhone tries to normalize user input into E.164-like format.
func NormalizePhone(raw string) string {
	s := strings.TrimSpace(raw)
	re := regexp.MustCompile(`[^\d\+]+`)
	s = re.ReplaceAllString(s, "")

	if strings.HasPrefix(s, "00") {
		s = "+" + s[2:]
	} else if strings.HasPrefix(s, "0") && len(s) == 11 {
		s = "+1" + s[1:]
	} else if len(s) == 10 && !strings.HasPrefix(s, "+") {
		s = "+1" + s
	}

	return s
}
