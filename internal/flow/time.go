package flow

import "strconv"

// ParseHHMM validates a strict 24-hour clock string ("H:MM" or "HH:MM")
// and returns it zero-padded. 12-hour notation, missing colons, and
// out-of-range fields are all rejected.
func ParseHHMM(s string) (string, bool) {
	colon := -1
	for i, r := range s {
		if r == ':' {
			if colon >= 0 {
				return "", false
			}
			colon = i
		}
	}
	if colon < 1 || colon > 2 || colon != len(s)-3 {
		return "", false
	}
	hs, ms := s[:colon], s[colon+1:]
	if !digitsOnly(hs) || !digitsOnly(ms) {
		return "", false
	}
	h, err := strconv.Atoi(hs)
	if err != nil || h < 0 || h > 23 {
		return "", false
	}
	m, err := strconv.Atoi(ms)
	if err != nil || m < 0 || m > 59 {
		return "", false
	}
	return pad2(h) + ":" + pad2(m), true
}

func digitsOnly(s string) bool {
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

func pad2(n int) string {
	if n < 10 {
		return "0" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}
