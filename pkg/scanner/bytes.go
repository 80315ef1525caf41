package scanner

// ScanDecimalAfter finds key in payload and returns the decimal number that
// follows the next occurrence of sep, as raw bytes ("330.00"). Venue error
// descriptions carry machine-relevant values inside free-form text, e.g.
// "...maximum allowed volume = 330.00.".
func ScanDecimalAfter(payload []byte, key []byte, sep byte) ([]byte, bool) {
	idx := IndexOf(payload, key)
	if idx < 0 {
		return nil, false
	}
	i := idx + len(key)
	for i < len(payload) && payload[i] != sep {
		i++
	}
	if i >= len(payload) {
		return nil, false
	}
	i++
	for i < len(payload) && IsSpace(payload[i]) {
		i++
	}
	if i >= len(payload) || !isDigit(payload[i]) {
		return nil, false
	}
	start := i
	dotSeen := false
	for i < len(payload) {
		switch {
		case isDigit(payload[i]):
			i++
		case payload[i] == '.' && !dotSeen && i+1 < len(payload) && isDigit(payload[i+1]):
			// A dot not followed by a digit is sentence punctuation.
			dotSeen = true
			i++
		default:
			return payload[start:i], true
		}
	}
	return payload[start:i], true
}

// ScanQuotedAfter finds key and returns the double-quoted string that
// follows the next occurrence of sep.
func ScanQuotedAfter(payload []byte, key []byte, sep byte) ([]byte, bool) {
	idx := IndexOf(payload, key)
	if idx < 0 {
		return nil, false
	}
	i := idx + len(key)
	for i < len(payload) && payload[i] != sep {
		i++
	}
	if i >= len(payload) {
		return nil, false
	}
	i++
	for i < len(payload) && IsSpace(payload[i]) {
		i++
	}
	if i >= len(payload) || payload[i] != '"' {
		return nil, false
	}
	i++
	start := i
	for i < len(payload) && payload[i] != '"' {
		i++
	}
	if i >= len(payload) {
		return nil, false
	}
	return payload[start:i], true
}

func IndexOf(payload []byte, key []byte) int {
	if len(key) == 0 || len(payload) < len(key) {
		return -1
	}
outer:
	for i := 0; i <= len(payload)-len(key); i++ {
		for j := 0; j < len(key); j++ {
			if payload[i+j] != key[j] {
				continue outer
			}
		}
		return i
	}
	return -1
}

func IsSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

func BytesContains(haystack []byte, needle []byte) bool {
	if len(needle) == 0 {
		return true
	}
	if len(haystack) < len(needle) {
		return false
	}
	return IndexOf(haystack, needle) >= 0
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}
