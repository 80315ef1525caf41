package symbols

import (
	"strings"
)

const maxEditDistance = 3

// nameVariants generates the cheap string variants tried before the
// normalized-key pass: separators stripped, parenthesized qualifiers
// dropped.
func nameVariants(name string) []string {
	variants := make([]string, 0, 4)

	stripped := strings.NewReplacer("/", "", " ", "", "-", "", "_", "").Replace(name)
	if stripped != name {
		variants = append(variants, stripped)
	}

	if i := strings.IndexByte(name, '('); i > 0 {
		noParen := strings.TrimSpace(name[:i])
		variants = append(variants, noParen)
		variants = append(variants, strings.NewReplacer("/", "", " ", "").Replace(noParen))
	}

	return variants
}

// normalizeKey reduces a name to its comparison key: uppercase, all
// separators removed, synthetic-index suffix variants stripped.
func normalizeKey(name string) string {
	key := strings.ToUpper(name)
	key = strings.NewReplacer("/", "", " ", "", "-", "", "_", "", ".", "").Replace(key)
	for _, suffix := range []string{"(1S)", "INDEX"} {
		key = strings.ReplaceAll(key, suffix, "")
	}
	return key
}

// isSyntheticName flags the venue's continuously-traded index instruments,
// which carry their own volume and risk sizing rules.
func isSyntheticName(name string) bool {
	upper := strings.ToUpper(name)
	for _, marker := range []string{"VOLATILITY", "BOOM", "CRASH", "STEP", "JUMP", "RANGE BREAK"} {
		if strings.Contains(upper, marker) {
			return true
		}
	}
	return strings.HasSuffix(upper, "INDEX")
}

// editDistance is the Levenshtein distance between two strings, banded to
// maxEditDistance+1 so hopeless candidates bail out cheaply.
func editDistance(a, b string) int {
	if a == b {
		return 0
	}
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}
	diff := len(a) - len(b)
	if diff < 0 {
		diff = -diff
	}
	if diff > maxEditDistance {
		return maxEditDistance + 1
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := 0; j <= len(b); j++ {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		rowMin := curr[0]
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			del := prev[j] + 1
			ins := curr[j-1] + 1
			sub := prev[j-1] + cost
			min := del
			if ins < min {
				min = ins
			}
			if sub < min {
				min = sub
			}
			curr[j] = min
			if min < rowMin {
				rowMin = min
			}
		}
		if rowMin > maxEditDistance {
			return maxEditDistance + 1
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
