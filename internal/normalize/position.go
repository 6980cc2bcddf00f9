package normalize

import (
	"fmt"
	"strconv"
	"strings"
)

// FormatPosition combines a role name and headcount into "{role} {n}명".
// A missing or zero headcount yields the role name alone.
func FormatPosition(role string, headcount int) string {
	role = Clean(role)
	if role == "" {
		return ""
	}
	if headcount <= 0 {
		return role
	}
	return fmt.Sprintf("%s %d명", role, headcount)
}

// ParseHeadcount reads counts such as "4", "4명" or " 12 " and returns 0 for anything else.
func ParseHeadcount(raw string) int {
	raw = strings.TrimSuffix(strings.TrimSpace(raw), "명")
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 0 {
		return 0
	}
	return n
}
