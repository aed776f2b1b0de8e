// Package util contains misc internal utilities.
package util

import (
	"fmt"
	"net/http"
	"strconv"
	"unicode"
)

// AllElementsNumbers returns true if every rune in the string is a
// digit or a decimal point
func AllElementsNumbers(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) && r != '.' {
			return false
		}
	}
	return true
}

// ParseIntQuery extracts an integer query parameter from a request
func ParseIntQuery(r *http.Request, key string) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0, fmt.Errorf("missing query parameter %q", key)
	}
	return strconv.Atoi(v)
}
