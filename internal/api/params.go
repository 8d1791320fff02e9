package api

import (
	"net/http"
	"strconv"
	"strings"
)

// GetPathParam returns the part of the request path after prefix, or ""
// when the path does not start with it. Routes are registered on the
// prefix, so the remainder is the resource id (possibly with a
// sub-resource suffix the handler splits off itself).
func GetPathParam(r *http.Request, prefix string) string {
	if rest, ok := strings.CutPrefix(r.URL.Path, prefix); ok {
		return rest
	}
	return ""
}

// QueryParamInt parses an integer query parameter, falling back to def
// when absent or malformed.
func QueryParamInt(r *http.Request, name string, def int) int {
	if n, err := strconv.Atoi(r.URL.Query().Get(name)); err == nil {
		return n
	}
	return def
}

// QueryParamBool reads a boolean query parameter. "true", "1", and
// "yes" count as true; anything else present counts as false.
func QueryParamBool(r *http.Request, name string, def bool) bool {
	switch r.URL.Query().Get(name) {
	case "":
		return def
	case "true", "1", "yes":
		return true
	}
	return false
}
