package rest

import (
	"net/http"
	"strings"
)

// Prefer holds the return preference of the Prefer header (RFC 7240).
type Prefer struct {
	Return string // "minimal" or "representation"
}

// parsePrefer returns nil when the header is absent or carries no valid
// return preference.
func parsePrefer(r *http.Request) *Prefer {
	header := r.Header.Get("Prefer")
	if header == "" {
		return nil
	}

	var p *Prefer
	for pref := range strings.SplitSeq(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(pref), "=")
		if !found || !strings.EqualFold(strings.TrimSpace(key), "return") {
			continue
		}
		switch v := strings.ToLower(strings.Trim(strings.TrimSpace(value), `"`)); v {
		case "minimal", "representation":
			p = &Prefer{Return: v}
		}
	}
	return p
}

// WantsMinimal reports whether the client asked mutations to answer with a
// status code only. Mutations return the affected rows otherwise.
func (p *Prefer) WantsMinimal() bool {
	return p != nil && p.Return == "minimal"
}
