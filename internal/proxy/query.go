package proxy

import (
	"fmt"
	"strings"
)

const (
	StatusActive   = "active"
	StatusInactive = "inactive"
	StatusAll      = "all"

	DefaultLimit = 20
	MaxLimit     = 1000
)

func validStatus(s string) bool {
	return s == StatusActive || s == StatusInactive || s == StatusAll
}

// BuildQuery renders the upstream query statement. STARTPOSITION is
// 1-indexed upstream, so offset 0 becomes 1.
func BuildQuery(e Entity, search, status string, limit, offset int) string {
	var conds []string
	if e.HasActive {
		switch status {
		case StatusActive:
			conds = append(conds, "Active = true")
		case StatusInactive:
			conds = append(conds, "Active = false")
		case StatusAll:
			// Upstream filters to active rows unless told otherwise.
			conds = append(conds, "Active IN (true, false)")
		}
	}
	if search != "" {
		conds = append(conds, fmt.Sprintf("%s LIKE '%%%s%%'", e.SearchField, escapeLiteral(search)))
	}

	var b strings.Builder
	b.WriteString("SELECT * FROM ")
	b.WriteString(e.Name)
	if len(conds) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(conds, " AND "))
	}
	fmt.Fprintf(&b, " STARTPOSITION %d MAXRESULTS %d", offset+1, limit)
	return b.String()
}

func escapeLiteral(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}
