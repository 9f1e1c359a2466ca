package core

import (
	"strings"
)

type DBOrdering struct {
	Field     string
	Ascending bool
}

func (ord DBOrdering) String() string {
	direction := "DESC"
	if ord.Ascending {
		direction = "ASC"
	}
	return ord.Field + " " + direction
}

// ParseOrdering parses a comma separated list of fields, "-" prefixed fields are descending.
// eg: "-created_at,name"
func ParseOrdering(val string) []DBOrdering {
	var ordering []DBOrdering
	for _, field := range strings.Split(val, ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		if field == "" {
			continue
		}
		ordering = append(ordering, DBOrdering{Field: field, Ascending: !descending})
	}
	return ordering
}

// AllowedOrdering drops the orderings whose field is not in `allowed`.
// Ordering fields come from query strings, they must never reach SQL unchecked.
func AllowedOrdering(ordering []DBOrdering, allowed ...string) []DBOrdering {
	clean := make([]DBOrdering, 0, len(ordering))
	for _, ord := range ordering {
		for _, f := range allowed {
			if ord.Field == f {
				clean = append(clean, ord)
				break
			}
		}
	}
	return clean
}
