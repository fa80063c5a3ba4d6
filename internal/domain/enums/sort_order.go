package enums

import "strings"

type SortOrder string

const (
	SortOrderAsc  SortOrder = "ASC"
	SortOrderDesc SortOrder = "DESC"
)

// ParseSortOrder maps any casing of asc/desc onto the backend form. Anything
// else sorts ascending.
func ParseSortOrder(raw string) SortOrder {
	if strings.EqualFold(strings.TrimSpace(raw), string(SortOrderDesc)) {
		return SortOrderDesc
	}
	return SortOrderAsc
}
