package model

import "github.com/ivankudzin/daycare-admin/internal/domain/enums"

const (
	DefaultCurrentPage = 1
	DefaultPageSize    = 10
)

type Pagination struct {
	Current  int
	PageSize int
	Mode     enums.PaginationMode
}

type Sorter struct {
	Field string
	Order string
}

type Filter struct {
	Field    string
	Operator string
	Value    interface{}
}

// Record is one backend row as decoded JSON.
type Record map[string]interface{}

type ListResult struct {
	Data  []Record
	Total int
}

type OneResult struct {
	Data Record
}

type DeleteResult struct {
	Data Record
}
