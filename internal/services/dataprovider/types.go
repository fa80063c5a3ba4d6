package dataprovider

import (
	"errors"
	"net/url"

	"github.com/ivankudzin/daycare-admin/internal/domain/enums"
	"github.com/ivankudzin/daycare-admin/internal/domain/model"
)

const isActiveField = "isActive"

var (
	ErrInvalidInput   = errors.New("invalid input")
	ErrForeignURL     = errors.New("url is outside the api base")
	ErrUnexpectedBody = errors.New("unexpected list response shape")
)

type ListParams struct {
	Resource   enums.Resource
	Pagination *model.Pagination
	Sorters    []model.Sorter
	// Filters are accepted for interface parity and not sent to the backend.
	Filters []model.Filter
}

type CustomParams struct {
	URL     string
	Method  string
	Payload interface{}
	Query   url.Values
}

type CustomResult struct {
	Data interface{}
}

type listEnvelope struct {
	Data []model.Record `json:"data"`
	Meta *struct {
		Total *int `json:"total"`
	} `json:"meta"`
}
