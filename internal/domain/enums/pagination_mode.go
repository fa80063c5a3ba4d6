package enums

type PaginationMode string

const (
	PaginationModeServer PaginationMode = "server"
	PaginationModeClient PaginationMode = "client"
	PaginationModeOff    PaginationMode = "off"
)
