package enums

type Resource string

const (
	ResourceChildren   Resource = "children"
	ResourceUsers      Resource = "users"
	ResourceAttendance Resource = "attendance"
	ResourceIncidents  Resource = "incidents"
	ResourceDocuments  Resource = "documents"
	ResourceMessages   Resource = "messages"
)
