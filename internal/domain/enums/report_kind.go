package enums

type ReportKind string

const (
	ReportKindLost  ReportKind = "lost"
	ReportKindFound ReportKind = "found"
)

type ReportStatus string

const (
	ReportStatusOpen   ReportStatus = "open"
	ReportStatusClosed ReportStatus = "closed"
)
