package patients

// PaginatedRecords represents a paginated listing with metadata
type PaginatedRecords struct {
	Data       []*PatientRecord `json:"data"`
	Page       int              `json:"page"`
	PageSize   int              `json:"pageSize"`
	Total      int64            `json:"totalItems"`
	TotalPages int              `json:"totalPages"`
}
