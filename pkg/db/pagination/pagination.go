package pagination

// Pagination carries offset paging parameters from query strings.
type Pagination struct {
	Skip int `form:"skip,default=0" validate:"gte=0"`
	Take int `form:"take,default=20" validate:"gte=1,lte=100"`
}

const (
	defaultTake = 20
	maxTake     = 100
)

// Normalize clamps the parameters to their allowed ranges.
func (p Pagination) Normalize() Pagination {
	if p.Skip < 0 {
		p.Skip = 0
	}
	if p.Take <= 0 {
		p.Take = defaultTake
	}
	if p.Take > maxTake {
		p.Take = maxTake
	}
	return p
}

// PageInfo describes the position of a page within the full result set.
type PageInfo struct {
	Total   int64 `json:"total"`
	Skip    int   `json:"skip"`
	Take    int   `json:"take"`
	HasMore bool  `json:"has_more"`
}

// BuildPageInfo computes paging metadata for an offset page.
func BuildPageInfo(p Pagination, total int64) PageInfo {
	return PageInfo{
		Total:   total,
		Skip:    p.Skip,
		Take:    p.Take,
		HasMore: int64(p.Skip+p.Take) < total,
	}
}
