// Package api defines the request and response shapes of the platform's
// REST surface. The structs are plain data; the root package Client does
// the transport.
package api

import (
	"net/url"
	"strconv"
)

// PageParams select one page of a cursor-paginated listing.
type PageParams struct {
	// PageSize caps the number of entries returned. Zero lets the server
	// choose.
	PageSize int

	// Cursor resumes a listing where the previous page stopped. Empty
	// starts from the beginning.
	Cursor string
}

// Query renders the pagination parameters as URL query values.
func (p PageParams) Query() url.Values {
	v := url.Values{}
	if p.PageSize > 0 {
		v.Set("page_size", strconv.Itoa(p.PageSize))
	}
	if p.Cursor != "" {
		v.Set("cursor", p.Cursor)
	}
	return v
}

// PageInfo reports where a listing stopped and how to continue it.
type PageInfo struct {
	// NextCursor resumes the listing. Empty when the listing is complete.
	NextCursor string `json:"next_cursor"`

	// HasMore is true when further pages exist.
	HasMore bool `json:"has_more"`
}
