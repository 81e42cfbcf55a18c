package pagination

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Params holds the _count/_offset window of a list request.
type Params struct {
	Limit  int
	Offset int
}

// FromContext reads _count and _offset. Missing values take defaults, _count
// is clamped to MaxLimit, and non-numeric or negative values are an error.
func FromContext(c echo.Context) (Params, error) {
	p := Params{Limit: DefaultLimit}

	if raw := c.QueryParam("_count"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return p, fmt.Errorf("invalid _count %q", raw)
		}
		if n > 0 {
			p.Limit = n
		}
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}

	if raw := c.QueryParam("_offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return p, fmt.Errorf("invalid _offset %q", raw)
		}
		p.Offset = n
	}
	return p, nil
}

// HasNext reports whether results remain after this page.
func (p Params) HasNext(total int) bool {
	return p.Offset+p.Limit < total
}

func (p Params) HasPrevious() bool {
	return p.Offset > 0
}

func (p Params) NextOffset() int {
	return p.Offset + p.Limit
}

// PreviousOffset returns the offset of the previous page, never negative.
func (p Params) PreviousOffset() int {
	prev := p.Offset - p.Limit
	if prev < 0 {
		return 0
	}
	return prev
}

// Link is a paging link in FHIR Bundle link form.
type Link struct {
	Relation string `json:"relation"`
	URL      string `json:"url"`
}

// Links builds self/next/previous links for the request URL u. Filter
// parameters on u are carried over; only _count and _offset change.
func (p Params) Links(u *url.URL, total int) []Link {
	links := []Link{{Relation: "self", URL: p.pageURL(u, p.Offset)}}
	if p.HasNext(total) {
		links = append(links, Link{Relation: "next", URL: p.pageURL(u, p.NextOffset())})
	}
	if p.HasPrevious() {
		links = append(links, Link{Relation: "previous", URL: p.pageURL(u, p.PreviousOffset())})
	}
	return links
}

func (p Params) pageURL(u *url.URL, offset int) string {
	q := u.Query()
	q.Set("_count", strconv.Itoa(p.Limit))
	q.Set("_offset", strconv.Itoa(offset))
	return u.Path + "?" + q.Encode()
}

// Response is the list envelope returned by read endpoints.
type Response struct {
	Data    interface{} `json:"data"`
	Total   int         `json:"total"`
	Limit   int         `json:"limit"`
	Offset  int         `json:"offset"`
	HasMore bool        `json:"has_more"`
	Links   []Link      `json:"link,omitempty"`
}

func NewResponse(data interface{}, total int, p Params, u *url.URL) *Response {
	r := &Response{
		Data:    data,
		Total:   total,
		Limit:   p.Limit,
		Offset:  p.Offset,
		HasMore: p.HasNext(total),
	}
	if u != nil {
		r.Links = p.Links(u, total)
	}
	return r
}
