package fhir

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrUnexpectedDocument is returned when a payload is neither a Bundle nor a
// Parameters resource carrying one.
var ErrUnexpectedDocument = errors.New("fhir: unexpected document")

// Bundle represents a FHIR Bundle resource.
type Bundle struct {
	ResourceType string        `json:"resourceType"`
	ID           string        `json:"id,omitempty"`
	Type         string        `json:"type"`
	Total        *int          `json:"total,omitempty"`
	Link         []BundleLink  `json:"link,omitempty"`
	Entry        []BundleEntry `json:"entry,omitempty"`
	Timestamp    *time.Time    `json:"timestamp,omitempty"`

	// Raw is the bundle document as received. Fields the struct does not
	// model only survive here.
	Raw   json.RawMessage `json:"-"`
	pages []json.RawMessage
}

type BundleLink struct {
	Relation string `json:"relation"`
	URL      string `json:"url"`
}

type BundleEntry struct {
	FullURL  string        `json:"fullUrl,omitempty"`
	Resource *Resource     `json:"resource,omitempty"`
	Search   *BundleSearch `json:"search,omitempty"`
}

type BundleSearch struct {
	Mode  string   `json:"mode,omitempty"`
	Score *float64 `json:"score,omitempty"`
}

// Parameters is the FHIR Parameters resource; operations such as $everything
// may wrap their result Bundle in one.
type Parameters struct {
	ResourceType string      `json:"resourceType"`
	Parameter    []Parameter `json:"parameter,omitempty"`
}

type Parameter struct {
	Name     string          `json:"name,omitempty"`
	Resource json.RawMessage `json:"resource,omitempty"`
}

// LinkURL returns the URL of the link with the given relation, or "".
func (b *Bundle) LinkURL(relation string) string {
	for _, l := range b.Link {
		if l.Relation == relation {
			return l.URL
		}
	}
	return ""
}

// NextURL returns the "next" paging link, or "" on the last page.
func (b *Bundle) NextURL() string {
	return b.LinkURL("next")
}

// Entries returns the entries that carry a resource, in bundle order.
func (b *Bundle) Entries() []BundleEntry {
	out := make([]BundleEntry, 0, len(b.Entry))
	for _, e := range b.Entry {
		if e.Resource != nil {
			out = append(out, e)
		}
	}
	return out
}

// ResourceCount is the number of contained resources.
func (b *Bundle) ResourceCount() int {
	n := 0
	for _, e := range b.Entry {
		if e.Resource != nil {
			n++
		}
	}
	return n
}

// Append adds another page's entries to b and refreshes its total.
func (b *Bundle) Append(page *Bundle) {
	b.Entry = append(b.Entry, page.Entry...)
	total := len(b.Entry)
	b.Total = &total
	raw := page.Raw
	if len(raw) == 0 {
		raw, _ = json.Marshal(page)
	}
	b.pages = append(b.pages, raw)
}

// Document returns the bundle as received. With appended pages it is the
// first page's document carrying the raw entries of every page in order,
// without paging links. A bundle built in code is marshalled as is.
func (b *Bundle) Document() (json.RawMessage, error) {
	if len(b.Raw) == 0 {
		return json.Marshal(b)
	}
	if len(b.pages) == 0 {
		return b.Raw, nil
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(b.Raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnexpectedDocument, err)
	}
	entries, err := rawEntries(b.Raw)
	if err != nil {
		return nil, err
	}
	for _, page := range b.pages {
		more, err := rawEntries(page)
		if err != nil {
			return nil, err
		}
		entries = append(entries, more...)
	}

	delete(doc, "link")
	delete(doc, "entry")
	if len(entries) > 0 {
		encoded, err := json.Marshal(entries)
		if err != nil {
			return nil, err
		}
		doc["entry"] = encoded
	}
	return json.Marshal(doc)
}

func rawEntries(page json.RawMessage) ([]json.RawMessage, error) {
	if len(page) == 0 {
		return nil, nil
	}
	var v struct {
		Entry []json.RawMessage `json:"entry"`
	}
	if err := json.Unmarshal(page, &v); err != nil {
		return nil, fmt.Errorf("%w: page entries: %w", ErrUnexpectedDocument, err)
	}
	return v.Entry, nil
}

// DecodeBundle decodes a Bundle, unwrapping a Parameters resource whose
// first resource-valued parameter is a Bundle.
func DecodeBundle(data []byte) (*Bundle, error) {
	var h resourceHeader
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnexpectedDocument, err)
	}

	switch h.ResourceType {
	case "Bundle":
		var b Bundle
		if err := json.Unmarshal(data, &b); err != nil {
			return nil, fmt.Errorf("%w: decode bundle: %v", ErrUnexpectedDocument, err)
		}
		b.Raw = json.RawMessage(data)
		return &b, nil
	case "Parameters":
		var p Parameters
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("%w: decode parameters: %v", ErrUnexpectedDocument, err)
		}
		for _, param := range p.Parameter {
			if len(param.Resource) == 0 {
				continue
			}
			return DecodeBundle(param.Resource)
		}
		return nil, fmt.Errorf("%w: parameters carry no bundle", ErrUnexpectedDocument)
	default:
		return nil, fmt.Errorf("%w: resourceType %q", ErrUnexpectedDocument, h.ResourceType)
	}
}
