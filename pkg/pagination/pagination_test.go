package pagination

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/labstack/echo/v4"
)

func newContext(target string) echo.Context {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	return e.NewContext(req, httptest.NewRecorder())
}

func TestFromContext_Defaults(t *testing.T) {
	p, err := FromContext(newContext("/"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Limit != DefaultLimit {
		t.Errorf("expected default limit %d, got %d", DefaultLimit, p.Limit)
	}
	if p.Offset != 0 {
		t.Errorf("expected default offset 0, got %d", p.Offset)
	}
}

func TestFromContext_FHIRParams(t *testing.T) {
	p, err := FromContext(newContext("/?_count=25&_offset=5"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Limit != 25 {
		t.Errorf("expected limit 25, got %d", p.Limit)
	}
	if p.Offset != 5 {
		t.Errorf("expected offset 5, got %d", p.Offset)
	}
}

func TestFromContext_MaxLimit(t *testing.T) {
	p, _ := FromContext(newContext("/?_count=5000"))
	if p.Limit != MaxLimit {
		t.Errorf("expected limit clamped to %d, got %d", MaxLimit, p.Limit)
	}
}

func TestFromContext_Invalid(t *testing.T) {
	for _, q := range []string{"/?_count=abc", "/?_count=-1", "/?_offset=-3", "/?_offset=x"} {
		if _, err := FromContext(newContext(q)); err == nil {
			t.Errorf("expected error for %s", q)
		}
	}
}

func TestParams_Offsets(t *testing.T) {
	p := Params{Limit: 10, Offset: 5}
	if p.NextOffset() != 15 {
		t.Errorf("expected next offset 15, got %d", p.NextOffset())
	}
	if p.PreviousOffset() != 0 {
		t.Errorf("expected previous offset clamped to 0, got %d", p.PreviousOffset())
	}
	if !p.HasPrevious() {
		t.Error("expected HasPrevious at offset 5")
	}
	if p.HasNext(15) {
		t.Error("expected no next page at total 15")
	}
	if !p.HasNext(16) {
		t.Error("expected next page at total 16")
	}
}

func TestParams_LinksKeepFilters(t *testing.T) {
	u, _ := url.Parse("/fhir/resources?type=Observation&_count=10&_offset=10")
	p := Params{Limit: 10, Offset: 10}

	links := p.Links(u, 35)
	if len(links) != 3 {
		t.Fatalf("expected self, next and previous links, got %d", len(links))
	}

	want := map[string]string{
		"self":     "/fhir/resources?_count=10&_offset=10&type=Observation",
		"next":     "/fhir/resources?_count=10&_offset=20&type=Observation",
		"previous": "/fhir/resources?_count=10&_offset=0&type=Observation",
	}
	for _, l := range links {
		if want[l.Relation] != l.URL {
			t.Errorf("%s: expected %s, got %s", l.Relation, want[l.Relation], l.URL)
		}
	}
}

func TestNewResponse(t *testing.T) {
	r := NewResponse([]string{"a", "b"}, 5, Params{Limit: 2, Offset: 0}, nil)
	if !r.HasMore {
		t.Error("expected HasMore")
	}
	if r.Total != 5 || r.Limit != 2 {
		t.Errorf("unexpected envelope %+v", r)
	}
	if r.Links != nil {
		t.Error("expected no links without a request URL")
	}
}
