package bundle

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestHandler_List(t *testing.T) {
	a := NewArchiver(NewMemoryRepository())
	for _, typ := range []string{"subject-everything", "subject-everything", "other"} {
		a.Archive(context.Background(), ArchiveRequest{BundleType: typ, Payload: json.RawMessage(`{}`)})
	}
	h := NewHandler(a)
	e := echo.New()

	req := httptest.NewRequest(http.MethodGet, "/fhir/bundles?type=subject-everything", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.List(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Data  []Snapshot `json:"data"`
		Total int        `json:"total"`
	}
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body.Total != 2 || len(body.Data) != 2 {
		t.Errorf("expected 2 snapshots, got %d", body.Total)
	}
	for _, s := range body.Data {
		if s.BundleType != "subject-everything" {
			t.Errorf("unexpected bundle type %s", s.BundleType)
		}
	}
}

func TestHandler_List_StoreFailure(t *testing.T) {
	h := NewHandler(NewArchiver(failingRepo{err: context.DeadlineExceeded}))
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/fhir/bundles", nil), rec)

	h.List(c)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
}
