package pagination

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func paramsFor(t *testing.T, target string) Params {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	return FromContext(e.NewContext(req, rec))
}

func TestFromContext_Defaults(t *testing.T) {
	p := paramsFor(t, "/")
	if p.Page != 1 {
		t.Errorf("expected default page 1, got %d", p.Page)
	}
	if p.Limit != DefaultLimit {
		t.Errorf("expected default limit %d, got %d", DefaultLimit, p.Limit)
	}
}

func TestFromContext_CustomValues(t *testing.T) {
	p := paramsFor(t, "/?page=3&limit=50")
	if p.Page != 3 {
		t.Errorf("expected page 3, got %d", p.Page)
	}
	if p.Limit != 50 {
		t.Errorf("expected limit 50, got %d", p.Limit)
	}
}

func TestFromContext_MaxLimit(t *testing.T) {
	p := paramsFor(t, "/?limit=500")
	if p.Limit != MaxLimit {
		t.Errorf("expected limit capped at %d, got %d", MaxLimit, p.Limit)
	}
}

func TestFromContext_InvalidValues(t *testing.T) {
	p := paramsFor(t, "/?page=-2&limit=abc")
	if p.Page != 1 {
		t.Errorf("expected page 1 for invalid input, got %d", p.Page)
	}
	if p.Limit != DefaultLimit {
		t.Errorf("expected default limit for invalid input, got %d", p.Limit)
	}
}

func TestNewMeta(t *testing.T) {
	m := NewMeta(45, Params{Page: 2, Limit: 20})
	if m.Total != 45 || m.Page != 2 || m.Limit != 20 {
		t.Errorf("unexpected meta %+v", m)
	}
	if m.Pages != 3 {
		t.Errorf("expected 3 pages for 45/20, got %d", m.Pages)
	}
}

func TestNewMeta_ExactFit(t *testing.T) {
	m := NewMeta(40, Params{Page: 1, Limit: 20})
	if m.Pages != 2 {
		t.Errorf("expected 2 pages for 40/20, got %d", m.Pages)
	}
}

func TestOffset(t *testing.T) {
	p := Params{Page: 3, Limit: 10}
	if p.Offset() != 20 {
		t.Errorf("expected offset 20, got %d", p.Offset())
	}
}

func TestSlice(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}

	got := Slice(items, Params{Page: 2, Limit: 2})
	if len(got) != 2 || got[0] != 3 || got[1] != 4 {
		t.Errorf("page 2 = %v, want [3 4]", got)
	}

	got = Slice(items, Params{Page: 3, Limit: 2})
	if len(got) != 1 || got[0] != 5 {
		t.Errorf("final partial page = %v, want [5]", got)
	}

	if got := Slice(items, Params{Page: 9, Limit: 2}); got != nil {
		t.Errorf("page past end = %v, want nil", got)
	}
}

func TestHasNext(t *testing.T) {
	p := Params{Page: 1, Limit: 20}
	if !p.HasNext(45) {
		t.Error("expected next page for 45 results")
	}
	if (Params{Page: 3, Limit: 20}).HasNext(45) {
		t.Error("expected no next page past the end")
	}
}
