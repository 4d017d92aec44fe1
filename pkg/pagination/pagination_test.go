package pagination

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func ctxWithQuery(query string) echo.Context {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/?"+query, nil)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec)
}

func TestFromContextDefaults(t *testing.T) {
	p := FromContext(ctxWithQuery(""))
	if p.Limit != DefaultLimit {
		t.Fatalf("limit = %d", p.Limit)
	}
	if p.Offset != 0 {
		t.Fatalf("offset = %d", p.Offset)
	}
}

func TestFromContextExplicit(t *testing.T) {
	p := FromContext(ctxWithQuery("limit=5&offset=40"))
	if p.Limit != 5 || p.Offset != 40 {
		t.Fatalf("params = %+v", p)
	}
}

func TestFromContextClamping(t *testing.T) {
	p := FromContext(ctxWithQuery("limit=5000&offset=-3"))
	if p.Limit != MaxLimit {
		t.Fatalf("limit = %d", p.Limit)
	}
	if p.Offset != 0 {
		t.Fatalf("offset = %d", p.Offset)
	}
}

func TestNewResponseHasMore(t *testing.T) {
	r := NewResponse([]int{1, 2, 3}, 10, 3, 0)
	if !r.HasMore {
		t.Fatal("expected has_more")
	}
	r = NewResponse([]int{1}, 10, 3, 9)
	if r.HasMore {
		t.Fatal("expected no more")
	}
}

func TestNextOffset(t *testing.T) {
	p := Params{Limit: 20, Offset: 40}
	if p.NextOffset() != 60 {
		t.Fatalf("next = %d", p.NextOffset())
	}
	if !p.HasNext(100) {
		t.Fatal("expected next page")
	}
	if p.HasNext(60) {
		t.Fatal("expected no next page")
	}
}
