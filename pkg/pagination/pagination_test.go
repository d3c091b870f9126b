package pagination

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func newContext(target string) echo.Context {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	return e.NewContext(req, httptest.NewRecorder())
}

func TestFromContext_Defaults(t *testing.T) {
	p := FromContext(newContext("/"))

	if p.Limit != DefaultLimit {
		t.Errorf("expected default limit %d, got %d", DefaultLimit, p.Limit)
	}
	if p.Offset != 0 {
		t.Errorf("expected default offset 0, got %d", p.Offset)
	}
}

func TestFromContext_CustomValues(t *testing.T) {
	p := FromContext(newContext("/?limit=50&offset=10"))

	if p.Limit != 50 {
		t.Errorf("expected limit 50, got %d", p.Limit)
	}
	if p.Offset != 10 {
		t.Errorf("expected offset 10, got %d", p.Offset)
	}
}

func TestFromContext_Page(t *testing.T) {
	p := FromContext(newContext("/?limit=25&page=3"))

	if p.Offset != 50 {
		t.Errorf("expected offset 50 for page 3, got %d", p.Offset)
	}
}

func TestFromContext_MaxLimit(t *testing.T) {
	p := FromContext(newContext("/?limit=500"))

	if p.Limit != MaxLimit {
		t.Errorf("expected limit capped at %d, got %d", MaxLimit, p.Limit)
	}
}

func TestFromContext_NegativeOffset(t *testing.T) {
	p := FromContext(newContext("/?offset=-5"))

	if p.Offset != 0 {
		t.Errorf("expected offset 0, got %d", p.Offset)
	}
}

func TestNewResponse_HasMore(t *testing.T) {
	r := NewResponse([]int{1, 2}, 5, 2, 0)
	if !r.HasMore {
		t.Error("expected has_more with 5 total and first page of 2")
	}
	if r.NextOffset == nil || *r.NextOffset != 2 {
		t.Errorf("expected next_offset 2, got %v", r.NextOffset)
	}
	r = NewResponse([]int{5}, 5, 2, 4)
	if r.HasMore {
		t.Error("expected no more results on last page")
	}
	if r.NextOffset != nil {
		t.Errorf("expected no next_offset on last page, got %d", *r.NextOffset)
	}
	if r.Page != 3 {
		t.Errorf("expected page 3, got %d", r.Page)
	}
}

func TestFromContext_OffsetWinsOverPage(t *testing.T) {
	p := FromContext(newContext("/?limit=10&offset=5&page=4"))

	if p.Offset != 5 {
		t.Errorf("expected offset 5, got %d", p.Offset)
	}
	if p.Page() != 1 {
		t.Errorf("expected page 1, got %d", p.Page())
	}
}

func TestFromContext_InvalidLimit(t *testing.T) {
	for _, q := range []string{"/?limit=abc", "/?limit=0", "/?limit=-3"} {
		if p := FromContext(newContext(q)); p.Limit != DefaultLimit {
			t.Errorf("%s: expected default limit, got %d", q, p.Limit)
		}
	}
}

func TestWindow(t *testing.T) {
	items := []int{0, 1, 2, 3, 4}

	tests := []struct {
		name          string
		limit, offset int
		want          []int
	}{
		{"first page", 2, 0, []int{0, 1}},
		{"middle page", 2, 2, []int{2, 3}},
		{"short last page", 2, 4, []int{4}},
		{"past end", 2, 10, nil},
		{"no limit", 0, 3, []int{3, 4}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Window(items, tt.limit, tt.offset)
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("got %v, want %v", got, tt.want)
				}
			}
		})
	}
}
