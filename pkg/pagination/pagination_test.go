package pagination

import (
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/labstack/echo/v4"
)

func paramsFor(query string) Params {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/"+query, nil)
	return FromContext(e.NewContext(req, httptest.NewRecorder()))
}

func TestFromContext(t *testing.T) {
	tests := []struct {
		query string
		want  Params
	}{
		{"", Params{Limit: DefaultLimit}},
		{"?limit=50&offset=10", Params{Limit: 50, Offset: 10}},
		{"?_count=5&_offset=15", Params{Limit: 5, Offset: 15}},
		{"?limit=500", Params{Limit: MaxLimit}},
		{"?limit=-3&offset=-1", Params{Limit: DefaultLimit}},
		{"?limit=abc&offset=xyz", Params{Limit: DefaultLimit}},
		{"?limit=7&_count=9", Params{Limit: 7}},
	}
	for _, tt := range tests {
		if got := paramsFor(tt.query); got != tt.want {
			t.Errorf("FromContext(%q) = %+v, want %+v", tt.query, got, tt.want)
		}
	}
}

func TestWindow(t *testing.T) {
	tests := []struct {
		total, limit, offset int
		start, end           int
	}{
		{10, 3, 0, 0, 3},
		{10, 3, 9, 9, 10},
		{10, 3, 10, 10, 10},
		{10, 0, 4, 4, 10},
		{0, 20, 0, 0, 0},
		{5, 2, -1, 0, 2},
	}
	for _, tt := range tests {
		start, end := Window(tt.total, tt.limit, tt.offset)
		if start != tt.start || end != tt.end {
			t.Errorf("Window(%d, %d, %d) = [%d, %d), want [%d, %d)",
				tt.total, tt.limit, tt.offset, start, end, tt.start, tt.end)
		}
	}
}

func TestSlice(t *testing.T) {
	items := []string{"a", "b", "c", "d"}
	if got := Slice(items, Params{Limit: 2, Offset: 1}); !reflect.DeepEqual(got, []string{"b", "c"}) {
		t.Errorf("unexpected page %v", got)
	}
	if got := Slice(items, Params{Limit: 2, Offset: 8}); len(got) != 0 {
		t.Errorf("expected empty page, got %v", got)
	}
}

func TestNewResponse_HasMore(t *testing.T) {
	if !NewResponse(nil, 100, 20, 0).HasMore {
		t.Error("expected HasMore on the first of five pages")
	}
	if NewResponse(nil, 100, 20, 80).HasMore {
		t.Error("expected no more after the last page")
	}
}
