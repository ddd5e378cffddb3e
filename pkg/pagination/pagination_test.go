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

func TestFromContext_MaxLimit(t *testing.T) {
	p := FromContext(newContext("/?limit=500"))
	if p.Limit != MaxLimit {
		t.Errorf("expected limit capped at %d, got %d", MaxLimit, p.Limit)
	}
}

func TestFromContext_InvalidValues(t *testing.T) {
	p := FromContext(newContext("/?limit=abc&offset=-5"))
	if p.Limit != DefaultLimit {
		t.Errorf("expected default limit for junk input, got %d", p.Limit)
	}
	if p.Offset != 0 {
		t.Errorf("expected negative offset clamped to 0, got %d", p.Offset)
	}
}

func TestNewResponse(t *testing.T) {
	resp := NewResponse([]string{"a", "b"}, 5, 2, 0)
	if resp.Total != 5 || resp.Limit != 2 || resp.Offset != 0 {
		t.Errorf("unexpected response %+v", resp)
	}
	if !resp.HasMore {
		t.Error("expected HasMore")
	}

	last := NewResponse([]string{"e"}, 5, 2, 4)
	if last.HasMore {
		t.Error("expected no more results on the last page")
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
		t.Error("expected HasPrevious")
	}
	if !p.HasNext(16) || p.HasNext(15) {
		t.Error("unexpected HasNext result")
	}
}

func TestLinks(t *testing.T) {
	tests := []struct {
		name   string
		params Params
		total  int
		want   []string
	}{
		{"first page", Params{Limit: 2, Offset: 0}, 5, []string{"self", "next"}},
		{"middle page", Params{Limit: 2, Offset: 2}, 5, []string{"self", "next", "previous"}},
		{"last page", Params{Limit: 2, Offset: 4}, 5, []string{"self", "previous"}},
		{"no results", Params{Limit: 20, Offset: 0}, 0, []string{"self"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			links := tt.params.Links("/api/v1/sessions", tt.total)
			if len(links) != len(tt.want) {
				t.Fatalf("expected %d links, got %+v", len(tt.want), links)
			}
			for i, rel := range tt.want {
				if links[i].Relation != rel {
					t.Errorf("link %d: expected %s, got %s", i, rel, links[i].Relation)
				}
			}
		})
	}

	resp := NewResponse(nil, 5, 2, 2).WithLinks("/api/v1/sessions")
	if resp.Links[1].URL != "/api/v1/sessions?offset=4&limit=2" {
		t.Errorf("unexpected next link %s", resp.Links[1].URL)
	}
}
