package pagination

import (
	"regexp"
	"testing"
)

func TestNormalizeClampsInput(t *testing.T) {
	cases := []struct {
		name      string
		in        Params
		wantPage  int
		wantLimit int
	}{
		{"defaults", Params{}, 1, 20},
		{"negative page", Params{Page: -3, Limit: 10}, 1, 10},
		{"zero page", Params{Page: 0, Limit: 10}, 1, 10},
		{"oversized limit", Params{Page: 2, Limit: 500}, 2, 100},
		{"negative limit", Params{Page: 1, Limit: -1}, 1, 1},
	}
	for _, tc := range cases {
		got := tc.in.Normalize(20)
		if got.Page != tc.wantPage || got.Limit != tc.wantLimit {
			t.Fatalf("%s: got page=%d limit=%d, want page=%d limit=%d",
				tc.name, got.Page, got.Limit, tc.wantPage, tc.wantLimit)
		}
	}
}

func TestNormalizeSortOrder(t *testing.T) {
	if got := (Params{SortOrder: "asc"}).Normalize(10); got.SortOrder != SortAsc {
		t.Fatalf("asc should survive normalization, got %q", got.SortOrder)
	}
	for _, in := range []string{"", "DESC", "sideways"} {
		if got := (Params{SortOrder: in}).Normalize(10); got.SortOrder != SortDesc {
			t.Fatalf("sortOrder %q should normalize to desc, got %q", in, got.SortOrder)
		}
	}
}

func TestBuildMeta(t *testing.T) {
	meta := BuildMeta(45, 2, 20)
	if meta.TotalPages != 3 {
		t.Fatalf("totalPages = %d, want 3", meta.TotalPages)
	}
	if !meta.HasNext || !meta.HasPrev {
		t.Fatalf("page 2 of 3 should have both neighbors")
	}
	if meta.NextPage == nil || *meta.NextPage != 3 {
		t.Fatalf("nextPage = %v, want 3", meta.NextPage)
	}
	if meta.PrevPage == nil || *meta.PrevPage != 1 {
		t.Fatalf("prevPage = %v, want 1", meta.PrevPage)
	}
}

func TestBuildMetaEmptyResult(t *testing.T) {
	meta := BuildMeta(0, 1, 20)
	if meta.TotalPages != 1 {
		t.Fatalf("totalPages for empty result = %d, want 1", meta.TotalPages)
	}
	if meta.HasNext || meta.HasPrev {
		t.Fatalf("empty result should have no neighbors")
	}
	if meta.NextPage != nil || meta.PrevPage != nil {
		t.Fatalf("empty result should have nil next/prev pages")
	}
}

func TestEscapeSearchNeutralizesMetacharacters(t *testing.T) {
	hostile := `a.*+?^${}()|[\]b`
	escaped := EscapeSearch(hostile)
	re, err := regexp.Compile("(?i)" + escaped)
	if err != nil {
		t.Fatalf("escaped pattern should compile: %v", err)
	}
	if !re.MatchString(hostile) {
		t.Fatalf("escaped pattern should match the literal input")
	}
	if re.MatchString("aXb") {
		t.Fatalf("metacharacters must not act as wildcards")
	}
}

func TestEscapeLike(t *testing.T) {
	if got := EscapeLike(`50%_off\`); got != `50\%\_off\\` {
		t.Fatalf("EscapeLike = %q", got)
	}
}

func TestApply(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	if got := Apply(items, 2, 2); len(got) != 2 || got[0] != 3 {
		t.Fatalf("page 2 limit 2 = %v", got)
	}
	if got := Apply(items, 3, 2); len(got) != 1 || got[0] != 5 {
		t.Fatalf("last partial page = %v", got)
	}
	if got := Apply(items, 9, 2); len(got) != 0 {
		t.Fatalf("past-the-end page should be empty, got %v", got)
	}
}
