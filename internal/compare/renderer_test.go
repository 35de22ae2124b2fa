package compare

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"pgregory.net/rapid"
)

func sampleResult() *Result {
	return &Result{
		Summary: `Contract B adds a "late fee".`,
		Sections: []Section{
			{
				Title:   ClauseSection,
				Headers: []string{"Clause", "Contract A", "Contract B"},
				Rows: [][]string{
					{"Payment", "Net 30, monthly", "Net 45"},
					{"Notes", `He said "ok"`, "line one\nline two"},
				},
			},
			{
				Title:   ProductSection,
				Headers: []string{"Product", "Price"},
				Rows:    [][]string{{"Widget", "10"}},
			},
		},
	}
}

func TestCSVRendererOutput(t *testing.T) {
	got, err := CSVRenderer{}.Render(sampleResult())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	want := "Clause-Level Comparison\n" +
		"Clause,Contract A,Contract B\n" +
		"Payment,\"Net 30, monthly\",Net 45\n" +
		"Notes,\"He said \"\"ok\"\"\",\"line one\nline two\"\n\n" +
		"Product & Unit Price Comparison\n" +
		"Product,Price\n" +
		"Widget,10" +
		"\n\n\nSummary\n" +
		"\"Contract B adds a \"\"late fee\"\".\""
	if string(got) != want {
		t.Errorf("CSV mismatch:\n got: %q\nwant: %q", got, want)
	}
}

func TestCSVRendererRequiresTables(t *testing.T) {
	if _, err := (CSVRenderer{}).Render(&Result{Summary: "only text"}); !errors.Is(err, ErrNoResult) {
		t.Errorf("expected ErrNoResult, got %v", err)
	}
}

// Feature: contractdesk, Property 4: CSV export is idempotent
func TestCSVRenderIdempotent(t *testing.T) {
	cell := rapid.StringMatching(`[a-zA-Z0-9 ,"\n%-]{0,12}`)
	rapid.Check(t, func(t *rapid.T) {
		cols := rapid.IntRange(1, 4).Draw(t, "cols")
		sec := Section{Title: ClauseSection}
		for i := 0; i < cols; i++ {
			sec.Headers = append(sec.Headers, cell.Draw(t, "header"))
		}
		for n := rapid.IntRange(0, 5).Draw(t, "rows"); n > 0; n-- {
			row := make([]string, cols)
			for i := range row {
				row[i] = cell.Draw(t, "cell")
			}
			sec.Rows = append(sec.Rows, row)
		}
		res := &Result{Summary: cell.Draw(t, "summary"), Sections: []Section{sec}}

		first, err := CSVRenderer{}.Render(res)
		if err != nil {
			t.Fatalf("first render: %v", err)
		}
		second, err := CSVRenderer{}.Render(res)
		if err != nil {
			t.Fatalf("second render: %v", err)
		}
		if !bytes.Equal(first, second) {
			t.Fatalf("renders differ:\n%q\n%q", first, second)
		}
	})
}

// Feature: contractdesk, Property 5: CSV quoting
func TestQuoteCSV(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := rapid.String().Draw(t, "cell")
		got := QuoteCSV(s)
		if !strings.ContainsAny(s, ",\"\r\n") {
			if got != s {
				t.Fatalf("plain cell changed: %q -> %q", s, got)
			}
			return
		}
		if len(got) < 2 || got[0] != '"' || got[len(got)-1] != '"' {
			t.Fatalf("special cell not wrapped: %q -> %q", s, got)
		}
		inner := got[1 : len(got)-1]
		if strings.Count(inner, `"`) != 2*strings.Count(s, `"`) {
			t.Fatalf("inner quotes not doubled: %q -> %q", s, got)
		}
		if strings.ReplaceAll(inner, `""`, `"`) != s {
			t.Fatalf("unquoting does not restore cell: %q -> %q", s, got)
		}
	})
}

func TestQuoteCSVLineBreaks(t *testing.T) {
	for in, want := range map[string]string{
		"a\rb":   "\"a\rb\"",
		"a\r\nb": "\"a\r\nb\"",
		"a\nb":   "\"a\nb\"",
		"plain":  "plain",
	} {
		if got := QuoteCSV(in); got != want {
			t.Errorf("QuoteCSV(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMarkdownRenderer(t *testing.T) {
	got, err := MarkdownRenderer{}.Render(sampleResult())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	out := string(got)
	for _, want := range []string{
		"## Summary",
		"## " + ClauseSection,
		"| Clause | Contract A | Contract B |",
		"| --- | --- | --- |",
		"| Notes | He said \"ok\" | line one line two |",
		"## " + ProductSection,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("markdown missing %q:\n%s", want, out)
		}
	}
}

func TestJSONRendererDropsRaw(t *testing.T) {
	res := sampleResult()
	res.Raw = []byte(`{"secret":"payload"}`)
	got, err := JSONRenderer{}.Render(res)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if strings.Contains(string(got), "secret") {
		t.Errorf("raw payload leaked into JSON export: %s", got)
	}
	if res.Raw == nil {
		t.Error("render must not mutate the result")
	}
}

func TestRendererFor(t *testing.T) {
	for format, ext := range map[string]string{"csv": "csv", "MD": "md", "markdown": "md", "json": "json"} {
		r, err := RendererFor(format)
		if err != nil {
			t.Fatalf("RendererFor(%q): %v", format, err)
		}
		if r.Extension() != ext {
			t.Errorf("RendererFor(%q).Extension() = %q, want %q", format, r.Extension(), ext)
		}
	}
	if _, err := RendererFor("pdf"); err == nil {
		t.Error("pdf is rendered by the backend, expected an error")
	}
}

func TestExportFileName(t *testing.T) {
	if got := ExportFileName("csv"); got != "contract-comparison.csv" {
		t.Errorf("ExportFileName(csv) = %q", got)
	}
	if got := ExportFileName("pdf"); got != "contract-comparison.pdf" {
		t.Errorf("ExportFileName(pdf) = %q", got)
	}
}
