package compare

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// wireResult lists every field a compareContracts response has been seen to
// carry. Tables are decoded lazily because they arrive either as row-object
// arrays or as markdown strings.
type wireResult struct {
	Table1             json.RawMessage `json:"table1"`
	Table2             json.RawMessage `json:"table2"`
	ComparisonMarkdown string          `json:"comparison_markdown"`
	SummaryPart        string          `json:"summary_part"`
	Summary            string          `json:"summary"`
	Differences        json.RawMessage `json:"differences"`
	Comparisons        json.RawMessage `json:"comparisons"`
	Rows               json.RawMessage `json:"rows"`
	Statistics         *Statistics     `json:"statistics"`
}

// Normalize converts a raw compareContracts response into a Result. It is the
// only place that knows about the backend's alternative response shapes.
// Returns ErrNoResult when the payload holds neither tables nor a summary.
func Normalize(raw []byte) (*Result, error) {
	var w wireResult
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("decode comparison result: %w", err)
	}

	res := &Result{
		Summary:    w.SummaryPart,
		Statistics: w.Statistics,
		Raw:        append(json.RawMessage(nil), raw...),
	}
	if res.Summary == "" {
		res.Summary = w.Summary
	}

	t1, t2 := jsonKind(w.Table1), jsonKind(w.Table2)
	switch {
	case t1 == '[' || t2 == '[':
		for _, t := range []struct {
			data  json.RawMessage
			kind  byte
			title string
		}{{w.Table1, t1, ClauseSection}, {w.Table2, t2, ProductSection}} {
			if t.kind != '[' {
				continue
			}
			sec, err := decodeRowObjects(t.data, t.title)
			if err != nil {
				return nil, err
			}
			if len(sec.Rows) > 0 {
				res.Sections = append(res.Sections, sec)
			}
		}
	case t1 == '"' || t2 == '"':
		for _, t := range []struct {
			data  json.RawMessage
			kind  byte
			title string
		}{{w.Table1, t1, ClauseSection}, {w.Table2, t2, ProductSection}} {
			if t.kind != '"' {
				continue
			}
			var md string
			if err := json.Unmarshal(t.data, &md); err != nil {
				return nil, fmt.Errorf("decode %s: %w", t.title, err)
			}
			if strings.TrimSpace(md) == "" {
				continue
			}
			res.Sections = append(res.Sections, parseMarkdownTable(md, t.title))
		}
	case w.ComparisonMarkdown != "":
		res.Sections = splitLegacyMarkdown(w.ComparisonMarkdown)
	default:
		for _, data := range []json.RawMessage{w.Differences, w.Comparisons, w.Rows} {
			if jsonKind(data) != '[' {
				continue
			}
			sec, err := decodeLegacyRows(data)
			if err != nil {
				return nil, err
			}
			if len(sec.Rows) > 0 {
				res.Sections = append(res.Sections, sec)
			}
			break
		}
	}

	if res.Empty() {
		return nil, ErrNoResult
	}
	return res, nil
}

// jsonKind returns the first significant byte of data, or 0 for absent/null.
func jsonKind(data json.RawMessage) byte {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return 0
	}
	return data[0]
}

// decodeRowObjects reads an array of flat objects. Headers come from the
// first object's keys in document order with underscores shown as spaces.
func decodeRowObjects(data json.RawMessage, title string) (Section, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return Section{}, fmt.Errorf("decode %s: %w", title, err)
	}
	sec := Section{Title: title}
	var keys []string
	for i, item := range items {
		k, vals, err := orderedFields(item)
		if err != nil {
			return Section{}, fmt.Errorf("decode %s row %d: %w", title, i, err)
		}
		if i == 0 {
			keys = k
			for _, key := range keys {
				sec.Headers = append(sec.Headers, strings.ReplaceAll(key, "_", " "))
			}
		}
		row := make([]string, len(keys))
		for j, key := range keys {
			row[j] = vals[key]
		}
		sec.Rows = append(sec.Rows, row)
	}
	return sec, nil
}

// orderedFields decodes one JSON object keeping its key order.
func orderedFields(obj json.RawMessage) ([]string, map[string]string, error) {
	dec := json.NewDecoder(bytes.NewReader(obj))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return nil, nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, nil, fmt.Errorf("expected object, got %v", tok)
	}
	var keys []string
	vals := make(map[string]string)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, nil, fmt.Errorf("expected key, got %v", tok)
		}
		var v any
		if err := dec.Decode(&v); err != nil {
			return nil, nil, err
		}
		if _, seen := vals[key]; !seen {
			keys = append(keys, key)
		}
		vals[key] = cellText(v)
	}
	return keys, vals, nil
}

func cellText(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	}
}

// Headers of the legacy differences/comparisons/rows shape.
var legacyHeaders = []string{"Clause/Field", "Contract A", "Contract B", "Status"}

// decodeLegacyRows maps the oldest response shape, whose rows named the same
// column several ways, onto the canonical four columns.
func decodeLegacyRows(data json.RawMessage) (Section, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var items []map[string]any
	if err := dec.Decode(&items); err != nil {
		return Section{}, fmt.Errorf("decode comparison rows: %w", err)
	}
	sec := Section{Title: ClauseSection, Headers: legacyHeaders}
	for _, item := range items {
		sec.Rows = append(sec.Rows, []string{
			firstOf(item, "N/A", "clause", "field", "name"),
			firstOf(item, "-", "contractA", "valueA", "value_a"),
			firstOf(item, "-", "contractB", "valueB", "value_b"),
			firstOf(item, "Unknown", "status", "match", "difference"),
		})
	}
	return sec, nil
}

// firstOf returns the first non-empty value among keys, else def.
func firstOf(item map[string]any, def string, keys ...string) string {
	for _, k := range keys {
		if s := cellText(item[k]); s != "" {
			return s
		}
	}
	return def
}
