package gateway

import (
	"strings"
	"testing"
)

func TestApplyFilterExtractsField(t *testing.T) {
	data := `{"result":{"sessions":[{"id":"a"},{"id":"b"}]}}`
	out, err := ApplyFilter(".result.sessions[].id", data, true, false)
	if err != nil {
		t.Fatalf("ApplyFilter: %v", err)
	}
	if out != "a\nb" {
		t.Errorf("out = %q", out)
	}
}

func TestApplyFilterRawVsEncoded(t *testing.T) {
	data := `{"name":"claw"}`

	raw, err := ApplyFilter(".name", data, true, false)
	if err != nil {
		t.Fatal(err)
	}
	if raw != "claw" {
		t.Errorf("raw = %q", raw)
	}

	encoded, err := ApplyFilter(".name", data, false, true)
	if err != nil {
		t.Fatal(err)
	}
	if encoded != `"claw"` {
		t.Errorf("encoded = %q", encoded)
	}
}

func TestApplyFilterCompactVsPretty(t *testing.T) {
	data := `{"a":{"b":1}}`

	compact, err := ApplyFilter(".a", data, false, true)
	if err != nil {
		t.Fatal(err)
	}
	if compact != `{"b":1}` {
		t.Errorf("compact = %q", compact)
	}

	pretty, err := ApplyFilter(".a", data, false, false)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(pretty, "\n") {
		t.Errorf("pretty output not indented: %q", pretty)
	}
}

func TestApplyFilterNullResult(t *testing.T) {
	out, err := ApplyFilter(".missing", `{"a":1}`, true, false)
	if err != nil {
		t.Fatal(err)
	}
	if out != "null" {
		t.Errorf("out = %q", out)
	}
}

func TestApplyFilterBadQuery(t *testing.T) {
	if _, err := ApplyFilter(".[broken", `{}`, false, false); err == nil {
		t.Error("expected error for invalid query")
	}
}

func TestApplyFilterBadData(t *testing.T) {
	if _, err := ApplyFilter(".", "not json", false, false); err == nil {
		t.Error("expected error for non-JSON data")
	}
}
