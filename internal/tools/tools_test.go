package tools

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestExecuteUnknownTool(t *testing.T) {
	r := NewRegistry()

	_, err := r.Execute(context.Background(), "teleport", "{}")
	if err == nil {
		t.Fatal("expected error for unknown tool")
	}

	var unavail *ErrToolUnavailable
	if !errors.As(err, &unavail) {
		t.Fatalf("error type = %T, want *ErrToolUnavailable", err)
	}
	if unavail.ToolName != "teleport" {
		t.Errorf("ToolName = %q, want teleport", unavail.ToolName)
	}
	if err.Error() != "Tool 'teleport' not found" {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestExecuteDecodesArgs(t *testing.T) {
	r := NewRegistry()
	r.Register(&Tool{
		Name: "echo",
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			v, _ := args["text"].(string)
			return v, nil
		},
	})

	out, err := r.Execute(context.Background(), "echo", `{"text": "hello"}`)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out != "hello" {
		t.Errorf("out = %q, want hello", out)
	}

	if _, err := r.Execute(context.Background(), "echo", `{bad json`); err == nil {
		t.Error("expected error for malformed argument JSON")
	}
}

func TestNamesSorted(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		r.Register(&Tool{Name: name, Handler: func(ctx context.Context, args map[string]any) (string, error) { return "", nil }})
	}

	names := r.Names()
	want := []string{"alpha", "mid", "zeta"}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("Names() = %v, want %v", names, want)
		}
	}
}

func TestDescribeListsTools(t *testing.T) {
	r := NewRegistry()
	RegisterBuiltins(r, nil, nil, nil)

	desc := r.Describe()
	if !strings.Contains(desc, "get_current_datetime") {
		t.Errorf("Describe() missing datetime tool:\n%s", desc)
	}
	if strings.Contains(desc, "web_search") {
		t.Errorf("web_search registered without a search manager:\n%s", desc)
	}
}

func TestDatetimeTool(t *testing.T) {
	r := NewRegistry()
	RegisterBuiltins(r, nil, nil, nil)

	out, err := r.Execute(context.Background(), "get_current_datetime", "")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(out, "Current date and time:") {
		t.Errorf("out = %q", out)
	}
}

func TestExtractCity(t *testing.T) {
	tests := []struct {
		query string
		want  string
	}{
		{"what is the weather in Mumbai", "Mumbai"},
		{"weather in mumbai today?", "Mumbai Today"},
		{"forecast for pune", "Pune"},
		{"temperature at Delhi?", "Delhi"},
		{"is it raining in New Delhi", "New Delhi"},
		{"hyderabad weather", "Hyderabad"},
		{"weather update", ""},
		{"", ""},
	}

	for _, tt := range tests {
		if got := ExtractCity(tt.query); got != tt.want {
			t.Errorf("ExtractCity(%q) = %q, want %q", tt.query, got, tt.want)
		}
	}
}

func TestWeatherGet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "Mumbai") {
			t.Errorf("path = %q, want city in path", r.URL.Path)
		}
		w.Write([]byte("Sunny +31°C\n"))
	}))
	defer srv.Close()

	weather := NewWeatherWithURL(srv.URL)
	got, err := weather.Get(context.Background(), "Mumbai")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != "Sunny +31°C" {
		t.Errorf("got %q", got)
	}

	formatted, err := weather.Formatted(context.Background(), "Mumbai")
	if err != nil {
		t.Fatalf("Formatted: %v", err)
	}
	if formatted != "**Weather in Mumbai:** Sunny +31°C" {
		t.Errorf("formatted = %q", formatted)
	}
}

func TestWeatherErrors(t *testing.T) {
	weather := NewWeather()
	if _, err := weather.Get(context.Background(), ""); err == nil {
		t.Error("expected error for empty city")
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unknown location", http.StatusNotFound)
	}))
	defer srv.Close()

	weather = NewWeatherWithURL(srv.URL)
	if _, err := weather.Get(context.Background(), "Atlantis"); err == nil {
		t.Error("expected error on HTTP 404")
	}
}
