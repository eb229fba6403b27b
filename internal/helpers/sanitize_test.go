package helpers

import "testing"

func TestSanitizeHTMLStrict_RemovesTagsAndScripts(t *testing.T) {
	input := `<p>Hello <strong>world</strong><script>alert('x')</script></p>`
	got := SanitizeHTMLStrict(input)
	want := "Hello world"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestSanitizeHTMLStrict_EmptyInput(t *testing.T) {
	if got := SanitizeHTMLStrict("   "); got != "" {
		t.Fatalf("expected empty string, got %q", got)
	}
}

func TestExtractJSONObject(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{`prose before {"a": 1} prose after`, `{"a": 1}`},
		{"```json\n{\"a\": {\"b\": 2}}\n```", `{"a": {"b": 2}}`},
		{`{"s": "brace } in string"}`, `{"s": "brace } in string"}`},
		{`no json here`, ``},
		{`{"unterminated": `, ``},
	}
	for _, tc := range cases {
		if got := ExtractJSONObject(tc.in); got != tc.want {
			t.Fatalf("ExtractJSONObject(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
