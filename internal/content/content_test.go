package content

import (
	"strings"
	"testing"
)

func TestSanitize(t *testing.T) {
	in := `hello <script>alert("x")</script>world`
	out := Sanitize(in)
	if strings.Contains(out, "<script>") {
		t.Errorf("script tag survived sanitization: %q", out)
	}
	if !strings.Contains(out, "hello") || !strings.Contains(out, "world") {
		t.Errorf("text content lost: %q", out)
	}
}

func TestRenderMarkdown(t *testing.T) {
	out, err := RenderMarkdown("hi **there**")
	if err != nil {
		t.Fatalf("RenderMarkdown failed: %v", err)
	}
	if !strings.Contains(out, "<strong>there</strong>") {
		t.Errorf("expected bold rendering, got %q", out)
	}

	out, err = RenderMarkdown(`[link](javascript:alert(1))`)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(out, "javascript:") {
		t.Errorf("unsafe link survived: %q", out)
	}
}
