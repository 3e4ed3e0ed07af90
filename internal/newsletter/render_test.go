package newsletter

import (
	"strings"
	"testing"

	"github.com/Ibrahimamir22/archway/internal/i18n"
)

func testTemplate() *Template {
	return &Template{
		Type: TemplateRegular,
		Subject: i18n.LocalizedText{
			EN: "Hello {{ first_name | default: \"there\" }}",
			AR: "مرحبا {{ first_name }}",
		},
		BodyHTML: i18n.LocalizedText{
			EN: `<html><body><p>Dear {{ name }}, see our new projects.</p><a href="{{ unsubscribe_url }}">Unsubscribe</a></body></html>`,
		},
		BodyText: i18n.LocalizedText{
			EN: "Dear {{ name }}, see our new projects. Unsubscribe: {{ unsubscribe_url }}",
		},
	}
}

func TestRenderEnglish(t *testing.T) {
	r := NewRenderer()
	sub := &Subscriber{Email: "amr@example.com", FirstName: "Amr", LastName: "Hassan", LanguagePreference: "en"}

	out, err := r.Render(testTemplate(), sub, "https://example.com/u/abc")
	if err != nil {
		t.Fatalf("Render() error: %v", err)
	}
	if out.Subject != "Hello Amr" {
		t.Errorf("subject = %q", out.Subject)
	}
	if !strings.Contains(out.HTMLBody, "Dear Amr Hassan") {
		t.Errorf("html body not personalized: %s", out.HTMLBody)
	}
	if !strings.Contains(out.HTMLBody, "https://example.com/u/abc") {
		t.Error("unsubscribe URL not substituted")
	}
}

func TestRenderArabicWithFallback(t *testing.T) {
	r := NewRenderer()
	sub := &Subscriber{Email: "laila@example.com", FirstName: "ليلى", LanguagePreference: "ar"}

	out, err := r.Render(testTemplate(), sub, "")
	if err != nil {
		t.Fatalf("Render() error: %v", err)
	}
	// Subject has an Arabic variant, the body does not: the body falls
	// back to English while the subject stays Arabic.
	if !strings.HasPrefix(out.Subject, "مرحبا") {
		t.Errorf("subject = %q, want Arabic variant", out.Subject)
	}
	if !strings.Contains(out.HTMLBody, "Dear") {
		t.Errorf("body should fall back to English: %s", out.HTMLBody)
	}
}

func TestRenderDefaultFilter(t *testing.T) {
	r := NewRenderer()
	sub := &Subscriber{Email: "anon@example.com", LanguagePreference: "en"}

	out, err := r.Render(testTemplate(), sub, "")
	if err != nil {
		t.Fatalf("Render() error: %v", err)
	}
	if out.Subject != "Hello there" {
		t.Errorf("subject = %q, want default fallback", out.Subject)
	}
}

func TestRenderStringCachesParsedTemplates(t *testing.T) {
	r := NewRenderer()

	src := "Value: {{ x }}"
	first, err := r.RenderString(src, map[string]interface{}{"x": 1})
	if err != nil {
		t.Fatalf("first render: %v", err)
	}
	second, err := r.RenderString(src, map[string]interface{}{"x": 2})
	if err != nil {
		t.Fatalf("second render: %v", err)
	}
	if first != "Value: 1" || second != "Value: 2" {
		t.Errorf("renders = %q, %q", first, second)
	}
	if _, ok := r.cache.Load(src); !ok {
		t.Error("parsed template not cached")
	}
}

func TestRenderStringBadTemplate(t *testing.T) {
	r := NewRenderer()
	if _, err := r.RenderString("{% endfor %}", nil); err == nil {
		t.Error("invalid template should error")
	}
}

func TestRenderEmptySourceIsEmpty(t *testing.T) {
	r := NewRenderer()
	out, err := r.RenderString("", map[string]interface{}{"x": 1})
	if err != nil || out != "" {
		t.Errorf("empty source: out=%q err=%v", out, err)
	}
}
