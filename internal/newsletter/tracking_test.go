package newsletter

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestTracking() *TrackingService {
	return NewTrackingService("test-secret", "https://api.archway.test")
}

func TestSignVerify(t *testing.T) {
	ts := newTestTracking()
	key := NewTrackingKey()

	sig := ts.Sign(key)
	if len(sig) != 16 {
		t.Errorf("signature length = %d, want 16", len(sig))
	}
	if !ts.Verify(key, sig) {
		t.Error("valid signature rejected")
	}
	if ts.Verify(key, "0000000000000000") {
		t.Error("forged signature accepted")
	}
	if ts.Verify(NewTrackingKey(), sig) {
		t.Error("signature accepted for a different key")
	}
}

func TestPixelAndClickURLs(t *testing.T) {
	ts := newTestTracking()

	pixel := ts.PixelURL("abc123")
	if !strings.HasPrefix(pixel, "https://api.archway.test/api/v1/newsletter/track/open/abc123?s=") {
		t.Errorf("unexpected pixel URL: %s", pixel)
	}

	click := ts.ClickURL("abc123", "https://example.com/page?x=1&y=2")
	if !strings.Contains(click, "/track/click/abc123?") {
		t.Errorf("unexpected click URL: %s", click)
	}
	if !strings.Contains(click, "url=https%3A%2F%2Fexample.com%2Fpage%3Fx%3D1%26y%3D2") {
		t.Errorf("destination not query-escaped: %s", click)
	}
}

func TestInjectTrackingAppendsPixel(t *testing.T) {
	ts := newTestTracking()

	html := `<html><body><p>Hello</p></body></html>`
	out := ts.InjectTracking(html, "key1")
	if !strings.Contains(out, `/track/open/key1?`) {
		t.Error("pixel not injected")
	}
	if !strings.HasSuffix(out, "</body></html>") {
		t.Error("pixel should be injected before </body>")
	}

	// No body tag: pixel goes at the end.
	out = ts.InjectTracking("<p>Hello</p>", "key2")
	if !strings.Contains(out, "/track/open/key2?") {
		t.Error("pixel not appended without body tag")
	}
}

func TestInjectTrackingRewritesLinks(t *testing.T) {
	ts := newTestTracking()

	html := `<html><body>` +
		`<a href="https://archwayinnovations.com/projects">Projects</a>` +
		`<a href="http://example.com/offer">Offer</a>` +
		`<a href="https://api.archway.test/api/v1/newsletter/unsubscribe/key1?s=x">Unsubscribe</a>` +
		`</body></html>`
	out := ts.InjectTracking(html, "key1")

	if strings.Contains(out, `href="https://archwayinnovations.com/projects"`) {
		t.Error("first link not rewritten")
	}
	if strings.Contains(out, `href="http://example.com/offer"`) {
		t.Error("second link not rewritten")
	}
	if !strings.Contains(out, "url=https%3A%2F%2Farchwayinnovations.com%2Fprojects") {
		t.Error("original destination missing from rewritten link")
	}
	// Unsubscribe links must survive untouched or one click kills the list.
	if !strings.Contains(out, `href="https://api.archway.test/api/v1/newsletter/unsubscribe/key1?s=x"`) {
		t.Error("unsubscribe link was rewritten")
	}
}

func TestReplaceLinksIgnoresRelativeAndAnchors(t *testing.T) {
	ts := newTestTracking()

	html := `<a href="/local">x</a><a href="#top">y</a><a href="mailto:a@b.com">z</a>`
	if out := ts.replaceLinks(html, "k"); out != html {
		t.Errorf("non-http links were modified: %s", out)
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"x-forwarded-for single", map[string]string{"X-Forwarded-For": "203.0.113.5"}, "10.0.0.1:1234", "203.0.113.5"},
		{"x-forwarded-for chain", map[string]string{"X-Forwarded-For": "203.0.113.5, 10.0.0.2"}, "10.0.0.1:1234", "203.0.113.5"},
		{"x-real-ip", map[string]string{"X-Real-IP": "198.51.100.7"}, "10.0.0.1:1234", "198.51.100.7"},
		{"remote addr", nil, "192.0.2.9:5678", "192.0.2.9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			if got := ClientIP(r); got != tt.want {
				t.Errorf("ClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTransparentGIFHeader(t *testing.T) {
	if string(TransparentGIF[:6]) != "GIF89a" {
		t.Error("pixel is not a GIF89a image")
	}
}
