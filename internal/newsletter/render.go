package newsletter

import (
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/osteele/liquid"

	"github.com/Ibrahimamir22/archway/internal/i18n"
)

// Renderer personalizes template content with Liquid. Parsed templates
// are cached by content string since campaign sends render the same
// template once per recipient.
type Renderer struct {
	engine *liquid.Engine
	cache  sync.Map // map[string]*liquid.Template
}

// NewRenderer creates a renderer with the filters template authors rely on.
func NewRenderer() *Renderer {
	engine := liquid.NewEngine()

	// {{ first_name | default: "there" }}
	engine.RegisterFilter("default", func(value interface{}, defaultVal string) interface{} {
		if value == nil {
			return defaultVal
		}
		if s := fmt.Sprintf("%v", value); s == "" || s == "<nil>" {
			return defaultVal
		}
		return value
	})
	// {{ name | upper }}
	engine.RegisterFilter("upper", strings.ToUpper)
	// {{ email | urlencode }}
	engine.RegisterFilter("urlencode", url.QueryEscape)

	return &Renderer{engine: engine}
}

// RenderedEmail is the personalized output for one recipient.
type RenderedEmail struct {
	Subject  string
	HTMLBody string
	TextBody string
}

// Render resolves the template's bilingual fields against the
// subscriber's language preference and substitutes personalization
// variables.
func (r *Renderer) Render(tpl *Template, sub *Subscriber, unsubscribeURL string) (*RenderedEmail, error) {
	lang := i18n.NormalizeLang(sub.LanguagePreference)
	bindings := map[string]interface{}{
		"email":           sub.Email,
		"first_name":      sub.FirstName,
		"last_name":       sub.LastName,
		"name":            sub.FullName(),
		"unsubscribe_url": unsubscribeURL,
	}

	subject, err := r.RenderString(tpl.Subject.Resolve(lang), bindings)
	if err != nil {
		return nil, fmt.Errorf("rendering subject: %w", err)
	}
	htmlBody, err := r.RenderString(tpl.BodyHTML.Resolve(lang), bindings)
	if err != nil {
		return nil, fmt.Errorf("rendering html body: %w", err)
	}
	textBody, err := r.RenderString(tpl.BodyText.Resolve(lang), bindings)
	if err != nil {
		return nil, fmt.Errorf("rendering text body: %w", err)
	}

	return &RenderedEmail{Subject: subject, HTMLBody: htmlBody, TextBody: textBody}, nil
}

// RenderString renders one Liquid source with the given bindings.
func (r *Renderer) RenderString(source string, bindings map[string]interface{}) (string, error) {
	if source == "" {
		return "", nil
	}
	var tpl *liquid.Template
	if cached, ok := r.cache.Load(source); ok {
		tpl = cached.(*liquid.Template)
	} else {
		parsed, err := r.engine.ParseString(source)
		if err != nil {
			return "", err
		}
		r.cache.Store(source, parsed)
		tpl = parsed
	}
	out, err := tpl.Render(bindings)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
