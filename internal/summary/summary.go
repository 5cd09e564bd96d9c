// Package summary cleans up model-written assessment summaries before they are stored,
// streamed or mailed.
package summary

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"

	"github.com/jonathan/pain-assessment/internal/llm"
	"github.com/jonathan/pain-assessment/internal/types"
)

// hiddenElements hold no visible text.
const hiddenElements = "script, style, iframe, object, embed, link, meta, form, noscript"

var markdown = goldmark.New()

// policy allows user-generated markup only: http(s) and mailto links, no scripts, no
// event handlers, no styles.
var policy = newPolicy()

func newPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowElements("section", "header", "footer")
	p.AllowAttrs("class").Globally()
	return p
}

// Process turns raw model output into safe HTML. Code fences are stripped, Markdown is
// rendered, and the result is sanitized.
func Process(raw string) (string, error) {
	text := llm.StripCodeFence(raw)
	if text == "" {
		return "", nil
	}
	if !LooksLikeHTML(text) {
		rendered, err := ToHTML(text)
		if err != nil {
			return "", err
		}
		text = rendered
	}
	return Sanitize(text), nil
}

// LooksLikeHTML reports whether text starts with a tag and closes at least one.
func LooksLikeHTML(text string) bool {
	text = strings.TrimSpace(text)
	return strings.HasPrefix(text, "<") && strings.Contains(text, "</")
}

// ToHTML renders Markdown. Raw HTML inside the Markdown is dropped by the renderer.
func ToHTML(md string) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(md), &buf); err != nil {
		return "", fmt.Errorf("failed to render markdown: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// Sanitize reduces an HTML fragment to the allowed elements and attributes. Links with
// any scheme other than http, https or mailto lose their href.
func Sanitize(fragment string) string {
	return strings.TrimSpace(policy.Sanitize(fragment))
}

// PlainText returns the visible text of an HTML fragment with whitespace collapsed.
func PlainText(fragment string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return strings.TrimSpace(fragment)
	}
	doc.Find(hiddenElements).Remove()
	return strings.Join(strings.Fields(doc.Find("body").Text()), " ")
}

// DetectUrgency finds the urgency marker the model was asked to emit. HIGH wins over
// MODERATE, MODERATE over LOW. ok is false when no marker is present.
func DetectUrgency(text string) (types.Urgency, bool) {
	upper := strings.ToUpper(text)
	for _, u := range []types.Urgency{types.UrgencyHigh, types.UrgencyModerate, types.UrgencyLow} {
		if strings.Contains(upper, string(u)) {
			return u, true
		}
	}
	return "", false
}
