package logpoint

import (
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/ctagard/cdp-mcp/pkg/types"
)

// Payload is a decoded logpoint report.
type Payload struct {
	Message   string
	Values    map[string]interface{}
	Errors    map[string]string
	Timestamp time.Time
	Level     types.LogLevel
	Location  string
	// Structured is false when raw was not a JSON object and Message holds
	// the raw text.
	Structured bool
}

// ParsePayload decodes a report. Anything that is not a JSON object is
// kept as a plain-text message.
func ParsePayload(raw string) Payload {
	p := Payload{Message: raw, Level: types.LogLevelInfo}

	if !gjson.Valid(raw) {
		return p
	}
	doc := gjson.Parse(raw)
	if !doc.IsObject() {
		return p
	}

	p.Structured = true
	p.Message = doc.Get("message").String()
	if v, ok := doc.Get("values").Value().(map[string]interface{}); ok {
		p.Values = v
	}
	if errs := doc.Get("errors"); errs.IsObject() {
		errs.ForEach(func(k, v gjson.Result) bool {
			if p.Errors == nil {
				p.Errors = make(map[string]string)
			}
			p.Errors[k.String()] = v.String()
			return true
		})
	}
	if ts := doc.Get("timestamp"); ts.Exists() {
		p.Timestamp = time.UnixMilli(ts.Int())
	}
	if lvl := types.LogLevel(doc.Get("level").String()); lvl.Valid() {
		p.Level = lvl
	}
	p.Location = doc.Get("location").String()
	return p
}

// StripMarker reports whether text is a console fallback report and
// returns the payload part.
func StripMarker(text string) (string, bool) {
	if !strings.HasPrefix(text, MarkerPrefix) {
		return "", false
	}
	return strings.TrimPrefix(text, MarkerPrefix), true
}
