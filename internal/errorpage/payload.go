package errorpage

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/odyssey-erp/sentinel/internal/platform/httpx"
)

const (
	maxDebugFrames  = 5
	fallbackMessage = "An unexpected error occurred."
)

// Debug exposes failure internals when debug info is enabled.
type Debug struct {
	Exception string        `json:"exception"`
	Message   string        `json:"message"`
	File      string        `json:"file"`
	Line      int           `json:"line"`
	Trace     []httpx.Frame `json:"trace"`
}

// Payload is the error contract consumed by the client.
type Payload struct {
	Status      int         `json:"status"`
	Message     string      `json:"message"`
	ErrorID     string      `json:"errorId"`
	Timestamp   string      `json:"timestamp"`
	CanRetry    bool        `json:"canRetry"`
	SupportInfo SupportInfo `json:"supportInfo"`
	Context     Context     `json:"context"`
	Debug       *Debug      `json:"debug"`
}

// BuildPayload assembles the payload for err raised by r. The debug block
// and the exception part of the context only leave the server for
// unexpected failures while debug info is enabled.
func (c Config) BuildPayload(r *http.Request, err error, cls Classification, now time.Time) Payload {
	return c.buildPayload(r, err, cls, c.BuildContext(r, err, now), now)
}

func (c Config) buildPayload(r *http.Request, err error, cls Classification, ctx Context, now time.Time) Payload {
	payload := Payload{
		Status:      cls.Status,
		Message:     c.message(cls.Status, err),
		ErrorID:     newErrorID(now),
		Timestamp:   now.UTC().Format(timestampLayout),
		CanRetry:    c.CanRetry(retryMethod(r, err, cls.Status)),
		SupportInfo: c.Support,
		Context:     ctx,
	}
	if c.Features.ShowDebugInfo && !cls.Expected && err != nil {
		payload.Debug = debugInfo(ctx.Exception, err)
	} else {
		payload.Context.Exception = nil
	}
	return payload
}

func (c Config) message(status int, err error) string {
	if msg, ok := c.Messages[status]; ok && msg != "" {
		return msg
	}
	if c.Features.ShowDebugInfo && err != nil {
		return err.Error()
	}
	return fallbackMessage
}

func debugInfo(info *ExceptionInfo, err error) *Debug {
	d := &Debug{Exception: info.Type, Message: info.Message, File: info.File, Line: info.Line, Trace: []httpx.Frame{}}
	stack := httpx.StackOf(err)
	if len(stack) > maxDebugFrames {
		stack = stack[:maxDebugFrames]
	}
	d.Trace = append(d.Trace, stack...)
	return d
}

// Page is an Inertia page object.
type Page struct {
	Component string  `json:"component"`
	Props     Payload `json:"props"`
	URL       string  `json:"url"`
}

// PageJSON encodes the page for embedding in HTML.
func (p Page) PageJSON() string {
	data, err := json.Marshal(p)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// CanGoBack reports whether a previous page is known.
func (p Page) CanGoBack() bool { return p.Props.Context.CanGoBack }

// PreviousURL returns the referring page.
func (p Page) PreviousURL() string { return p.Props.Context.PreviousURL }
