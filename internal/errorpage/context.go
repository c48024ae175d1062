package errorpage

import (
	"net"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/odyssey-erp/sentinel/internal/authz"
	"github.com/odyssey-erp/sentinel/internal/platform/httpx"
)

// timestampLayout is ISO-8601 with milliseconds in UTC.
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// ExceptionInfo locates the failure that produced a payload.
type ExceptionInfo struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
}

// Context describes the request that failed.
type Context struct {
	URL             string            `json:"url"`
	Method          string            `json:"method"`
	Timestamp       string            `json:"timestamp"`
	UserAgent       string            `json:"userAgent,omitempty"`
	IP              string            `json:"ip,omitempty"`
	UserID          int64             `json:"userId,omitempty"`
	UserName        string            `json:"userName,omitempty"`
	UserEmail       string            `json:"userEmail,omitempty"`
	IsAuthenticated bool              `json:"isAuthenticated"`
	PreviousURL     string            `json:"previousUrl,omitempty"`
	CanGoBack       bool              `json:"canGoBack"`
	Headers         map[string]string `json:"headers,omitempty"`
	Exception       *ExceptionInfo    `json:"exception,omitempty"`
}

// BuildContext assembles the request context for err, which may be nil.
func (c Config) BuildContext(r *http.Request, err error, now time.Time) Context {
	ctx := Context{
		URL:       FullURL(r),
		Method:    r.Method,
		Timestamp: now.UTC().Format(timestampLayout),
		Headers:   c.filterHeaders(r.Header),
	}
	if c.Reporting.IncludeUserAgent {
		ctx.UserAgent = r.UserAgent()
	}
	if c.Reporting.IncludeIPAddress {
		ctx.IP = clientIP(r)
	}
	if p, ok := authz.PrincipalFromContext(r.Context()); ok {
		ctx.IsAuthenticated = true
		ctx.UserID = p.ID
		ctx.UserName = p.Name
		ctx.UserEmail = p.Email
	}
	if referer := r.Referer(); referer != "" && referer != ctx.URL {
		ctx.PreviousURL = referer
		ctx.CanGoBack = true
	}
	if err != nil {
		info := &ExceptionInfo{Type: errorType(err), Message: err.Error()}
		if file, line, ok := httpx.Location(err); ok {
			info.File, info.Line = file, line
		}
		ctx.Exception = info
	}
	return ctx
}

func (c Config) filterHeaders(header http.Header) map[string]string {
	if len(header) == 0 {
		return nil
	}
	deny := c.headerDenylist()
	out := make(map[string]string, len(header))
	for name, values := range header {
		lower := strings.ToLower(name)
		if _, blocked := deny[lower]; blocked {
			continue
		}
		out[lower] = strings.Join(values, ", ")
	}
	return out
}

// FullURL reconstructs the absolute request URL including the query.
func FullURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = strings.ToLower(strings.TrimSpace(strings.Split(proto, ",")[0]))
	}
	host := r.Host
	if host == "" {
		host = r.URL.Host
	}
	return scheme + "://" + host + r.URL.RequestURI()
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// HeaderNames lists the header names kept in ctx, sorted. Used by logging.
func (ctx Context) HeaderNames() []string {
	names := make([]string, 0, len(ctx.Headers))
	for name := range ctx.Headers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
