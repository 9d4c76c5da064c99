package middleware

import (
	"net/http"
	"net/netip"
	"strings"

	"github.com/mssola/useragent"

	"attestor/pkg/requestcontext"
)

// ClientMetadata records the caller's network prefix and a short client
// description on the request context. Raw addresses and full User-Agent
// strings are never stored.
func ClientMetadata(resolver *ClientIPResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := requestcontext.WithClient(r.Context(),
				AnonymizeIP(resolver.ClientIP(r)),
				SummarizeUserAgent(r.Header.Get("User-Agent")),
			)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AnonymizeIP truncates IPv4 to /24 and IPv6 to /48. Unparseable input
// yields "".
func AnonymizeIP(raw string) string {
	addr, err := netip.ParseAddr(raw)
	if err != nil {
		return ""
	}
	addr = addr.Unmap()
	bits := 48
	if addr.Is4() {
		bits = 24
	}
	prefix, err := addr.Prefix(bits)
	if err != nil {
		return ""
	}
	return prefix.String()
}

// SummarizeUserAgent reduces a User-Agent header to "Browser Version (OS)".
func SummarizeUserAgent(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}
	ua := useragent.New(raw)
	if ua.Bot() {
		name, _ := ua.Browser()
		return "bot: " + name
	}
	name, version := ua.Browser()
	summary := strings.TrimSpace(name + " " + version)
	if os := ua.OS(); os != "" {
		summary += " (" + os + ")"
	}
	return summary
}
