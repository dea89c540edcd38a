package chain

import (
	"net/url"
	"strings"
)

// DefaultWSEndpoint turns a node base URL into its event stream URL.
func DefaultWSEndpoint(base string) string {
	u, err := url.Parse(strings.TrimSpace(base))
	if err != nil || u.Host == "" {
		return ""
	}
	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	case "http", "ws":
		u.Scheme = "ws"
	default:
		return ""
	}
	path := strings.TrimRight(u.Path, "/")
	if !strings.HasSuffix(path, "/websocket") {
		path += "/websocket"
	}
	u.Path = path
	return u.String()
}
