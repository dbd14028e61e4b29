package httpclient

import (
	"crypto/tls"
	"net/http"
	"net/url"
	"os"
	"strings"

	// Packages
	client "github.com/mutablelogic/go-client"
	transfer "github.com/mutablelogic/go-transfer"
)

///////////////////////////////////////////////////////////////////////////////
// TYPES

// Client is a transfer HTTP client that wraps the base HTTP client
// and provides typed methods for interacting with the transfer API. It is
// also a progress Channel and a remote Persister.
type Client struct {
	*client.Client
	endpoint *url.URL
	stream   *http.Client
}

var _ transfer.Channel = (*Client)(nil)
var _ transfer.Persister = (*Client)(nil)

///////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

// New creates a new transfer HTTP client with the given base URL and options.
// The url parameter should point to the transfer API endpoint, e.g.
// "http://localhost:8087/api".
func New(endpoint string, opts ...client.ClientOpt) (*Client, error) {
	c := new(Client)
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, err
	}
	cl, err := client.New(append(opts, client.OptEndpoint(endpoint))...)
	if err != nil {
		return nil, err
	}
	if isTruthyEnv("TRANSFER_HTTP1") {
		if tr, ok := cl.Client.Transport.(*http.Transport); ok && tr != nil {
			tr = tr.Clone()
			tr.ForceAttemptHTTP2 = false
			tr.TLSNextProto = map[string]func(string, *tls.Conn) http.RoundTripper{}
			cl.Client.Transport = tr
		} else {
			tr := http.DefaultTransport.(*http.Transport).Clone()
			tr.ForceAttemptHTTP2 = false
			tr.TLSNextProto = map[string]func(string, *tls.Conn) http.RoundTripper{}
			cl.Client.Transport = tr
		}
	}
	c.Client = cl
	c.endpoint = u

	// Progress streams share the transport but are never timed out; they end
	// with the terminal event or when the caller cancels
	c.stream = &http.Client{Transport: cl.Client.Transport}

	return c, nil
}

///////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

func isTruthyEnv(key string) bool {
	v := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	return v != "" && v != "0" && v != "false" && v != "no" && v != "off"
}

// url returns the absolute URL for path segments under the endpoint
func (c *Client) url(segments ...string) string {
	u := *c.endpoint
	u.Path = strings.TrimSuffix(u.Path, "/")
	for _, segment := range segments {
		u.Path += "/" + url.PathEscape(segment)
	}
	u.RawPath = ""
	return u.String()
}
