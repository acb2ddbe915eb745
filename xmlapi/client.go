package xmlapi

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/arundel/herald/panos"
)

const DefaultTimeout = 30 * time.Second

type Options struct {
	// Host is the device hostname or host:port. A full URL ("http://…")
	// is also accepted, which is how the mock firewall is reached.
	Host string

	// APIKey authenticates every request. Obtain one with GenerateAPIKey.
	APIKey string

	// SkipVerify disables TLS certificate verification. Firewalls ship
	// with self-signed management certificates, so this is common in lab
	// setups.
	SkipVerify bool

	// Timeout bounds each request. Zero means DefaultTimeout.
	Timeout time.Duration

	Log *zap.Logger
}

// Client talks to the device's XML management API over HTTPS. It implements
// userid.Transport.
type Client struct {
	base   string
	apiKey string
	client *http.Client

	version *panos.Version

	log *zap.Logger
}

func NewClient(options Options) *Client {
	base := options.Host
	if !strings.Contains(base, "://") {
		base = "https://" + base
	}
	base = strings.TrimSuffix(base, "/") + "/api/"

	timeout := options.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	httpClient := &http.Client{Timeout: timeout}
	if options.SkipVerify {
		httpClient.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}

	log := options.Log
	if log == nil {
		log = zap.NewNop()
	}

	return &Client{
		base:   base,
		apiKey: options.APIKey,
		client: httpClient,
		log:    log.Named("xmlapi"),
	}
}

// GenerateAPIKey exchanges credentials for an API key and installs it on
// the client for subsequent requests.
func (c *Client) GenerateAPIKey(ctx context.Context, user, password string) (string, error) {
	form := url.Values{}
	form.Set("type", "keygen")
	form.Set("user", user)
	form.Set("password", password)

	body, err := c.do(ctx, form)
	if err != nil {
		return "", err
	}

	env, err := parseEnvelope(body)
	if err != nil {
		return "", err
	}

	if env.Key == "" {
		return "", fmt.Errorf("xmlapi: keygen response carried no key")
	}

	c.apiKey = env.Key
	return env.Key, nil
}

// Negotiate asks the device for its software version and remembers it for
// Version(). Callers that skip negotiation get nil from Version, which the
// userid package treats as "current".
func (c *Client) Negotiate(ctx context.Context) (*panos.Version, error) {
	body, err := c.op(ctx, "<show><system><info></info></system></show>", "")
	if err != nil {
		return nil, err
	}

	env, err := parseEnvelope(body)
	if err != nil {
		return nil, err
	}

	if env.SWVersion == "" {
		return nil, fmt.Errorf("xmlapi: system info response carried no sw-version")
	}

	version, err := panos.Parse(env.SWVersion)
	if err != nil {
		return nil, err
	}

	c.log.Debug("Negotiated device version", zap.String("version", version.String()))

	c.version = version
	return version, nil
}

// Version returns the negotiated device version, nil before Negotiate.
func (c *Client) Version() *panos.Version {
	return c.version
}

// SubmitUpdate sends a serialized uid-message through the user-id API.
func (c *Client) SubmitUpdate(ctx context.Context, doc []byte, vsys string) error {
	form := url.Values{}
	form.Set("type", "user-id")
	form.Set("key", c.apiKey)
	form.Set("cmd", string(doc))
	if vsys != "" {
		form.Set("vsys", vsys)
	}

	body, err := c.do(ctx, form)
	if err != nil {
		return err
	}

	_, err = parseEnvelope(body)
	return err
}

// RunQuery runs a quoted operational command, e.g.
// `show object registered-ip ip "10.0.0.1"`, and returns the raw response
// body for the caller to parse.
func (c *Client) RunQuery(ctx context.Context, cmd string, vsys string) ([]byte, error) {
	xmlCmd, err := CmdToXML(cmd)
	if err != nil {
		return nil, err
	}

	return c.op(ctx, xmlCmd, vsys)
}

func (c *Client) op(ctx context.Context, xmlCmd, vsys string) ([]byte, error) {
	form := url.Values{}
	form.Set("type", "op")
	form.Set("key", c.apiKey)
	form.Set("cmd", xmlCmd)
	if vsys != "" {
		form.Set("vsys", vsys)
	}

	body, err := c.do(ctx, form)
	if err != nil {
		return nil, err
	}

	if _, err := parseEnvelope(body); err != nil {
		return nil, err
	}

	return body, nil
}

// do POSTs one API request and returns the response body. Device-reported
// failures surface from parseEnvelope in the callers, not here; do only
// fails on transport-level problems.
func (c *Client) do(ctx context.Context, form url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, c.base, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	c.log.Debug("API request", zap.String("type", form.Get("type")))

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("xmlapi: device answered HTTP %d", resp.StatusCode)
	}

	return body, nil
}
