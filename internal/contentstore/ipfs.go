package contentstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	ma "github.com/multiformats/go-multiaddr"

	"ipfs-social/go-backend/pkg/models"
)

const (
	DefaultAPIEndpoint = "/ip4/127.0.0.1/tcp/5001"
	DefaultMaxPostSize = 1 << 20
)

var ErrTooLarge = errors.New("stored content exceeds size limit")

// IPFSGateway talks to the RPC API of a Kubo node.
type IPFSGateway struct {
	baseURL string
	client  *http.Client
	maxSize int64
}

type IPFSOptions struct {
	// Endpoint is a multiaddr such as /ip4/127.0.0.1/tcp/5001 or an http(s) URL.
	Endpoint string
	Timeout  time.Duration
	MaxSize  int64
	Client   *http.Client
}

func NewIPFSGateway(opts IPFSOptions) (*IPFSGateway, error) {
	endpoint := strings.TrimSpace(opts.Endpoint)
	if endpoint == "" {
		endpoint = DefaultAPIEndpoint
	}
	base, err := APIURL(endpoint)
	if err != nil {
		return nil, err
	}
	client := opts.Client
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	maxSize := opts.MaxSize
	if maxSize <= 0 {
		maxSize = DefaultMaxPostSize
	}
	return &IPFSGateway{baseURL: base, client: client, maxSize: maxSize}, nil
}

// APIURL turns a Kubo API address into the base URL of its RPC endpoints.
func APIURL(endpoint string) (string, error) {
	endpoint = strings.TrimSpace(endpoint)
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		u, err := url.Parse(endpoint)
		if err != nil || u.Host == "" {
			return "", fmt.Errorf("invalid api url %q", endpoint)
		}
		return strings.TrimRight(u.String(), "/"), nil
	}
	addr, err := ma.NewMultiaddr(endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid api multiaddr %q: %w", endpoint, err)
	}
	var host string
	for _, code := range []int{ma.P_IP4, ma.P_IP6, ma.P_DNS, ma.P_DNS4, ma.P_DNS6} {
		if v, err := addr.ValueForProtocol(code); err == nil {
			host = v
			break
		}
	}
	if host == "" {
		return "", fmt.Errorf("api multiaddr %q has no host", endpoint)
	}
	port, err := addr.ValueForProtocol(ma.P_TCP)
	if err != nil {
		return "", fmt.Errorf("api multiaddr %q has no tcp port", endpoint)
	}
	scheme := "http"
	if _, err := addr.ValueForProtocol(ma.P_HTTPS); err == nil {
		scheme = "https"
	}
	return scheme + "://" + net.JoinHostPort(host, port), nil
}

type addResponse struct {
	Name string `json:"Name"`
	Hash string `json:"Hash"`
}

type apiError struct {
	Message string `json:"Message"`
	Code    int    `json:"Code"`
	Type    string `json:"Type"`
}

func (g *IPFSGateway) Put(ctx context.Context, data []byte) (models.Address, error) {
	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("file", "post.json")
	if err != nil {
		return "", err
	}
	if _, err := part.Write(data); err != nil {
		return "", err
	}
	if err := form.Close(); err != nil {
		return "", err
	}

	query := url.Values{}
	query.Set("cid-version", "1")
	query.Set("raw-leaves", "true")
	query.Set("pin", "true")
	resp, err := g.call(ctx, "add", query, &body, form.FormDataContentType())
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out addResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: decode add response: %v", ErrStoreUnavailable, err)
	}
	c, err := parseAddress(models.Address(out.Hash))
	if err != nil {
		return "", fmt.Errorf("%w: add returned %q", ErrStoreUnavailable, out.Hash)
	}
	return models.Address(c.String()), nil
}

func (g *IPFSGateway) Get(ctx context.Context, addr models.Address) ([]byte, error) {
	c, err := parseAddress(addr)
	if err != nil {
		return nil, err
	}
	query := url.Values{}
	query.Set("arg", c.String())
	resp, err := g.call(ctx, "cat", query, nil, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, g.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrStoreUnavailable, c, err)
	}
	if int64(len(data)) > g.maxSize {
		return nil, fmt.Errorf("%w: %s", ErrTooLarge, c)
	}
	if err := checkIntegrity(c, data); err != nil {
		return nil, err
	}
	return data, nil
}

func (g *IPFSGateway) call(ctx context.Context, command string, query url.Values, body io.Reader, contentType string) (*http.Response, error) {
	endpoint := g.baseURL + "/api/v0/" + command
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := g.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, command, err)
	}
	if resp.StatusCode == http.StatusOK {
		return resp, nil
	}
	defer resp.Body.Close()

	var apiErr apiError
	_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&apiErr)
	if isNotFoundMessage(apiErr.Message) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, apiErr.Message)
	}
	return nil, fmt.Errorf("%w: %s: status %d: %s", ErrStoreUnavailable, command, resp.StatusCode, apiErr.Message)
}

func isNotFoundMessage(msg string) bool {
	msg = strings.ToLower(msg)
	for _, marker := range []string{"not found", "no link named", "invalid cid", "invalid path"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
