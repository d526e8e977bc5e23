// Package netbox implements the client for the mirror inventory API.
//
// The sync only needs five collections (virtual machines, interfaces, IP
// addresses, platforms, clusters), each with list, create, partial update
// and delete, so the client is hand-rolled on net/http with typed payloads
// rather than a generated SDK.
package netbox

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// Config holds configuration for the mirror inventory API.
type Config struct {
	// URL is the base URL, e.g. https://netbox.example.com.
	URL string `mapstructure:"url" default:""`
	// Token is the API token sent on every request.
	Token string `mapstructure:"token" default:""`
	// InsecureSkipVerify disables TLS certificate verification.
	InsecureSkipVerify bool `mapstructure:"insecure_skip_verify" default:"false"`
}

// APIError is returned for any non-2xx response. It is entity-scoped: the
// caller logs it and moves on to the next entity.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("netbox: %s %s returned %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// Client is a token-authenticated HTTP client for the mirror inventory.
type Client struct {
	baseURL string
	token   string
	hc      *http.Client
}

// NewClient creates a client for the given endpoint. The token can be
// overridden per invocation on the CLI and is fixed for the client lifetime.
func NewClient(cfg Config) *Client {
	//nolint:gosec // Skipping verification is an explicit operator choice for lab instances.
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.InsecureSkipVerify,
		},
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		token:   cfg.Token,
		hc:      &http.Client{Transport: transport},
	}
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, payload, out any) error {
	u := c.baseURL + "/api/" + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var body io.Reader = http.NoBody
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("netbox: encode %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return err
	}

	req.Header.Set("Authorization", "Token "+c.token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("netbox: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(data)),
		}
	}

	if out == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("netbox: decode %s %s: %w", method, path, err)
	}

	return nil
}

// list fetches a collection. List calls return the complete result set; the
// instance is expected to be configured without enforced pagination.
func list[T any](ctx context.Context, c *Client, path string, query url.Values) ([]T, error) {
	var env envelope[T]
	if err := c.do(ctx, http.MethodGet, path, query, nil, &env); err != nil {
		return nil, err
	}
	return env.Results, nil
}

// ListVirtualMachines returns all virtual machine records.
func (c *Client) ListVirtualMachines(ctx context.Context) ([]VirtualMachine, error) {
	return list[VirtualMachine](ctx, c, "virtualization/virtual-machines/", nil)
}

// CreateVirtualMachine creates a virtual machine record.
func (c *Client) CreateVirtualMachine(ctx context.Context, req VirtualMachineRequest) (*VirtualMachine, error) {
	var vm VirtualMachine
	if err := c.do(ctx, http.MethodPost, "virtualization/virtual-machines/", nil, req, &vm); err != nil {
		return nil, err
	}
	return &vm, nil
}

// UpdateVirtualMachine patches only the fields set on the patch.
func (c *Client) UpdateVirtualMachine(ctx context.Context, id int, patch VirtualMachinePatch) (*VirtualMachine, error) {
	var vm VirtualMachine
	path := fmt.Sprintf("virtualization/virtual-machines/%d/", id)
	if err := c.do(ctx, http.MethodPatch, path, nil, patch, &vm); err != nil {
		return nil, err
	}
	return &vm, nil
}

// DeleteVirtualMachine deletes a virtual machine record. The server cascades
// the deletion to the machine's interfaces.
func (c *Client) DeleteVirtualMachine(ctx context.Context, id int) error {
	path := fmt.Sprintf("virtualization/virtual-machines/%d/", id)
	return c.do(ctx, http.MethodDelete, path, nil, nil, nil)
}

// ListInterfaces returns the interfaces of one virtual machine.
func (c *Client) ListInterfaces(ctx context.Context, vmID int) ([]Interface, error) {
	query := url.Values{"virtual_machine_id": []string{strconv.Itoa(vmID)}}
	return list[Interface](ctx, c, "virtualization/interfaces/", query)
}

// CreateInterface creates an interface record.
func (c *Client) CreateInterface(ctx context.Context, req InterfaceRequest) (*Interface, error) {
	var iface Interface
	if err := c.do(ctx, http.MethodPost, "virtualization/interfaces/", nil, req, &iface); err != nil {
		return nil, err
	}
	return &iface, nil
}

// UpdateInterface patches only the fields set on the patch.
func (c *Client) UpdateInterface(ctx context.Context, id int, patch InterfacePatch) (*Interface, error) {
	var iface Interface
	path := fmt.Sprintf("virtualization/interfaces/%d/", id)
	if err := c.do(ctx, http.MethodPatch, path, nil, patch, &iface); err != nil {
		return nil, err
	}
	return &iface, nil
}

// DeleteInterface deletes an interface record.
func (c *Client) DeleteInterface(ctx context.Context, id int) error {
	path := fmt.Sprintf("virtualization/interfaces/%d/", id)
	return c.do(ctx, http.MethodDelete, path, nil, nil, nil)
}

// ListIPAddresses returns all IP address records. The sync indexes the full
// set once per run for global address lookups.
func (c *Client) ListIPAddresses(ctx context.Context) ([]IPAddress, error) {
	return list[IPAddress](ctx, c, "ipam/ip-addresses/", nil)
}

// CreateIPAddress creates an IP address record.
func (c *Client) CreateIPAddress(ctx context.Context, req IPAddressRequest) (*IPAddress, error) {
	var ip IPAddress
	if err := c.do(ctx, http.MethodPost, "ipam/ip-addresses/", nil, req, &ip); err != nil {
		return nil, err
	}
	return &ip, nil
}

// UpdateIPAddress patches only the fields set on the patch. IP addresses are
// never deleted by the sync, only deprecated.
func (c *Client) UpdateIPAddress(ctx context.Context, id int, patch IPAddressPatch) (*IPAddress, error) {
	var ip IPAddress
	path := fmt.Sprintf("ipam/ip-addresses/%d/", id)
	if err := c.do(ctx, http.MethodPatch, path, nil, patch, &ip); err != nil {
		return nil, err
	}
	return &ip, nil
}

// ListPlatforms returns all platform records.
func (c *Client) ListPlatforms(ctx context.Context) ([]Platform, error) {
	return list[Platform](ctx, c, "dcim/platforms/", nil)
}

// CreatePlatform creates a platform record.
func (c *Client) CreatePlatform(ctx context.Context, req PlatformRequest) (*Platform, error) {
	var platform Platform
	if err := c.do(ctx, http.MethodPost, "dcim/platforms/", nil, req, &platform); err != nil {
		return nil, err
	}
	return &platform, nil
}

// ListClusters returns all cluster records.
func (c *Client) ListClusters(ctx context.Context) ([]Cluster, error) {
	return list[Cluster](ctx, c, "virtualization/clusters/", nil)
}
