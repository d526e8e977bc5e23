// Package vsphere implements read-only enumeration of the source platform
// inventory over the vCenter Automation REST API.
//
// The reconciler only consumes the flattened records in types.go; everything
// about the concrete REST schema stays inside this package.
package vsphere

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// Config holds configuration for the source platform API.
type Config struct {
	// URL is the base URL, e.g. https://vcenter.example.com.
	URL string `mapstructure:"url" default:""`
	// Username and Password authenticate the session.
	Username string `mapstructure:"username" default:""`
	Password string `mapstructure:"password" default:""`
	// InsecureSkipVerify disables TLS certificate verification.
	InsecureSkipVerify bool `mapstructure:"insecure_skip_verify" default:"false"`
}

const sessionHeader = "vmware-api-session-id"

// Client enumerates clusters and virtual machines from the source platform.
type Client struct {
	baseURL string
	hc      *http.Client
	log     *zap.Logger
	session string
}

// NewClient creates a client for the given endpoint. Call Login before
// enumerating.
func NewClient(cfg Config, log *zap.Logger) *Client {
	//nolint:gosec // Skipping verification is an explicit operator choice for lab instances.
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.InsecureSkipVerify,
		},
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		hc: &http.Client{
			Transport: transport,
		},
		log: log,
	}
}

// Login creates an API session with the credentials from the configuration.
func (c *Client) Login(ctx context.Context, username, password string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/session", http.NoBody)
	if err != nil {
		return err
	}
	req.SetBasicAuth(username, password)

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("vsphere: create session: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("vsphere: create session returned %d", resp.StatusCode)
	}

	var token string
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return fmt.Errorf("vsphere: decode session token: %w", err)
	}

	c.session = token

	return nil
}

// Logout destroys the API session. Best effort.
func (c *Client) Logout(ctx context.Context) {
	if c.session == "" {
		return
	}
	if err := c.get(ctx, http.MethodDelete, "/api/session", nil, nil); err != nil {
		c.log.Debug("session logout failed", zap.Error(err))
	}
	c.session = ""
}

func (c *Client) get(ctx context.Context, method, path string, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, http.NoBody)
	if err != nil {
		return err
	}
	req.Header.Set(sessionHeader, c.session)
	req.Header.Set("Accept", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("vsphere: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("vsphere: %s %s returned %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(data)))
	}

	if out == nil {
		return nil
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

type clusterSummary struct {
	Cluster string `json:"cluster"`
	Name    string `json:"name"`
}

type vmSummary struct {
	VM         string `json:"vm"`
	Name       string `json:"name"`
	PowerState string `json:"power_state"`
	CPUCount   int    `json:"cpu_count"`
	MemoryMiB  int    `json:"memory_size_MiB"`
}

type vmDetail struct {
	Identity struct {
		InstanceUUID string `json:"instance_uuid"`
	} `json:"identity"`
	GuestOS string `json:"guest_OS"`
	Disks   map[string]struct {
		Capacity int64 `json:"capacity"`
	} `json:"disks"`
	NICs map[string]struct {
		Label      string `json:"label"`
		MACAddress string `json:"mac_address"`
		State      string `json:"state"`
	} `json:"nics"`
}

type guestIdentity struct {
	HostName string `json:"host_name"`
	FullName struct {
		DefaultMessage string `json:"default_message"`
	} `json:"full_name"`
}

type guestInterface struct {
	MACAddress string `json:"mac_address"`
	IP         struct {
		IPAddresses []struct {
			IPAddress string `json:"ip_address"`
		} `json:"ip_addresses"`
	} `json:"ip"`
}

type hostSummary struct {
	Host string `json:"host"`
	Name string `json:"name"`
}

// ListClusters returns all compute clusters.
func (c *Client) ListClusters(ctx context.Context) ([]Cluster, error) {
	var summaries []clusterSummary
	if err := c.get(ctx, http.MethodGet, "/api/vcenter/cluster", nil, &summaries); err != nil {
		return nil, err
	}

	clusters := make([]Cluster, 0, len(summaries))
	for _, s := range summaries {
		clusters = append(clusters, Cluster{ID: s.Cluster, Name: s.Name})
	}

	return clusters, nil
}

// ListVirtualMachines enumerates every virtual machine in every cluster and
// flattens it into a source record. Machines without a persistent identifier
// are dropped with a warning; guest facts that the platform cannot provide
// (tools not running) degrade to the platform-side values.
func (c *Client) ListVirtualMachines(ctx context.Context) ([]VirtualMachine, error) {
	clusters, err := c.ListClusters(ctx)
	if err != nil {
		return nil, err
	}

	var vms []VirtualMachine
	for _, cluster := range clusters {
		placement, err := c.clusterPlacement(ctx, cluster.ID)
		if err != nil {
			return nil, err
		}

		var summaries []vmSummary
		query := url.Values{"clusters": []string{cluster.ID}}
		if err := c.get(ctx, http.MethodGet, "/api/vcenter/vm", query, &summaries); err != nil {
			return nil, err
		}

		for _, summary := range summaries {
			vm, err := c.describe(ctx, cluster.Name, placement[summary.VM], summary)
			if err != nil {
				// Enumeration failures are entity-scoped: skip the
				// machine, the next run picks it up again.
				c.log.Warn("failed to describe virtual machine",
					zap.String("vm", summary.Name),
					zap.Error(err))
				continue
			}
			if vm.PersistentID == "" {
				c.log.Warn("virtual machine has no persistent id, skipping",
					zap.String("vm", summary.Name))
				continue
			}
			vms = append(vms, *vm)
		}
	}

	return vms, nil
}

// clusterPlacement maps every machine in the cluster to the name of the
// hypervisor host it runs on, one listing call per host. Machines missing
// from the map get an empty host, which never matches an override pattern.
func (c *Client) clusterPlacement(ctx context.Context, clusterID string) (map[string]string, error) {
	var hosts []hostSummary
	query := url.Values{"clusters": []string{clusterID}}
	if err := c.get(ctx, http.MethodGet, "/api/vcenter/host", query, &hosts); err != nil {
		return nil, err
	}

	placement := map[string]string{}
	for _, host := range hosts {
		var summaries []vmSummary
		query := url.Values{"hosts": []string{host.Host}}
		if err := c.get(ctx, http.MethodGet, "/api/vcenter/vm", query, &summaries); err != nil {
			c.log.Warn("failed to list machines on host",
				zap.String("host", host.Name),
				zap.Error(err))
			continue
		}
		for _, summary := range summaries {
			placement[summary.VM] = host.Name
		}
	}

	return placement, nil
}

func (c *Client) describe(ctx context.Context, clusterName, hostName string, summary vmSummary) (*VirtualMachine, error) {
	var detail vmDetail
	if err := c.get(ctx, http.MethodGet, "/api/vcenter/vm/"+summary.VM, nil, &detail); err != nil {
		return nil, err
	}

	vm := &VirtualMachine{
		PersistentID: detail.Identity.InstanceUUID,
		Name:         summary.Name,
		VCPUs:        summary.CPUCount,
		MemoryMB:     summary.MemoryMiB,
		PowerState:   summary.PowerState,
		Cluster:      clusterName,
		GuestOS:      detail.GuestOS,
		Hostname:     summary.Name,
	}

	var capacity int64
	for _, disk := range detail.Disks {
		capacity += disk.Capacity
	}
	vm.DiskGB = int(capacity / (1 << 30))

	vm.Host = hostName

	// Guest facts are only available while tools run in the guest.
	var identity guestIdentity
	if err := c.get(ctx, http.MethodGet, "/api/vcenter/vm/"+summary.VM+"/guest/identity", nil, &identity); err == nil {
		if identity.HostName != "" {
			vm.Hostname = identity.HostName
		}
		if identity.FullName.DefaultMessage != "" {
			vm.GuestOS = identity.FullName.DefaultMessage
		}
	}

	addrsByMAC := map[string][]string{}
	var guestNICs []guestInterface
	if err := c.get(ctx, http.MethodGet, "/api/vcenter/vm/"+summary.VM+"/guest/networking/interfaces", nil, &guestNICs); err == nil {
		for _, gn := range guestNICs {
			mac := strings.ToLower(gn.MACAddress)
			for _, addr := range gn.IP.IPAddresses {
				addrsByMAC[mac] = append(addrsByMAC[mac], addr.IPAddress)
			}
		}
	}

	keys := make([]string, 0, len(detail.NICs))
	for key := range detail.NICs {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		nic := detail.NICs[key]
		vm.NICs = append(vm.NICs, NIC{
			Name:      nic.Label,
			MAC:       nic.MACAddress,
			Connected: nic.State == "CONNECTED",
			Addresses: addrsByMAC[strings.ToLower(nic.MACAddress)],
		})
	}

	return vm, nil
}
