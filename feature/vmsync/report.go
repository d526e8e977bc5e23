package vmsync

import (
	"context"
	"fmt"
	"net/netip"
	"sort"
	"strings"

	"vmsync/core/netbox"

	"go.uber.org/zap"
)

// Finding is one audit result.
type Finding struct {
	// Check names the audit that produced the finding.
	Check string
	// Object identifies the offending record.
	Object string
	// Detail is the human-readable explanation.
	Detail string
}

// Audit runs read-only consistency checks against the mirror inventory,
// reporting records the sync cannot produce but operators occasionally
// create by hand: addresses bound to interfaces that no longer exist,
// half-assigned addresses, and one host allocated multiple times.
type Audit struct {
	mirror Mirror
	log    *zap.Logger
}

// NewAudit creates an audit over the given mirror.
func NewAudit(mirror Mirror, log *zap.Logger) *Audit {
	return &Audit{mirror: mirror, log: log}
}

// Run executes all checks and returns the combined findings.
func (a *Audit) Run(ctx context.Context) ([]Finding, error) {
	ips, err := a.mirror.ListIPAddresses(ctx)
	if err != nil {
		return nil, fmt.Errorf("list mirror ip addresses: %w", err)
	}

	vms, err := a.mirror.ListVirtualMachines(ctx)
	if err != nil {
		return nil, fmt.Errorf("list mirror virtual machines: %w", err)
	}

	ifaceIDs := map[int]bool{}
	for _, vm := range vms {
		ifaces, err := a.mirror.ListInterfaces(ctx, vm.ID)
		if err != nil {
			return nil, fmt.Errorf("list interfaces of %s: %w", vm.Name, err)
		}
		for _, iface := range ifaces {
			ifaceIDs[iface.ID] = true
		}
	}

	var findings []Finding
	findings = append(findings, orphanedAddresses(ips, ifaceIDs)...)
	findings = append(findings, halfAssignedAddresses(ips)...)
	findings = append(findings, duplicateHosts(ips)...)

	return findings, nil
}

// orphanedAddresses finds addresses bound to a machine interface that no
// longer exists.
func orphanedAddresses(ips []netbox.IPAddress, ifaceIDs map[int]bool) []Finding {
	var findings []Finding
	for _, ip := range ips {
		if ip.AssignedObjectType != netbox.VMInterfaceObjectType || ip.AssignedObjectID == nil {
			continue
		}
		if !ifaceIDs[*ip.AssignedObjectID] {
			findings = append(findings, Finding{
				Check:  "orphaned-address",
				Object: ip.Address,
				Detail: fmt.Sprintf("assigned to interface %d which does not exist", *ip.AssignedObjectID),
			})
		}
	}
	return findings
}

// halfAssignedAddresses finds addresses with an assignment type but no
// object, or the other way around.
func halfAssignedAddresses(ips []netbox.IPAddress) []Finding {
	var findings []Finding
	for _, ip := range ips {
		typeSet := ip.AssignedObjectType != ""
		idSet := ip.AssignedObjectID != nil
		if typeSet != idSet {
			findings = append(findings, Finding{
				Check:  "half-assigned-address",
				Object: ip.Address,
				Detail: fmt.Sprintf("assigned_object_type=%q assigned_object_id set=%t", ip.AssignedObjectType, idSet),
			})
		}
	}
	return findings
}

// duplicateHosts finds hosts allocated by more than one assigned address
// record, regardless of prefix length.
func duplicateHosts(ips []netbox.IPAddress) []Finding {
	byHost := map[string][]string{}
	for _, ip := range ips {
		if ip.AssignedObjectID == nil {
			continue
		}
		host := ip.Address
		if prefix, err := netip.ParsePrefix(ip.Address); err == nil {
			host = prefix.Addr().String()
		}
		byHost[host] = append(byHost[host], ip.Address)
	}

	hosts := make([]string, 0, len(byHost))
	for host, records := range byHost {
		if len(records) > 1 {
			hosts = append(hosts, host)
		}
	}
	sort.Strings(hosts)

	findings := make([]Finding, 0, len(hosts))
	for _, host := range hosts {
		findings = append(findings, Finding{
			Check:  "duplicate-host",
			Object: host,
			Detail: fmt.Sprintf("allocated %d times: %s", len(byHost[host]), strings.Join(byHost[host], ", ")),
		})
	}

	return findings
}
