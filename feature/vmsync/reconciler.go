// Package vmsync converges the mirror inventory to the authoritative source
// platform snapshot: virtual machines, their interfaces and their IP
// assignments.
//
// A run is a single sequential pass with no persisted state. Write failures
// are entity-scoped: they are logged and the pass continues, and the next
// scheduled run converges whatever was missed. That re-run is the only
// retry mechanism.
package vmsync

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"vmsync/core/netbox"
	"vmsync/core/reconcile"
	"vmsync/core/vsphere"

	"go.uber.org/zap"
)

// Options holds per-run settings for the reconciler.
type Options struct {
	// DryRun computes and logs every action without issuing writes.
	DryRun bool
	// ClusterOverrides is the site-policy table placing machines on
	// matching hosts into specific clusters.
	ClusterOverrides []ClusterOverride
}

// Reconciler drives one reconciliation pass.
type Reconciler struct {
	mirror Mirror
	source Source
	log    *zap.Logger
	opts   Options

	now func() time.Time
}

// New creates a reconciler.
func New(mirror Mirror, source Source, log *zap.Logger, opts Options) *Reconciler {
	return &Reconciler{
		mirror: mirror,
		source: source,
		log:    log,
		opts:   opts,
		now:    time.Now,
	}
}

// Run performs one full pass: fetch both inventories, sweep orphaned mirror
// machines, then reconcile every source machine in dependency order
// (cluster, platform, machine, interfaces, IP assignments).
//
// Only the initial inventory reads are fatal; every write failure is logged
// and the pass continues.
func (r *Reconciler) Run(ctx context.Context) (reconcile.Summary, error) {
	var summary reconcile.Summary

	sourceVMs, err := r.source.ListVirtualMachines(ctx)
	if err != nil {
		return summary, fmt.Errorf("enumerate source inventory: %w", err)
	}

	mirrorVMs, err := r.mirror.ListVirtualMachines(ctx)
	if err != nil {
		return summary, fmt.Errorf("list mirror virtual machines: %w", err)
	}

	ips, err := r.mirror.ListIPAddresses(ctx)
	if err != nil {
		return summary, fmt.Errorf("list mirror ip addresses: %w", err)
	}

	index := newIPIndex(ips)
	refs := newRefCache(r.mirror, r.log, r.opts.DryRun)

	// Index the source snapshot. A persistent id duplicated on the source
	// side is handled like a duplicated mirror record: the machines are
	// skipped for this run.
	srcByID := make(map[string]vsphere.VirtualMachine, len(sourceVMs))
	srcDupes := map[string]bool{}
	for _, vm := range sourceVMs {
		if _, seen := srcByID[vm.PersistentID]; seen {
			srcDupes[vm.PersistentID] = true
			continue
		}
		srcByID[vm.PersistentID] = vm
	}
	for id := range srcDupes {
		r.log.Warn("skipping virtual machines with duplicated source persistent id",
			zap.String("persistent_id", id))
		summary.Skipped++
		delete(srcByID, id)
	}

	mirByID := make(map[string][]netbox.VirtualMachine)
	for _, vm := range mirrorVMs {
		if pid := vm.PersistentID(); pid != "" {
			mirByID[pid] = append(mirByID[pid], vm)
		}
	}

	// Orphan sweep runs before any per-VM work so later lookups never see
	// stale machine records. Mirror machines without a persistent id are
	// not managed by the sync and are left alone.
	for _, vm := range mirrorVMs {
		pid := vm.PersistentID()
		if pid == "" {
			continue
		}
		if _, present := srcByID[pid]; present || srcDupes[pid] {
			continue
		}

		log := r.log.With(zap.String("vm", vm.Name), zap.String("persistent_id", pid))
		vmID := vm.ID
		if r.apply(&summary, log, reconcile.Action{Op: reconcile.OpDelete, Object: "virtual-machine", Key: vm.Name}, func() error {
			return r.mirror.DeleteVirtualMachine(ctx, vmID)
		}) {
			delete(mirByID, pid)
		}
	}

	// Per-machine reconciliation, ordered by name for deterministic logs.
	// There is no cross-machine dependency.
	ordered := make([]vsphere.VirtualMachine, 0, len(srcByID))
	for _, vm := range srcByID {
		ordered = append(ordered, vm)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Name < ordered[j].Name })

	for _, src := range ordered {
		r.reconcileVM(ctx, &summary, refs, index, src, mirByID)
	}

	return summary, nil
}

// apply executes one write, or only logs it in dry-run mode. It returns
// whether the write happened (dry-run counts as happened for accounting,
// but the caller sees no created record and skips dependent writes).
func (r *Reconciler) apply(summary *reconcile.Summary, log *zap.Logger, action reconcile.Action, write func() error) bool {
	if r.opts.DryRun {
		log.Info("planned write (dry-run)", zap.Stringer("action", action))
		summary.Record(action.Op)
		return true
	}

	if err := write(); err != nil {
		log.Warn("write failed", zap.Stringer("action", action), zap.Error(err))
		summary.Failures++
		return false
	}

	log.Info("applied", zap.Stringer("action", action))
	summary.Record(action.Op)

	return true
}

func (r *Reconciler) reconcileVM(ctx context.Context, summary *reconcile.Summary, refs *refCache, index *ipIndex, src vsphere.VirtualMachine, mirByID map[string][]netbox.VirtualMachine) {
	log := r.log.With(zap.String("vm", src.Name), zap.String("persistent_id", src.PersistentID))

	match, err := ResolveVM(src.PersistentID, mirByID)
	if err != nil {
		log.Warn("skipping virtual machine", zap.Error(err))
		summary.Skipped++
		return
	}

	clusterName := overrideCluster(src.Cluster, src.Host, r.opts.ClusterOverrides)
	clusterID, err := refs.ClusterID(ctx, clusterName)
	if err != nil {
		log.Warn("skipping virtual machine", zap.String("cluster", clusterName), zap.Error(err))
		summary.Skipped++
		return
	}

	platformID, err := refs.PlatformID(ctx, src.GuestOS)
	if err != nil {
		// Machines sync fine without a platform; retried next run.
		log.Warn("platform resolution failed", zap.String("guest_os", src.GuestOS), zap.Error(err))
		summary.Failures++
	}

	status := netbox.StatusOffline
	if src.PowerState == vsphere.PowerStateOn {
		status = netbox.StatusActive
	}

	var (
		vmID       int
		mirrorNICs []netbox.Interface
	)

	if match == nil {
		req := netbox.VirtualMachineRequest{
			Name:     src.Name,
			Status:   status,
			Cluster:  clusterID,
			Platform: platformID,
			VCPUs:    src.VCPUs,
			Memory:   src.MemoryMB,
			Disk:     src.DiskGB,
			CustomFields: map[string]string{
				netbox.CustomFieldPersistentID: src.PersistentID,
			},
		}
		ok := r.apply(summary, log, reconcile.Action{Op: reconcile.OpCreate, Object: "virtual-machine", Key: src.Name}, func() error {
			vm, err := r.mirror.CreateVirtualMachine(ctx, req)
			if err != nil {
				return err
			}
			vmID = vm.ID
			return nil
		})
		if !ok || vmID == 0 {
			// Creation failed or dry-run: nothing to hang interfaces on.
			log.Debug("skipping dependent interface and address writes")
			return
		}
	} else {
		vmID = match.ID

		patch, fields := diffVM(src, match, clusterID, platformID, status)
		if len(fields) > 0 {
			r.apply(summary, log, reconcile.Action{Op: reconcile.OpUpdate, Object: "virtual-machine", Key: src.Name, Fields: fields}, func() error {
				_, err := r.mirror.UpdateVirtualMachine(ctx, vmID, patch)
				return err
			})
		} else {
			summary.Record(reconcile.OpNoop)
		}

		mirrorNICs, err = r.mirror.ListInterfaces(ctx, vmID)
		if err != nil {
			log.Warn("failed to list interfaces", zap.Error(err))
			summary.Failures++
			return
		}
	}

	ifaceByMAC := r.reconcileInterfaces(ctx, summary, log, src, vmID, mirrorNICs)
	r.reconcileIPs(ctx, summary, log, src, mirrorNICs, ifaceByMAC, index)
}

// diffVM computes the minimal patch converging a mirror machine to the
// source record. Tracked fields: cluster, platform, vcpus, memory, disk,
// status. An unresolved platform (id 0) is left untouched.
func diffVM(src vsphere.VirtualMachine, mirror *netbox.VirtualMachine, clusterID, platformID int, status string) (netbox.VirtualMachinePatch, []string) {
	var (
		patch  netbox.VirtualMachinePatch
		fields []string
	)

	if mirror.Cluster == nil || mirror.Cluster.ID != clusterID {
		patch.Cluster = &clusterID
		fields = append(fields, "cluster")
	}
	if platformID != 0 && (mirror.Platform == nil || mirror.Platform.ID != platformID) {
		patch.Platform = &platformID
		fields = append(fields, "platform")
	}
	if mirror.VCPUs != src.VCPUs {
		vcpus := src.VCPUs
		patch.VCPUs = &vcpus
		fields = append(fields, "vcpus")
	}
	if mirror.Memory != src.MemoryMB {
		memory := src.MemoryMB
		patch.Memory = &memory
		fields = append(fields, "memory")
	}
	if mirror.Disk != src.DiskGB {
		disk := src.DiskGB
		patch.Disk = &disk
		fields = append(fields, "disk")
	}
	if mirror.Status.Value != status {
		s := status
		patch.Status = &s
		fields = append(fields, "status")
	}

	return patch, fields
}

// reconcileInterfaces converges one machine's mirror interfaces to its
// source adapters, keyed by MAC address. The interface name is written on
// creation only and never overwritten afterwards; for matched pairs only
// the enabled flag is tracked. It returns the surviving interfaces by
// lowercased MAC for the address pass.
func (r *Reconciler) reconcileInterfaces(ctx context.Context, summary *reconcile.Summary, log *zap.Logger, src vsphere.VirtualMachine, vmID int, mirrorNICs []netbox.Interface) map[string]netbox.Interface {
	plan := reconcile.Partition(src.NICs, mirrorNICs,
		func(n vsphere.NIC) string { return strings.ToLower(n.MAC) },
		func(i netbox.Interface) string { return strings.ToLower(i.MACAddress) },
	)

	for _, dup := range plan.Duplicates {
		log.Warn("skipping interface with ambiguous mac address",
			zap.String("mac", dup.MACAddress))
		summary.Skipped++
	}

	byMAC := make(map[string]netbox.Interface)

	// Deletes are scoped to this machine's interfaces; globally unrelated
	// records are never touched.
	for _, stale := range plan.Deletes {
		staleID := stale.ID
		r.apply(summary, log, reconcile.Action{Op: reconcile.OpDelete, Object: "interface", Key: stale.MACAddress}, func() error {
			return r.mirror.DeleteInterface(ctx, staleID)
		})
	}

	for _, pair := range plan.Pairs {
		iface := pair.Mirror
		if pair.Source.Connected != iface.Enabled {
			enabled := pair.Source.Connected
			ifaceID := iface.ID
			if r.apply(summary, log, reconcile.Action{Op: reconcile.OpUpdate, Object: "interface", Key: iface.MACAddress, Fields: []string{"enabled"}}, func() error {
				_, err := r.mirror.UpdateInterface(ctx, ifaceID, netbox.InterfacePatch{Enabled: &enabled})
				return err
			}) {
				iface.Enabled = enabled
			}
		} else {
			summary.Record(reconcile.OpNoop)
		}
		byMAC[strings.ToLower(iface.MACAddress)] = iface
	}

	for _, nic := range plan.Creates {
		if nic.MAC == "" {
			log.Warn("skipping adapter without mac address", zap.String("adapter", nic.Name))
			summary.Skipped++
			continue
		}

		req := netbox.InterfaceRequest{
			VirtualMachine: vmID,
			Name:           nic.Name,
			MACAddress:     nic.MAC,
			Enabled:        nic.Connected,
		}
		var created *netbox.Interface
		ok := r.apply(summary, log, reconcile.Action{Op: reconcile.OpCreate, Object: "interface", Key: nic.MAC}, func() error {
			iface, err := r.mirror.CreateInterface(ctx, req)
			if err != nil {
				return err
			}
			created = iface
			return nil
		})
		if ok && created != nil {
			byMAC[strings.ToLower(created.MACAddress)] = *created
		}
	}

	return byMAC
}

// reconcileIPs converges the machine's IP assignments. Addresses the guest
// no longer reports are deprecated in place, never deleted; configured
// addresses are re-associated from wherever they currently live or created;
// a correctly placed address only gets a write when its status or
// description drifted.
func (r *Reconciler) reconcileIPs(ctx context.Context, summary *reconcile.Summary, log *zap.Logger, src vsphere.VirtualMachine, preNICs []netbox.Interface, byMAC map[string]netbox.Interface, index *ipIndex) {
	token := shortHostname(src.Hostname)
	if token == "" {
		token = shortHostname(src.Name)
	}

	// Configured-address set across all of the machine's adapters, in
	// canonical form, remembering which adapter reported each address.
	configured := make(map[string]string)
	var order []string
	for _, nic := range src.NICs {
		mac := strings.ToLower(nic.MAC)
		for _, addr := range nic.Addresses {
			canon, err := CanonicalAddress(addr)
			if err != nil {
				log.Warn("skipping address", zap.String("address", addr), zap.Error(err))
				summary.Skipped++
				continue
			}
			if _, seen := configured[canon]; !seen {
				configured[canon] = mac
				order = append(order, canon)
			}
		}
	}

	// Everything assigned to this machine's interfaces before and after
	// the interface pass counts as previously owned.
	ownedIfaces := make(map[int]bool, len(preNICs)+len(byMAC))
	for _, iface := range preNICs {
		ownedIfaces[iface.ID] = true
	}
	for _, iface := range byMAC {
		ownedIfaces[iface.ID] = true
	}

	// Soft-delete sweep: owned addresses the guest no longer reports.
	for _, ip := range index.assignedTo(ownedIfaces) {
		if _, active := configured[ip.Address]; active {
			continue
		}
		if ip.Status.Value == netbox.StatusDeprecated {
			summary.Record(reconcile.OpNoop)
			continue
		}

		record := ip
		status := netbox.StatusDeprecated
		desc := fmt.Sprintf("%s - inactive %s", src.Name, r.now().Format("2006-01-02"))
		if r.apply(summary, log, reconcile.Action{Op: reconcile.OpUpdate, Object: "ip-address", Key: ip.Address, Fields: []string{"status", "description"}}, func() error {
			_, err := r.mirror.UpdateIPAddress(ctx, record.ID, netbox.IPAddressPatch{
				Status:      &status,
				Description: &desc,
			})
			return err
		}) {
			record.Status.Value = status
			record.Description = desc
		}
	}

	for _, addr := range order {
		iface, ok := byMAC[configured[addr]]
		if !ok {
			// Interface creation failed or dry-run; the address is
			// picked up once the interface exists.
			log.Debug("no interface for address yet", zap.String("address", addr))
			continue
		}

		records := index.byAddress(addr)
		switch len(records) {
		case 0:
			req := netbox.IPAddressRequest{
				Address:            addr,
				Status:             netbox.StatusActive,
				AssignedObjectType: netbox.VMInterfaceObjectType,
				AssignedObjectID:   iface.ID,
				Description:        token,
			}
			var created *netbox.IPAddress
			ok := r.apply(summary, log, reconcile.Action{Op: reconcile.OpCreate, Object: "ip-address", Key: addr}, func() error {
				ip, err := r.mirror.CreateIPAddress(ctx, req)
				if err != nil {
					return err
				}
				created = ip
				return nil
			})
			if ok && created != nil {
				index.add(*created)
			}

		case 1:
			r.convergeIP(ctx, summary, log, records[0], iface.ID, token)

		default:
			dupErr := &DuplicateIdentityError{Kind: "ip address", Key: addr, Count: len(records)}
			log.Warn("skipping address", zap.Error(dupErr))
			summary.Skipped++
		}
	}
}

// convergeIP patches a single existing address record to be bound to the
// given interface and active. The description is refreshed only when it
// lacks the machine's short hostname token or the status drifted.
func (r *Reconciler) convergeIP(ctx context.Context, summary *reconcile.Summary, log *zap.Logger, ip *netbox.IPAddress, ifaceID int, token string) {
	var (
		patch  netbox.IPAddressPatch
		fields []string
	)

	misassigned := ip.AssignedObjectType != netbox.VMInterfaceObjectType ||
		ip.AssignedObjectID == nil || *ip.AssignedObjectID != ifaceID
	if misassigned {
		objectType := netbox.VMInterfaceObjectType
		id := ifaceID
		patch.AssignedObjectType = &objectType
		patch.AssignedObjectID = &id
		fields = append(fields, "assigned_object")
	}

	stale := ip.Status.Value != netbox.StatusActive
	if stale {
		status := netbox.StatusActive
		patch.Status = &status
		fields = append(fields, "status")
	}

	if stale || !strings.Contains(ip.Description, token) {
		if ip.Description != token {
			desc := token
			patch.Description = &desc
			fields = append(fields, "description")
		}
	}

	if len(fields) == 0 {
		summary.Record(reconcile.OpNoop)
		return
	}

	if r.apply(summary, log, reconcile.Action{Op: reconcile.OpUpdate, Object: "ip-address", Key: ip.Address, Fields: fields}, func() error {
		_, err := r.mirror.UpdateIPAddress(ctx, ip.ID, patch)
		return err
	}) {
		if patch.AssignedObjectID != nil {
			ip.AssignedObjectType = netbox.VMInterfaceObjectType
			ip.AssignedObjectID = patch.AssignedObjectID
		}
		if patch.Status != nil {
			ip.Status.Value = *patch.Status
		}
		if patch.Description != nil {
			ip.Description = *patch.Description
		}
	}
}
