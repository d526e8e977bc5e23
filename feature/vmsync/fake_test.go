package vmsync

import (
	"context"
	"fmt"
	"sort"

	"vmsync/core/netbox"
	"vmsync/core/vsphere"
)

// fakeMirror is an in-memory mirror inventory recording every write.
type fakeMirror struct {
	nextID    int
	vms       map[int]*netbox.VirtualMachine
	ifaces    map[int]*netbox.Interface
	ips       map[int]*netbox.IPAddress
	platforms map[int]*netbox.Platform
	clusters  map[int]*netbox.Cluster

	// writes records every mutating call, e.g. "create interface".
	writes []string
	// lastVMPatch captures the most recent virtual machine patch.
	lastVMPatch netbox.VirtualMachinePatch
	// lastInterfacePatch captures the most recent interface patch.
	lastInterfacePatch netbox.InterfacePatch
	// fail, when set, is consulted before each write with the op name.
	fail func(op string) error
}

func newFakeMirror() *fakeMirror {
	return &fakeMirror{
		vms:       map[int]*netbox.VirtualMachine{},
		ifaces:    map[int]*netbox.Interface{},
		ips:       map[int]*netbox.IPAddress{},
		platforms: map[int]*netbox.Platform{},
		clusters:  map[int]*netbox.Cluster{},
	}
}

func (f *fakeMirror) id() int {
	f.nextID++
	return f.nextID
}

func (f *fakeMirror) write(op string) error {
	if f.fail != nil {
		if err := f.fail(op); err != nil {
			return err
		}
	}
	f.writes = append(f.writes, op)
	return nil
}

func (f *fakeMirror) addCluster(name string) *netbox.Cluster {
	c := &netbox.Cluster{ID: f.id(), Name: name}
	f.clusters[c.ID] = c
	return c
}

func (f *fakeMirror) addPlatform(name, slug string) *netbox.Platform {
	p := &netbox.Platform{ID: f.id(), Name: name, Slug: slug}
	f.platforms[p.ID] = p
	return p
}

func (f *fakeMirror) addVM(name, persistentID string, cluster *netbox.Cluster, status string, vcpus, memory, disk int) *netbox.VirtualMachine {
	vm := &netbox.VirtualMachine{
		ID:     f.id(),
		Name:   name,
		Status: netbox.Status{Value: status},
		VCPUs:  vcpus,
		Memory: memory,
		Disk:   disk,
		CustomFields: map[string]string{
			netbox.CustomFieldPersistentID: persistentID,
		},
	}
	if cluster != nil {
		vm.Cluster = &netbox.Ref{ID: cluster.ID, Name: cluster.Name}
	}
	f.vms[vm.ID] = vm
	return vm
}

func (f *fakeMirror) addInterface(vm *netbox.VirtualMachine, name, mac string, enabled bool) *netbox.Interface {
	iface := &netbox.Interface{
		ID:             f.id(),
		VirtualMachine: netbox.Ref{ID: vm.ID, Name: vm.Name},
		Name:           name,
		MACAddress:     mac,
		Enabled:        enabled,
	}
	f.ifaces[iface.ID] = iface
	return iface
}

func (f *fakeMirror) addIP(address, status string, iface *netbox.Interface, description string) *netbox.IPAddress {
	ip := &netbox.IPAddress{
		ID:          f.id(),
		Address:     address,
		Status:      netbox.Status{Value: status},
		Description: description,
	}
	if iface != nil {
		id := iface.ID
		ip.AssignedObjectType = netbox.VMInterfaceObjectType
		ip.AssignedObjectID = &id
	}
	f.ips[ip.ID] = ip
	return ip
}

func sortedValues[T any](m map[int]*T) []T {
	ids := make([]int, 0, len(m))
	for k := range m {
		ids = append(ids, k)
	}
	sort.Ints(ids)
	out := make([]T, 0, len(m))
	for _, k := range ids {
		out = append(out, *m[k])
	}
	return out
}

func (f *fakeMirror) ListVirtualMachines(ctx context.Context) ([]netbox.VirtualMachine, error) {
	return sortedValues(f.vms), nil
}

func (f *fakeMirror) CreateVirtualMachine(ctx context.Context, req netbox.VirtualMachineRequest) (*netbox.VirtualMachine, error) {
	if err := f.write("create virtual-machine"); err != nil {
		return nil, err
	}
	vm := &netbox.VirtualMachine{
		ID:           f.id(),
		Name:         req.Name,
		Status:       netbox.Status{Value: req.Status},
		VCPUs:        req.VCPUs,
		Memory:       req.Memory,
		Disk:         req.Disk,
		CustomFields: req.CustomFields,
	}
	if c, ok := f.clusters[req.Cluster]; ok {
		vm.Cluster = &netbox.Ref{ID: c.ID, Name: c.Name}
	}
	if p, ok := f.platforms[req.Platform]; ok {
		vm.Platform = &netbox.Ref{ID: p.ID, Name: p.Name}
	}
	f.vms[vm.ID] = vm
	return vm, nil
}

func (f *fakeMirror) UpdateVirtualMachine(ctx context.Context, id int, patch netbox.VirtualMachinePatch) (*netbox.VirtualMachine, error) {
	if err := f.write("update virtual-machine"); err != nil {
		return nil, err
	}
	vm, ok := f.vms[id]
	if !ok {
		return nil, fmt.Errorf("virtual machine %d not found", id)
	}
	f.lastVMPatch = patch
	if patch.Status != nil {
		vm.Status.Value = *patch.Status
	}
	if patch.Cluster != nil {
		if c, ok := f.clusters[*patch.Cluster]; ok {
			vm.Cluster = &netbox.Ref{ID: c.ID, Name: c.Name}
		}
	}
	if patch.Platform != nil {
		if p, ok := f.platforms[*patch.Platform]; ok {
			vm.Platform = &netbox.Ref{ID: p.ID, Name: p.Name}
		}
	}
	if patch.VCPUs != nil {
		vm.VCPUs = *patch.VCPUs
	}
	if patch.Memory != nil {
		vm.Memory = *patch.Memory
	}
	if patch.Disk != nil {
		vm.Disk = *patch.Disk
	}
	return vm, nil
}

func (f *fakeMirror) DeleteVirtualMachine(ctx context.Context, id int) error {
	if err := f.write("delete virtual-machine"); err != nil {
		return err
	}
	if _, ok := f.vms[id]; !ok {
		return fmt.Errorf("virtual machine %d not found", id)
	}
	delete(f.vms, id)
	// The server cascades interface deletion.
	for ifaceID, iface := range f.ifaces {
		if iface.VirtualMachine.ID == id {
			delete(f.ifaces, ifaceID)
		}
	}
	return nil
}

func (f *fakeMirror) ListInterfaces(ctx context.Context, vmID int) ([]netbox.Interface, error) {
	var out []netbox.Interface
	for _, iface := range sortedValues(f.ifaces) {
		if iface.VirtualMachine.ID == vmID {
			out = append(out, iface)
		}
	}
	return out, nil
}

func (f *fakeMirror) CreateInterface(ctx context.Context, req netbox.InterfaceRequest) (*netbox.Interface, error) {
	if err := f.write("create interface"); err != nil {
		return nil, err
	}
	vm, ok := f.vms[req.VirtualMachine]
	if !ok {
		return nil, fmt.Errorf("virtual machine %d not found", req.VirtualMachine)
	}
	iface := &netbox.Interface{
		ID:             f.id(),
		VirtualMachine: netbox.Ref{ID: vm.ID, Name: vm.Name},
		Name:           req.Name,
		MACAddress:     req.MACAddress,
		Enabled:        req.Enabled,
	}
	f.ifaces[iface.ID] = iface
	return iface, nil
}

func (f *fakeMirror) UpdateInterface(ctx context.Context, id int, patch netbox.InterfacePatch) (*netbox.Interface, error) {
	if err := f.write("update interface"); err != nil {
		return nil, err
	}
	iface, ok := f.ifaces[id]
	if !ok {
		return nil, fmt.Errorf("interface %d not found", id)
	}
	f.lastInterfacePatch = patch
	if patch.Enabled != nil {
		iface.Enabled = *patch.Enabled
	}
	return iface, nil
}

func (f *fakeMirror) DeleteInterface(ctx context.Context, id int) error {
	if err := f.write("delete interface"); err != nil {
		return err
	}
	if _, ok := f.ifaces[id]; !ok {
		return fmt.Errorf("interface %d not found", id)
	}
	delete(f.ifaces, id)
	return nil
}

func (f *fakeMirror) ListIPAddresses(ctx context.Context) ([]netbox.IPAddress, error) {
	return sortedValues(f.ips), nil
}

func (f *fakeMirror) CreateIPAddress(ctx context.Context, req netbox.IPAddressRequest) (*netbox.IPAddress, error) {
	if err := f.write("create ip-address"); err != nil {
		return nil, err
	}
	ip := &netbox.IPAddress{
		ID:          f.id(),
		Address:     req.Address,
		Status:      netbox.Status{Value: req.Status},
		Description: req.Description,
	}
	if req.AssignedObjectID != 0 {
		id := req.AssignedObjectID
		ip.AssignedObjectType = req.AssignedObjectType
		ip.AssignedObjectID = &id
	}
	f.ips[ip.ID] = ip
	return ip, nil
}

func (f *fakeMirror) UpdateIPAddress(ctx context.Context, id int, patch netbox.IPAddressPatch) (*netbox.IPAddress, error) {
	if err := f.write("update ip-address"); err != nil {
		return nil, err
	}
	ip, ok := f.ips[id]
	if !ok {
		return nil, fmt.Errorf("ip address %d not found", id)
	}
	if patch.Status != nil {
		ip.Status.Value = *patch.Status
	}
	if patch.AssignedObjectType != nil {
		ip.AssignedObjectType = *patch.AssignedObjectType
	}
	if patch.AssignedObjectID != nil {
		id := *patch.AssignedObjectID
		ip.AssignedObjectID = &id
	}
	if patch.Description != nil {
		ip.Description = *patch.Description
	}
	return ip, nil
}

func (f *fakeMirror) ListPlatforms(ctx context.Context) ([]netbox.Platform, error) {
	return sortedValues(f.platforms), nil
}

func (f *fakeMirror) CreatePlatform(ctx context.Context, req netbox.PlatformRequest) (*netbox.Platform, error) {
	if err := f.write("create platform"); err != nil {
		return nil, err
	}
	p := &netbox.Platform{ID: f.id(), Name: req.Name, Slug: req.Slug}
	f.platforms[p.ID] = p
	return p, nil
}

func (f *fakeMirror) ListClusters(ctx context.Context) ([]netbox.Cluster, error) {
	return sortedValues(f.clusters), nil
}

// fakeSource is a fixed source platform snapshot.
type fakeSource struct {
	vms []vsphere.VirtualMachine
}

func (f *fakeSource) ListVirtualMachines(ctx context.Context) ([]vsphere.VirtualMachine, error) {
	return f.vms, nil
}

var _ Mirror = (*fakeMirror)(nil)
var _ Source = (*fakeSource)(nil)
