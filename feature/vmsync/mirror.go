package vmsync

import (
	"context"

	"vmsync/core/netbox"
	"vmsync/core/vsphere"
)

// Mirror is the write side of the sync: the five mirror inventory
// collections the reconciler reads and converges. *netbox.Client satisfies
// it; tests use an in-memory fake.
type Mirror interface {
	ListVirtualMachines(ctx context.Context) ([]netbox.VirtualMachine, error)
	CreateVirtualMachine(ctx context.Context, req netbox.VirtualMachineRequest) (*netbox.VirtualMachine, error)
	UpdateVirtualMachine(ctx context.Context, id int, patch netbox.VirtualMachinePatch) (*netbox.VirtualMachine, error)
	DeleteVirtualMachine(ctx context.Context, id int) error

	ListInterfaces(ctx context.Context, vmID int) ([]netbox.Interface, error)
	CreateInterface(ctx context.Context, req netbox.InterfaceRequest) (*netbox.Interface, error)
	UpdateInterface(ctx context.Context, id int, patch netbox.InterfacePatch) (*netbox.Interface, error)
	DeleteInterface(ctx context.Context, id int) error

	ListIPAddresses(ctx context.Context) ([]netbox.IPAddress, error)
	CreateIPAddress(ctx context.Context, req netbox.IPAddressRequest) (*netbox.IPAddress, error)
	UpdateIPAddress(ctx context.Context, id int, patch netbox.IPAddressPatch) (*netbox.IPAddress, error)

	ListPlatforms(ctx context.Context) ([]netbox.Platform, error)
	CreatePlatform(ctx context.Context, req netbox.PlatformRequest) (*netbox.Platform, error)

	ListClusters(ctx context.Context) ([]netbox.Cluster, error)
}

// Source is the read-only enumeration of the authoritative inventory.
// *vsphere.Client satisfies it.
type Source interface {
	ListVirtualMachines(ctx context.Context) ([]vsphere.VirtualMachine, error)
}

var (
	_ Mirror = (*netbox.Client)(nil)
	_ Source = (*vsphere.Client)(nil)
)
