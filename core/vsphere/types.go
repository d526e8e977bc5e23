package vsphere

// PowerStateOn is the power state of a running virtual machine.
const PowerStateOn = "POWERED_ON"

// NIC is a virtual network adapter with the addresses the guest reports
// for it.
type NIC struct {
	// Name is the adapter label, e.g. "Network adapter 1".
	Name string
	// MAC is the adapter hardware address as reported by the platform.
	MAC string
	// Connected reports whether the adapter is connected.
	Connected bool
	// Addresses holds the guest-reported IP addresses, bare (no prefix).
	Addresses []string
}

// VirtualMachine is a flattened source inventory record.
type VirtualMachine struct {
	// PersistentID is the platform-assigned instance identifier, stable
	// across renames and migrations. It is the cross-system matching key.
	PersistentID string
	Name         string
	VCPUs        int
	MemoryMB     int
	DiskGB       int
	PowerState   string
	// Cluster is the name of the compute cluster the machine runs in.
	Cluster string
	// Host is the name of the hypervisor host, used by the cluster
	// override table.
	Host string
	// GuestOS is the guest operating system full name.
	GuestOS string
	// Hostname is the guest-reported host name.
	Hostname string
	NICs     []NIC
}

// Cluster is a compute cluster.
type Cluster struct {
	ID   string
	Name string
}
