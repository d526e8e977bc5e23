package netbox

// Ref is a nested reference to another object as returned by the API.
type Ref struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Status is a choice field as returned by the API.
type Status struct {
	Value string `json:"value"`
	Label string `json:"label,omitempty"`
}

// VM status and IP status values used by the sync.
const (
	StatusActive     = "active"
	StatusOffline    = "offline"
	StatusDeprecated = "deprecated"
)

// CustomFieldPersistentID is the custom field carrying the source-assigned
// persistent identifier on virtual machines.
const CustomFieldPersistentID = "persistent_id"

// VirtualMachine is a virtual machine record.
type VirtualMachine struct {
	ID           int               `json:"id"`
	Name         string            `json:"name"`
	Status       Status            `json:"status"`
	Cluster      *Ref              `json:"cluster"`
	Platform     *Ref              `json:"platform"`
	VCPUs        int               `json:"vcpus"`
	Memory       int               `json:"memory"`
	Disk         int               `json:"disk"`
	CustomFields map[string]string `json:"custom_fields"`
}

// PersistentID returns the source-assigned identifier, or "" for machines
// not managed by the sync.
func (vm *VirtualMachine) PersistentID() string {
	return vm.CustomFields[CustomFieldPersistentID]
}

// VirtualMachineRequest is a creation payload.
type VirtualMachineRequest struct {
	Name         string            `json:"name"`
	Status       string            `json:"status"`
	Cluster      int               `json:"cluster"`
	Platform     int               `json:"platform,omitempty"`
	VCPUs        int               `json:"vcpus,omitempty"`
	Memory       int               `json:"memory,omitempty"`
	Disk         int               `json:"disk,omitempty"`
	CustomFields map[string]string `json:"custom_fields,omitempty"`
}

// VirtualMachinePatch is a partial update. Only non-nil fields serialize,
// so a patch touches exactly the fields that changed.
type VirtualMachinePatch struct {
	Status   *string `json:"status,omitempty"`
	Cluster  *int    `json:"cluster,omitempty"`
	Platform *int    `json:"platform,omitempty"`
	VCPUs    *int    `json:"vcpus,omitempty"`
	Memory   *int    `json:"memory,omitempty"`
	Disk     *int    `json:"disk,omitempty"`
}

// Interface is a virtual machine interface record.
type Interface struct {
	ID             int    `json:"id"`
	VirtualMachine Ref    `json:"virtual_machine"`
	Name           string `json:"name"`
	MACAddress     string `json:"mac_address"`
	Enabled        bool   `json:"enabled"`
}

// InterfaceRequest is a creation payload.
type InterfaceRequest struct {
	VirtualMachine int    `json:"virtual_machine"`
	Name           string `json:"name"`
	MACAddress     string `json:"mac_address"`
	Enabled        bool   `json:"enabled"`
}

// InterfacePatch is a partial update. The interface name is set on creation
// and never patched afterwards.
type InterfacePatch struct {
	Enabled *bool `json:"enabled,omitempty"`
}

// VMInterfaceObjectType is the assigned object type for IP addresses bound
// to virtual machine interfaces.
const VMInterfaceObjectType = "virtualization.vminterface"

// IPAddress is an IP address record. Address is in canonical CIDR form.
type IPAddress struct {
	ID                 int    `json:"id"`
	Address            string `json:"address"`
	Status             Status `json:"status"`
	AssignedObjectType string `json:"assigned_object_type"`
	AssignedObjectID   *int   `json:"assigned_object_id"`
	Description        string `json:"description"`
}

// IPAddressRequest is a creation payload.
type IPAddressRequest struct {
	Address            string `json:"address"`
	Status             string `json:"status"`
	AssignedObjectType string `json:"assigned_object_type,omitempty"`
	AssignedObjectID   int    `json:"assigned_object_id,omitempty"`
	Description        string `json:"description,omitempty"`
}

// IPAddressPatch is a partial update.
type IPAddressPatch struct {
	Status             *string `json:"status,omitempty"`
	AssignedObjectType *string `json:"assigned_object_type,omitempty"`
	AssignedObjectID   *int    `json:"assigned_object_id,omitempty"`
	Description        *string `json:"description,omitempty"`
}

// Platform is an operating system platform record.
type Platform struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// PlatformRequest is a creation payload.
type PlatformRequest struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// Cluster is a virtualization cluster record. Clusters are pre-existing and
// never created by the sync.
type Cluster struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// envelope is the list response wrapper. Result sets are assumed complete;
// Next is decoded but not followed.
type envelope[T any] struct {
	Count    int    `json:"count"`
	Next     string `json:"next"`
	Previous string `json:"previous"`
	Results  []T    `json:"results"`
}
