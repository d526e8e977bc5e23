package vmsync

import (
	"sort"

	"vmsync/core/netbox"
)

// ipIndex is the run-scoped view of every mirror IP assignment, indexed by
// canonical address for global lookups. The reconciler mutates it as it
// writes so that later VMs in the same pass see re-associations and creates
// made by earlier ones.
type ipIndex struct {
	records map[int]*netbox.IPAddress
	byAddr  map[string][]int
}

func newIPIndex(ips []netbox.IPAddress) *ipIndex {
	idx := &ipIndex{
		records: make(map[int]*netbox.IPAddress, len(ips)),
		byAddr:  make(map[string][]int, len(ips)),
	}
	for i := range ips {
		ip := ips[i]
		idx.add(ip)
	}
	return idx
}

func (idx *ipIndex) add(ip netbox.IPAddress) {
	record := ip
	idx.records[ip.ID] = &record
	idx.byAddr[ip.Address] = append(idx.byAddr[ip.Address], ip.ID)
}

// byAddress returns every record holding the canonical address. More than
// one is an identity violation the caller reports.
func (idx *ipIndex) byAddress(addr string) []*netbox.IPAddress {
	ids := idx.byAddr[addr]
	records := make([]*netbox.IPAddress, 0, len(ids))
	for _, id := range ids {
		records = append(records, idx.records[id])
	}
	return records
}

// assignedTo returns the records bound to any of the given interfaces,
// sorted by address for deterministic processing.
func (idx *ipIndex) assignedTo(ifaceIDs map[int]bool) []*netbox.IPAddress {
	var owned []*netbox.IPAddress
	for _, record := range idx.records {
		if record.AssignedObjectType != netbox.VMInterfaceObjectType || record.AssignedObjectID == nil {
			continue
		}
		if ifaceIDs[*record.AssignedObjectID] {
			owned = append(owned, record)
		}
	}
	sort.Slice(owned, func(i, j int) bool { return owned[i].Address < owned[j].Address })
	return owned
}
