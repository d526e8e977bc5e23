package vmsync

import "fmt"

// DuplicateIdentityError reports that an identity key which must map to at
// most one mirror record maps to several. The affected entity is skipped
// for the run; the next invocation re-attempts from a clean slate.
type DuplicateIdentityError struct {
	// Kind names the entity class, e.g. "virtual machine" or "ip address".
	Kind string
	// Key is the colliding identity key.
	Key string
	// Count is the number of mirror records sharing the key.
	Count int
}

func (e *DuplicateIdentityError) Error() string {
	return fmt.Sprintf("%d mirror %s records share identity key %q", e.Count, e.Kind, e.Key)
}

// DataMappingError reports a source fact that cannot be mapped into a
// mirror record, e.g. an address of an unrecognized family. Only the
// offending sub-item is skipped.
type DataMappingError struct {
	Field  string
	Value  string
	Reason string
}

func (e *DataMappingError) Error() string {
	return fmt.Sprintf("cannot map %s %q: %s", e.Field, e.Value, e.Reason)
}
