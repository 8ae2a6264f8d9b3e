package pagekit

import (
	"strings"
)

// Capability names one of the five independent flags a role can grant on a page.
type Capability string

const (
	CapabilityView   Capability = "can_view"
	CapabilityAdd    Capability = "can_add"
	CapabilityEdit   Capability = "can_edit"
	CapabilityDelete Capability = "can_delete"
	CapabilityPrint  Capability = "can_print"
)

// AllCapabilities returns every capability in display order.
func AllCapabilities() []Capability {
	return []Capability{CapabilityView, CapabilityAdd, CapabilityEdit, CapabilityDelete, CapabilityPrint}
}

// ParseCapability converts a string to a Capability.
// Both the short form ("edit") and the column form ("can_edit") are accepted.
//
// Examples:
//
//	ParseCapability("view")      // CapabilityView
//	ParseCapability("can_print") // CapabilityPrint
//	ParseCapability("approve")   // error
func ParseCapability(s string) (Capability, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if !strings.HasPrefix(name, "can_") {
		name = "can_" + name
	}
	for _, c := range AllCapabilities() {
		if string(c) == name {
			return c, nil
		}
	}
	return "", NewError(ErrInvalidCapability, "unknown capability "+strings.TrimSpace(s))
}

// Permissions is the effective capability set of a user on a page.
// The zero value grants nothing.
type Permissions struct {
	CanView   bool `json:"can_view"`
	CanAdd    bool `json:"can_add"`
	CanEdit   bool `json:"can_edit"`
	CanDelete bool `json:"can_delete"`
	CanPrint  bool `json:"can_print"`
}

// NoPermissions is the fail-closed result: every flag false.
var NoPermissions = Permissions{}

// FullPermissions grants every capability.
var FullPermissions = Permissions{CanView: true, CanAdd: true, CanEdit: true, CanDelete: true, CanPrint: true}

// Can reports whether the capability is granted. Unknown capabilities are never granted.
//
// Example:
//
//	if perms.Can(pagekit.CapabilityEdit) {
//	    // show the edit button
//	}
func (p Permissions) Can(c Capability) bool {
	switch c {
	case CapabilityView:
		return p.CanView
	case CapabilityAdd:
		return p.CanAdd
	case CapabilityEdit:
		return p.CanEdit
	case CapabilityDelete:
		return p.CanDelete
	case CapabilityPrint:
		return p.CanPrint
	}
	return false
}

// Union returns the flag-wise OR of p and other.
func (p Permissions) Union(other Permissions) Permissions {
	return Permissions{
		CanView:   p.CanView || other.CanView,
		CanAdd:    p.CanAdd || other.CanAdd,
		CanEdit:   p.CanEdit || other.CanEdit,
		CanDelete: p.CanDelete || other.CanDelete,
		CanPrint:  p.CanPrint || other.CanPrint,
	}
}

// Covers reports whether p grants at least everything other grants.
func (p Permissions) Covers(other Permissions) bool {
	return p.Union(other) == p
}

// Granted lists the granted capabilities in display order.
func (p Permissions) Granted() []Capability {
	var granted []Capability
	for _, c := range AllCapabilities() {
		if p.Can(c) {
			granted = append(granted, c)
		}
	}
	return granted
}

// IsEmpty reports whether nothing is granted.
func (p Permissions) IsEmpty() bool {
	return p == NoPermissions
}

// MergePermissions folds role permission rows into a single Permissions value by
// OR-ing every flag independently. An empty row set yields NoPermissions, and the
// result does not depend on row order.
//
// Example:
//
//	perms := pagekit.MergePermissions(
//	    pagekit.RolePermission{CanView: true, CanAdd: true},
//	    pagekit.RolePermission{CanEdit: true},
//	)
//	// perms == Permissions{CanView: true, CanAdd: true, CanEdit: true}
func MergePermissions(rows ...RolePermission) Permissions {
	merged := NoPermissions
	for _, row := range rows {
		merged = merged.Union(row.Flags())
	}
	return merged
}
