package rbac

import (
	"sort"
	"time"
)

// Resource is a protectable noun.
type Resource string

// Resources known to the system. The set is closed.
const (
	ResourceProducts       Resource = "products"
	ResourceInventory      Resource = "inventory"
	ResourceSales          Resource = "sales"
	ResourceInvoices       Resource = "invoices"
	ResourceCustomers      Resource = "customers"
	ResourceVendors        Resource = "vendors"
	ResourcePurchaseOrders Resource = "purchase_orders"
	ResourceReports        Resource = "reports"
	ResourceSettings       Resource = "settings"
	ResourceUsers          Resource = "users"
	ResourceActivity       Resource = "activity"

	// AnyResource is accepted in stored role maps and expands to every resource.
	AnyResource Resource = "*"
)

// Action is a permission verb.
type Action string

// Actions known to the system. The set is closed.
const (
	ActionCreate Action = "create"
	ActionRead   Action = "read"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	ActionPrint  Action = "print"
	ActionExport Action = "export"
)

// AllResources lists every concrete resource.
func AllResources() []Resource {
	return []Resource{
		ResourceProducts, ResourceInventory, ResourceSales, ResourceInvoices,
		ResourceCustomers, ResourceVendors, ResourcePurchaseOrders, ResourceReports,
		ResourceSettings, ResourceUsers, ResourceActivity,
	}
}

// AllActions lists every action.
func AllActions() []Action {
	return []Action{ActionCreate, ActionRead, ActionUpdate, ActionDelete, ActionPrint, ActionExport}
}

// Valid reports whether r is a known resource.
func (r Resource) Valid() bool {
	for _, known := range AllResources() {
		if r == known {
			return true
		}
	}
	return false
}

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	for _, known := range AllActions() {
		if a == known {
			return true
		}
	}
	return false
}

// PermissionMap maps a resource to the actions granted on it.
type PermissionMap map[Resource][]Action

// Has reports whether the map grants action on resource.
func (m PermissionMap) Has(resource Resource, action Action) bool {
	for _, a := range m[resource] {
		if a == action {
			return true
		}
	}
	return false
}

// Clone returns a deep copy.
func (m PermissionMap) Clone() PermissionMap {
	out := make(PermissionMap, len(m))
	for r, actions := range m {
		cp := make([]Action, len(actions))
		copy(cp, actions)
		out[r] = cp
	}
	return out
}

// Role is a named bundle of permissions.
type Role struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Permissions PermissionMap `json:"permissions"`
	IsSystem    bool          `json:"is_system"`
	IsAdmin     bool          `json:"is_admin"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// Assignment ties an identity to a role.
type Assignment struct {
	IdentityID string    `json:"identity_id"`
	RoleID     string    `json:"role_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// Identity is the subset of a user the resolver needs.
type Identity struct {
	ID          string
	IsActive    bool
	IsSuperuser bool
}

// Names of roles that grant unrestricted access.
const (
	AdminRoleName      = "Admin"
	SuperAdminRoleName = "Super Admin"
)

// BuiltinRoles returns the seed roles. They are marked as system roles and
// cannot be deleted through the role service.
func BuiltinRoles() []Role {
	all := func(actions ...Action) PermissionMap {
		m := PermissionMap{}
		for _, r := range AllResources() {
			m[r] = append([]Action(nil), actions...)
		}
		return m
	}
	return []Role{
		{
			Name:        AdminRoleName,
			Description: "Full access to every module",
			Permissions: all(AllActions()...),
			IsSystem:    true,
			IsAdmin:     true,
		},
		{
			Name:        "Manager",
			Description: "Runs the store day to day",
			Permissions: PermissionMap{
				ResourceProducts:       {ActionCreate, ActionRead, ActionUpdate, ActionDelete, ActionExport},
				ResourceInventory:      {ActionCreate, ActionRead, ActionUpdate, ActionExport},
				ResourceSales:          {ActionCreate, ActionRead, ActionUpdate, ActionPrint, ActionExport},
				ResourceInvoices:       {ActionCreate, ActionRead, ActionUpdate, ActionPrint, ActionExport},
				ResourceCustomers:      {ActionCreate, ActionRead, ActionUpdate, ActionExport},
				ResourceVendors:        {ActionCreate, ActionRead, ActionUpdate},
				ResourcePurchaseOrders: {ActionCreate, ActionRead, ActionUpdate, ActionPrint},
				ResourceReports:        {ActionRead, ActionPrint, ActionExport},
				ResourceActivity:       {ActionRead},
				ResourceUsers:          {ActionRead},
			},
			IsSystem: true,
		},
		{
			Name:        "Staff",
			Description: "Sales floor and stock handling",
			Permissions: PermissionMap{
				ResourceProducts:  {ActionRead, ActionUpdate},
				ResourceInventory: {ActionRead, ActionUpdate},
				ResourceSales:     {ActionCreate, ActionRead},
				ResourceCustomers: {ActionCreate, ActionRead, ActionUpdate},
				ResourceInvoices:  {ActionRead},
			},
			IsSystem: true,
		},
		{
			Name:        "Cashier",
			Description: "Checkout and billing",
			Permissions: PermissionMap{
				ResourceSales:     {ActionCreate, ActionRead, ActionPrint},
				ResourceInvoices:  {ActionCreate, ActionRead, ActionPrint},
				ResourceCustomers: {ActionCreate, ActionRead},
				ResourceProducts:  {ActionRead},
			},
			IsSystem: true,
		},
		{
			Name:        "Viewer",
			Description: "Read-only access",
			Permissions: PermissionMap{AnyResource: {ActionRead}},
			IsSystem:    true,
		},
	}
}

// Snapshot is the resolved access of one identity at one point in time.
type Snapshot struct {
	IdentityID  string        `json:"identity_id"`
	Admin       bool          `json:"admin"`
	Permissions PermissionMap `json:"permissions"`
	ResolvedAt  time.Time     `json:"resolved_at"`
}

// Has reports whether the snapshot allows action on resource.
func (s *Snapshot) Has(resource Resource, action Action) bool {
	if s == nil {
		return false
	}
	if s.Admin {
		return true
	}
	return s.Permissions.Has(resource, action)
}

func sortedActions(set map[Action]struct{}) []Action {
	out := make([]Action, 0, len(set))
	for a := range set {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
