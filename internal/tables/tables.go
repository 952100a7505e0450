// Copyright (c) 2026 Repairdesk Team
// Repairdesk - tenant database lifecycle manager
// This source code is licensed under the MIT license found in the LICENSE file.

// Package tables is the closed catalog of tenant-scoped business tables.
// Every table name that reaches generated SQL comes from this catalog, never
// from user input.
package tables

import "fmt"

// ScopeColumn is the column that assigns a master row to a shop.
const ScopeColumn = "shop_id"

// Descriptor names a tenant-scoped table, its integer primary key and the
// scope column that is stripped when rows move to the tenant store.
type Descriptor struct {
	Name  string
	PK    string
	Scope string
}

func (d Descriptor) String() string { return d.Name }

// Relation is a foreign key from Child.Column to Parent.ParentPK. Relations
// are not enforced by the tenant schema; validation checks them instead.
type Relation struct {
	Child    string
	Column   string
	Parent   string
	ParentPK string
}

func (r Relation) String() string {
	return fmt.Sprintf("%s.%s -> %s.%s", r.Child, r.Column, r.Parent, r.ParentPK)
}

// catalog is ordered parents first.
var catalog = []Descriptor{
	{Name: "customers", PK: "id", Scope: ScopeColumn},
	{Name: "spare_parts", PK: "id", Scope: ScopeColumn},
	{Name: "newsletters", PK: "id", Scope: ScopeColumn},
	{Name: "repairs", PK: "id", Scope: ScopeColumn},
	{Name: "repair_spare_parts", PK: "id", Scope: ScopeColumn},
}

var relations = []Relation{
	{Child: "repairs", Column: "customer_id", Parent: "customers", ParentPK: "id"},
	{Child: "repair_spare_parts", Column: "repair_id", Parent: "repairs", ParentPK: "id"},
	{Child: "repair_spare_parts", Column: "spare_part_id", Parent: "spare_parts", ParentPK: "id"},
}

// All returns the catalog in migration order.
func All() []Descriptor {
	out := make([]Descriptor, len(catalog))
	copy(out, catalog)
	return out
}

// Names returns the table names in migration order.
func Names() []string {
	out := make([]string, len(catalog))
	for i, d := range catalog {
		out[i] = d.Name
	}
	return out
}

// Lookup finds a table by name.
func Lookup(name string) (Descriptor, bool) {
	for _, d := range catalog {
		if d.Name == name {
			return d, true
		}
	}
	return Descriptor{}, false
}

// Relations returns every declared foreign key.
func Relations() []Relation {
	out := make([]Relation, len(relations))
	copy(out, relations)
	return out
}

// Select returns the descriptors for names, in catalog order. An empty list
// selects every table.
func Select(names []string) ([]Descriptor, error) {
	if len(names) == 0 {
		return All(), nil
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		if _, ok := Lookup(n); !ok {
			return nil, fmt.Errorf("unknown table %q", n)
		}
		want[n] = true
	}
	var out []Descriptor
	for _, d := range catalog {
		if want[d.Name] {
			out = append(out, d)
		}
	}
	return out, nil
}
