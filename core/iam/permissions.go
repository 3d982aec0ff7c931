package iam

import (
	"sort"
	"strings"
)

// Permission is a grantable capability, following the resource:action convention.
// The catalog is fixed at deploy time; there are no mutation operations.
type Permission struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

var Catalog = []Permission{
	{Name: "schools:create", Description: "Register new schools on the platform"},
	{Name: "schools:read", Description: "View school profiles and settings"},
	{Name: "schools:update", Description: "Update school profiles and settings"},
	{Name: "schools:delete", Description: "Archive or remove schools"},
	{Name: "users:create", Description: "Create platform user accounts"},
	{Name: "users:read", Description: "View platform user accounts"},
	{Name: "users:update", Description: "Update platform user accounts"},
	{Name: "users:delete", Description: "Deactivate or remove platform user accounts"},
	{Name: "staff:read", Description: "View staff records"},
	{Name: "staff:manage", Description: "Create and update staff records"},
	{Name: "students:read", Description: "View student records"},
	{Name: "students:manage", Description: "Create and update student records"},
	{Name: "attendance:read", Description: "View attendance registers"},
	{Name: "attendance:record", Description: "Record and amend attendance"},
	{Name: "grades:read", Description: "View grades and report cards"},
	{Name: "grades:record", Description: "Record and amend grades"},
	{Name: "exams:manage", Description: "Schedule and manage examinations"},
	{Name: "fees:read", Description: "View fee structures and payment history"},
	{Name: "fees:manage", Description: "Manage fee structures and record payments"},
	{Name: "timetable:read", Description: "View timetables"},
	{Name: "timetable:manage", Description: "Build and publish timetables"},
	{Name: "messages:send", Description: "Send messages and announcements"},
	{Name: "reports:read", Description: "View and export platform reports"},
	{Name: "audit:read", Description: "View audit logs"},
	{Name: "analytics:read", Description: "View platform analytics dashboards"},
	{Name: "delegations:manage", Description: "Manage delegated accounts"},
}

var catalogNames = catalogNameIndex()

func catalogNameIndex() []string {
	names := make([]string, 0, len(Catalog))
	for _, p := range Catalog {
		names = append(names, p.Name)
	}
	sort.Strings(names)
	return names
}

// IsValidPermission reports whether name is in the catalog.
func IsValidPermission(name string) bool {
	if idx := sort.SearchStrings(catalogNames, name); idx < len(catalogNames) {
		return catalogNames[idx] == name
	}
	return false
}

// SearchPermissions returns catalog entries whose name or description contains
// the query (case-insensitive), sorted by name ascending. An empty query
// returns the whole catalog.
func SearchPermissions(query string) []Permission {
	query = strings.ToLower(strings.TrimSpace(query))

	matches := make([]Permission, 0, len(Catalog))
	for _, p := range Catalog {
		if query == "" ||
			strings.Contains(strings.ToLower(p.Name), query) ||
			strings.Contains(strings.ToLower(p.Description), query) {
			matches = append(matches, p)
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Name < matches[j].Name })
	return matches
}
