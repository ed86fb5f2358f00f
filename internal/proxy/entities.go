package proxy

import "strings"

// Entity describes how one proxy entity type maps onto the upstream API.
type Entity struct {
	Type        string
	Name        string
	SearchField string
	// HasActive is false for transaction entities, which carry no Active flag.
	HasActive bool
}

var entities = map[string]Entity{
	"customers": {Type: "customers", Name: "Customer", SearchField: "DisplayName", HasActive: true},
	"vendors":   {Type: "vendors", Name: "Vendor", SearchField: "DisplayName", HasActive: true},
	"items":     {Type: "items", Name: "Item", SearchField: "Name", HasActive: true},
	"accounts":  {Type: "accounts", Name: "Account", SearchField: "Name", HasActive: true},
	"employees": {Type: "employees", Name: "Employee", SearchField: "DisplayName", HasActive: true},
	"invoices":  {Type: "invoices", Name: "Invoice", SearchField: "DocNumber"},
	"bills":     {Type: "bills", Name: "Bill", SearchField: "DocNumber"},
}

// LookupEntity resolves a request type. Singular forms are accepted.
func LookupEntity(entityType string) (Entity, bool) {
	key := strings.ToLower(strings.TrimSpace(entityType))
	if e, ok := entities[key]; ok {
		return e, true
	}
	e, ok := entities[key+"s"]
	return e, ok
}

// EntityTypes lists the supported types for error messages.
func EntityTypes() []string {
	return []string{"customers", "vendors", "items", "accounts", "employees", "invoices", "bills"}
}
