package proxy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLookupEntity(t *testing.T) {
	e, ok := LookupEntity("Customers")
	assert.True(t, ok)
	assert.Equal(t, "Customer", e.Name)

	e, ok = LookupEntity("invoice")
	assert.True(t, ok)
	assert.Equal(t, "invoices", e.Type)
	assert.False(t, e.HasActive)

	_, ok = LookupEntity("payroll")
	assert.False(t, ok)
}

func TestBuildQuery(t *testing.T) {
	customers, _ := LookupEntity("customers")
	invoices, _ := LookupEntity("invoices")

	tests := []struct {
		name   string
		entity Entity
		search string
		status string
		limit  int
		offset int
		want   string
	}{
		{
			name:   "active default",
			entity: customers, status: StatusActive, limit: 20,
			want: "SELECT * FROM Customer WHERE Active = true STARTPOSITION 1 MAXRESULTS 20",
		},
		{
			name:   "search and offset",
			entity: customers, search: "Acme", status: StatusInactive, limit: 10, offset: 30,
			want: "SELECT * FROM Customer WHERE Active = false AND DisplayName LIKE '%Acme%' STARTPOSITION 31 MAXRESULTS 10",
		},
		{
			name:   "all statuses",
			entity: customers, status: StatusAll, limit: 5,
			want: "SELECT * FROM Customer WHERE Active IN (true, false) STARTPOSITION 1 MAXRESULTS 5",
		},
		{
			name:   "quote escaped",
			entity: customers, search: `O'Brien\`, status: StatusActive, limit: 1,
			want: `SELECT * FROM Customer WHERE Active = true AND DisplayName LIKE '%O\'Brien\\%' STARTPOSITION 1 MAXRESULTS 1`,
		},
		{
			name:   "no active flag",
			entity: invoices, search: "1001", status: StatusActive, limit: 20,
			want: "SELECT * FROM Invoice WHERE DocNumber LIKE '%1001%' STARTPOSITION 1 MAXRESULTS 20",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BuildQuery(tt.entity, tt.search, tt.status, tt.limit, tt.offset))
		})
	}
}

func TestSanitizeIdempotent(t *testing.T) {
	payloads := []map[string]interface{}{
		{"Id": "1", "domain": "QBO", "sparse": false, "SyncToken": "0", "DisplayName": "Amy"},
		{"Id": "2", "Line": []interface{}{map[string]interface{}{"domain": "kept-nested"}}},
		{},
	}
	for _, p := range payloads {
		once := Sanitize(p)
		twice := Sanitize(once)
		assert.Equal(t, once, twice)
		for _, f := range internalFields {
			assert.NotContains(t, once, f)
		}
	}

	original := payloads[0]
	Sanitize(original)
	assert.Contains(t, original, "SyncToken", "input must not be mutated")
	assert.Nil(t, Sanitize(nil))
}
