package migrations

import "testing"

func TestNamesOrdered(t *testing.T) {
	names, err := Names()
	if err != nil {
		t.Fatalf("Names: %v", err)
	}
	if len(names) < 2 || names[0] != "001_init.sql" || names[1] != "002_payments.sql" {
		t.Fatalf("names = %v", names)
	}
}
