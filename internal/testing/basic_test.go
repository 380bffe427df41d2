// basic_test.go - Suite wiring sanity checks
package testing

import (
	"testing"

	"sypbackend/internal/data"
)

func TestSuiteSetup(t *testing.T) {
	suite := NewTestSuite(t)

	if suite.Server == nil || suite.Stripe == nil {
		t.Fatal("Suite did not wire the server and mock Stripe")
	}

	// Schema is in place
	if _, err := data.GetOrderRowsBySession("cs_none"); err != nil {
		t.Errorf("Orders table not usable: %v", err)
	}

	// Catalog defaults loaded
	if len(suite.Catalog.AvailablePackages()) != 10 {
		t.Errorf("Expected 10 packages, got %d", len(suite.Catalog.AvailablePackages()))
	}
	if len(suite.Catalog.AvailableAddons()) != 9 {
		t.Errorf("Expected 9 add-ons, got %d", len(suite.Catalog.AvailableAddons()))
	}
}
