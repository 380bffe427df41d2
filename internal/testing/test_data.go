// test_data.go - Shared fixtures for the integration tests
package testing

// TwoStudentCheckoutRequest is the standard happy-path order: package A for
// the first student, package E with two add-ons for the second.
// Server-side total: 3200 + 1200 + 600 + 600 = 5600 cents.
func TwoStudentCheckoutRequest() map[string]interface{} {
	return map[string]interface{}{
		"parent": map[string]string{
			"name":  "Pat Example",
			"phone": "555-867-5309",
			"email": "parent@example.com",
		},
		"students": []map[string]interface{}{
			{
				"first":      "Ada",
				"last":       "L.",
				"teacher":    "Ms. Reyes",
				"grade":      "3",
				"background": "F1",
				"package":    "A",
			},
			{
				"first":      "Bo",
				"last":       "K.",
				"teacher":    "Mr. Holt",
				"grade":      "5",
				"background": "F2",
				"package":    "E",
				"addons":     []string{"F", "G"},
			},
		},
		"line_items": []map[string]interface{}{
			lineItem("Ada L. — Package A", 3200),
			lineItem("Bo K. — Package E", 1200),
			lineItem("Bo K. — Add-on F — 8x10 Print", 600),
			lineItem("Bo K. — Add-on G — 2x 5x7 Prints", 600),
		},
	}
}

// TamperedCheckoutRequest carries client line items that disagree with the
// catalog prices for the same selections.
func TamperedCheckoutRequest() map[string]interface{} {
	req := TwoStudentCheckoutRequest()
	req["line_items"] = []map[string]interface{}{
		lineItem("Ada L. — Package A", 100),
		lineItem("Bo K. — Package E", 100),
	}
	return req
}

// SingleStudentCheckoutRequest exercises the minimal order shape with no
// client line items at all.
func SingleStudentCheckoutRequest() map[string]interface{} {
	return map[string]interface{}{
		"parent": map[string]string{
			"name":  "Sam Solo",
			"phone": "555-555-0100",
			"email": "solo@example.com",
		},
		"students": []map[string]interface{}{
			{
				"first":   "Max",
				"last":    "S.",
				"teacher": "Mrs. Park",
				"grade":   "1",
				"package": "C1",
			},
		},
	}
}

// LegacyCheckoutRequest is the old single-student page shape: flat metadata
// and prebuilt line items, no parent or students block.
func LegacyCheckoutRequest() map[string]interface{} {
	return map[string]interface{}{
		"email": "legacy@example.com",
		"metadata": map[string]string{
			"parent_name":   "Lee Legacy",
			"parent_phone":  "555-555-0199",
			"parent_email":  "legacy@example.com",
			"student_first": "Kim",
			"student_last":  "L.",
			"teacher":       "Ms. Old",
			"grade":         "2",
			"background":    "F3",
			"package":       "D",
			"addons":        "N",
		},
		"line_items": []map[string]interface{}{
			lineItem("Package D", 1800),
			lineItem("Add-on N — Digital File", 1500),
		},
	}
}

// FlatCheckoutRequest is the reorder-page shape: package and addons as
// top-level body keys, no metadata map, no parent contact beyond email.
func FlatCheckoutRequest() map[string]interface{} {
	return map[string]interface{}{
		"package": "B1",
		"addons":  []string{"F"},
		"email":   "flat@example.com",
	}
}

func lineItem(name string, unitAmount int64) map[string]interface{} {
	return map[string]interface{}{
		"quantity": 1,
		"price_data": map[string]interface{}{
			"currency":     "usd",
			"unit_amount":  unitAmount,
			"product_data": map[string]interface{}{"name": name},
		},
	}
}
