// internal/order/order.go
package order

import (
	"fmt"
	"strings"

	"sypbackend/internal/catalog"
)

// MaxStudents caps how many students one checkout can cover. The metadata
// flattening keeps every student under Stripe's 50-key metadata limit only
// up to this count.
const MaxStudents = 6

// DefaultBackground is applied when a student has no background choice.
const DefaultBackground = "F1"

// Parent holds the purchaser contact block shared by all students.
type Parent struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email"`
}

// StudentLine is one student's selections within an order.
type StudentLine struct {
	First      string   `json:"first"`
	Last       string   `json:"last"`
	Teacher    string   `json:"teacher"`
	Grade      string   `json:"grade"`
	Background string   `json:"background"`
	Package    string   `json:"package"`
	Addons     []string `json:"addons"`
}

// DisplayName is the label used on line items and receipts.
func (s StudentLine) DisplayName(index int) string {
	name := strings.TrimSpace(strings.TrimSpace(s.First) + " " + strings.TrimSpace(s.Last))
	if name == "" {
		return fmt.Sprintf("Student %d", index)
	}
	return name
}

// Order is a draft purchase for one parent and one or more students.
type Order struct {
	Parent   Parent        `json:"parent"`
	Students []StudentLine `json:"students"`
}

// NewOrder starts a draft with a single blank student.
func NewOrder() *Order {
	return &Order{
		Students: []StudentLine{{Background: DefaultBackground}},
	}
}

// AddStudent appends a blank student and returns its 1-based index.
func (o *Order) AddStudent() (int, error) {
	if len(o.Students) >= MaxStudents {
		return 0, fmt.Errorf("order already has the maximum of %d students", MaxStudents)
	}
	o.Students = append(o.Students, StudentLine{Background: DefaultBackground})
	return len(o.Students), nil
}

// RemoveStudent deletes the student at the 1-based index. The last remaining
// student cannot be removed; later students shift down to stay contiguous.
func (o *Order) RemoveStudent(index int) error {
	if index < 1 || index > len(o.Students) {
		return fmt.Errorf("no student at index %d", index)
	}
	if len(o.Students) == 1 {
		return fmt.Errorf("an order must keep at least one student")
	}
	o.Students = append(o.Students[:index-1], o.Students[index:]...)
	return nil
}

// SetPackage assigns a package code to the student at the 1-based index.
// Clearing the package also clears the student's add-ons.
func (o *Order) SetPackage(index int, code string) error {
	if index < 1 || index > len(o.Students) {
		return fmt.Errorf("no student at index %d", index)
	}
	s := &o.Students[index-1]
	s.Package = strings.ToUpper(strings.TrimSpace(code))
	if s.Package == "" {
		s.Addons = nil
	}
	return nil
}

// SetAddons assigns add-on codes to the student at the 1-based index.
// A student with no package cannot carry add-ons.
func (o *Order) SetAddons(index int, codes []string) error {
	if index < 1 || index > len(o.Students) {
		return fmt.Errorf("no student at index %d", index)
	}
	s := &o.Students[index-1]
	if s.Package == "" && len(codes) > 0 {
		return fmt.Errorf("student %d: add-ons require a package selection", index)
	}
	cleaned := make([]string, 0, len(codes))
	for _, code := range codes {
		code = strings.ToUpper(strings.TrimSpace(code))
		if code != "" {
			cleaned = append(cleaned, code)
		}
	}
	s.Addons = cleaned
	return nil
}

// Validate checks the order is submittable: parent contact complete, at
// least one student with a package, no add-on without a package, no
// unknown codes. Students with nothing selected are allowed and simply
// contribute nothing.
func (o *Order) Validate(svc *catalog.Service) error {
	if strings.TrimSpace(o.Parent.Name) == "" {
		return fmt.Errorf("field 'parent_name' is required")
	}
	if err := validateEmail(o.Parent.Email); err != nil {
		return err
	}
	if err := validatePhone(o.Parent.Phone); err != nil {
		return err
	}

	return o.ValidateSelections(svc)
}

// ValidateSelections checks the student rows alone, without the parent
// contact rules. The single-student reorder page never collected parent
// name or phone, so its checkout path validates with this instead.
func (o *Order) ValidateSelections(svc *catalog.Service) error {
	if len(o.Students) == 0 {
		return fmt.Errorf("order has no students")
	}
	if len(o.Students) > MaxStudents {
		return fmt.Errorf("order exceeds the maximum of %d students", MaxStudents)
	}

	hasPackage := false
	for i, s := range o.Students {
		if s.Package == "" && len(s.Addons) == 0 {
			continue
		}
		if err := svc.ValidateSelection(s.Package, s.Addons); err != nil {
			return fmt.Errorf("student %d: %w", i+1, err)
		}
		hasPackage = true
	}
	if !hasPackage {
		return fmt.Errorf("at least one student must have a package selection")
	}
	return nil
}

func validateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return fmt.Errorf("field 'parent_email' is required")
	}
	if !strings.Contains(email, "@") || !strings.Contains(email, ".") {
		return fmt.Errorf("invalid email format")
	}
	return nil
}

func validatePhone(phone string) error {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return fmt.Errorf("field 'parent_phone' is required")
	}
	sanitized := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, phone)
	if len(sanitized) < 10 {
		return fmt.Errorf("invalid phone number")
	}
	return nil
}

// LineItem is one priced row of an order summary. StudentIndex is 1-based
// and identifies the owning student through checkout and reconciliation.
type LineItem struct {
	StudentIndex int    `json:"student_index"`
	Code         string `json:"code"`
	IsAddon      bool   `json:"is_addon"`
	Description  string `json:"description"`
	AmountCents  int64  `json:"amount_cents"`
}

// Summary is the priced view of an order. All amounts come from the
// catalog; client-proposed prices never enter here.
type Summary struct {
	Lines      []LineItem `json:"lines"`
	TotalCents int64      `json:"total_cents"`
}

// ComputeSummary prices the order against the catalog. Single-student
// orders use the bare line labels the hosted checkout page shows; with
// several students each label is prefixed with the student's display name.
func (o *Order) ComputeSummary(svc *catalog.Service) (Summary, error) {
	var summary Summary

	multi := len(o.Students) > 1
	for i, s := range o.Students {
		index := i + 1
		if s.Package == "" {
			continue
		}

		pkgPrice, err := svc.PackagePrice(s.Package)
		if err != nil {
			return Summary{}, fmt.Errorf("student %d: %w", index, err)
		}
		desc := "Package " + s.Package
		if multi {
			desc = s.DisplayName(index) + " — " + desc
		}
		summary.Lines = append(summary.Lines, LineItem{
			StudentIndex: index,
			Code:         s.Package,
			Description:  desc,
			AmountCents:  pkgPrice,
		})
		summary.TotalCents += pkgPrice

		for _, addon := range s.Addons {
			price, err := svc.AddonPrice(addon)
			if err != nil {
				return Summary{}, fmt.Errorf("student %d: %w", index, err)
			}
			desc := "Add-on " + addon
			if name := svc.AddonName(addon); name != "" {
				desc += " — " + name
			}
			if multi {
				desc = s.DisplayName(index) + " — " + desc
			}
			summary.Lines = append(summary.Lines, LineItem{
				StudentIndex: index,
				Code:         addon,
				IsAddon:      true,
				Description:  desc,
				AmountCents:  price,
			})
			summary.TotalCents += price
		}
	}

	return summary, nil
}
