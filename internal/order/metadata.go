// internal/order/metadata.go
package order

import (
	"fmt"
	"strconv"
	"strings"
)

// Metadata is flattened to string keys because the payment provider only
// carries flat string maps on a session. Keys:
//
//	students_count, parent_name, parent_phone, parent_email
//	s{i}_first, s{i}_last, s{i}_teacher, s{i}_grade, s{i}_bg,
//	s{i}_pkg, s{i}_addons   (i is 1-based; addons comma-joined)
//
// DecodeMetadata additionally accepts older shapes: a combined s{i}_name
// key, and single-student sessions that used bare package/addons/
// student_first/... keys with no index at all.

// DecodedStudent is one student reconstructed from session metadata.
type DecodedStudent struct {
	Index       int
	Name        string
	First       string
	Last        string
	Teacher     string
	Grade       string
	Background  string
	Package     string
	Addons      []string
	PackageLine string
	AmountCents int64
}

// EncodeMetadata flattens an order into session metadata.
func EncodeMetadata(o *Order) (map[string]string, error) {
	if len(o.Students) == 0 {
		return nil, fmt.Errorf("order has no students")
	}
	if len(o.Students) > MaxStudents {
		return nil, fmt.Errorf("order exceeds the maximum of %d students", MaxStudents)
	}

	md := map[string]string{
		"meta_version":   "2",
		"students_count": strconv.Itoa(len(o.Students)),
	}
	putNonEmpty(md, "parent_name", o.Parent.Name)
	putNonEmpty(md, "parent_phone", o.Parent.Phone)
	putNonEmpty(md, "parent_email", o.Parent.Email)

	for i, s := range o.Students {
		prefix := fmt.Sprintf("s%d_", i+1)
		putNonEmpty(md, prefix+"first", s.First)
		putNonEmpty(md, prefix+"last", s.Last)
		putNonEmpty(md, prefix+"teacher", s.Teacher)
		putNonEmpty(md, prefix+"grade", s.Grade)
		bg := s.Background
		if bg == "" {
			bg = DefaultBackground
		}
		md[prefix+"bg"] = bg
		putNonEmpty(md, prefix+"pkg", s.Package)
		if len(s.Addons) > 0 {
			md[prefix+"addons"] = strings.Join(s.Addons, ",")
		}
	}
	return md, nil
}

// DecodeMetadata reconstructs the per-student view from session metadata.
// Missing keys become empty strings; a student with no data at all still
// occupies its slot so indexes stay aligned with what was encoded.
func DecodeMetadata(md map[string]string) []DecodedStudent {
	count := metadataStudentCount(md)
	if count == 0 {
		if s, ok := decodeFlatStudent(md); ok {
			return []DecodedStudent{s}
		}
		return nil
	}

	students := make([]DecodedStudent, 0, count)
	for i := 1; i <= count; i++ {
		prefix := fmt.Sprintf("s%d_", i)
		first := safeGet(md, prefix+"first")
		last := safeGet(md, prefix+"last")

		name := safeGet(md, prefix+"name")
		if name == "" {
			name = strings.TrimSpace(first + " " + last)
		}
		if name == "" {
			name = fmt.Sprintf("Student %d", i)
		}

		bg := safeGet(md, prefix+"bg")
		if bg == "" {
			bg = DefaultBackground
		}

		pkg := safeGet(md, prefix+"pkg")
		addons := splitAddons(safeGet(md, prefix+"addons"))

		students = append(students, DecodedStudent{
			Index:       i,
			Name:        name,
			First:       first,
			Last:        last,
			Teacher:     safeGet(md, prefix+"teacher"),
			Grade:       safeGet(md, prefix+"grade"),
			Background:  bg,
			Package:     pkg,
			Addons:      addons,
			PackageLine: packageLine(pkg, addons),
		})
	}
	return students
}

// metadataStudentCount reads students_count, falling back to scanning for
// the highest s{i}_ index when the count key is absent or malformed.
func metadataStudentCount(md map[string]string) int {
	if raw, ok := md["students_count"]; ok {
		if n, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil && n > 0 {
			return n
		}
	}

	max := 0
	for key := range md {
		if !strings.HasPrefix(key, "s") {
			continue
		}
		rest := key[1:]
		underscore := strings.IndexByte(rest, '_')
		if underscore <= 0 {
			continue
		}
		n, err := strconv.Atoi(rest[:underscore])
		if err != nil || n <= 0 {
			continue
		}
		if n > max {
			max = n
		}
	}
	return max
}

// decodeFlatStudent handles sessions created by the old single-student
// order page, which wrote unindexed keys.
func decodeFlatStudent(md map[string]string) (DecodedStudent, bool) {
	pkg := safeGet(md, "package")
	first := safeGet(md, "student_first")
	last := safeGet(md, "student_last")
	if pkg == "" && first == "" && last == "" {
		return DecodedStudent{}, false
	}

	name := strings.TrimSpace(first + " " + last)
	if name == "" {
		name = "Student 1"
	}
	bg := safeGet(md, "background")
	if bg == "" {
		bg = DefaultBackground
	}
	addons := splitAddons(safeGet(md, "addons"))

	return DecodedStudent{
		Index:       1,
		Name:        name,
		First:       first,
		Last:        last,
		Teacher:     safeGet(md, "teacher"),
		Grade:       safeGet(md, "grade"),
		Background:  bg,
		Package:     pkg,
		Addons:      addons,
		PackageLine: packageLine(pkg, addons),
	}, true
}

func packageLine(pkg string, addons []string) string {
	parts := make([]string, 0, 2)
	if pkg != "" {
		parts = append(parts, pkg)
	}
	if len(addons) > 0 {
		parts = append(parts, strings.Join(addons, ", "))
	}
	return strings.Join(parts, ", ")
}

func splitAddons(raw string) []string {
	if raw == "" {
		return nil
	}
	var addons []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			addons = append(addons, part)
		}
	}
	return addons
}

func safeGet(md map[string]string, key string) string {
	return strings.TrimSpace(md[key])
}

func putNonEmpty(md map[string]string, key, value string) {
	value = strings.TrimSpace(value)
	if value != "" {
		md[key] = value
	}
}
