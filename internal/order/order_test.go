package order

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sypbackend/internal/catalog"
)

func validOrder() *Order {
	return &Order{
		Parent: Parent{
			Name:  "Pat Example",
			Phone: "555-867-5309 x2",
			Email: "pat@example.com",
		},
		Students: []StudentLine{
			{First: "Ada", Last: "L.", Teacher: "Smith", Grade: "3", Background: "F1", Package: "A"},
		},
	}
}

func TestAddRemoveStudents(t *testing.T) {
	o := NewOrder()
	require.Len(t, o.Students, 1)
	assert.Equal(t, DefaultBackground, o.Students[0].Background)

	idx, err := o.AddStudent()
	require.NoError(t, err)
	assert.Equal(t, 2, idx)

	for len(o.Students) < MaxStudents {
		_, err := o.AddStudent()
		require.NoError(t, err)
	}
	_, err = o.AddStudent()
	assert.Error(t, err, "cannot exceed max students")

	// removing the middle student keeps indexes contiguous
	o.Students[0].First = "One"
	o.Students[1].First = "Two"
	o.Students[2].First = "Three"
	require.NoError(t, o.RemoveStudent(2))
	assert.Equal(t, "One", o.Students[0].First)
	assert.Equal(t, "Three", o.Students[1].First)
	assert.Len(t, o.Students, MaxStudents-1)

	assert.Error(t, o.RemoveStudent(0))
	assert.Error(t, o.RemoveStudent(99))
}

func TestRemoveLastStudentRejected(t *testing.T) {
	o := NewOrder()
	assert.Error(t, o.RemoveStudent(1))
	assert.Len(t, o.Students, 1)
}

func TestSetPackageClearsAddons(t *testing.T) {
	o := NewOrder()
	require.NoError(t, o.SetPackage(1, "b1"))
	assert.Equal(t, "B1", o.Students[0].Package)

	require.NoError(t, o.SetAddons(1, []string{"f", " G "}))
	assert.Equal(t, []string{"F", "G"}, o.Students[0].Addons)

	require.NoError(t, o.SetPackage(1, ""))
	assert.Empty(t, o.Students[0].Addons)
}

func TestSetAddonsRequiresPackage(t *testing.T) {
	o := NewOrder()
	err := o.SetAddons(1, []string{"F"})
	assert.Error(t, err)

	// clearing addons on a package-less student is allowed
	assert.NoError(t, o.SetAddons(1, nil))
}

func TestValidate(t *testing.T) {
	svc := catalog.NewService()

	t.Run("valid order", func(t *testing.T) {
		assert.NoError(t, validOrder().Validate(svc))
	})

	t.Run("missing parent name", func(t *testing.T) {
		o := validOrder()
		o.Parent.Name = " "
		assert.ErrorContains(t, o.Validate(svc), "parent_name")
	})

	t.Run("bad email", func(t *testing.T) {
		o := validOrder()
		o.Parent.Email = "not-an-email"
		assert.ErrorContains(t, o.Validate(svc), "email")
	})

	t.Run("short phone", func(t *testing.T) {
		o := validOrder()
		o.Parent.Phone = "555-1234"
		assert.ErrorContains(t, o.Validate(svc), "phone")
	})

	t.Run("student without package", func(t *testing.T) {
		o := validOrder()
		o.Students[0].Package = ""
		assert.ErrorContains(t, o.Validate(svc), "at least one student")
	})

	t.Run("sibling without package allowed", func(t *testing.T) {
		o := validOrder()
		o.Students = append(o.Students, StudentLine{First: "Bo", Last: "K.", Background: "F1"})
		assert.NoError(t, o.Validate(svc))
	})

	t.Run("unknown package code", func(t *testing.T) {
		o := validOrder()
		o.Students[0].Package = "Z9"
		assert.ErrorContains(t, o.Validate(svc), "unknown package")
	})

	t.Run("addons without package", func(t *testing.T) {
		o := validOrder()
		o.Students[0].Package = ""
		o.Students[0].Addons = []string{"F"}
		assert.ErrorContains(t, o.Validate(svc), "add-ons require a package")
	})
}

func TestValidateSelectionsSkipsParentChecks(t *testing.T) {
	svc := catalog.NewService()

	o := &Order{Students: []StudentLine{{Package: "B1", Addons: []string{"F"}}}}
	require.NoError(t, o.ValidateSelections(svc))
	assert.Error(t, o.Validate(svc), "full validation still requires parent contact")

	o.Students[0].Package = "Q9"
	assert.Error(t, o.ValidateSelections(svc))
}

func TestComputeSummarySingleStudent(t *testing.T) {
	svc := catalog.NewService()

	o := validOrder()
	o.Students[0].Package = "B1"
	o.Students[0].Addons = []string{"F"}

	summary, err := o.ComputeSummary(svc)
	require.NoError(t, err)

	require.Len(t, summary.Lines, 2)
	assert.Equal(t, "Package B1", summary.Lines[0].Description)
	assert.Equal(t, int64(3200), summary.Lines[0].AmountCents)
	assert.Equal(t, 1, summary.Lines[0].StudentIndex)

	assert.Equal(t, "Add-on F — 8x10 Print", summary.Lines[1].Description)
	assert.Equal(t, int64(600), summary.Lines[1].AmountCents)
	assert.True(t, summary.Lines[1].IsAddon)

	assert.Equal(t, int64(3800), summary.TotalCents)
}

func TestComputeSummaryMultiStudent(t *testing.T) {
	svc := catalog.NewService()

	o := &Order{
		Parent: Parent{Name: "Pat Example", Phone: "5558675309", Email: "pat@example.com"},
		Students: []StudentLine{
			{First: "Ada", Last: "L.", Package: "A"},
			{First: "Bo", Last: "K.", Package: "E", Addons: []string{"F", "G"}},
		},
	}

	summary, err := o.ComputeSummary(svc)
	require.NoError(t, err)
	require.Len(t, summary.Lines, 4)

	assert.Equal(t, "Ada L. — Package A", summary.Lines[0].Description)
	assert.Equal(t, "Bo K. — Package E", summary.Lines[1].Description)
	assert.Equal(t, "Bo K. — Add-on F — 8x10 Print", summary.Lines[2].Description)
	assert.Equal(t, 2, summary.Lines[3].StudentIndex)
	assert.Equal(t, int64(3200+1200+600+600), summary.TotalCents)
}

func TestComputeSummarySkipsPackagelessStudents(t *testing.T) {
	svc := catalog.NewService()

	o := &Order{
		Parent: Parent{Name: "Pat Example", Phone: "5558675309", Email: "pat@example.com"},
		Students: []StudentLine{
			{First: "Ada", Last: "L.", Package: "A"},
			{First: "Bo", Last: "K."},
		},
	}

	summary, err := o.ComputeSummary(svc)
	require.NoError(t, err)
	require.Len(t, summary.Lines, 1)
	assert.Equal(t, "Ada L. — Package A", summary.Lines[0].Description)
	assert.Equal(t, int64(3200), summary.TotalCents)

	o.Students[0].Package = ""
	summary, err = o.ComputeSummary(svc)
	require.NoError(t, err)
	assert.Empty(t, summary.Lines)
	assert.Zero(t, summary.TotalCents)
}

func TestComputeSummaryRejectsUnknownCodes(t *testing.T) {
	svc := catalog.NewService()

	o := validOrder()
	o.Students[0].Package = "Q"
	_, err := o.ComputeSummary(svc)
	assert.Error(t, err)

	o = validOrder()
	o.Students[0].Addons = []string{"ZZ"}
	_, err = o.ComputeSummary(svc)
	assert.Error(t, err)
}
