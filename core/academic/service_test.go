package academic_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/academic"
	"github.com/trezcool/shule/core/student"
	"github.com/trezcool/shule/internal/testutil"
)

func activeYears(t *testing.T, env *testutil.Env) []string {
	years, err := env.Academic.QueryYears(context.Background(), nil)
	require.NoError(t, err)
	var active []string
	for _, y := range years {
		if y.IsActive {
			active = append(active, y.Name)
		}
	}
	return active
}

func TestService_singleActiveYear(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()

	y1 := env.CreateYear(t, "2025-2026", true)
	assert.True(t, y1.IsActive)
	y2 := env.CreateYear(t, "2026-2027", true)
	assert.True(t, y2.IsActive)
	assert.Equal(t, []string{"2026-2027"}, activeYears(t, env), "creating an active year deactivates the others")

	y3 := env.CreateYear(t, "2027-2028", false)
	active := true
	y3, err := env.Academic.UpdateYear(ctx, y3, academic.UpdateYear{IsActive: &active})
	require.NoError(t, err)
	assert.True(t, y3.IsActive)
	assert.Equal(t, []string{"2027-2028"}, activeYears(t, env))

	y1, err = env.Academic.ActivateYear(ctx, y1.ID)
	require.NoError(t, err)
	assert.True(t, y1.IsActive)
	assert.Equal(t, []string{"2025-2026"}, activeYears(t, env))

	got, err := env.Academic.GetActiveYear(ctx)
	require.NoError(t, err)
	assert.Equal(t, y1.ID, got.ID)

	inactive := false
	_, err = env.Academic.UpdateYear(ctx, y1, academic.UpdateYear{IsActive: &inactive})
	require.NoError(t, err)
	assert.Empty(t, activeYears(t, env))
	_, err = env.Academic.GetActiveYear(ctx)
	assert.True(t, core.IsNotFound(err))

	_, err = env.Academic.ActivateYear(ctx, "0b7c1f59-3d0e-4b36-9f0c-cb9e57b1f0a1")
	assert.True(t, core.IsNotFound(err))
}

func TestService_createActiveYearFailure(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	current := env.CreateYear(t, "2025-2026", true)

	_, err := env.Academic.CreateYear(ctx, academic.NewYear{Name: "2025-2026", StartDate: "2026-09-01", EndDate: "2027-07-01", IsActive: true})
	require.Error(t, err)

	years, err := env.Academic.QueryYears(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, years, 1, "a rejected year is not stored")
	assert.Equal(t, []string{current.Name}, activeYears(t, env), "the active year is kept")
}

func TestService_years(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	y := env.CreateYear(t, "2026-2027", false)

	tests := []struct {
		name  string
		ny    academic.NewYear
		field string
	}{
		{name: "end before start", ny: academic.NewYear{Name: "X", StartDate: "2026-09-01", EndDate: "2026-08-01"}, field: "end_date"},
		{name: "same day", ny: academic.NewYear{Name: "X", StartDate: "2026-09-01", EndDate: "2026-09-01"}, field: "end_date"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.field, testutil.ErrorField(tt.ny.Validate(env.Validate)))
		})
	}

	_, err := env.Academic.CreateYear(ctx, academic.NewYear{Name: "2026-2027", StartDate: "2026-09-01", EndDate: "2027-07-01"})
	assert.Equal(t, "name", testutil.ErrorField(err))

	end := "2026-01-01"
	_, err = env.Academic.UpdateYear(ctx, y, academic.UpdateYear{EndDate: &end})
	assert.Equal(t, "end_date", testutil.ErrorField(err))

	name := "Year 2026"
	y, err = env.Academic.UpdateYear(ctx, y, academic.UpdateYear{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Year 2026", y.Name)

	c := env.CreateClass(t, "g1", y.ID)
	require.NoError(t, env.Academic.DeleteYear(ctx, y.ID))
	c, err = env.Academic.GetClass(ctx, c.ID)
	require.NoError(t, err)
	assert.Empty(t, c.AcademicYearID, "deleting a year detaches its classes")
	assert.True(t, core.IsNotFound(env.Academic.DeleteYear(ctx, y.ID)))
}

func TestService_classes(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	y := env.CreateYear(t, "2026-2027", true)
	usr := env.CreateUser(t, "Jane", "jane", "")
	plain := env.CreateTeacher(t, "T1", usr.ID, false)
	head := env.CreateTeacher(t, "T2", "", true)

	tests := []struct {
		name  string
		nc    academic.NewClass
		field string
	}{
		{name: "unknown year", nc: academic.NewClass{Name: "A", Code: "a", AcademicYearID: "0b7c1f59-3d0e-4b36-9f0c-cb9e57b1f0a1"}, field: "academic_year_id"},
		{name: "unknown class teacher", nc: academic.NewClass{Name: "A", Code: "a", ClassTeacherID: "0b7c1f59-3d0e-4b36-9f0c-cb9e57b1f0a1"}, field: "class_teacher_id"},
		{name: "head teacher not flagged", nc: academic.NewClass{Name: "A", Code: "a", HeadTeacherID: plain.ID}, field: "head_teacher_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.Academic.CreateClass(ctx, tt.nc)
			assert.Equal(t, tt.field, testutil.ErrorField(err))
		})
	}

	c, err := env.Academic.CreateClass(ctx, academic.NewClass{
		Name: "Grade 7", Code: "g7", Level: 7, AcademicYearID: y.ID, ClassTeacherID: plain.ID, HeadTeacherID: head.ID,
	})
	require.NoError(t, err)
	_, err = env.Academic.CreateClass(ctx, academic.NewClass{Name: "Other", Code: "g7"})
	assert.Equal(t, "code", testutil.ErrorField(err))

	env.CreateClass(t, "g8", "")
	byTeacher, err := env.Academic.QueryClasses(ctx, &academic.ClassFilter{TeacherID: head.ID}, nil)
	require.NoError(t, err)
	require.Len(t, byTeacher, 1)
	assert.Equal(t, c.ID, byTeacher[0].ID)

	byYear, err := env.Academic.QueryClasses(ctx, &academic.ClassFilter{AcademicYearID: y.ID}, nil)
	require.NoError(t, err)
	assert.Len(t, byYear, 1)

	none := ""
	c, err = env.Academic.UpdateClass(ctx, c, academic.UpdateClass{HeadTeacherID: &none})
	require.NoError(t, err)
	assert.Empty(t, c.HeadTeacherID)
	assert.Equal(t, plain.ID, c.ClassTeacherID)

	require.NoError(t, env.Teachers.Delete(ctx, plain.ID))
	c, err = env.Academic.GetClass(ctx, c.ID)
	require.NoError(t, err)
	assert.Empty(t, c.ClassTeacherID, "deleting a teacher detaches its classes")
}

func TestService_subjectAssignments(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	c := env.CreateClass(t, "g7", "")
	math := env.CreateSubject(t, "math")
	bio := env.CreateSubject(t, "bio")
	tch := env.CreateTeacher(t, "T1", "", false)

	_, err := env.Academic.AssignSubject(ctx, c.ID, academic.AssignSubject{SubjectID: math.ID})
	require.NoError(t, err)
	_, err = env.Academic.AssignSubject(ctx, c.ID, academic.AssignSubject{SubjectID: bio.ID})
	require.NoError(t, err)
	cs, err := env.Academic.AssignSubject(ctx, c.ID, academic.AssignSubject{SubjectID: math.ID, TeacherID: tch.ID})
	require.NoError(t, err, "re-assigning updates the teacher")
	assert.Equal(t, tch.ID, cs.TeacherID)

	all, err := env.Academic.ClassSubjects(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, bio.ID, all[0].SubjectID, "ordered by subject name")

	_, err = env.Academic.AssignSubject(ctx, c.ID, academic.AssignSubject{SubjectID: "0b7c1f59-3d0e-4b36-9f0c-cb9e57b1f0a1"})
	assert.Equal(t, "subject_id", testutil.ErrorField(err))
	_, err = env.Academic.AssignSubject(ctx, c.ID, academic.AssignSubject{SubjectID: bio.ID, TeacherID: "0b7c1f59-3d0e-4b36-9f0c-cb9e57b1f0a1"})
	assert.Equal(t, "teacher_id", testutil.ErrorField(err))
	_, err = env.Academic.AssignSubject(ctx, "0b7c1f59-3d0e-4b36-9f0c-cb9e57b1f0a1", academic.AssignSubject{SubjectID: bio.ID})
	assert.True(t, core.IsNotFound(err))

	require.NoError(t, env.Academic.UnassignSubject(ctx, c.ID, math.ID))
	assert.True(t, core.IsNotFound(env.Academic.UnassignSubject(ctx, c.ID, math.ID)))

	require.NoError(t, env.Academic.DeleteSubject(ctx, bio.ID))
	all, err = env.Academic.ClassSubjects(ctx, c.ID)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestService_sections(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	c := env.CreateClass(t, "g7", "")
	other := env.CreateClass(t, "g8", "")

	a := env.CreateSection(t, c.ID, "A")
	env.CreateSection(t, c.ID, "B")
	env.CreateSection(t, other.ID, "A")

	_, err := env.Academic.CreateSection(ctx, academic.NewSection{ClassID: c.ID, Name: "A"})
	assert.Equal(t, "name", testutil.ErrorField(err), "names are unique per class")
	_, err = env.Academic.CreateSection(ctx, academic.NewSection{ClassID: "0b7c1f59-3d0e-4b36-9f0c-cb9e57b1f0a1", Name: "A"})
	assert.Equal(t, "class_id", testutil.ErrorField(err))

	secs, err := env.Academic.QuerySections(ctx, c.ID)
	require.NoError(t, err)
	assert.Len(t, secs, 2)

	room := "Lab 1"
	a, err = env.Academic.UpdateSection(ctx, a, academic.UpdateSection{Room: &room})
	require.NoError(t, err)
	assert.Equal(t, "Lab 1", a.Room)

	s := env.CreateStudent(t, "A001", "Amani", testutil.StudentOpts{ClassID: c.ID, SectionID: a.ID})
	require.NoError(t, env.Academic.DeleteSection(ctx, a.ID))
	s, err = env.Students.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, c.ID, s.ClassID)
	assert.Empty(t, s.SectionID)

	require.NoError(t, env.Academic.DeleteClass(ctx, c.ID))
	secs, err = env.Academic.QuerySections(ctx, c.ID)
	require.NoError(t, err)
	assert.Empty(t, secs, "deleting a class deletes its sections")
	students, err := env.Students.Query(ctx, &student.QueryFilter{}, nil)
	require.NoError(t, err)
	require.Len(t, students, 1)
	assert.Empty(t, students[0].ClassID)
}

func TestService_subjects(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	math := env.CreateSubject(t, "math")
	env.CreateSubject(t, "bio")

	_, err := env.Academic.CreateSubject(ctx, academic.NewSubject{Name: "Maths", Code: "math"})
	assert.Equal(t, "code", testutil.ErrorField(err))

	found, err := env.Academic.QuerySubjects(ctx, &academic.SubjectFilter{Search: "MAT"}, nil)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, math.ID, found[0].ID)

	ordered, err := env.Academic.QuerySubjects(ctx, nil, core.ParseOrdering("-code"))
	require.NoError(t, err)
	require.Len(t, ordered, 2)
	assert.Equal(t, "math", ordered[0].Code)

	desc := "numbers"
	math, err = env.Academic.UpdateSubject(ctx, math, academic.UpdateSubject{Description: &desc})
	require.NoError(t, err)
	assert.Equal(t, "numbers", math.Description)

	ns := academic.NewSubject{Name: " Physics ", Code: " PHY "}
	require.NoError(t, ns.Validate(env.Validate))
	assert.Equal(t, "phy", ns.Code)
	assert.Equal(t, "Physics", ns.Name)
}
