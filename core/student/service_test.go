package student_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/student"
	"github.com/trezcool/shule/core/user"
	"github.com/trezcool/shule/internal/testutil"
)

const unknownID = "0b7c1f59-3d0e-4b36-9f0c-cb9e57b1f0a1"

func TestService_Create(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	c := env.CreateClass(t, "g7", "")
	other := env.CreateClass(t, "g8", "")
	sec := env.CreateSection(t, c.ID, "A")
	usr := env.CreateUser(t, "Amani", "amani", "", user.RoleStudent)
	env.CreateStudent(t, "A001", "Amani", testutil.StudentOpts{UserID: usr.ID, ClassID: c.ID, SectionID: sec.ID})

	tests := []struct {
		name  string
		ns    student.NewStudent
		field string
	}{
		{name: "duplicate admission no", ns: student.NewStudent{AdmissionNo: "A001", FirstName: "B", LastName: "C"}, field: "admission_no"},
		{name: "user already linked", ns: student.NewStudent{UserID: usr.ID, AdmissionNo: "A002", FirstName: "B", LastName: "C"}, field: "user_id"},
		{name: "unknown user", ns: student.NewStudent{UserID: unknownID, AdmissionNo: "A002", FirstName: "B", LastName: "C"}, field: "user_id"},
		{name: "unknown class", ns: student.NewStudent{AdmissionNo: "A002", FirstName: "B", LastName: "C", ClassID: unknownID}, field: "class_id"},
		{name: "section without class", ns: student.NewStudent{AdmissionNo: "A002", FirstName: "B", LastName: "C", SectionID: sec.ID}, field: "section_id"},
		{name: "section of another class", ns: student.NewStudent{AdmissionNo: "A002", FirstName: "B", LastName: "C", ClassID: other.ID, SectionID: sec.ID}, field: "section_id"},
		{name: "unknown parent", ns: student.NewStudent{AdmissionNo: "A002", FirstName: "B", LastName: "C", ParentID: unknownID}, field: "parent_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.Students.Create(ctx, tt.ns)
			assert.Equal(t, tt.field, testutil.ErrorField(err))
		})
	}

	ns := student.NewStudent{AdmissionNo: " A010 ", FirstName: "Zawadi", LastName: "Doe", Gender: "FEMALE", DateOfBirth: "2014-03-02"}
	require.NoError(t, ns.Validate(env.Validate))
	s, err := env.Students.Create(ctx, ns)
	require.NoError(t, err)
	assert.Equal(t, "A010", s.AdmissionNo)
	assert.Equal(t, student.GenderFemale, s.Gender)
	assert.True(t, s.IsActive)
	assert.Equal(t, core.Date(s.CreatedAt), s.EnrolledAt, "enrollment defaults to today")
}

func TestService_Update(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	c := env.CreateClass(t, "g7", "")
	other := env.CreateClass(t, "g8", "")
	secA := env.CreateSection(t, c.ID, "A")
	secB := env.CreateSection(t, other.ID, "B")
	s := env.CreateStudent(t, "A001", "Amani", testutil.StudentOpts{ClassID: c.ID, SectionID: secA.ID})

	s, err := env.Students.Update(ctx, s, student.UpdateStudent{ClassID: &other.ID})
	require.NoError(t, err)
	assert.Equal(t, other.ID, s.ClassID)
	assert.Empty(t, s.SectionID, "changing class clears the section")

	_, err = env.Students.Update(ctx, s, student.UpdateStudent{SectionID: &secA.ID})
	assert.Equal(t, "section_id", testutil.ErrorField(err))

	s, err = env.Students.Update(ctx, s, student.UpdateStudent{ClassID: &c.ID, SectionID: &secA.ID})
	require.NoError(t, err)
	assert.Equal(t, secA.ID, s.SectionID, "a new section can come with the new class")

	s, err = env.Students.Update(ctx, s, student.UpdateStudent{ClassID: &c.ID})
	require.NoError(t, err)
	assert.Equal(t, secA.ID, s.SectionID, "same class keeps the section")

	none := ""
	s, err = env.Students.Update(ctx, s, student.UpdateStudent{ClassID: &none})
	require.NoError(t, err)
	assert.Empty(t, s.ClassID)
	assert.Empty(t, s.SectionID)
	_, err = env.Students.Update(ctx, s, student.UpdateStudent{SectionID: &secB.ID})
	assert.Equal(t, "section_id", testutil.ErrorField(err))

	inactive := false
	s, err = env.Students.Update(ctx, s, student.UpdateStudent{IsActive: &inactive})
	require.NoError(t, err)
	assert.False(t, s.IsActive)
}

func TestService_QueryDelete(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	c := env.CreateClass(t, "g7", "")
	sec := env.CreateSection(t, c.ID, "A")
	p := env.CreateParent(t, "")
	s1 := env.CreateStudent(t, "A001", "Amani", testutil.StudentOpts{ClassID: c.ID, SectionID: sec.ID, ParentID: p.ID})
	s2 := env.CreateStudent(t, "A002", "Baraka", testutil.StudentOpts{ClassID: c.ID, ParentID: p.ID})
	env.CreateStudent(t, "A003", "Chausiku", testutil.StudentOpts{})

	tests := []struct {
		name   string
		filter *student.QueryFilter
		want   int
	}{
		{name: "all", want: 3},
		{name: "search", filter: &student.QueryFilter{Search: "bara"}, want: 1},
		{name: "search admission no", filter: &student.QueryFilter{Search: "a00"}, want: 3},
		{name: "class", filter: &student.QueryFilter{ClassID: c.ID}, want: 2},
		{name: "section", filter: &student.QueryFilter{SectionID: sec.ID}, want: 1},
		{name: "parent", filter: &student.QueryFilter{ParentID: p.ID}, want: 2},
		{name: "ids", filter: &student.QueryFilter{IDs: []string{s1.ID}}, want: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := env.Students.Query(ctx, tt.filter, nil)
			require.NoError(t, err)
			assert.Len(t, got, tt.want)
		})
	}

	in, err := env.Students.InClass(ctx, c.ID)
	require.NoError(t, err)
	assert.Len(t, in, 2)
	assert.Contains(t, in, s2.ID)

	children, err := env.Students.Children(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, children, 2)
	assert.Equal(t, "Amani", children[0].FirstName)

	require.NoError(t, env.Students.DeleteParent(ctx, p.ID))
	s1, err = env.Students.Get(ctx, s1.ID)
	require.NoError(t, err)
	assert.Empty(t, s1.ParentID)
	_, err = env.Students.Children(ctx, p.ID)
	assert.True(t, core.IsNotFound(err))

	require.NoError(t, env.Students.Delete(ctx, s1.ID, unknownID))
	assert.True(t, core.IsNotFound(env.Students.Delete(ctx, s1.ID)))
	require.NoError(t, env.Students.Delete(ctx))
}

func TestService_parents(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	usr := env.CreateUser(t, "Mama", "mama", "", user.RoleParent)
	p := env.CreateParent(t, usr.ID)

	_, err := env.Students.CreateParent(ctx, student.NewParent{UserID: usr.ID, FirstName: "A", LastName: "B"})
	assert.Equal(t, "user_id", testutil.ErrorField(err))

	got, err := env.Students.GetParentByUserID(ctx, usr.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)

	job := "Nurse"
	p, err = env.Students.UpdateParent(ctx, p, student.UpdateParent{Occupation: &job})
	require.NoError(t, err)
	assert.Equal(t, "Nurse", p.Occupation)

	env.CreateParent(t, "")
	found, err := env.Students.QueryParents(ctx, &student.ParentFilter{Search: "nurse"}, nil)
	require.NoError(t, err)
	assert.Empty(t, found, "occupation is not searched")
	found, err = env.Students.QueryParents(ctx, nil, nil)
	require.NoError(t, err)
	assert.Len(t, found, 2)
}

func TestService_ScopeFor(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()

	admin := env.CreateUser(t, "Admin", "admin", "", user.RoleAdminOwner)
	teacher := env.CreateUser(t, "Teacher", "teacher", "", user.RoleTeacher)
	parentUsr := env.CreateUser(t, "Parent", "parent", "", user.RoleParent)
	studentUsr := env.CreateUser(t, "Student", "student", "", user.RoleStudent)
	orphanUsr := env.CreateUser(t, "Orphan", "orphan", "", user.RoleParent)
	nobody := env.CreateUser(t, "Nobody", "nobody", "")

	p := env.CreateParent(t, parentUsr.ID)
	child1 := env.CreateStudent(t, "A001", "Amani", testutil.StudentOpts{ParentID: p.ID})
	child2 := env.CreateStudent(t, "A002", "Baraka", testutil.StudentOpts{ParentID: p.ID})
	self := env.CreateStudent(t, "A003", "Chausiku", testutil.StudentOpts{UserID: studentUsr.ID})

	tests := []struct {
		name string
		usr  user.User
		want student.Scope
	}{
		{name: "admin", usr: admin, want: student.Scope{All: true}},
		{name: "teacher", usr: teacher, want: student.Scope{All: true}},
		{name: "student", usr: studentUsr, want: student.Scope{StudentIDs: []string{self.ID}}},
		{name: "parent without profile", usr: orphanUsr, want: student.Scope{}},
		{name: "no role", usr: nobody, want: student.Scope{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc, err := env.Students.ScopeFor(ctx, tt.usr)
			require.NoError(t, err)
			assert.Equal(t, tt.want, sc)
		})
	}

	sc, err := env.Students.ScopeFor(ctx, parentUsr)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{child1.ID, child2.ID}, sc.StudentIDs)
	assert.True(t, sc.Allows(child1.ID))
	assert.False(t, sc.Allows(self.ID))

	qf := &student.QueryFilter{}
	require.True(t, sc.Filter(qf))
	assert.ElementsMatch(t, []string{child1.ID, child2.ID}, qf.IDs)

	qf = &student.QueryFilter{IDs: []string{child2.ID, self.ID}}
	require.True(t, sc.Filter(qf))
	assert.Equal(t, []string{child2.ID}, qf.IDs)

	qf = &student.QueryFilter{IDs: []string{self.ID}}
	assert.False(t, sc.Filter(qf))
	assert.False(t, student.Scope{}.Filter(&student.QueryFilter{}))
	assert.True(t, student.Scope{All: true}.Filter(&student.QueryFilter{}))
}

func roster(t *testing.T, rows [][]string) *bytes.Buffer {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	for i, row := range rows {
		for j, v := range row {
			name, err := excelize.CoordinatesToCellName(j+1, i+1)
			require.NoError(t, err)
			require.NoError(t, f.SetCellValue(sheet, name, v))
		}
	}
	buf := new(bytes.Buffer)
	require.NoError(t, f.Write(buf))
	return buf
}

func TestService_ImportExport(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	c := env.CreateClass(t, "g7", "")
	env.CreateStudent(t, "A001", "Existing", testutil.StudentOpts{})

	buf := roster(t, [][]string{
		student.RosterColumns,
		{"A002", "Amani", "Juma", "female", "2014-03-02", "amani@school.cd", "", "Goma"},
		{"A003", "Baraka", "Juma", "male"},
		{"", "", "", ""},
		{"A001", "Dup", "Licate"},
		{"A004", "", "NoFirstName"},
		{"A005", "Bad", "Date", "", "02/03/2014"},
	})

	report, err := env.Students.Import(ctx, buf, c.ID, env.Validate)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Created)
	require.Len(t, report.Skipped, 3)
	assert.Equal(t, 5, report.Skipped[0].Row)
	assert.Contains(t, report.Skipped[0].Reason, "admission_no")
	assert.Equal(t, 6, report.Skipped[1].Row)
	assert.Equal(t, 7, report.Skipped[2].Row)

	in, err := env.Students.InClass(ctx, c.ID)
	require.NoError(t, err)
	assert.Len(t, in, 2)

	_, err = env.Students.Import(ctx, bytes.NewBufferString("not a spreadsheet"), c.ID, env.Validate)
	assert.Equal(t, "file", testutil.ErrorField(err))
	_, err = env.Students.Import(ctx, roster(t, nil), unknownID, env.Validate)
	assert.True(t, core.IsNotFound(err))

	out := new(bytes.Buffer)
	n, err := env.Students.Export(ctx, out, &student.QueryFilter{ClassID: c.ID})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	f, err := excelize.OpenReader(out)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Students")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, student.RosterColumns, rows[0])
	assert.Equal(t, []string{"A002", "Amani", "Juma", "female", "2014-03-02", "amani@school.cd", "", "Goma"}, rows[1])
	assert.Equal(t, "A003", rows[2][0])
}
