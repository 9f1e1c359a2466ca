package attendance_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/attendance"
	"github.com/trezcool/shule/internal/testutil"
)

type fixture struct {
	env      *testutil.Env
	classID  string
	amani    string
	baraka   string
	outsider string
}

func newFixture(t *testing.T) fixture {
	env := testutil.NewEnv(t)
	c := env.CreateClass(t, "g7", "")
	other := env.CreateClass(t, "g8", "")
	return fixture{
		env:      env,
		classID:  c.ID,
		amani:    env.CreateStudent(t, "A001", "Amani", testutil.StudentOpts{ClassID: c.ID}).ID,
		baraka:   env.CreateStudent(t, "A002", "Baraka", testutil.StudentOpts{ClassID: c.ID}).ID,
		outsider: env.CreateStudent(t, "A003", "Chausiku", testutil.StudentOpts{ClassID: other.ID}).ID,
	}
}

func TestService_Mark(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		reg   attendance.Register
		field string
	}{
		{
			name:  "unknown class",
			reg:   attendance.Register{ClassID: "0b7c1f59-3d0e-4b36-9f0c-cb9e57b1f0a1", Date: "2026-10-05", Entries: []attendance.Entry{{StudentID: fx.amani, Status: "present"}}},
			field: "class_id",
		},
		{
			name:  "student of another class",
			reg:   attendance.Register{ClassID: fx.classID, Date: "2026-10-05", Entries: []attendance.Entry{{StudentID: fx.amani, Status: "present"}, {StudentID: fx.outsider, Status: "present"}}},
			field: "entries[1].student_id",
		},
		{
			name:  "duplicate student",
			reg:   attendance.Register{ClassID: fx.classID, Date: "2026-10-05", Entries: []attendance.Entry{{StudentID: fx.amani, Status: "present"}, {StudentID: fx.amani, Status: "late"}}},
			field: "entries[1].student_id",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := fx.env.Attendance.Mark(ctx, tt.reg, "")
			assert.Equal(t, tt.field, testutil.ErrorField(err))
		})
	}

	reg := attendance.Register{ClassID: fx.classID, Date: "2026-10-05", Entries: []attendance.Entry{
		{StudentID: fx.amani, Status: " PRESENT "},
		{StudentID: fx.baraka, Status: "absent", Remarks: "sick"},
	}}
	require.NoError(t, reg.Validate(fx.env.Validate))
	rows, err := fx.env.Attendance.Mark(ctx, reg, "marker")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, attendance.StatusPresent, rows[0].Status)
	assert.Equal(t, "marker", rows[0].MarkedBy)

	// marking again the same day updates the existing rows
	again, err := fx.env.Attendance.Mark(ctx, attendance.Register{ClassID: fx.classID, Date: "2026-10-05", Entries: []attendance.Entry{
		{StudentID: fx.baraka, Status: "excused"},
	}}, "marker")
	require.NoError(t, err)
	assert.Equal(t, rows[1].ID, again[0].ID)

	all, err := fx.env.Attendance.Query(ctx, &attendance.QueryFilter{ClassID: fx.classID}, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	bad := attendance.Register{ClassID: fx.classID, Date: "2026-10-05", Entries: []attendance.Entry{{StudentID: fx.amani, Status: "gone"}}}
	assert.Error(t, bad.Validate(fx.env.Validate))
	empty := attendance.Register{ClassID: fx.classID, Date: "2026-10-05"}
	assert.Error(t, empty.Validate(fx.env.Validate))
}

func TestService_Summary(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	days := map[string]string{
		"2026-10-05": "present",
		"2026-10-06": "late",
		"2026-10-07": "absent",
		"2026-10-08": "present",
		"2026-10-09": "excused",
	}
	for date, status := range days {
		_, err := fx.env.Attendance.Mark(ctx, attendance.Register{ClassID: fx.classID, Date: date, Entries: []attendance.Entry{
			{StudentID: fx.amani, Status: status},
		}}, "")
		require.NoError(t, err)
	}

	sum, err := fx.env.Attendance.Summary(ctx, fx.amani, "", "")
	require.NoError(t, err)
	assert.Equal(t, 5, sum.Total)
	assert.Equal(t, map[string]int{"present": 2, "late": 1, "absent": 1, "excused": 1}, sum.Counts)
	assert.Equal(t, 60.0, sum.Rate)

	sum, err = fx.env.Attendance.Summary(ctx, fx.amani, "2026-10-06", "2026-10-08")
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Total)
	assert.Equal(t, 66.67, sum.Rate)

	sum, err = fx.env.Attendance.Summary(ctx, fx.baraka, "", "")
	require.NoError(t, err)
	assert.Zero(t, sum.Total)
	assert.Zero(t, sum.Rate)
	assert.Equal(t, 0, sum.Counts["present"])

	_, err = fx.env.Attendance.Summary(ctx, fx.amani, "monday", "")
	assert.Equal(t, "from", testutil.ErrorField(err))
	_, err = fx.env.Attendance.Summary(ctx, "0b7c1f59-3d0e-4b36-9f0c-cb9e57b1f0a1", "", "")
	assert.True(t, core.IsNotFound(err))
}

func TestService_UpdateDelete(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	rows, err := fx.env.Attendance.Mark(ctx, attendance.Register{ClassID: fx.classID, Date: "2026-10-05", Entries: []attendance.Entry{
		{StudentID: fx.amani, Status: "absent"},
	}}, "first")
	require.NoError(t, err)

	late, remarks := "late", "bus"
	a, err := fx.env.Attendance.Update(ctx, rows[0], attendance.UpdateAttendance{Status: &late, Remarks: &remarks}, "second")
	require.NoError(t, err)
	assert.Equal(t, "late", a.Status)
	assert.Equal(t, "bus", a.Remarks)
	assert.Equal(t, "second", a.MarkedBy)

	scoped, err := fx.env.Attendance.Query(ctx, &attendance.QueryFilter{StudentIDs: []string{fx.baraka}}, nil)
	require.NoError(t, err)
	assert.Empty(t, scoped)

	require.NoError(t, fx.env.Attendance.Delete(ctx, a.ID))
	_, err = fx.env.Attendance.Get(ctx, a.ID)
	assert.True(t, core.IsNotFound(err))
}
