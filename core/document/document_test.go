package document_test

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/document"
	"github.com/trezcool/shule/internal/testutil"
)

func TestNewDocument_Validate(t *testing.T) {
	validate := testutil.Validator()

	nd := document.NewDocument{OwnerType: " Student ", OwnerID: "0b7c1f59-3d0e-4b36-9f0c-cb9e57b1f0a1", FileName: "../../etc/Report.PDF"}
	require.NoError(t, nd.Validate(validate))
	assert.Equal(t, "student", nd.OwnerType)
	assert.Equal(t, "Report.PDF", nd.FileName)
	assert.Equal(t, "Report.PDF", nd.Title)
	assert.Equal(t, "application/pdf", nd.ContentType)

	nd = document.NewDocument{OwnerType: "teacher", OwnerID: "0b7c1f59-3d0e-4b36-9f0c-cb9e57b1f0a1", FileName: "notes"}
	require.NoError(t, nd.Validate(validate))
	assert.Equal(t, "application/octet-stream", nd.ContentType)

	nd = document.NewDocument{OwnerType: "class", OwnerID: "0b7c1f59-3d0e-4b36-9f0c-cb9e57b1f0a1", FileName: "notes"}
	assert.Error(t, nd.Validate(validate))
	nd = document.NewDocument{OwnerType: "teacher", OwnerID: "0b7c1f59-3d0e-4b36-9f0c-cb9e57b1f0a1", FileName: "/"}
	assert.Error(t, nd.Validate(validate))
}

func upload(t *testing.T, env *testutil.Env, ownerType, ownerID, name, content string) document.Document {
	t.Helper()
	nd := document.NewDocument{OwnerType: ownerType, OwnerID: ownerID, FileName: name}
	require.NoError(t, nd.Validate(env.Validate))
	d, err := env.Documents.Upload(context.Background(), nd, strings.NewReader(content), "uploader")
	require.NoError(t, err)
	return d
}

func TestService_UploadDownload(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	s := env.CreateStudent(t, "A001", "Amani", testutil.StudentOpts{})

	d := upload(t, env, document.OwnerStudent, s.ID, "birth.txt", "born on a sunny day")
	assert.Equal(t, int64(19), d.Size)
	assert.Equal(t, "uploader", d.UploadedBy)
	assert.True(t, strings.HasSuffix(d.StorageKey, ".txt"))

	got, err := env.Documents.Get(ctx, d.ID)
	require.NoError(t, err)
	rc, err := env.Documents.Download(ctx, got)
	require.NoError(t, err)
	content, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "born on a sunny day", string(content))

	_, err = env.Documents.Upload(ctx, document.NewDocument{OwnerType: document.OwnerTeacher, OwnerID: s.ID, FileName: "x.txt"}, strings.NewReader("x"), "")
	assert.Equal(t, "owner_id", testutil.ErrorField(err))
	_, err = env.Documents.Upload(ctx, document.NewDocument{OwnerType: "class", OwnerID: s.ID, FileName: "x.txt"}, strings.NewReader("x"), "")
	assert.Equal(t, "owner_type", testutil.ErrorField(err))

	big := strings.NewReader(strings.Repeat("x", int(env.Conf.Server.MaxUploadSize)+1))
	_, err = env.Documents.Upload(ctx, document.NewDocument{OwnerType: document.OwnerStudent, OwnerID: s.ID, FileName: "big.bin"}, big, "")
	assert.Equal(t, document.ErrTooLarge, err)

	docs, err := env.Documents.Query(ctx, &document.QueryFilter{OwnerID: s.ID})
	require.NoError(t, err)
	assert.Len(t, docs, 1, "rejected uploads leave nothing behind")

	require.NoError(t, env.Documents.Delete(ctx, d.ID))
	_, err = env.Documents.Download(ctx, d)
	assert.Equal(t, document.ErrFileNotFound, err)
	assert.True(t, core.IsNotFound(env.Documents.Delete(ctx, d.ID)))
}

func TestService_Query(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	s1 := env.CreateStudent(t, "A001", "Amani", testutil.StudentOpts{})
	s2 := env.CreateStudent(t, "A002", "Baraka", testutil.StudentOpts{})
	tch := env.CreateTeacher(t, "T1", "", false)

	upload(t, env, document.OwnerStudent, s1.ID, "a.txt", "a")
	upload(t, env, document.OwnerStudent, s2.ID, "b.txt", "b")
	upload(t, env, document.OwnerTeacher, tch.ID, "c.txt", "c")

	tests := []struct {
		name   string
		filter *document.QueryFilter
		want   int
	}{
		{name: "all", want: 3},
		{name: "owner type", filter: &document.QueryFilter{OwnerType: document.OwnerStudent}, want: 2},
		{name: "owner", filter: &document.QueryFilter{OwnerType: document.OwnerTeacher, OwnerID: tch.ID}, want: 1},
		{name: "scoped to a child", filter: &document.QueryFilter{StudentIDs: []string{s2.ID}}, want: 1},
		{name: "scoped to nobody", filter: &document.QueryFilter{StudentIDs: []string{}}, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			docs, err := env.Documents.Query(ctx, tt.filter)
			require.NoError(t, err)
			assert.Len(t, docs, tt.want)
		})
	}
}
