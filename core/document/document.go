package document

import (
	"context"
	"io"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/student"
	"github.com/trezcool/shule/core/teacher"
)

var (
	ErrNotFound     = core.NewNotFoundError("document")
	ErrFileNotFound = core.NewNotFoundError("file")
)

// Owner types
const (
	OwnerStudent = "student"
	OwnerTeacher = "teacher"
)

const defaultContentType = "application/octet-stream"

type Document struct {
	ID          string    `json:"id"`
	OwnerType   string    `json:"owner_type"`
	OwnerID     string    `json:"owner_id"`
	Title       string    `json:"title"`
	FileName    string    `json:"file_name"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	StorageKey  string    `json:"-"`
	UploadedBy  string    `json:"uploaded_by"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewDocument describes an uploaded file.
type NewDocument struct {
	OwnerType   string `json:"owner_type" form:"owner_type" validate:"required,oneof=student teacher"`
	OwnerID     string `json:"owner_id" form:"owner_id" validate:"required,uuid"`
	Title       string `json:"title" form:"title" validate:"max=255"`
	FileName    string `json:"file_name" validate:"required,max=255"`
	ContentType string `json:"content_type" validate:"max=100"`
}

func (nd *NewDocument) Validate(validate *validator.Validate) error {
	nd.OwnerType = core.CleanString(nd.OwnerType, true /* lower */)
	nd.FileName = filepath.Base(core.CleanString(nd.FileName))
	if nd.FileName == "." || nd.FileName == string(filepath.Separator) {
		nd.FileName = ""
	}
	nd.Title = core.CleanString(nd.Title)
	if nd.Title == "" {
		nd.Title = nd.FileName
	}
	nd.ContentType = core.CleanString(nd.ContentType)
	if nd.ContentType == "" {
		nd.ContentType = mime.TypeByExtension(filepath.Ext(nd.FileName))
	}
	if nd.ContentType == "" {
		nd.ContentType = defaultContentType
	}
	return validate.Struct(nd)
}

type QueryFilter struct {
	OwnerType  string   `query:"owner_type"`
	OwnerID    string   `query:"owner_id"`
	StudentIDs []string `query:"-"` // restricts student owned documents
}

type (
	Repository interface {
		CreateDocument(ctx context.Context, d Document) (Document, error)
		QueryDocuments(ctx context.Context, filter *QueryFilter) ([]Document, error)
		GetDocument(ctx context.Context, id string) (Document, error)
		DeleteDocument(ctx context.Context, id string) error
	}

	// FileStore keeps the content of documents.
	FileStore interface {
		// Save writes at most limit bytes of r under key and returns the number of bytes written.
		Save(ctx context.Context, key string, r io.Reader, limit int64) (int64, error)
		Open(ctx context.Context, key string) (io.ReadCloser, error)
		Delete(ctx context.Context, key string) error
	}

	StudentFinder interface {
		Get(ctx context.Context, id string) (student.Student, error)
	}

	TeacherFinder interface {
		GetTeacher(ctx context.Context, filter teacher.GetFilter) (teacher.Teacher, error)
	}

	Service struct {
		repo     Repository
		files    FileStore
		students StudentFinder
		teachers TeacherFinder
		maxSize  int64
		logger   core.Logger
	}
)

// ErrTooLarge is returned when an uploaded file exceeds the maximum upload size.
var ErrTooLarge = core.NewFieldError("file", "file is too large")

func NewService(repo Repository, files FileStore, students StudentFinder, teachers TeacherFinder, logger core.Logger, maxSize int64) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(files, "files"),
		vala.IsNotNil(students, "students"),
		vala.IsNotNil(teachers, "teachers"),
		vala.IsNotNil(logger, "logger"),
		vala.GreaterThan(int(maxSize), 0, "maxSize"),
	).CheckAndPanic()
	return &Service{repo: repo, files: files, students: students, teachers: teachers, maxSize: maxSize, logger: logger}
}

func (svc *Service) checkOwner(ctx context.Context, ownerType, ownerID string) error {
	var err error
	switch ownerType {
	case OwnerStudent:
		_, err = svc.students.Get(ctx, ownerID)
	case OwnerTeacher:
		_, err = svc.teachers.GetTeacher(ctx, teacher.GetFilter{ID: ownerID})
	default:
		return core.NewFieldError("owner_type", "must be one of student, teacher")
	}
	if err != nil {
		if core.IsNotFound(err) {
			return core.NewFieldError("owner_id", ownerType+" does not exist")
		}
		return errors.Wrap(err, "finding owner")
	}
	return nil
}

// Upload stores the content of r and records the document.
func (svc *Service) Upload(ctx context.Context, nd NewDocument, r io.Reader, uploadedBy string) (Document, error) {
	if err := svc.checkOwner(ctx, nd.OwnerType, nd.OwnerID); err != nil {
		return Document{}, err
	}

	id := uuid.NewString()
	key := storageKey(nd.OwnerType, nd.OwnerID, id, nd.FileName)
	size, err := svc.files.Save(ctx, key, r, svc.maxSize)
	if err != nil {
		return Document{}, err
	}

	d, err := svc.repo.CreateDocument(ctx, Document{
		ID:          id,
		OwnerType:   nd.OwnerType,
		OwnerID:     nd.OwnerID,
		Title:       nd.Title,
		FileName:    nd.FileName,
		ContentType: nd.ContentType,
		Size:        size,
		StorageKey:  key,
		UploadedBy:  uploadedBy,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		if delErr := svc.files.Delete(ctx, key); delErr != nil {
			svc.logger.Error("removing orphan file", delErr, map[string]interface{}{"key": key})
		}
		return Document{}, err
	}
	return d, nil
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter) ([]Document, error) {
	return svc.repo.QueryDocuments(ctx, filter)
}

func (svc *Service) Get(ctx context.Context, id string) (Document, error) {
	return svc.repo.GetDocument(ctx, id)
}

// Download opens the content of d. The caller closes it.
func (svc *Service) Download(ctx context.Context, d Document) (io.ReadCloser, error) {
	return svc.files.Open(ctx, d.StorageKey)
}

// Delete removes the document record, then its file.
func (svc *Service) Delete(ctx context.Context, id string) error {
	d, err := svc.repo.GetDocument(ctx, id)
	if err != nil {
		return err
	}
	if err := svc.repo.DeleteDocument(ctx, id); err != nil {
		return err
	}
	if err := svc.files.Delete(ctx, d.StorageKey); err != nil && !core.IsNotFound(err) {
		svc.logger.Error("removing document file", err, map[string]interface{}{"key": d.StorageKey})
	}
	return nil
}

func storageKey(ownerType, ownerID, id, fileName string) string {
	ext := strings.ToLower(filepath.Ext(fileName))
	return ownerType + "/" + ownerID + "/" + id + ext
}
