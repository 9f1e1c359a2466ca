package shim

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core/exam"
	"github.com/trezcool/shule/core/messaging"
	"github.com/trezcool/shule/core/student"
	"github.com/trezcool/shule/core/user"
)

type (
	LoginRequest struct {
		Username string `json:"username" validate:"required"`
		Password string `json:"password" validate:"required"`
	}

	TokenResponse struct {
		Token string     `json:"token"`
		User  *user.User `json:"user,omitempty"`
	}
)

func (h *Handler) login(w http.ResponseWriter, r *http.Request) error {
	var data LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		return errBadRequest
	}
	if err := h.deps.Validate.Struct(data); err != nil {
		return err
	}

	token, usr, err := h.deps.Auth.Login(r.Context(), data.Username, data.Password)
	if err != nil {
		return errors.Wrap(err, "authenticating")
	}
	writeJSON(w, http.StatusOK, TokenResponse{Token: token, User: &usr})
	return nil
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) error {
	claims, err := contextClaims(r)
	if err != nil {
		return err
	}
	if err := h.deps.Auth.Logout(r.Context(), claims); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (h *Handler) contextUser(r *http.Request) (user.User, error) {
	claims, err := contextClaims(r)
	if err != nil {
		return user.User{}, err
	}
	usr, err := h.deps.Users.GetByID(r.Context(), claims.Subject)
	if err != nil {
		return user.User{}, errors.Wrap(err, "finding context user")
	}
	return usr, nil
}

func (h *Handler) contextScope(r *http.Request) (student.Scope, error) {
	usr, err := h.contextUser(r)
	if err != nil {
		return student.Scope{}, err
	}
	sc, err := h.deps.Students.ScopeFor(r.Context(), usr)
	if err != nil {
		return student.Scope{}, errors.Wrap(err, "computing visibility scope")
	}
	return sc, nil
}

// checkStudent fails with errNotFound when studentID is not visible to the context user.
func (h *Handler) checkStudent(r *http.Request, studentID string) error {
	sc, err := h.contextScope(r)
	if err != nil {
		return err
	}
	if !sc.Allows(studentID) {
		return errNotFound
	}
	return nil
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) error {
	usr, err := h.contextUser(r)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, usr)
	return nil
}

func (h *Handler) students(w http.ResponseWriter, r *http.Request) error {
	q := r.URL.Query()
	filter := &student.QueryFilter{
		Search:    q.Get("search"),
		ClassID:   q.Get("class_id"),
		SectionID: q.Get("section_id"),
	}
	filter.Clean()

	sc, err := h.contextScope(r)
	if err != nil {
		return err
	}
	if !sc.Filter(filter) {
		writeJSON(w, http.StatusOK, []student.Student{})
		return nil
	}

	students, err := h.deps.Students.Query(r.Context(), filter, nil)
	if err != nil {
		return errors.Wrap(err, "querying students")
	}
	writeJSON(w, http.StatusOK, students)
	return nil
}

func (h *Handler) student(w http.ResponseWriter, r *http.Request) error {
	id := mux.Vars(r)["id"]
	if err := h.checkStudent(r, id); err != nil {
		return err
	}
	s, err := h.deps.Students.Get(r.Context(), id)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, s)
	return nil
}

func (h *Handler) timetable(w http.ResponseWriter, r *http.Request) error {
	days, err := h.deps.Timetable.WeekView(r.Context(), mux.Vars(r)["classId"])
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, days)
	return nil
}

func (h *Handler) results(w http.ResponseWriter, r *http.Request) error {
	q := r.URL.Query()
	filter := &exam.ResultFilter{ExamID: q.Get("exam_id"), StudentID: q.Get("student_id")}

	sc, err := h.contextScope(r)
	if err != nil {
		return err
	}
	if !sc.All {
		if len(sc.StudentIDs) == 0 {
			writeJSON(w, http.StatusOK, []exam.Result{})
			return nil
		}
		filter.StudentIDs = sc.StudentIDs
	}

	results, err := h.deps.Exams.QueryResults(r.Context(), filter, nil)
	if err != nil {
		return errors.Wrap(err, "querying results")
	}
	writeJSON(w, http.StatusOK, results)
	return nil
}

func (h *Handler) attendanceSummary(w http.ResponseWriter, r *http.Request) error {
	studentID := mux.Vars(r)["studentId"]
	if err := h.checkStudent(r, studentID); err != nil {
		return err
	}
	q := r.URL.Query()
	sum, err := h.deps.Attendance.Summary(r.Context(), studentID, q.Get("from"), q.Get("to"))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, sum)
	return nil
}

func (h *Handler) feeSummary(w http.ResponseWriter, r *http.Request) error {
	studentID := mux.Vars(r)["studentId"]
	if err := h.checkStudent(r, studentID); err != nil {
		return err
	}
	sum, err := h.deps.Fees.Summary(r.Context(), studentID)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, sum)
	return nil
}

func (h *Handler) notifications(w http.ResponseWriter, r *http.Request) error {
	claims, err := contextClaims(r)
	if err != nil {
		return err
	}
	unreadOnly := r.URL.Query().Get("unread") == "true"
	notifs, err := h.deps.Messaging.List(r.Context(), claims.Subject, unreadOnly)
	if err != nil {
		return errors.Wrap(err, "querying notifications")
	}
	if notifs == nil {
		notifs = []messaging.Notification{}
	}
	writeJSON(w, http.StatusOK, notifs)
	return nil
}

func (h *Handler) markNotificationRead(w http.ResponseWriter, r *http.Request) error {
	claims, err := contextClaims(r)
	if err != nil {
		return err
	}
	n, err := h.deps.Messaging.MarkNotificationRead(r.Context(), claims.Subject, mux.Vars(r)["id"])
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, n)
	return nil
}
