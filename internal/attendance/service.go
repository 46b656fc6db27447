package attendance

import (
	"context"
	"sort"
)

// Store exposes every operation on the attendance document. Each operation
// reads the whole document, validates, and either writes the whole document
// back or rejects without writing.
type Store struct {
	repo    *Repository
	observe func(op string, err error)
}

// Option configures a Store.
type Option func(*Store)

// WithObserver registers fn to be called after every operation with its name and result.
func WithObserver(fn func(op string, err error)) Option {
	return func(s *Store) { s.observe = fn }
}

// NewStore creates a store backed by a repository.
func NewStore(repo *Repository, opts ...Option) *Store {
	s := &Store{repo: repo}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) done(op string, err error) error {
	if s.observe != nil {
		s.observe(op, err)
	}
	return err
}

// Init writes the demo document (or an empty one when seed is false) if no
// document is stored yet.
func (s *Store) Init(ctx context.Context, seed bool) error {
	doc := emptyDocument()
	if seed {
		doc = demoDocument()
	}
	return s.done("init", s.repo.seedIfAbsent(ctx, doc))
}

// Authenticate checks the credentials of username under role.
// Failures are *AuthError values whose Reason tells the cases apart.
func (s *Store) Authenticate(ctx context.Context, role Role, username, password string) (Session, error) {
	username = CleanString(username)
	password = CleanString(password)

	doc, err := s.repo.load(ctx)
	if err != nil {
		return Session{}, s.done("authenticate", err)
	}

	stored, found, known := doc.credential(role, username)
	if !known {
		return Session{}, s.done("authenticate", &AuthError{Reason: AuthUnknownRole})
	}
	if !found {
		return Session{}, s.done("authenticate", &AuthError{Reason: AuthUnknownUsername})
	}
	if stored != password {
		return Session{}, s.done("authenticate", &AuthError{Reason: AuthPasswordMismatch})
	}
	return Session{Role: role, Username: username}, s.done("authenticate", nil)
}

// AccountExists reports whether the account behind sess is still present.
func (s *Store) AccountExists(ctx context.Context, sess Session) (bool, error) {
	doc, err := s.repo.load(ctx)
	if err != nil {
		return false, s.done("account_exists", err)
	}
	_, found, _ := doc.credential(sess.Role, CleanString(sess.Username))
	return found, s.done("account_exists", nil)
}

// AddHOD creates a HOD account. All fields are required.
func (s *Store) AddHOD(ctx context.Context, nh NewHOD) error {
	nh.clean()
	if err := validateStruct(nh); err != nil {
		return s.done("add_hod", err)
	}
	err := s.repo.update(ctx, func(doc *document) error {
		if _, ok := doc.HOD[nh.Username]; ok {
			return &DuplicateError{Kind: KindDuplicateUsername, Value: nh.Username}
		}
		doc.HOD[nh.Username] = hodRecord{Password: nh.Password, Branch: nh.Branch, Batch: nh.Batch}
		return nil
	})
	return s.done("add_hod", err)
}

// RemoveHOD deletes a HOD account; absent usernames are ignored.
func (s *Store) RemoveHOD(ctx context.Context, username string) error {
	username = CleanString(username)
	err := s.repo.update(ctx, func(doc *document) error {
		delete(doc.HOD, username)
		return nil
	})
	return s.done("remove_hod", err)
}

// ListHODs returns every HOD account sorted by username.
func (s *Store) ListHODs(ctx context.Context) ([]HOD, error) {
	doc, err := s.repo.load(ctx)
	if err != nil {
		return nil, s.done("list_hods", err)
	}
	hods := make([]HOD, 0, len(doc.HOD))
	for u, h := range doc.HOD {
		hods = append(hods, HOD{Username: u, Password: h.Password, Branch: h.Branch, Batch: h.Batch})
	}
	sort.Slice(hods, func(i, j int) bool { return hods[i].Username < hods[j].Username })
	return hods, s.done("list_hods", nil)
}

// AddFacultyAndSubject creates the faculty account if needed and appends a
// new subject to its list. The subject code must not be used by any faculty;
// an existing faculty must be re-submitted with the same name and password.
func (s *Store) AddFacultyAndSubject(ctx context.Context, nf NewFacultySubject) error {
	nf.clean()
	if err := validateStruct(nf); err != nil {
		return s.done("add_faculty_subject", err)
	}
	err := s.repo.update(ctx, func(doc *document) error {
		if _, taken := doc.findSubject(nf.SubjectCode); taken {
			return &DuplicateError{Kind: KindCodeTaken, Value: nf.SubjectCode}
		}

		if fac, ok := doc.Faculty[nf.Username]; ok {
			if fac.Name != nf.FullName || fac.Password != nf.Password {
				return &IdentityMismatchError{Role: RoleFaculty, Username: nf.Username}
			}
		} else {
			doc.Faculty[nf.Username] = personRecord{Password: nf.Password, Name: nf.FullName}
		}

		for _, subj := range doc.Subjects[nf.Username] {
			if subj.Code == nf.SubjectCode {
				return &DuplicateError{Kind: KindDuplicateForFaculty, Value: nf.SubjectCode}
			}
		}
		doc.Subjects[nf.Username] = append(doc.Subjects[nf.Username], Subject{Name: nf.SubjectName, Code: nf.SubjectCode})
		return nil
	})
	return s.done("add_faculty_subject", err)
}

// RemoveFaculty deletes the faculty account and its subject list. Enrollments
// and attendance history under its subject codes are left in place.
func (s *Store) RemoveFaculty(ctx context.Context, username string) error {
	username = CleanString(username)
	err := s.repo.update(ctx, func(doc *document) error {
		delete(doc.Faculty, username)
		delete(doc.Subjects, username)
		return nil
	})
	return s.done("remove_faculty", err)
}

// ListFaculties returns every faculty account with its subjects, sorted by username.
func (s *Store) ListFaculties(ctx context.Context) ([]Faculty, error) {
	doc, err := s.repo.load(ctx)
	if err != nil {
		return nil, s.done("list_faculties", err)
	}
	facs := make([]Faculty, 0, len(doc.Faculty))
	for u, f := range doc.Faculty {
		facs = append(facs, Faculty{
			Username: u,
			Password: f.Password,
			FullName: f.Name,
			Subjects: copySubjects(doc.Subjects[u]),
		})
	}
	sort.Slice(facs, func(i, j int) bool { return facs[i].Username < facs[j].Username })
	return facs, s.done("list_faculties", nil)
}

// ListSubjectsForFaculty returns the faculty's subjects in insertion order.
func (s *Store) ListSubjectsForFaculty(ctx context.Context, username string) ([]Subject, error) {
	doc, err := s.repo.load(ctx)
	if err != nil {
		return nil, s.done("list_faculty_subjects", err)
	}
	return copySubjects(doc.Subjects[CleanString(username)]), s.done("list_faculty_subjects", nil)
}

// FindSubjectByCode returns the subject and its owner, or ErrNotFound.
func (s *Store) FindSubjectByCode(ctx context.Context, code string) (OwnedSubject, error) {
	doc, err := s.repo.load(ctx)
	if err != nil {
		return OwnedSubject{}, s.done("find_subject", err)
	}
	subj, ok := doc.findSubject(CleanString(code))
	if !ok {
		return OwnedSubject{}, s.done("find_subject", ErrNotFound)
	}
	return subj, s.done("find_subject", nil)
}

// AddStudentToSubject enrolls a student, creating the account if needed. An
// existing student must be re-submitted with the same name and password.
func (s *Store) AddStudentToSubject(ctx context.Context, ne NewEnrollment) error {
	ne.clean()
	if err := requireField("subject_code", ne.SubjectCode); err != nil {
		return s.done("add_student", err)
	}
	if err := validateStruct(ne); err != nil {
		return s.done("add_student", err)
	}
	err := s.repo.update(ctx, func(doc *document) error {
		enrolled := doc.StudentsPerSubject[ne.SubjectCode]
		if _, ok := enrolled[ne.Username]; ok {
			return &DuplicateError{Kind: KindAlreadyEnrolled, Value: ne.Username}
		}

		if stu, ok := doc.Student[ne.Username]; ok {
			if stu.Name != ne.FullName || stu.Password != ne.Password {
				return &IdentityMismatchError{Role: RoleStudent, Username: ne.Username}
			}
		} else {
			doc.Student[ne.Username] = personRecord{Password: ne.Password, Name: ne.FullName}
		}

		if enrolled == nil {
			enrolled = make(map[string]bool)
			doc.StudentsPerSubject[ne.SubjectCode] = enrolled
		}
		enrolled[ne.Username] = true
		return nil
	})
	return s.done("add_student", err)
}

// RemoveStudentFromSubject drops the enrollment only. The student account and
// past attendance entries are kept.
func (s *Store) RemoveStudentFromSubject(ctx context.Context, subjectCode, username string) error {
	subjectCode = CleanString(subjectCode)
	username = CleanString(username)
	err := s.repo.update(ctx, func(doc *document) error {
		delete(doc.StudentsPerSubject[subjectCode], username)
		return nil
	})
	return s.done("remove_student", err)
}

// ListEnrolledStudents returns the enrolled students sorted by username.
// Enrollments without a matching account are skipped.
func (s *Store) ListEnrolledStudents(ctx context.Context, subjectCode string) ([]Student, error) {
	doc, err := s.repo.load(ctx)
	if err != nil {
		return nil, s.done("list_students", err)
	}
	return enrolledStudents(doc, CleanString(subjectCode)), s.done("list_students", nil)
}

// GetAttendanceForDate returns the saved marks, or an empty map.
func (s *Store) GetAttendanceForDate(ctx context.Context, subjectCode, date string) (map[string]bool, error) {
	doc, err := s.repo.load(ctx)
	if err != nil {
		return nil, s.done("get_attendance", err)
	}
	saved := doc.Attendance[CleanString(subjectCode)][CleanString(date)]
	marks := make(map[string]bool, len(saved))
	for u, present := range saved {
		marks[u] = present
	}
	return marks, s.done("get_attendance", nil)
}

// SaveAttendance replaces the marks of (subjectCode, date) with presence.
// Students left out of presence lose any entry they had for that date.
func (s *Store) SaveAttendance(ctx context.Context, subjectCode, date string, presence map[string]bool) error {
	subjectCode = CleanString(subjectCode)
	date = CleanString(date)
	if err := requireField("subject_code", subjectCode); err != nil {
		return s.done("save_attendance", err)
	}
	if err := validateDate(date); err != nil {
		return s.done("save_attendance", err)
	}
	err := s.repo.update(ctx, func(doc *document) error {
		byDate := doc.Attendance[subjectCode]
		if byDate == nil {
			byDate = make(map[string]map[string]bool)
			doc.Attendance[subjectCode] = byDate
		}
		marks := make(map[string]bool, len(presence))
		for u, present := range presence {
			marks[u] = present
		}
		byDate[date] = marks
		return nil
	})
	return s.done("save_attendance", err)
}

// ComputeAttendanceStats tallies the student's marks for the subject from the
// raw records.
func (s *Store) ComputeAttendanceStats(ctx context.Context, subjectCode, username string) (Stats, error) {
	doc, err := s.repo.load(ctx)
	if err != nil {
		return Stats{}, s.done("compute_stats", err)
	}
	return doc.stats(CleanString(subjectCode), CleanString(username)), s.done("compute_stats", nil)
}

// ListSubjectsForStudent returns the subjects the student is enrolled in,
// sorted by code. Subjects whose owner was removed are named by their code.
func (s *Store) ListSubjectsForStudent(ctx context.Context, username string) ([]SubjectRef, error) {
	doc, err := s.repo.load(ctx)
	if err != nil {
		return nil, s.done("list_student_subjects", err)
	}
	username = CleanString(username)
	refs := make([]SubjectRef, 0)
	for code, enrolled := range doc.StudentsPerSubject {
		if _, ok := enrolled[username]; !ok {
			continue
		}
		name := code
		if subj, ok := doc.findSubject(code); ok {
			name = subj.Name
		}
		refs = append(refs, SubjectRef{Code: code, Name: name})
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Code < refs[j].Code })
	return refs, s.done("list_student_subjects", nil)
}

// SubjectReport returns the stats of every enrolled student.
func (s *Store) SubjectReport(ctx context.Context, subjectCode string) ([]StudentStats, error) {
	doc, err := s.repo.load(ctx)
	if err != nil {
		return nil, s.done("subject_report", err)
	}
	subjectCode = CleanString(subjectCode)
	students := enrolledStudents(doc, subjectCode)
	report := make([]StudentStats, 0, len(students))
	for _, stu := range students {
		report = append(report, StudentStats{Student: stu, Stats: doc.stats(subjectCode, stu.Username)})
	}
	return report, s.done("subject_report", nil)
}

// StudentHistory lists every saved date of the subject in ascending order with
// the student's mark on it.
func (s *Store) StudentHistory(ctx context.Context, subjectCode, username string) ([]DayMark, error) {
	doc, err := s.repo.load(ctx)
	if err != nil {
		return nil, s.done("student_history", err)
	}
	username = CleanString(username)
	byDate := doc.Attendance[CleanString(subjectCode)]
	history := make([]DayMark, 0, len(byDate))
	for date, marks := range byDate {
		status := MarkNotMarked
		if present, ok := marks[username]; ok {
			status = MarkAbsent
			if present {
				status = MarkPresent
			}
		}
		history = append(history, DayMark{Date: date, Status: status})
	}
	sort.Slice(history, func(i, j int) bool { return history[i].Date < history[j].Date })
	return history, s.done("student_history", nil)
}

// Export returns the whole document as JSON.
func (s *Store) Export(ctx context.Context) ([]byte, error) {
	doc, err := s.repo.load(ctx)
	if err != nil {
		return nil, s.done("export", err)
	}
	data, err := encodeDocument(doc)
	return data, s.done("export", err)
}

// Import validates data and replaces the whole document with it.
func (s *Store) Import(ctx context.Context, data []byte) error {
	doc, err := decodeDocument(data)
	if err != nil {
		return s.done("import", err)
	}
	return s.done("import", s.repo.replace(ctx, doc))
}

// Reset replaces the document with the demo document, or an empty one.
func (s *Store) Reset(ctx context.Context, seed bool) error {
	doc := emptyDocument()
	if seed {
		doc = demoDocument()
	}
	return s.done("reset", s.repo.replace(ctx, doc))
}

// Ping checks the backing store.
func (s *Store) Ping(ctx context.Context) error {
	return s.repo.kv.Ping(ctx)
}

func enrolledStudents(doc *document, subjectCode string) []Student {
	enrolled := doc.StudentsPerSubject[subjectCode]
	students := make([]Student, 0, len(enrolled))
	for u := range enrolled {
		stu, ok := doc.Student[u]
		if !ok {
			continue
		}
		students = append(students, Student{Username: u, Password: stu.Password, FullName: stu.Name})
	}
	sort.Slice(students, func(i, j int) bool { return students[i].Username < students[j].Username })
	return students
}

func copySubjects(subjects []Subject) []Subject {
	return append(make([]Subject, 0, len(subjects)), subjects...)
}
