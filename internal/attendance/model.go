package attendance

import "strings"

// Role identifies one of the four account kinds.
type Role string

const (
	RoleAdmin   Role = "Admin"
	RoleHOD     Role = "HOD"
	RoleFaculty Role = "Faculty"
	RoleStudent Role = "Student"
)

// Roles lists every role in privilege order.
var Roles = []Role{RoleAdmin, RoleHOD, RoleFaculty, RoleStudent}

// ParseRole matches s against the known roles, ignoring case.
func ParseRole(s string) (Role, bool) {
	for _, r := range Roles {
		if strings.EqualFold(string(r), strings.TrimSpace(s)) {
			return r, true
		}
	}
	return "", false
}

// Session is the identity established by a successful Authenticate.
type Session struct {
	Role     Role   `json:"role"`
	Username string `json:"username"`
}

// HOD is a head-of-department account.
type HOD struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Branch   string `json:"branch"`
	Batch    string `json:"batch"`
}

// Faculty is a faculty account with the subjects it owns, in insertion order.
type Faculty struct {
	Username string    `json:"username"`
	Password string    `json:"password"`
	FullName string    `json:"full_name"`
	Subjects []Subject `json:"subjects"`
}

// Student is a student account.
type Student struct {
	Username string `json:"username"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
}

// Subject is owned by exactly one faculty. Code is unique across all faculty.
type Subject struct {
	Name string `json:"subject"`
	Code string `json:"code"`
}

// OwnedSubject is a Subject together with the username of its faculty.
type OwnedSubject struct {
	Subject
	Faculty string `json:"faculty"`
}

// SubjectRef is the student-side view of an enrollment.
type SubjectRef struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// MarkStatus is a student's status on one saved date.
type MarkStatus string

const (
	MarkPresent   MarkStatus = "present"
	MarkAbsent    MarkStatus = "absent"
	MarkNotMarked MarkStatus = "not-marked"
)

// DayMark is one row of a student's attendance history for a subject.
type DayMark struct {
	Date   string     `json:"date"`
	Status MarkStatus `json:"status"`
}

// StudentStats pairs an enrolled student with their attendance stats.
type StudentStats struct {
	Student
	Stats Stats `json:"stats"`
}

// NewHOD contains information needed to create a HOD account.
type NewHOD struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
	Branch   string `json:"branch" validate:"required"`
	Batch    string `json:"batch" validate:"required"`
}

func (nh *NewHOD) clean() {
	nh.Username = CleanString(nh.Username)
	nh.Password = CleanString(nh.Password)
	nh.Branch = CleanString(nh.Branch)
	nh.Batch = CleanString(nh.Batch)
}

// NewFacultySubject creates (or re-asserts) a faculty account and assigns it a new subject.
type NewFacultySubject struct {
	Username    string `json:"username" validate:"required"`
	Password    string `json:"password" validate:"required"`
	FullName    string `json:"full_name" validate:"required"`
	SubjectName string `json:"subject_name" validate:"required"`
	SubjectCode string `json:"subject_code" validate:"required"`
}

func (nf *NewFacultySubject) clean() {
	nf.Username = CleanString(nf.Username)
	nf.Password = CleanString(nf.Password)
	nf.FullName = CleanString(nf.FullName)
	nf.SubjectName = CleanString(nf.SubjectName)
	nf.SubjectCode = CleanString(nf.SubjectCode)
}

// NewEnrollment creates (or re-asserts) a student account and enrolls it in a subject.
type NewEnrollment struct {
	SubjectCode string `json:"subject_code"`
	Username    string `json:"username" validate:"required"`
	FullName    string `json:"full_name" validate:"required"`
	Password    string `json:"password" validate:"required"`
}

func (ne *NewEnrollment) clean() {
	ne.SubjectCode = CleanString(ne.SubjectCode)
	ne.Username = CleanString(ne.Username)
	ne.FullName = CleanString(ne.FullName)
	ne.Password = CleanString(ne.Password)
}

// CleanString trims all leading and trailing whitespace in s.
func CleanString(s string) string {
	return strings.TrimSpace(s)
}
