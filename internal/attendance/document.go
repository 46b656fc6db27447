package attendance

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
)

type hodRecord struct {
	Password string `json:"password"`
	Branch   string `json:"branch"`
	Batch    string `json:"batch"`
}

type personRecord struct {
	Password string `json:"password"`
	Name     string `json:"name"`
}

// document is the whole persisted state. It is decoded and re-encoded on
// every operation and never handed out to callers.
type document struct {
	Admin              map[string]string                     `json:"Admin"`
	HOD                map[string]hodRecord                  `json:"HOD"`
	Faculty            map[string]personRecord               `json:"Faculty"`
	Student            map[string]personRecord               `json:"Student"`
	Subjects           map[string][]Subject                  `json:"Subjects"`
	StudentsPerSubject map[string]map[string]bool            `json:"StudentsPerSubject"`
	Attendance         map[string]map[string]map[string]bool `json:"Attendance"`
}

func emptyDocument() *document {
	doc := &document{}
	doc.normalize()
	return doc
}

// demoDocument is written on first run.
func demoDocument() *document {
	return &document{
		Admin: map[string]string{"admin": "admin"},
		HOD: map[string]hodRecord{
			"hod1": {Password: "hodpass", Branch: "CSE", Batch: "2023"},
		},
		Faculty: map[string]personRecord{
			"fac1": {Password: "facpass", Name: "Alice"},
		},
		Student: map[string]personRecord{
			"stu1": {Password: "stupass", Name: "Bob"},
		},
		Subjects: map[string][]Subject{
			"fac1": {{Name: "Mathematics", Code: "MATH101"}},
		},
		StudentsPerSubject: map[string]map[string]bool{
			"MATH101": {"stu1": true},
		},
		Attendance: map[string]map[string]map[string]bool{
			"MATH101": {
				"2025-09-08": {"stu1": true},
				"2025-09-09": {"stu1": true},
				"2025-09-10": {"stu1": false},
			},
		},
	}
}

// normalize replaces absent sections with empty ones.
func (doc *document) normalize() {
	if doc.Admin == nil {
		doc.Admin = make(map[string]string)
	}
	if doc.HOD == nil {
		doc.HOD = make(map[string]hodRecord)
	}
	if doc.Faculty == nil {
		doc.Faculty = make(map[string]personRecord)
	}
	if doc.Student == nil {
		doc.Student = make(map[string]personRecord)
	}
	if doc.Subjects == nil {
		doc.Subjects = make(map[string][]Subject)
	}
	if doc.StudentsPerSubject == nil {
		doc.StudentsPerSubject = make(map[string]map[string]bool)
	}
	if doc.Attendance == nil {
		doc.Attendance = make(map[string]map[string]map[string]bool)
	}
}

// check enforces the invariants a loaded document must satisfy.
func (doc *document) check() error {
	codes := make(map[string]string)
	for fac, subjects := range doc.Subjects {
		for _, s := range subjects {
			if s.Code == "" {
				return &DocumentError{Section: "Subjects", Msg: "faculty " + fac + " has a subject without a code"}
			}
			if owner, ok := codes[s.Code]; ok {
				return &DocumentError{Section: "Subjects", Msg: "code " + s.Code + " used by both " + owner + " and " + fac}
			}
			codes[s.Code] = fac
		}
	}
	for code, byDate := range doc.Attendance {
		for date := range byDate {
			if _, err := time.Parse(DateLayout, date); err != nil {
				return &DocumentError{Section: "Attendance", Msg: "subject " + code + " has invalid date " + date}
			}
		}
	}
	return nil
}

// decodeDocument parses a stored document. A nil slice decodes to an empty document.
func decodeDocument(data []byte) (*document, error) {
	if len(data) == 0 {
		return emptyDocument(), nil
	}
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil, &DocumentError{Msg: "document is null"}
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var doc document
	if err := dec.Decode(&doc); err != nil {
		return nil, &DocumentError{Msg: err.Error()}
	}
	doc.normalize()
	if err := doc.check(); err != nil {
		return nil, err
	}
	return &doc, nil
}

func encodeDocument(doc *document) ([]byte, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, errors.Wrap(err, "encoding document")
	}
	return data, nil
}

// findSubject scans every faculty's subject list for code.
func (doc *document) findSubject(code string) (OwnedSubject, bool) {
	if code == "" {
		return OwnedSubject{}, false
	}
	for fac, subjects := range doc.Subjects {
		for _, s := range subjects {
			if s.Code == code {
				return OwnedSubject{Subject: s, Faculty: fac}, true
			}
		}
	}
	return OwnedSubject{}, false
}

// stats counts the dates of code on which username has an entry.
func (doc *document) stats(code, username string) Stats {
	var st Stats
	for _, byStudent := range doc.Attendance[code] {
		present, ok := byStudent[username]
		if !ok {
			continue
		}
		st.Total++
		if present {
			st.Present++
		}
	}
	return st
}

// credential looks up the stored password of an account. known is false for
// roles that have no accounts section.
func (d *document) credential(role Role, username string) (password string, found, known bool) {
	switch role {
	case RoleAdmin:
		password, found = d.Admin[username]
	case RoleHOD:
		var h hodRecord
		h, found = d.HOD[username]
		password = h.Password
	case RoleFaculty:
		var p personRecord
		p, found = d.Faculty[username]
		password = p.Password
	case RoleStudent:
		var p personRecord
		p, found = d.Student[username]
		password = p.Password
	default:
		return "", false, false
	}
	return password, found, true
}
