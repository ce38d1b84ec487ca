// Package koubs drives the KOUBS student portal: session-aware login and
// bulk extraction of semester grade records.
package koubs

import "errors"

const (
	// LoginURL is the portal's credential + CAPTCHA login page.
	LoginURL = "https://ogr.kocaeli.edu.tr/KOUBS/ogrenci/index.cfm"
	// MainPageURL is the authenticated landing page.
	MainPageURL = "https://ogr.kocaeli.edu.tr/KOUBS/Ogrenci/AnaGiris.cfm"
	// OriginURL is navigated to before cookie injection so the injected
	// cookies attach to the right domain.
	OriginURL = "https://ogr.kocaeli.edu.tr"
)

var (
	ErrLoginFailed   = errors.New("login failed")
	ErrLoginTimeout  = errors.New("login timed out waiting for CAPTCHA")
	ErrLoginFormGone = errors.New("login form not found")
	ErrNavigation    = errors.New("grades page never appeared")
)

// Credentials are held only for the duration of a login attempt and are
// never persisted.
type Credentials struct {
	Username string
	Password string
}

// Semester is one option of the portal's semester selector.
type Semester struct {
	Value string
	Name  string
}

// CourseActivity is one graded component row from a course's detail modal.
type CourseActivity struct {
	ActivityType   string `json:"activity_type"`
	Score          string `json:"score"`
	Percentage     string `json:"percentage"`
	SemesterEffect string `json:"semester_effect"`
}

// Course is one row of a semester's course table, optionally enriched with
// the instructor and activity breakdown from its detail modal.
type Course struct {
	Sequence        string           `json:"sequence"`
	Code            string           `json:"code"`
	Name            string           `json:"name"`
	Attendance      string           `json:"attendance"`
	Language        string           `json:"language"`
	Ects            string           `json:"ects"`
	Yio             string           `json:"yio"`
	Yys             string           `json:"yys"`
	But             string           `json:"but"`
	Bn              string           `json:"bn"`
	Bd              string           `json:"bd"`
	Instructor      string           `json:"instructor"`
	Activities      []CourseActivity `json:"activities"`
	SemesterAverage string           `json:"semester_average"`

	// detailKey references this course's detail modal during collection.
	// unexported on purpose, it must never leave the process.
	detailKey string
}

// SemesterGrades groups the courses extracted for one semester.
type SemesterGrades struct {
	SemesterName string   `json:"semester_name"`
	Courses      []Course `json:"courses"`
}

// Aggregate is the full per-user dataset, keyed by the semester selector
// value. Keys sort chronologically, the portal encodes them as
// <year><term> digit strings.
type Aggregate map[string]SemesterGrades

// TotalCourses counts courses across all semesters.
func (a Aggregate) TotalCourses() int {
	total := 0
	for _, semester := range a {
		total += len(semester.Courses)
	}
	return total
}
