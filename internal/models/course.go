package models

import "time"

// Course is a catalog entry identified by its unique code.
type Course struct {
	Code      string    `db:"code" json:"code"`
	Title     string    `db:"title" json:"title"`
	Credits   int       `db:"credits" json:"credits"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Section is one scheduled offering of a course.
type Section struct {
	ID           string     `db:"id" json:"id"`
	CourseCode   string     `db:"course_code" json:"course_code"`
	InstructorID *string    `db:"instructor_id" json:"instructor_id,omitempty"`
	Schedule     string     `db:"schedule" json:"schedule"`
	Room         string     `db:"room" json:"room"`
	Capacity     int        `db:"capacity" json:"capacity"`
	Semester     string     `db:"semester" json:"semester"`
	Year         int        `db:"year" json:"year"`
	DropDeadline *time.Time `db:"drop_deadline" json:"drop_deadline,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// SectionDetail enriches Section with course info and seat availability.
type SectionDetail struct {
	Section
	CourseTitle    string `db:"course_title" json:"course_title"`
	Credits        int    `db:"credits" json:"credits"`
	EnrolledCount  int    `db:"-" json:"enrolled_count"`
	SeatsAvailable int    `db:"-" json:"seats_available"`
}

// CourseCatalog is the read model served to catalog browsers.
type CourseCatalog struct {
	Courses  []Course        `json:"courses"`
	Sections []SectionDetail `json:"sections"`
}
