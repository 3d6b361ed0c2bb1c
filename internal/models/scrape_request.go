package models

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// academicYearPattern matches "YYYY-YY" periods like "2022-23"
var academicYearPattern = regexp.MustCompile(`^\d{4}-\d{2}$`)

var validate = validator.New()

// ScrapeRequest is a job submission: subject credentials, the target period,
// per-stage toggles and upload behaviour.
type ScrapeRequest struct {
	Username              string `json:"username" validate:"required"`
	Password              string `json:"password" validate:"required"`
	AcademicYear          string `json:"academic_year" validate:"required"`
	ScrapeAttendance      bool   `json:"scrape_attendance"`
	ScrapeMidMarks        bool   `json:"scrape_mid_marks"`
	ScrapePersonalDetails bool   `json:"scrape_personal_details"`
	UploadResults         bool   `json:"upload_to_storage"`
	ForceUpdate           bool   `json:"force_update"`
}

// DefaultScrapeRequest returns a request with the default toggles enabled.
// Decode JSON into this value so absent fields keep their defaults.
func DefaultScrapeRequest() ScrapeRequest {
	return ScrapeRequest{
		ScrapeAttendance:      true,
		ScrapeMidMarks:        true,
		ScrapePersonalDetails: true,
		UploadResults:         true,
		ForceUpdate:           false,
	}
}

// Validate rejects blank or placeholder credentials and malformed periods.
// "string" is the literal placeholder interactive API browsers submit.
func (r *ScrapeRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("invalid scrape request: %w", err)
	}
	if isPlaceholder(r.Username) {
		return fmt.Errorf("username must not be the default value \"string\" or empty")
	}
	if isPlaceholder(r.Password) {
		return fmt.Errorf("password must not be the default value \"string\" or empty")
	}
	if isPlaceholder(r.AcademicYear) {
		return fmt.Errorf("academic_year must not be the default value \"string\" or empty")
	}
	if !academicYearPattern.MatchString(r.AcademicYear) {
		return fmt.Errorf("academic_year must be in the format \"YYYY-YY\" (e.g., \"2022-23\")")
	}
	return nil
}

func isPlaceholder(v string) bool {
	trimmed := strings.TrimSpace(v)
	return trimmed == "" || trimmed == "string"
}

// Details converts the request into the immutable job details snapshot
func (r *ScrapeRequest) Details() JobDetails {
	return JobDetails{
		Username:              r.Username,
		AcademicYear:          r.AcademicYear,
		ScrapeAttendance:      r.ScrapeAttendance,
		ScrapeMidMarks:        r.ScrapeMidMarks,
		ScrapePersonalDetails: r.ScrapePersonalDetails,
		UploadResults:         r.UploadResults,
		ForceUpdate:           r.ForceUpdate,
	}
}
