package data

import (
	"database/sql"
	"fmt"
	"time"
)

// StudentRecord is the gallery-side view of one photographed student,
// keyed by their 6-character access code.
type StudentRecord struct {
	Code         string   `json:"code"`
	StudentLabel string   `json:"student_label"`
	EventLabel   string   `json:"event_label"`
	Grade        string   `json:"grade"`
	Teacher      string   `json:"teacher"`
	School       string   `json:"school"`
	PreviewKeys  []string `json:"preview_keys"`
	UpdatedAt    time.Time
}

// GetStudentByCode fetches a student record. sql.ErrNoRows when absent.
func GetStudentByCode(code string) (*StudentRecord, error) {
	var rec StudentRecord
	var previewKeys sql.NullString
	var updatedAt string

	row, err := QueryRowDB(`
        SELECT code, student_label, event_label, grade, teacher, school,
               preview_keys_json, updated_at
        FROM students WHERE code = ?`, code)
	if err != nil {
		return nil, err
	}
	err = row.Scan(
		&rec.Code, &rec.StudentLabel, &rec.EventLabel, &rec.Grade,
		&rec.Teacher, &rec.School, &previewKeys, &updatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to fetch student %s: %w", code, err)
	}

	if err := unmarshalNullableJSON(previewKeys, &rec.PreviewKeys); err != nil {
		return nil, fmt.Errorf("failed to parse preview keys for %s: %w", code, err)
	}
	if t, err := parseTime(updatedAt); err == nil {
		rec.UpdatedAt = t
	}
	return &rec, nil
}

// StudentMetaUpdate carries the optional fields an admin may set. Nil
// pointers leave the stored value untouched.
type StudentMetaUpdate struct {
	StudentLabel *string
	EventLabel   *string
	Grade        *string
	Teacher      *string
	School       *string
	PreviewKeys  *[]string
}

// UpsertStudentMeta creates or patches a student record.
func UpsertStudentMeta(code string, update StudentMetaUpdate) error {
	if code == "" {
		return fmt.Errorf("missing student code")
	}

	existing, err := GetStudentByCode(code)
	if err != nil && err != sql.ErrNoRows {
		return err
	}

	rec := StudentRecord{Code: code}
	if existing != nil {
		rec = *existing
	}

	if update.StudentLabel != nil {
		rec.StudentLabel = *update.StudentLabel
	}
	if update.EventLabel != nil {
		rec.EventLabel = *update.EventLabel
	}
	if update.Grade != nil {
		rec.Grade = *update.Grade
	}
	if update.Teacher != nil {
		rec.Teacher = *update.Teacher
	}
	if update.School != nil {
		rec.School = *update.School
	}
	if update.PreviewKeys != nil {
		rec.PreviewKeys = *update.PreviewKeys
	}

	previewJSON, err := marshalJSON(rec.PreviewKeys)
	if err != nil {
		return err
	}
	if rec.PreviewKeys == nil {
		previewJSON = "[]"
	}

	_, err = ExecDB(`
        INSERT INTO students (code, student_label, event_label, grade, teacher,
                              school, preview_keys_json, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(code) DO UPDATE SET
            student_label = excluded.student_label,
            event_label = excluded.event_label,
            grade = excluded.grade,
            teacher = excluded.teacher,
            school = excluded.school,
            preview_keys_json = excluded.preview_keys_json,
            updated_at = excluded.updated_at`,
		rec.Code, rec.StudentLabel, rec.EventLabel, rec.Grade, rec.Teacher,
		rec.School, previewJSON, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("failed to upsert student %s: %w", code, err)
	}
	return nil
}
