// Package guidance reads the optional per-session teacher review file and
// renders it as an instruction block for the answer prompt.
package guidance

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FileName is the guidance side file inside a session directory.
const FileName = "teacher_review.json"

// ErrInvalidSession is returned when a session id is not a single path
// component.
var ErrInvalidSession = errors.New("guidance: invalid session id")

// Guidance holds the teacher's instructions for one session.
type Guidance struct {
	// AssessmentFocus describes the evaluation style the teacher uses.
	AssessmentFocus string `json:"assessment_focus"`

	// StudentGaps lists knowledge gaps the explanation should prioritize.
	StudentGaps string `json:"student_gaps"`

	// DocumentText is free-form guidance from the teacher's review document.
	DocumentText string `json:"document_text"`
}

// ValidateSession rejects ids that would escape the uploads root.
func ValidateSession(session string) error {
	switch {
	case session == "", session == ".", session == "..":
		return fmt.Errorf("%w: %q", ErrInvalidSession, session)
	case strings.ContainsAny(session, `/\`), filepath.Base(session) != session:
		return fmt.Errorf("%w: %q", ErrInvalidSession, session)
	}
	return nil
}

// Path returns the guidance file path for session under root.
func Path(root, session string) (string, error) {
	if err := ValidateSession(session); err != nil {
		return "", err
	}
	return filepath.Join(root, session, FileName), nil
}

// Load reads the guidance file for session under root. A missing file is
// not an error and yields nil.
func Load(root, session string) (*Guidance, error) {
	path, err := Path(root, session)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path) //nolint:gosec // path is validated above
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("guidance: read %s: %w", path, err)
	}
	var g Guidance
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("guidance: parse %s: %w", path, err)
	}
	return &g, nil
}

// IsZero reports whether g carries no instructions.
func (g *Guidance) IsZero() bool {
	return g == nil ||
		strings.TrimSpace(g.AssessmentFocus) == "" &&
			strings.TrimSpace(g.StudentGaps) == "" &&
			strings.TrimSpace(g.DocumentText) == ""
}

// Block renders the guidance as a prompt section, or "" when g is empty.
func (g *Guidance) Block() string {
	if g.IsZero() {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n\n**IMPORTANT TEACHER GUIDANCE**:")
	if v := strings.TrimSpace(g.AssessmentFocus); v != "" {
		b.WriteString("\n- Assessment/Evaluation Style: " + v)
	}
	if v := strings.TrimSpace(g.StudentGaps); v != "" {
		b.WriteString("\n- Student Knowledge Gaps to prioritize: " + v)
	}
	if v := strings.TrimSpace(g.DocumentText); v != "" {
		b.WriteString("\n- Detailed Guidance from Teacher's Review Document: " + v)
	}
	b.WriteString("\nAdjust your explanation and assessment approach to align with these instructions.")
	return b.String()
}
