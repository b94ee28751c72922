package mapping

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dshomebg/dshome-docker-sub001/internal/models"
	"github.com/dshomebg/dshome-docker-sub001/internal/spreadsheet"
)

// Step is the wizard position of a session
type Step string

const (
	StepUpload     Step = "upload"
	StepMapping    Step = "mapping"
	StepPreview    Step = "preview"
	StepProcessing Step = "processing"
	StepResults    Step = "results"
)

// Session is the mutable state of one import wizard run. It is a plain value
// so callers and tests can build one at any step; it is not safe for
// concurrent use and owners serialise access to it.
type Session struct {
	ID         string               `json:"id"`
	TenantID   string               `json:"tenantId"`
	Step       Step                 `json:"step"`
	FileName   string               `json:"fileName,omitempty"`
	Sheet      *spreadsheet.Sheet   `json:"sheet,omitempty"`
	Slots      int                  `json:"slots"`
	Mapping    ColumnMapping        `json:"mapping,omitempty"`
	TemplateID string               `json:"templateId,omitempty"`
	Result     *models.ImportResult `json:"result,omitempty"`
	// Failure holds the message of a fatal execution error such as a timeout
	Failure   string    `json:"failure,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewSession starts a session on a freshly parsed sheet. Every column starts
// out ignored and the session sits in the mapping step.
func NewSession(id, tenantID, fileName string, sheet *spreadsheet.Sheet, slots int) *Session {
	now := time.Now().UTC()
	s := &Session{
		ID:        id,
		TenantID:  tenantID,
		Step:      StepUpload,
		Slots:     slots,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.attach(fileName, sheet)
	return s
}

// Upload attaches a new sheet to a session that was sent back to the upload step
func (s *Session) Upload(fileName string, sheet *spreadsheet.Sheet) error {
	if err := s.expect(StepUpload); err != nil {
		return err
	}
	if sheet == nil {
		return ErrNoFile
	}
	s.attach(fileName, sheet)
	return nil
}

func (s *Session) attach(fileName string, sheet *spreadsheet.Sheet) {
	s.FileName = fileName
	s.Sheet = sheet
	s.Mapping = NewColumnMapping(sheet.Headers())
	s.TemplateID = ""
	s.Result = nil
	s.Failure = ""
	s.Step = StepMapping
	s.touch()
}

// SetMapping overwrites the target of one column. Two columns may claim the
// same target; see Resolve for which one is read.
func (s *Session) SetMapping(header string, target FieldTarget) error {
	if err := s.expect(StepMapping); err != nil {
		return err
	}
	if err := s.checkAssignment(header, target); err != nil {
		return err
	}
	s.Mapping[header] = target
	s.touch()
	return nil
}

// ReplaceMapping sets every column at once. Columns absent from m become
// ignored. Nothing changes when any entry is rejected.
func (s *Session) ReplaceMapping(m ColumnMapping) error {
	if err := s.expect(StepMapping); err != nil {
		return err
	}
	for header, target := range m {
		if err := s.checkAssignment(header, target); err != nil {
			return err
		}
	}
	next := NewColumnMapping(s.Sheet.Headers())
	for header, target := range m {
		next[header] = target
	}
	s.Mapping = next
	s.touch()
	return nil
}

func (s *Session) checkAssignment(header string, target FieldTarget) error {
	if !s.Sheet.HasColumn(header) {
		return fmt.Errorf("%w: %q", ErrUnknownColumn, header)
	}
	if !target.ValidFor(s.Slots) {
		return fmt.Errorf("%w: %s", ErrUnknownTarget, target)
	}
	return nil
}

// LoadFromTemplate replaces the mapping with the template's entries for the
// headers this sheet has. Template headers missing from the sheet, and
// warehouse slots beyond the session's slot count, are dropped.
func (s *Session) LoadFromTemplate(t *Template) error {
	if err := s.expect(StepMapping); err != nil {
		return err
	}
	if t == nil {
		return ErrTemplateNotFound
	}
	next := NewColumnMapping(s.Sheet.Headers())
	for header, target := range t.Mapping {
		if _, ok := next[header]; !ok || !target.ValidFor(s.Slots) {
			continue
		}
		next[header] = target
	}
	s.Mapping = next
	s.TemplateID = t.ID
	s.touch()
	return nil
}

// SaveAsTemplate stores the current mapping as a new template
func (s *Session) SaveAsTemplate(ctx context.Context, store TemplateStore, name string) (*Template, error) {
	if err := s.expect(StepMapping, StepPreview); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrTemplateName
	}
	t, err := store.Create(ctx, s.TenantID, name, s.Mapping.Clone())
	if err != nil {
		return nil, err
	}
	s.TemplateID = t.ID
	s.touch()
	return t, nil
}

// UpdateTemplate overwrites an existing template with the current mapping
func (s *Session) UpdateTemplate(ctx context.Context, store TemplateStore, id, name string) (*Template, error) {
	if err := s.expect(StepMapping, StepPreview); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrTemplateName
	}
	t, err := store.Update(ctx, s.TenantID, id, name, s.Mapping.Clone())
	if err != nil {
		return nil, err
	}
	s.TemplateID = t.ID
	s.touch()
	return t, nil
}

// ValidateForExecution reports whether exactly one column maps to sku
func (s *Session) ValidateForExecution() Validation {
	return s.Mapping.Validate()
}

// Resolved flattens the mapping against the sheet's column order
func (s *Session) Resolved() Resolved {
	if s.Sheet == nil {
		return Resolved{}
	}
	return s.Mapping.Resolve(s.Sheet.Headers(), s.Slots)
}

// Confirm moves from mapping to preview once the mapping is valid
func (s *Session) Confirm() error {
	if err := s.expect(StepMapping); err != nil {
		return err
	}
	if err := s.ValidateForExecution().Err(); err != nil {
		return err
	}
	s.Step = StepPreview
	s.touch()
	return nil
}

// Back steps the wizard backwards. From mapping it discards the file and the
// mapping; from preview it keeps the mapping.
func (s *Session) Back() error {
	switch s.Step {
	case StepMapping:
		s.discard()
	case StepPreview:
		s.Step = StepMapping
	default:
		return fmt.Errorf("%w: cannot go back from %s", ErrInvalidStep, s.Step)
	}
	s.touch()
	return nil
}

// StartProcessing enters the processing step. It is entered at most once per
// uploaded file.
func (s *Session) StartProcessing() error {
	if err := s.expect(StepPreview); err != nil {
		return err
	}
	if err := s.ValidateForExecution().Err(); err != nil {
		return err
	}
	s.Step = StepProcessing
	s.touch()
	return nil
}

// Complete records the batch result and shows it
func (s *Session) Complete(result *models.ImportResult) error {
	if err := s.expect(StepProcessing); err != nil {
		return err
	}
	s.Result = result
	s.Step = StepResults
	s.touch()
	return nil
}

// Fail ends processing with a fatal error and no result
func (s *Session) Fail(cause error) error {
	if err := s.expect(StepProcessing); err != nil {
		return err
	}
	s.Result = nil
	s.Failure = cause.Error()
	s.Step = StepResults
	s.touch()
	return nil
}

// Reset returns to the upload step, discarding file, mapping and result
func (s *Session) Reset() {
	s.discard()
	s.touch()
}

func (s *Session) discard() {
	s.Step = StepUpload
	s.FileName = ""
	s.Sheet = nil
	s.Mapping = nil
	s.TemplateID = ""
	s.Result = nil
	s.Failure = ""
}

func (s *Session) expect(steps ...Step) error {
	for _, step := range steps {
		if s.Step == step {
			return nil
		}
	}
	return fmt.Errorf("%w: session is in step %s", ErrInvalidStep, s.Step)
}

func (s *Session) touch() {
	s.UpdatedAt = time.Now().UTC()
}
