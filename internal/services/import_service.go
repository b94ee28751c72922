package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/dshomebg/dshome-docker-sub001/internal/importer"
	"github.com/dshomebg/dshome-docker-sub001/internal/mapping"
	"github.com/dshomebg/dshome-docker-sub001/internal/metrics"
	"github.com/dshomebg/dshome-docker-sub001/internal/models"
	"github.com/dshomebg/dshome-docker-sub001/internal/repository"
	"github.com/dshomebg/dshome-docker-sub001/internal/spreadsheet"
)

var (
	ErrSessionNotFound = repository.ErrSessionNotFound
	ErrFileRequired    = errors.New("file is required")
	ErrFileTooLarge    = errors.New("file exceeds the upload limit")
	ErrNotRunning      = errors.New("no import is running for this session")
)

// SessionStore persists wizard sessions between requests
type SessionStore interface {
	Get(ctx context.Context, tenantID, id string) (*mapping.Session, error)
	Save(ctx context.Context, session *mapping.Session) error
	Delete(ctx context.Context, tenantID, id string) error
	Sweep(ctx context.Context, now time.Time) (int, error)
	Ping(ctx context.Context) error
}

// Catalog is the product and warehouse collaborator plus the warehouse
// listing used to size dynamic slot counts
type Catalog interface {
	importer.Catalog
	ListActiveWarehouses(ctx context.Context, tenantID string) ([]models.Warehouse, error)
}

// EventPublisher announces how a batch ended. *events.Publisher implements it.
type EventPublisher interface {
	PublishCompleted(ctx context.Context, tenantID, sessionID, fileName string, result *models.ImportResult) error
	PublishFailed(ctx context.Context, tenantID, sessionID, fileName string, cause error) error
}

// Options configures an ImportService
type Options struct {
	WarehouseSlots        int
	DynamicWarehouseSlots bool
	Workers               int
	Timeout               time.Duration
	MaxUploadBytes        int64
	MaxRows               int
	PreviewRows           int
	SlotWarehouses        map[int]string
}

// ImportService drives the upload, mapping, preview, processing and results
// steps of an import session.
type ImportService struct {
	catalog   Catalog
	templates mapping.TemplateStore
	sessions  SessionStore
	publisher EventPublisher
	metrics   *metrics.Metrics
	logger    *logrus.Entry
	opts      Options

	// per-session locks serialise read-modify-write on the store
	locks sync.Map

	mu      sync.Mutex
	running map[string]*activeRun
	wg      sync.WaitGroup
}

type activeRun struct {
	cancel context.CancelFunc
}

// NewImportService creates a new ImportService. publisher and m may be nil.
func NewImportService(catalog Catalog, templates mapping.TemplateStore, sessions SessionStore, publisher EventPublisher, m *metrics.Metrics, logger *logrus.Logger, opts Options) *ImportService {
	if opts.WarehouseSlots <= 0 {
		opts.WarehouseSlots = mapping.DefaultWarehouseSlots
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.PreviewRows <= 0 {
		opts.PreviewRows = 5
	}
	return &ImportService{
		catalog:   catalog,
		templates: templates,
		sessions:  sessions,
		publisher: publisher,
		metrics:   m,
		logger:    logger.WithField("component", "import_service"),
		opts:      opts,
		running:   make(map[string]*activeRun),
	}
}

// SessionView is what clients see of a session
type SessionView struct {
	ID         string               `json:"id"`
	Step       mapping.Step         `json:"step"`
	FileName   string               `json:"fileName,omitempty"`
	Slots      int                  `json:"slots"`
	Preview    *spreadsheet.Preview `json:"preview,omitempty"`
	Mapping    map[string]string    `json:"mapping,omitempty"`
	TemplateID string               `json:"templateId,omitempty"`
	Validation *mapping.Validation  `json:"validation,omitempty"`
	Result     *models.ImportResult `json:"result,omitempty"`
	Report     []string             `json:"report,omitempty"`
	Failure    string               `json:"failure,omitempty"`
	UpdatedAt  time.Time            `json:"updatedAt"`
}

func (s *ImportService) view(session *mapping.Session) *SessionView {
	v := &SessionView{
		ID:         session.ID,
		Step:       session.Step,
		FileName:   session.FileName,
		Slots:      session.Slots,
		TemplateID: session.TemplateID,
		Result:     session.Result,
		Failure:    session.Failure,
		UpdatedAt:  session.UpdatedAt,
	}
	if session.Sheet != nil {
		preview := session.Sheet.Preview(s.opts.PreviewRows)
		v.Preview = &preview
		v.Mapping = session.Mapping.Strings()
		validation := session.ValidateForExecution()
		v.Validation = &validation
	}
	if session.Result != nil {
		for _, outcome := range session.Result.Errors {
			v.Report = append(v.Report, outcome.String())
		}
	}
	return v
}

// SlotsFor returns the warehouse slot count a new session of tenantID gets
func (s *ImportService) SlotsFor(ctx context.Context, tenantID string) (int, error) {
	if !s.opts.DynamicWarehouseSlots {
		return s.opts.WarehouseSlots, nil
	}
	warehouses, err := s.catalog.ListActiveWarehouses(ctx, tenantID)
	if err != nil {
		return 0, fmt.Errorf("failed to list warehouses: %w", err)
	}
	return len(warehouses), nil
}

func (s *ImportService) parse(fileName string, size int64, r io.Reader) (*spreadsheet.Sheet, error) {
	if r == nil || fileName == "" {
		return nil, ErrFileRequired
	}
	if err := spreadsheet.CheckExtension(fileName); err != nil {
		s.metrics.ObserveUpload(metrics.UploadRejected)
		return nil, err
	}
	if s.opts.MaxUploadBytes > 0 {
		if size > s.opts.MaxUploadBytes {
			s.metrics.ObserveUpload(metrics.UploadRejected)
			return nil, fmt.Errorf("%w: %d bytes", ErrFileTooLarge, size)
		}
		r = io.LimitReader(r, s.opts.MaxUploadBytes+1)
	}

	sheet, err := spreadsheet.Parse(fileName, r, spreadsheet.Options{MaxRows: s.opts.MaxRows})
	if err != nil {
		s.metrics.ObserveUpload(metrics.UploadRejected)
		return nil, err
	}
	s.metrics.ObserveUpload(metrics.UploadAccepted)
	return sheet, nil
}

// Upload parses a workbook and opens a new session on it in the mapping step
func (s *ImportService) Upload(ctx context.Context, tenantID, fileName string, size int64, r io.Reader) (*SessionView, error) {
	sheet, err := s.parse(fileName, size, r)
	if err != nil {
		return nil, err
	}
	slots, err := s.SlotsFor(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	session := mapping.NewSession(uuid.NewString(), tenantID, fileName, sheet, slots)
	if err := s.sessions.Save(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"tenant_id":  tenantID,
		"session_id": session.ID,
		"file":       fileName,
		"rows":       len(sheet.Rows),
		"columns":    len(sheet.Columns),
	}).Info("Spreadsheet uploaded")
	return s.view(session), nil
}

// Reupload attaches a new workbook to a session sitting in the upload step
func (s *ImportService) Reupload(ctx context.Context, tenantID, id, fileName string, size int64, r io.Reader) (*SessionView, error) {
	sheet, err := s.parse(fileName, size, r)
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, tenantID, id, func(session *mapping.Session) error {
		return session.Upload(fileName, sheet)
	})
}

// GetSession returns the current state of a session
func (s *ImportService) GetSession(ctx context.Context, tenantID, id string) (*SessionView, error) {
	session, err := s.load(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	return s.view(session), nil
}

// SetMapping binds one column to a target given by its canonical name
func (s *ImportService) SetMapping(ctx context.Context, tenantID, id, header, target string) (*SessionView, error) {
	return s.mutate(ctx, tenantID, id, func(session *mapping.Session) error {
		t, err := mapping.ParseTarget(target, session.Slots)
		if err != nil {
			return err
		}
		return session.SetMapping(header, t)
	})
}

// ReplaceMapping sets the whole mapping; unlisted columns become ignored
func (s *ImportService) ReplaceMapping(ctx context.Context, tenantID, id string, raw map[string]string) (*SessionView, error) {
	return s.mutate(ctx, tenantID, id, func(session *mapping.Session) error {
		m, err := mapping.ParseColumnMapping(raw, session.Slots)
		if err != nil {
			return err
		}
		return session.ReplaceMapping(m)
	})
}

// LoadTemplate applies a stored template to the session's columns
func (s *ImportService) LoadTemplate(ctx context.Context, tenantID, id, templateID string) (*SessionView, error) {
	return s.mutate(ctx, tenantID, id, func(session *mapping.Session) error {
		t, err := s.templates.Get(ctx, tenantID, templateID)
		if err != nil {
			return err
		}
		return session.LoadFromTemplate(t)
	})
}

// SaveTemplate stores the session's mapping as a new named template
func (s *ImportService) SaveTemplate(ctx context.Context, tenantID, id, name string) (*mapping.Template, error) {
	var saved *mapping.Template
	_, err := s.mutate(ctx, tenantID, id, func(session *mapping.Session) error {
		t, err := session.SaveAsTemplate(ctx, s.templates, name)
		saved = t
		return err
	})
	return saved, err
}

// UpdateTemplate overwrites templateID with the session's mapping
func (s *ImportService) UpdateTemplate(ctx context.Context, tenantID, id, templateID, name string) (*mapping.Template, error) {
	var saved *mapping.Template
	_, err := s.mutate(ctx, tenantID, id, func(session *mapping.Session) error {
		t, err := session.UpdateTemplate(ctx, s.templates, templateID, name)
		saved = t
		return err
	})
	return saved, err
}

// Validate reports whether the session's mapping can be executed
func (s *ImportService) Validate(ctx context.Context, tenantID, id string) (mapping.Validation, error) {
	session, err := s.load(ctx, tenantID, id)
	if err != nil {
		return mapping.Validation{}, err
	}
	if session.Sheet == nil {
		return mapping.Validation{}, fmt.Errorf("%w: %v", mapping.ErrInvalidStep, mapping.ErrNoFile)
	}
	return session.ValidateForExecution(), nil
}

// Confirm moves a valid mapping on to the preview step
func (s *ImportService) Confirm(ctx context.Context, tenantID, id string) (*SessionView, error) {
	return s.mutate(ctx, tenantID, id, func(session *mapping.Session) error {
		return session.Confirm()
	})
}

// Back steps the session backwards
func (s *ImportService) Back(ctx context.Context, tenantID, id string) (*SessionView, error) {
	return s.mutate(ctx, tenantID, id, func(session *mapping.Session) error {
		return session.Back()
	})
}

// Reset cancels any running batch and returns the session to the upload step
func (s *ImportService) Reset(ctx context.Context, tenantID, id string) (*SessionView, error) {
	s.cancelRun(tenantID, id, true)
	return s.mutate(ctx, tenantID, id, func(session *mapping.Session) error {
		session.Reset()
		return nil
	})
}

// Execute moves the session into processing and applies the sheet in the
// background. The returned view is in the processing step; poll GetSession
// for the result.
func (s *ImportService) Execute(ctx context.Context, tenantID, id string) (*SessionView, error) {
	var snapshot *mapping.Session
	view, err := s.mutate(ctx, tenantID, id, func(session *mapping.Session) error {
		if err := session.StartProcessing(); err != nil {
			return err
		}
		snapshot = session
		return nil
	})
	if err != nil {
		return nil, err
	}

	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if s.opts.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(context.Background(), s.opts.Timeout)
	} else {
		runCtx, cancel = context.WithCancel(context.Background())
	}
	run := &activeRun{cancel: cancel}
	key := sessionKey(tenantID, id)
	s.mu.Lock()
	if previous, ok := s.running[key]; ok {
		previous.cancel()
	}
	s.running[key] = run
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			if s.running[key] == run {
				delete(s.running, key)
			}
			s.mu.Unlock()
			cancel()
		}()
		s.run(runCtx, run, snapshot)
	}()

	return view, nil
}

var errStaleRun = errors.New("session was reset while the import was running")

func (s *ImportService) run(ctx context.Context, run *activeRun, snapshot *mapping.Session) {
	log := s.logger.WithFields(logrus.Fields{
		"tenant_id":  snapshot.TenantID,
		"session_id": snapshot.ID,
	})

	executor := importer.NewExecutor(s.catalog, s.logger.Logger, importer.Options{
		Workers:        s.opts.Workers,
		Slots:          snapshot.Slots,
		SlotWarehouses: s.opts.SlotWarehouses,
		Metrics:        s.metrics,
	})
	result, runErr := executor.Run(ctx, snapshot.TenantID, snapshot.Sheet, snapshot.Mapping)

	// the request context is long gone; the store write must not be cut short
	storeCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, err := s.mutate(storeCtx, snapshot.TenantID, snapshot.ID, func(session *mapping.Session) error {
		if !s.isCurrent(snapshot.TenantID, snapshot.ID, run) {
			return errStaleRun
		}
		if runErr != nil {
			return session.Fail(runErr)
		}
		return session.Complete(result)
	})
	if runErr != nil {
		log.WithError(runErr).Error("Import failed")
	}
	if err != nil {
		if errors.Is(err, errStaleRun) || errors.Is(err, ErrSessionNotFound) {
			// a reset or a newer run owns the session now
			log.WithError(err).Info("Dropping import outcome")
			return
		}
		log.WithError(err).Warn("Import finished but the session was no longer waiting for it")
	}

	if s.publisher == nil {
		return
	}
	if runErr != nil {
		_ = s.publisher.PublishFailed(storeCtx, snapshot.TenantID, snapshot.ID, snapshot.FileName, runErr)
		return
	}
	_ = s.publisher.PublishCompleted(storeCtx, snapshot.TenantID, snapshot.ID, snapshot.FileName, result)
}

// Cancel stops a running batch. Rows already applied stay applied and are
// reported in the partial result.
func (s *ImportService) Cancel(ctx context.Context, tenantID, id string) error {
	if _, err := s.load(ctx, tenantID, id); err != nil {
		return err
	}
	if !s.cancelRun(tenantID, id, false) {
		return ErrNotRunning
	}
	s.logger.WithFields(logrus.Fields{"tenant_id": tenantID, "session_id": id}).Info("Import cancellation requested")
	return nil
}

// cancelRun stops the session's run. A forgotten run no longer records its
// outcome on the session.
func (s *ImportService) cancelRun(tenantID, id string, forget bool) bool {
	key := sessionKey(tenantID, id)
	s.mu.Lock()
	run, ok := s.running[key]
	if ok && forget {
		delete(s.running, key)
	}
	s.mu.Unlock()
	if ok {
		run.cancel()
	}
	return ok
}

func (s *ImportService) isCurrent(tenantID, id string, run *activeRun) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running[sessionKey(tenantID, id)] == run
}

// Wait blocks until every background run has stored its outcome
func (s *ImportService) Wait() {
	s.wg.Wait()
}

// Shutdown cancels running batches and waits for them, or for ctx
func (s *ImportService) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	for _, run := range s.running {
		run.cancel()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SweepSessions drops expired sessions from stores that need it
func (s *ImportService) SweepSessions(ctx context.Context) (int, error) {
	n, err := s.sessions.Sweep(ctx, time.Now())
	if err != nil {
		return 0, err
	}
	s.metrics.SessionsSwept(n)
	return n, nil
}

// Ping checks the session store
func (s *ImportService) Ping(ctx context.Context) error {
	return s.sessions.Ping(ctx)
}

// TargetOption is one entry of the mapping dropdown
type TargetOption struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// Targets lists the field targets a new session of tenantID can use
func (s *ImportService) Targets(ctx context.Context, tenantID string) ([]TargetOption, error) {
	slots, err := s.SlotsFor(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	targets := mapping.Targets(slots)
	options := make([]TargetOption, len(targets))
	for i, t := range targets {
		options[i] = TargetOption{Value: t.String(), Label: targetLabel(t)}
	}
	return options, nil
}

func targetLabel(t mapping.FieldTarget) string {
	switch t.Kind {
	case mapping.KindSKU:
		return "SKU"
	case mapping.KindSalePrice:
		return "Sale price"
	case mapping.KindPurchasePrice:
		return "Purchase price"
	case mapping.KindWarehouseID:
		return fmt.Sprintf("Warehouse %d ID", t.Slot)
	case mapping.KindWarehouseQty:
		return fmt.Sprintf("Warehouse %d quantity", t.Slot)
	}
	return "Do not import"
}

// WriteSample writes a sample workbook whose headers are the canonical
// target names, so it maps one to one.
func (s *ImportService) WriteSample(ctx context.Context, tenantID string, w io.Writer) error {
	slots, err := s.SlotsFor(ctx, tenantID)
	if err != nil {
		return err
	}
	return spreadsheet.WriteSample(w, SampleColumns(slots))
}

// SampleColumns describes the sample workbook for a slot count
func SampleColumns(slots int) []spreadsheet.SampleColumn {
	columns := []spreadsheet.SampleColumn{
		{Name: mapping.SKU.String(), Description: "Product SKU, matched exactly against existing products", Required: true, Example: "TSH-001"},
		{Name: mapping.SalePrice.String(), Description: "New sale price. Leave blank to keep the current price", Example: "19.99"},
		{Name: mapping.PurchasePrice.String(), Description: "New purchase price. Leave blank to keep the current price", Example: "8.50"},
	}
	for n := 1; n <= slots; n++ {
		columns = append(columns,
			spreadsheet.SampleColumn{
				Name:        mapping.WarehouseID(n).String(),
				Description: fmt.Sprintf("Warehouse %d, by id or code", n),
				Example:     fmt.Sprintf("WH-%d", n),
			},
			spreadsheet.SampleColumn{
				Name:        mapping.WarehouseQty(n).String(),
				Description: fmt.Sprintf("Stock on hand at warehouse %d. Replaces the current quantity", n),
				Example:     "10",
			},
		)
	}
	return columns
}

// ListTemplates returns the tenant's mapping templates
func (s *ImportService) ListTemplates(ctx context.Context, tenantID string) ([]mapping.Template, error) {
	return s.templates.List(ctx, tenantID)
}

// GetTemplate returns one mapping template
func (s *ImportService) GetTemplate(ctx context.Context, tenantID, id string) (*mapping.Template, error) {
	return s.templates.Get(ctx, tenantID, id)
}

// CreateTemplate stores a template built outside a session
func (s *ImportService) CreateTemplate(ctx context.Context, tenantID, name string, raw map[string]string) (*mapping.Template, error) {
	name, m, err := s.templateInput(ctx, tenantID, name, raw)
	if err != nil {
		return nil, err
	}
	return s.templates.Create(ctx, tenantID, name, m)
}

// PutTemplate overwrites a template's name and mapping
func (s *ImportService) PutTemplate(ctx context.Context, tenantID, id, name string, raw map[string]string) (*mapping.Template, error) {
	name, m, err := s.templateInput(ctx, tenantID, name, raw)
	if err != nil {
		return nil, err
	}
	return s.templates.Update(ctx, tenantID, id, name, m)
}

// DeleteTemplate removes a template
func (s *ImportService) DeleteTemplate(ctx context.Context, tenantID, id string) error {
	return s.templates.Delete(ctx, tenantID, id)
}

func (s *ImportService) templateInput(ctx context.Context, tenantID, name string, raw map[string]string) (string, mapping.ColumnMapping, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", nil, mapping.ErrTemplateName
	}
	slots, err := s.SlotsFor(ctx, tenantID)
	if err != nil {
		return "", nil, err
	}
	m, err := mapping.ParseColumnMapping(raw, slots)
	if err != nil {
		return "", nil, err
	}
	return name, m, nil
}

func (s *ImportService) lock(tenantID, id string) func() {
	v, _ := s.locks.LoadOrStore(sessionKey(tenantID, id), &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func (s *ImportService) load(ctx context.Context, tenantID, id string) (*mapping.Session, error) {
	return s.sessions.Get(ctx, tenantID, id)
}

// mutate loads a session, applies fn and saves it back under the session lock.
// Nothing is saved when fn fails.
func (s *ImportService) mutate(ctx context.Context, tenantID, id string, fn func(*mapping.Session) error) (*SessionView, error) {
	unlock := s.lock(tenantID, id)
	defer unlock()

	session, err := s.load(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if err := fn(session); err != nil {
		return nil, err
	}
	if err := s.sessions.Save(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}
	return s.view(session), nil
}

func sessionKey(tenantID, id string) string {
	return tenantID + ":" + id
}
