package compare

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"go.uber.org/zap"
)

var (
	// ErrNotReady means the session does not hold two uploaded documents.
	ErrNotReady = errors.New("both documents must be uploaded before comparing")
	// ErrInFlight means a comparison for the session is already running.
	ErrInFlight = errors.New("a comparison is already in progress for this session")
	// ErrAlreadyCompared means the session already has a result; clear it to compare again.
	ErrAlreadyCompared = errors.New("this session has already been compared; clear it to start over")
	// ErrStale is returned when the session was reset while its comparison ran.
	ErrStale = errors.New("session was reset while the comparison was running")
)

// Comparer issues the backend compare request.
type Comparer interface {
	Compare(ctx context.Context, sessionID string, c Category) (*Result, error)
}

// PDFExporter renders a raw comparison payload to PDF on the backend.
type PDFExporter interface {
	ExportPDF(ctx context.Context, raw json.RawMessage) ([]byte, error)
}

// Listener receives every new result.
type Listener func(sessionID string, r *Result)

type run struct {
	inFlight bool
	result   *Result
}

// Orchestrator gates comparisons to one per session and hands results to
// subscribers and exporters.
type Orchestrator struct {
	api Comparer
	log *zap.Logger

	mu   sync.Mutex
	runs map[string]*run
	subs []Listener
}

// NewOrchestrator returns an Orchestrator using api. A nil logger is allowed.
func NewOrchestrator(api Comparer, log *zap.Logger) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{api: api, log: log, runs: make(map[string]*run)}
}

// Subscribe registers fn for results produced after the call.
func (o *Orchestrator) Subscribe(fn Listener) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.subs = append(o.subs, fn)
}

// CanCompare reports why a comparison would be refused, or nil.
func (o *Orchestrator) CanCompare(sessionID string, fileURLs []string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.checkLocked(sessionID, fileURLs)
}

func (o *Orchestrator) checkLocked(sessionID string, fileURLs []string) error {
	if sessionID == "" || len(fileURLs) != 2 {
		return ErrNotReady
	}
	for _, u := range fileURLs {
		if u == "" {
			return ErrNotReady
		}
	}
	if r, ok := o.runs[sessionID]; ok {
		if r.inFlight {
			return ErrInFlight
		}
		if r.result != nil {
			return ErrAlreadyCompared
		}
	}
	return nil
}

// Compare runs the single comparison allowed for sessionID. On failure the
// session may be compared again; uploaded documents are unaffected.
func (o *Orchestrator) Compare(ctx context.Context, sessionID string, fileURLs []string, c Category) (*Result, error) {
	o.mu.Lock()
	if err := o.checkLocked(sessionID, fileURLs); err != nil {
		o.mu.Unlock()
		return nil, err
	}
	r := &run{inFlight: true}
	o.runs[sessionID] = r
	o.mu.Unlock()

	o.log.Info("comparison started", zap.String("session_id", sessionID), zap.String("category", string(c)))
	res, err := o.api.Compare(ctx, sessionID, c)

	o.mu.Lock()
	if o.runs[sessionID] != r {
		o.mu.Unlock()
		o.log.Info("discarding comparison for reset session", zap.String("session_id", sessionID))
		return nil, ErrStale
	}
	if err != nil {
		delete(o.runs, sessionID)
		o.mu.Unlock()
		o.log.Warn("comparison failed", zap.String("session_id", sessionID), zap.Error(err))
		return nil, err
	}
	r.inFlight = false
	r.result = res
	subs := append([]Listener(nil), o.subs...)
	o.mu.Unlock()

	for _, fn := range subs {
		fn(sessionID, res)
	}
	return res, nil
}

// Result returns the stored result for sessionID.
func (o *Orchestrator) Result(sessionID string) (*Result, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	r, ok := o.runs[sessionID]
	if !ok || r.result == nil {
		return nil, false
	}
	return r.result, true
}

// Restore records a previously obtained result, e.g. after rehydrating a
// persisted session.
func (o *Orchestrator) Restore(sessionID string, res *Result) {
	if sessionID == "" || res == nil {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.runs[sessionID] = &run{result: res}
}

// Forget drops all state for sessionID. A comparison still running for it
// will be discarded when it returns.
func (o *Orchestrator) Forget(sessionID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.runs, sessionID)
}

// Export renders the session's result with rd.
func (o *Orchestrator) Export(sessionID string, rd Renderer) ([]byte, error) {
	res, ok := o.Result(sessionID)
	if !ok {
		return nil, ErrNoResult
	}
	return rd.Render(res)
}

// ExportCSV synthesizes the CSV export locally.
func (o *Orchestrator) ExportCSV(sessionID string) ([]byte, error) {
	return o.Export(sessionID, CSVRenderer{})
}

// ExportPDF asks the backend to render the session's result.
func (o *Orchestrator) ExportPDF(ctx context.Context, sessionID string, pdf PDFExporter) ([]byte, error) {
	res, ok := o.Result(sessionID)
	if !ok {
		return nil, ErrNoResult
	}
	return pdf.ExportPDF(ctx, res.Raw)
}
