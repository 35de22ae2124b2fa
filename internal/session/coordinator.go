package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fakeyudi/contractdesk/internal/blob"
	"github.com/fakeyudi/contractdesk/internal/compare"
)

var (
	ErrNoFiles         = errors.New("no files selected")
	ErrTooManyFiles    = fmt.Errorf("a session holds at most %d files", MaxFiles)
	ErrUnsupportedFile = errors.New("unsupported file type (use PDF, DOC, DOCX, XLS or XLSX)")
	ErrBusy            = errors.New("an upload is already in progress")
	ErrEmptyMessage    = errors.New("message is empty")
	ErrWrongMode       = errors.New("operation not available in this mode")
	ErrNotUploaded     = errors.New("no uploaded document to remove")
	// ErrSessionReset is returned when the session was cleared or replaced
	// while the operation ran; its outcome was discarded.
	ErrSessionReset = errors.New("session was reset while the operation was running")
	ErrClosed       = errors.New("session coordinator is closed")
)

// Backend is the part of the API client the coordinator needs.
type Backend interface {
	Chat(ctx context.Context, message, sessionID string, fileURLs []string) (string, error)
	ClearSession(ctx context.Context, sessionID string) error
	Beacon(sessionID string) <-chan struct{}
}

// Uploader stores one file and returns its stable URL.
type Uploader interface {
	Upload(ctx context.Context, f blob.File, sessionID, prefix string) (string, error)
}

// Comparisons runs and remembers comparisons per session.
type Comparisons interface {
	Compare(ctx context.Context, sessionID string, fileURLs []string, c compare.Category) (*compare.Result, error)
	Restore(sessionID string, r *compare.Result)
	Forget(sessionID string)
}

// State is a consistent copy of everything the coordinator exposes.
type State struct {
	Session  Session
	Status   Status
	Progress int  // 0-100, cosmetic
	Busy     bool // chat or compare request in flight
}

// Options tune a Coordinator.
type Options struct {
	Mode            Mode
	ChatPrefix      string        // object-name prefix of chat uploads
	ProcessingDelay time.Duration // length of the simulated processing phase
	ClearTimeout    time.Duration // bound of each best-effort delete
	Logger          *zap.Logger
	Now             func() time.Time
}

// Coordinator owns the session identity, the upload state machine and every
// cleanup trigger. All methods are safe for concurrent use.
type Coordinator struct {
	backend  Backend
	uploader Uploader
	compares Comparisons
	store    SessionStore
	opts     Options
	log      *zap.Logger
	ids      *idSource

	mu       sync.Mutex
	cur      Session
	status   Status
	progress int
	busy     bool
	epoch    uint64
	closed   bool
	subs     []func(State)

	emitMu  sync.Mutex // orders deliveries to match snapshot order
	cleanup sync.WaitGroup
}

// NewCoordinator returns an idle coordinator. Call Rehydrate to pick up a
// persisted session.
func NewCoordinator(backend Backend, uploader Uploader, compares Comparisons, store SessionStore, opts Options) *Coordinator {
	if opts.Mode == "" {
		opts.Mode = ModeChat
	}
	if opts.ClearTimeout <= 0 {
		opts.ClearTimeout = 30 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if store == nil {
		store = NewMemoryStore()
	}
	c := &Coordinator{
		backend:  backend,
		uploader: uploader,
		compares: compares,
		store:    store,
		opts:     opts,
		log:      log,
		ids:      &idSource{now: opts.Now},
	}
	c.resetLocked(opts.Mode, WelcomeMessage)
	return c
}

// OnChange registers fn to receive a State after every change. fn runs on
// the goroutine that made the change and must not block or call back into
// methods that change state. Deliveries are serialized, so Progress never
// goes down within one upload batch.
func (c *Coordinator) OnChange(fn func(State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs = append(c.subs, fn)
}

// Snapshot returns the current state.
func (c *Coordinator) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

func (c *Coordinator) stateLocked() State {
	s := c.cur
	s.Files = append([]UploadedFile(nil), c.cur.Files...)
	s.Messages = append([]Message(nil), c.cur.Messages...)
	return State{Session: s, Status: c.status, Progress: c.progress, Busy: c.busy}
}

// emit notifies subscribers. Must be called without c.mu held.
func (c *Coordinator) emit() {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()
	c.mu.Lock()
	st := c.stateLocked()
	subs := append(([]func(State))(nil), c.subs...)
	c.mu.Unlock()
	for _, fn := range subs {
		fn(st)
	}
}

// Rehydrate restores the persisted session, if any. It is the only way
// persisted state flows back in.
func (c *Coordinator) Rehydrate() error {
	s, err := c.store.Load()
	if errors.Is(err, ErrNoSession) {
		return nil
	}
	if err != nil {
		return err
	}
	c.mu.Lock()
	if s.Mode == "" {
		s.Mode = c.opts.Mode
	}
	c.cur = *s
	if n, err := strconv.ParseInt(s.ID, 10, 64); err == nil {
		c.ids.observe(n)
	}
	c.status = StatusDefault
	c.progress = 0
	if s.FilesUploaded {
		c.status = StatusComplete
		c.progress = 100
	}
	c.epoch++
	c.mu.Unlock()

	if s.Comparison != nil && c.compares != nil {
		c.compares.Restore(s.ID, s.Comparison)
	}
	c.log.Info("session rehydrated", zap.String("session_id", s.ID), zap.String("mode", string(s.Mode)))
	c.emit()
	return nil
}

// SelectFiles validates files and uploads them in parallel under the current
// session. Validation happens before any network call. When the session
// already completed its uploads, a new session is started first and the old
// one is deleted in the background. The batch succeeds only if every file
// does; on failure no URL from it is kept.
func (c *Coordinator) SelectFiles(ctx context.Context, files []blob.File) error {
	if len(files) == 0 {
		return ErrNoFiles
	}
	for _, f := range files {
		if !blob.Supported(f.Name) {
			return fmt.Errorf("%w: %s", ErrUnsupportedFile, f.Name)
		}
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.status == StatusUploading || c.status == StatusProcessing {
		c.mu.Unlock()
		return ErrBusy
	}
	restart := c.cur.FilesUploaded
	held := 0
	if !restart && c.cur.Mode == ModeCompare {
		held = len(c.cur.Files)
	}
	if held+len(files) > MaxFiles {
		c.mu.Unlock()
		return ErrTooManyFiles
	}

	if restart {
		old := c.cur.ID
		c.discardLocked(old, "re-upload")
		c.resetLocked(c.cur.Mode, NewSessionMessage)
		c.log.Info("new session for re-upload", zap.String("old_session_id", old))
	}
	if c.cur.ID == "" {
		c.allocateLocked()
	}
	c.status = StatusUploading
	c.progress = 0
	epoch := c.epoch
	id := c.cur.ID
	mode := c.cur.Mode
	c.persistLocked()
	c.mu.Unlock()
	c.emit()

	prefix := ""
	if mode == ModeChat {
		prefix = c.opts.ChatPrefix
	}
	uploaded, err := c.uploadAll(ctx, epoch, id, prefix, files)

	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		return ErrSessionReset
	}
	if err != nil {
		c.status = StatusError
		c.progress = 0
		c.mu.Unlock()
		c.log.Warn("upload batch failed", zap.String("session_id", id), zap.Error(err))
		c.emit()
		return err
	}
	if mode == ModeChat {
		c.cur.Files = uploaded
	} else {
		c.cur.Files = append(c.cur.Files, uploaded...)
	}
	c.status = StatusProcessing
	c.persistLocked()
	c.mu.Unlock()
	c.emit()

	if err := c.simulateProcessing(ctx, epoch); err != nil {
		return err
	}

	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		return ErrSessionReset
	}
	c.status = StatusComplete
	c.progress = 100
	c.cur.FilesUploaded = mode == ModeChat || len(c.cur.Files) == MaxFiles
	c.persistLocked()
	c.mu.Unlock()
	c.log.Info("upload batch complete", zap.String("session_id", id), zap.Int("files", len(uploaded)))
	c.emit()
	return nil
}

// uploadAll uploads files concurrently. The first failure cancels the rest.
func (c *Coordinator) uploadAll(ctx context.Context, epoch uint64, id, prefix string, files []blob.File) ([]UploadedFile, error) {
	share := 50 / len(files)
	out := make([]UploadedFile, len(files))
	g, gctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(func() error {
			url, err := c.uploader.Upload(gctx, f, id, prefix)
			if err != nil {
				return err
			}
			out[i] = UploadedFile{Name: f.Name, Size: f.Size, RemoteURL: url}
			c.advance(epoch, share)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// advance adds delta to the progress of epoch's batch.
func (c *Coordinator) advance(epoch uint64, delta int) {
	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		return
	}
	c.progress = min(c.progress+delta, 100)
	c.mu.Unlock()
	c.emit()
}

const processingSteps = 5

// simulateProcessing walks progress from 50 to 100. There is no server-side
// progress signal; this only smooths the display.
func (c *Coordinator) simulateProcessing(ctx context.Context, epoch uint64) error {
	c.mu.Lock()
	if c.epoch == epoch {
		c.progress = max(c.progress, 50)
	}
	c.mu.Unlock()

	step := c.opts.ProcessingDelay / processingSteps
	for i := 0; i < processingSteps; i++ {
		if step > 0 {
			t := time.NewTimer(step)
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		}
		c.advance(epoch, 50/processingSteps)
	}
	return nil
}

// Retry returns a failed upload to the default state, keeping the session id.
func (c *Coordinator) Retry() {
	c.mu.Lock()
	if c.status != StatusError {
		c.mu.Unlock()
		return
	}
	c.status = StatusDefault
	c.progress = 0
	c.mu.Unlock()
	c.emit()
}

// Cancel abandons the session: it is deleted in the background and the
// state returns to the welcome screen.
func (c *Coordinator) Cancel() {
	c.mu.Lock()
	c.discardLocked(c.cur.ID, "cancel")
	c.resetLocked(c.cur.Mode, WelcomeMessage)
	c.persistLocked()
	c.mu.Unlock()
	c.emit()
}

// Clear deletes the session on the server, waiting for the attempt, and
// resets to the welcome screen. Local state is reset first and regardless of
// the outcome; a failed delete is only logged.
func (c *Coordinator) Clear(ctx context.Context) {
	c.mu.Lock()
	id := c.cur.ID
	if id != "" && c.compares != nil {
		c.compares.Forget(id)
	}
	c.resetLocked(c.cur.Mode, WelcomeMessage)
	c.persistLocked()
	c.mu.Unlock()
	c.emit()

	if id == "" {
		return
	}
	if err := c.backend.ClearSession(ctx, id); err != nil {
		c.log.Warn("session delete failed", zap.String("session_id", id), zap.String("trigger", "clear"), zap.Error(err))
		return
	}
	c.log.Info("session deleted", zap.String("session_id", id), zap.String("trigger", "clear"))
}

// SwitchMode moves to mode m. A session with at least one uploaded file is
// deleted in the background; all session-local state is reset.
func (c *Coordinator) SwitchMode(m Mode) {
	c.mu.Lock()
	if c.cur.Mode == m {
		c.mu.Unlock()
		return
	}
	if c.cur.HasUploads() {
		c.discardLocked(c.cur.ID, "mode-switch")
	} else if c.cur.ID != "" && c.compares != nil {
		c.compares.Forget(c.cur.ID)
	}
	c.resetLocked(m, WelcomeMessage)
	c.persistLocked()
	c.mu.Unlock()
	c.emit()
}

// Close is the teardown of the owning view. A session with uploaded files
// is deleted in the background. The coordinator accepts no further uploads;
// use Drain to wait for the deletes.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	if c.cur.HasUploads() {
		c.discardLocked(c.cur.ID, "close")
	}
	c.resetLocked(c.cur.Mode, WelcomeMessage)
	c.persistLocked()
	c.mu.Unlock()
	c.emit()
}

// Unload is the abrupt-exit path (signals). The delete goes out through the
// backend's detached beacon; done closes once it was attempted.
func (c *Coordinator) Unload() (done <-chan struct{}) {
	c.mu.Lock()
	id := c.cur.ID
	c.closed = true
	c.epoch++
	if err := c.store.Delete(); err != nil {
		c.log.Warn("session snapshot not removed", zap.Error(err))
	}
	c.mu.Unlock()

	if id == "" {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	c.log.Info("sending clear-session beacon", zap.String("session_id", id))
	return c.backend.Beacon(id)
}

// Drain waits for background deletes to finish or ctx to end.
func (c *Coordinator) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.cleanup.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Send asks a question about the session's documents. A session id is
// allocated when none exists yet. On failure an apology is added to the
// conversation and the uploaded documents stay usable.
func (c *Coordinator) Send(ctx context.Context, message string) (string, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return "", ErrEmptyMessage
	}
	c.mu.Lock()
	if c.cur.Mode != ModeChat {
		c.mu.Unlock()
		return "", fmt.Errorf("%w: switch to chat mode to ask questions", ErrWrongMode)
	}
	if c.cur.ID == "" {
		c.allocateLocked()
	}
	c.cur.Messages = append(c.cur.Messages, Message{Role: "user", Content: message, Timestamp: c.opts.Now()})
	c.busy = true
	epoch, id, urls := c.epoch, c.cur.ID, c.cur.FileURLs()
	c.persistLocked()
	c.mu.Unlock()
	c.emit()

	reply, err := c.backend.Chat(ctx, message, id, urls)

	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		return "", ErrSessionReset
	}
	c.busy = false
	content := reply
	if err != nil {
		content = ChatErrorMessage
	}
	c.cur.Messages = append(c.cur.Messages, Message{Role: "assistant", Content: content, Timestamp: c.opts.Now()})
	c.persistLocked()
	c.mu.Unlock()
	c.emit()

	if err != nil {
		c.log.Warn("chat failed", zap.String("session_id", id), zap.Error(err))
		return "", err
	}
	return reply, nil
}

// Compare runs the session's single comparison and keeps the result with
// the session.
func (c *Coordinator) Compare(ctx context.Context, category compare.Category) (*compare.Result, error) {
	c.mu.Lock()
	if c.cur.Mode != ModeCompare {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: switch to compare mode to compare documents", ErrWrongMode)
	}
	if c.status == StatusUploading || c.status == StatusProcessing {
		c.mu.Unlock()
		return nil, ErrBusy
	}
	epoch, id, urls := c.epoch, c.cur.ID, c.cur.FileURLs()
	c.busy = true
	c.mu.Unlock()
	c.emit()

	res, err := c.compares.Compare(ctx, id, urls, category)

	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		return nil, ErrSessionReset
	}
	c.busy = false
	if err == nil {
		c.cur.Comparison = res
		c.cur.Category = category
		c.persistLocked()
	}
	c.mu.Unlock()
	c.emit()
	return res, err
}

// RemoveFile drops the uploaded document named name from the session. A
// stored comparison no longer matches the documents and is dropped too.
func (c *Coordinator) RemoveFile(name string) error {
	c.mu.Lock()
	if c.status == StatusUploading || c.status == StatusProcessing {
		c.mu.Unlock()
		return ErrBusy
	}
	idx := -1
	for i, f := range c.cur.Files {
		if f.Name == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotUploaded, name)
	}
	c.cur.Files = append(c.cur.Files[:idx:idx], c.cur.Files[idx+1:]...)
	if c.cur.Mode == ModeChat {
		c.cur.FilesUploaded = len(c.cur.Files) > 0
	} else {
		c.cur.FilesUploaded = len(c.cur.Files) == MaxFiles
	}
	if len(c.cur.Files) == 0 {
		c.status = StatusDefault
		c.progress = 0
	}
	if c.cur.Comparison != nil {
		c.cur.Comparison = nil
		if c.compares != nil {
			c.compares.Forget(c.cur.ID)
		}
	}
	c.persistLocked()
	c.mu.Unlock()
	c.emit()
	return nil
}

// resetLocked returns to an idle session in mode m whose conversation holds
// only greeting. Outstanding operations of the previous epoch are discarded.
func (c *Coordinator) resetLocked(m Mode, greeting string) {
	c.epoch++
	c.cur = Session{
		Mode:     m,
		Messages: []Message{{Role: "assistant", Content: greeting, Timestamp: c.opts.Now()}},
	}
	c.status = StatusDefault
	c.progress = 0
	c.busy = false
}

func (c *Coordinator) allocateLocked() {
	c.cur.ID = c.ids.next()
	c.cur.CreatedAt = c.opts.Now()
	c.log.Info("session allocated", zap.String("session_id", c.cur.ID), zap.String("mode", string(c.cur.Mode)))
}

// discardLocked schedules exactly one best-effort delete of id.
func (c *Coordinator) discardLocked(id, trigger string) {
	if id == "" {
		return
	}
	if c.compares != nil {
		c.compares.Forget(id)
	}
	c.cleanup.Add(1)
	go func() {
		defer c.cleanup.Done()
		ctx, cancel := context.WithTimeout(context.Background(), c.opts.ClearTimeout)
		defer cancel()
		if err := c.backend.ClearSession(ctx, id); err != nil {
			c.log.Warn("session delete failed", zap.String("session_id", id), zap.String("trigger", trigger), zap.Error(err))
			return
		}
		c.log.Info("session deleted", zap.String("session_id", id), zap.String("trigger", trigger))
	}()
}

// persistLocked saves the snapshot. An idle session is only kept to remember
// a non-default mode. Failures are logged only.
func (c *Coordinator) persistLocked() {
	var err error
	if c.cur.ID == "" && c.cur.Mode == c.opts.Mode {
		err = c.store.Delete()
	} else {
		s := c.cur
		err = c.store.Save(&s)
	}
	if err != nil {
		c.log.Warn("session snapshot not saved", zap.Error(err))
	}
}

// idSource hands out decimal Unix-millisecond ids, strictly increasing.
type idSource struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

func (s *idSource) next() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ms := s.now().UnixMilli()
	if ms <= s.last {
		ms = s.last + 1
	}
	s.last = ms
	return strconv.FormatInt(ms, 10)
}

// observe records an id handed out earlier, e.g. by a previous process.
func (s *idSource) observe(ms int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ms > s.last {
		s.last = ms
	}
}
