package chat

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	DefaultReplyDelay  = 1500 * time.Millisecond
	DefaultUploadDelay = time.Second
)

// Store holds the state of one chat session. Every mutation happens inside
// a section guarded by mu; readers only ever see whole sections.
type Store struct {
	mu         sync.Mutex
	messages   []Message
	counter    int
	processing bool
	showPanel  bool
	panelHTML  string
	version    uint64
	changed    chan struct{}
	closed     bool

	responder      Responder
	replyDelay     time.Duration
	uploadDelay    time.Duration
	maxUploadBytes int64
	limiter        *rate.Limiter
	logger         *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type Option func(*Store)

func WithResponder(r Responder) Option {
	return func(s *Store) {
		if r != nil {
			s.responder = r
		}
	}
}

func WithReplyDelay(d time.Duration) Option {
	return func(s *Store) { s.replyDelay = d }
}

func WithUploadDelay(d time.Duration) Option {
	return func(s *Store) { s.uploadDelay = d }
}

func WithMaxUploadBytes(n int64) Option {
	return func(s *Store) { s.maxUploadBytes = n }
}

// WithRateLimit bounds sends and uploads per session. A non-positive
// perSecond disables limiting.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(s *Store) {
		if perSecond <= 0 {
			s.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewStore creates an empty store.
func NewStore(opts ...Option) *Store {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Store{
		changed:        make(chan struct{}),
		responder:      NewRuleResponder(DefaultRules()),
		replyDelay:     DefaultReplyDelay,
		uploadDelay:    DefaultUploadDelay,
		maxUploadBytes: DefaultMaxUploadBytes,
		logger:         zap.NewNop(),
		ctx:            ctx,
		cancel:         cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SendMessage appends a user message and starts the bot reply in the
// background. Blank text is ignored.
func (s *Store) SendMessage(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	s.mu.Lock()
	if err := s.admitLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.appendLocked(SenderUser, text, nil)
	s.processing = true
	s.notifyLocked()
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		s.processBotResponse(s.ctx)
	}()
	return nil
}

// HandleHTMLUpload records an uploaded HTML file and acknowledges it after
// the upload delay. Only the first file is used; no files is a no-op.
// Rejected files leave the store untouched.
func (s *Store) HandleHTMLUpload(files ...UploadFile) error {
	if len(files) == 0 {
		return nil
	}
	file := files[0]
	html, err := DecodeHTMLUpload(file, s.maxUploadBytes)
	if err != nil {
		s.logger.Info("upload rejected", zap.String("file", file.Name), zap.Error(err))
		return err
	}

	s.mu.Lock()
	if err := s.admitLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.appendLocked(SenderUser, "Uploaded: "+file.Name, nil)
	s.processing = true
	s.notifyLocked()
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		s.acknowledgeUpload(s.ctx, html)
	}()
	return nil
}

func (s *Store) acknowledgeUpload(ctx context.Context, html string) {
	if !sleepCtx(ctx, s.uploadDelay) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.appendLocked(SenderBot, UploadAckText, stringPtr(html))
	s.processing = false
	s.notifyLocked()
}

// processBotResponse answers the newest message if a user wrote it.
func (s *Store) processBotResponse(ctx context.Context) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	changed := !s.processing
	s.processing = true
	var (
		last Message
		ok   bool
	)
	if n := len(s.messages); n > 0 {
		last, ok = s.messages[n-1].clone(), true
	}
	if !ok || last.Sender != SenderUser {
		s.processing = false
		if !changed {
			s.notifyLocked()
		}
		s.mu.Unlock()
		return
	}
	if changed {
		s.notifyLocked()
	}
	s.mu.Unlock()

	if !sleepCtx(ctx, s.replyDelay) {
		return
	}
	reply, err := s.responder.Respond(ctx, last.Text)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.Warn("responder failed, using built-in rules", zap.Int("message_id", last.ID), zap.Error(err))
		reply = defaultRules.Classify(last.Text)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.appendLocked(SenderBot, reply.Text, reply.HTML)
	s.processing = false
	s.notifyLocked()
	s.logger.Debug("bot reply appended", zap.Int("reply_to", last.ID), zap.Bool("html", reply.HTML != nil))
}

// ShowHTMLInPanel opens the side panel with the given fragment.
func (s *Store) ShowHTMLInPanel(html string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if s.showPanel && s.panelHTML == html {
		return
	}
	s.panelHTML = html
	s.showPanel = true
	s.notifyLocked()
}

// ShowMessageInPanel opens the side panel with the fragment carried by
// message id.
func (s *Store) ShowMessageInPanel(id int) error {
	s.mu.Lock()
	var (
		html  string
		found bool
	)
	for _, m := range s.messages {
		if m.ID == id && m.HasHTML() {
			html, found = m.HTML(), true
			break
		}
	}
	s.mu.Unlock()
	if !found {
		return ErrUnknownMessage
	}
	s.ShowHTMLInPanel(html)
	return nil
}

// CloseSidePanel hides the panel and clears its content.
func (s *Store) CloseSidePanel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if !s.showPanel && s.panelHTML == "" {
		return
	}
	s.showPanel = false
	s.panelHTML = ""
	s.notifyLocked()
}

// Snapshot returns a deep copy of the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Subscribe emits the current snapshot and then one snapshot per state
// change until ctx ends or the store closes. A slow reader only misses
// intermediate snapshots, never the newest one.
func (s *Store) Subscribe(ctx context.Context) <-chan Snapshot {
	out := make(chan Snapshot, 1)
	go func() {
		defer close(out)
		var (
			last uint64
			sent bool
		)
		for {
			s.mu.Lock()
			snap := s.snapshotLocked()
			ch := s.changed
			closed := s.closed
			s.mu.Unlock()

			if !sent || snap.Version != last {
				pushSnapshot(out, snap)
				last, sent = snap.Version, true
			}
			if closed {
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-ch:
			}
		}
	}()
	return out
}

// Wait blocks until background replies started so far have finished.
func (s *Store) Wait() {
	s.wg.Wait()
}

// Close cancels pending replies and wakes subscribers. It is idempotent.
func (s *Store) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		s.processing = false
		s.notifyLocked()
	}
	s.mu.Unlock()
	s.cancel()
	s.wg.Wait()
}

// Closed reports whether Close has been called.
func (s *Store) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// admitLocked rejects actions while a reply is pending.
func (s *Store) admitLocked() error {
	if s.closed {
		return ErrClosed
	}
	if s.processing {
		return ErrBusy
	}
	if s.limiter != nil && !s.limiter.Allow() {
		return ErrRateLimited
	}
	return nil
}

func (s *Store) appendLocked(sender Sender, text string, html *string) {
	s.messages = append(s.messages, Message{
		ID:          s.counter,
		Text:        text,
		Sender:      sender,
		HTMLContent: html,
	})
	s.counter++
}

func (s *Store) snapshotLocked() Snapshot {
	msgs := make([]Message, len(s.messages))
	for i, m := range s.messages {
		msgs[i] = m.clone()
	}
	return Snapshot{
		Messages:             msgs,
		MessageCounter:       s.counter,
		IsProcessing:         s.processing,
		ShowSidePanel:        s.showPanel,
		SidePanelHTMLContent: s.panelHTML,
		Version:              s.version,
	}
}

func (s *Store) notifyLocked() {
	s.version++
	close(s.changed)
	s.changed = make(chan struct{})
}

func pushSnapshot(out chan Snapshot, snap Snapshot) {
	select {
	case out <- snap:
		return
	default:
	}
	select {
	case <-out:
	default:
	}
	select {
	case out <- snap:
	default:
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
