package redemption

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/komandorr/komandorr-server/internal/domain"
)

// State is the coordinator's lifecycle state.
type State string

// Coordinator states. A failed attempt can be retried with StartAuth,
// which always issues a brand new PIN session.
const (
	StateIdle           State = "idle"
	StateValidating     State = "validating"
	StateInvalid        State = "invalid"
	StateReady          State = "ready"
	StateAuthenticating State = "authenticating"
	StateAuthorized     State = "authorized"
	StateFinalizing     State = "finalizing"
	StateSucceeded      State = "succeeded"
	StateFailed         State = "failed"
)

// Popup is an authorization window. IsClosed is polled to detect the
// user abandoning the flow; Close is best-effort cleanup.
type Popup interface {
	IsClosed() bool
	Close() error
}

// PopupOpener opens the Plex authorization URL in a popup window.
type PopupOpener interface {
	Open(url string) (Popup, error)
}

// Options tunes the coordinator's timers.
type Options struct {
	// PollInterval is the delay between PIN authorization checks.
	PollInterval time.Duration
	// PopupCheckInterval is the delay between popup closed-checks.
	PopupCheckInterval time.Duration
	// Timeout is the wall-clock ceiling for one authentication attempt.
	Timeout time.Duration
	// StopOnPollError fails the attempt on the first poll transport error
	// instead of retrying until the timeout.
	StopOnPollError bool
}

// DefaultOptions returns the production timer settings.
func DefaultOptions() Options {
	return Options{
		PollInterval:       2 * time.Second,
		PopupCheckInterval: time.Second,
		Timeout:            5 * time.Minute,
		StopOnPollError:    true,
	}
}

// ErrClosed is returned by operations on a disposed coordinator.
var ErrClosed = errors.New("coordinator is closed")

// attempt is one authentication attempt. All timer callbacks carry the
// attempt ID and no-op when the attempt has ended.
type attempt struct {
	id      uint64
	session *domain.PinSession
	popup   Popup
	stop    chan struct{}
	ended   bool
}

// Coordinator runs the invite redemption flow: validate the code, open
// the Plex consent popup, poll the PIN until it is authorized, then
// finalize the redemption. It is safe for concurrent use.
type Coordinator struct {
	backend Backend
	popups  PopupOpener
	opts    Options
	logger  *slog.Logger

	mu        sync.Mutex
	state     State
	code      string
	attempt   *attempt
	nextID    uint64
	identity  *domain.AuthorizedIdentity
	result    *domain.RedemptionResult
	failure   string
	closed    bool
	onChange  func(State)
	finalized sync.WaitGroup
}

// NewCoordinator creates a coordinator. Zero-valued options fall back
// to the defaults.
func NewCoordinator(backend Backend, popups PopupOpener, opts Options, logger *slog.Logger) *Coordinator {
	defaults := DefaultOptions()
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaults.PollInterval
	}
	if opts.PopupCheckInterval <= 0 {
		opts.PopupCheckInterval = defaults.PopupCheckInterval
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaults.Timeout
	}

	return &Coordinator{
		backend: backend,
		popups:  popups,
		opts:    opts,
		logger:  logger,
		state:   StateIdle,
	}
}

// OnStateChange registers a callback invoked after every state change.
// Must be called before the flow starts.
func (c *Coordinator) OnStateChange(fn func(State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onChange = fn
}

// State returns the current state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Identity returns the authorized Plex identity, if any.
func (c *Coordinator) Identity() *domain.AuthorizedIdentity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity
}

// Result returns the redemption result once the flow has succeeded.
func (c *Coordinator) Result() *domain.RedemptionResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.result
}

// FailureReason returns why the last attempt failed.
func (c *Coordinator) FailureReason() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failure
}

// setState transitions to a new state and fires the change callback.
// Caller holds the mutex.
func (c *Coordinator) setState(next State) {
	if c.state == next {
		return
	}
	c.state = next
	if c.onChange != nil {
		fn := c.onChange
		// Fire outside the lock to let callbacks call back in.
		c.mu.Unlock()
		fn(next)
		c.mu.Lock()
	}
}

// Validate checks the invite code with the server. On success the
// coordinator is ready to authenticate. An invite the server rejects
// parks it in the invalid state until Validate is called again; a
// transport failure keeps the prior state, since the code may be fine
// and the caller can simply retry.
func (c *Coordinator) Validate(ctx context.Context, code string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	switch c.state {
	case StateIdle, StateInvalid, StateReady:
	default:
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("cannot validate in state %q", state)
	}
	prev := c.state
	c.setState(StateValidating)
	c.mu.Unlock()

	err := c.backend.ValidateInvite(ctx, code)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if err != nil {
		c.failure = err.Error()
		if IsInviteInvalid(err) {
			c.setState(StateInvalid)
		} else {
			c.setState(prev)
		}
		return err
	}

	c.code = code
	c.failure = ""
	c.setState(StateReady)
	return nil
}

// StartAuth begins an authentication attempt: it requests a fresh PIN
// session, opens the consent popup, and starts the poll, popup, and
// timeout timers. A retry after failure gets a completely new session;
// PINs are never reused.
func (c *Coordinator) StartAuth(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	switch c.state {
	case StateReady, StateFailed:
	default:
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("cannot start authentication in state %q", state)
	}
	code := c.code
	c.identity = nil
	c.result = nil
	c.failure = ""
	c.setState(StateAuthenticating)
	c.mu.Unlock()

	session, err := c.backend.StartLogin(ctx, code)
	if err != nil {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.failure = err.Error()
		c.setState(StateFailed)
		return err
	}

	popup, err := c.popups.Open(session.AuthURL)
	if err != nil {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.failure = err.Error()
		c.setState(StateFailed)
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = popup.Close()
		return ErrClosed
	}
	c.nextID++
	att := &attempt{
		id:      c.nextID,
		session: session,
		popup:   popup,
		stop:    make(chan struct{}),
	}
	c.attempt = att
	c.mu.Unlock()

	c.logger.Info("authentication attempt started",
		"attempt", att.id,
		"pin_id", session.PinID,
	)

	go c.pollLoop(ctx, att)
	go c.popupLoop(ctx, att)
	go c.timeoutTimer(att)

	return nil
}

// Cancel aborts the in-flight attempt and returns to the ready state.
// Safe to call at any time, including when nothing is running.
func (c *Coordinator) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.attempt == nil {
		return
	}
	c.endAttempt(c.attempt.id, StateReady, "cancelled")
}

// Close disposes the coordinator: the in-flight attempt is cancelled,
// its popup closed, and every later timer tick becomes a no-op.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	if c.attempt != nil {
		c.endAttempt(c.attempt.id, "", "closed")
	}
	c.mu.Unlock()

	// Wait for an in-flight finalize to settle.
	c.finalized.Wait()
	return nil
}

// endAttempt is the single cancellation path for an attempt. It is
// idempotent: stale or repeated calls for an ended attempt do nothing.
// Caller holds the mutex. terminal may be empty to keep the current state.
func (c *Coordinator) endAttempt(id uint64, terminal State, reason string) {
	att := c.attempt
	if att == nil || att.id != id || att.ended {
		return
	}
	att.ended = true
	close(att.stop)
	if att.popup != nil {
		// Best effort; the window may already be gone.
		_ = att.popup.Close()
	}

	if reason != "" && terminal == StateFailed {
		c.failure = reason
	}
	if terminal != "" {
		c.setState(terminal)
	}

	c.logger.Info("authentication attempt ended",
		"attempt", id,
		"reason", reason,
	)
}

// attemptActive reports whether the attempt is still the live one.
func (c *Coordinator) attemptActive(id uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempt != nil && c.attempt.id == id && !c.attempt.ended
}

// pollLoop checks the PIN every PollInterval until it is authorized,
// the attempt ends, or the context is cancelled.
func (c *Coordinator) pollLoop(ctx context.Context, att *attempt) {
	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-att.stop:
			return
		case <-ctx.Done():
			c.mu.Lock()
			c.endAttempt(att.id, StateFailed, "context cancelled")
			c.mu.Unlock()
			return
		case <-ticker.C:
		}

		if !c.attemptActive(att.id) {
			return
		}

		identity, err := c.backend.CheckPin(ctx, att.session.PinID, att.session.State)
		if err != nil {
			if c.opts.StopOnPollError || isTerminalPollError(err) {
				c.mu.Lock()
				c.endAttempt(att.id, StateFailed, err.Error())
				c.mu.Unlock()
				return
			}
			c.logger.Warn("pin check failed, retrying",
				"attempt", att.id,
				"error", err,
			)
			continue
		}

		if identity == nil {
			continue // still pending
		}

		// Authorized. Stop the attempt's timers; a popup closing from
		// here on no longer matters.
		c.mu.Lock()
		if c.attempt == nil || c.attempt.id != att.id || c.attempt.ended {
			c.mu.Unlock()
			return
		}
		c.identity = identity
		c.endAttempt(att.id, StateAuthorized, "authorized")
		closed := c.closed
		c.mu.Unlock()

		if closed {
			return
		}

		c.finalize(ctx, identity)
		return
	}
}

// isTerminalPollError reports whether a poll error can never recover,
// such as an expired PIN or a consumed state token.
func isTerminalPollError(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case "PIN_EXPIRED", "UNAUTHORIZED":
			return true
		}
	}
	return false
}

// popupLoop watches for the user closing the popup, which abandons the
// attempt. Once the PIN is authorized the attempt has ended and a
// closing popup is ignored.
func (c *Coordinator) popupLoop(_ context.Context, att *attempt) {
	ticker := time.NewTicker(c.opts.PopupCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-att.stop:
			return
		case <-ticker.C:
		}

		if !c.attemptActive(att.id) {
			return
		}

		if att.popup.IsClosed() {
			c.mu.Lock()
			c.endAttempt(att.id, StateFailed, "authorization window was closed")
			c.mu.Unlock()
			return
		}
	}
}

// timeoutTimer fails the attempt when it outlives the wall-clock
// ceiling. The ceiling is anchored to PIN session creation, so a slow
// popup launch does not stretch the window the PIN is valid for.
func (c *Coordinator) timeoutTimer(att *attempt) {
	wait := c.opts.Timeout
	if created := att.session.CreatedAt; !created.IsZero() {
		if until := time.Until(created.Add(c.opts.Timeout)); until < wait {
			wait = until
		}
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-att.stop:
		return
	case <-timer.C:
	}

	c.mu.Lock()
	c.endAttempt(att.id, StateFailed, "authentication timed out")
	c.mu.Unlock()
}

// finalize redeems the invite for the authorized identity. Exactly one
// finalize runs per authorized attempt; a server-side duplicate counts
// as success.
func (c *Coordinator) finalize(ctx context.Context, identity *domain.AuthorizedIdentity) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	code := c.code
	c.finalized.Add(1)
	c.setState(StateFinalizing)
	c.mu.Unlock()
	defer c.finalized.Done()

	result, err := c.backend.Redeem(ctx, code, identity)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if err != nil {
		c.failure = err.Error()
		c.setState(StateFailed)
		return
	}

	c.result = result
	if result.Succeeded() {
		c.setState(StateSucceeded)
		return
	}
	c.failure = result.Message
	c.setState(StateFailed)
}
