// Package session implements the translation session controller: the
// state machine that turns (debounced) triggers into translation calls,
// suppresses unchanged and duplicate submissions, discards stale
// responses, and gates the audio controls on speech-language support.
//
// States:
//
//	Idle ──trigger──▶ Pending ──success──▶ Ready
//	                     │
//	                     └──failure──▶ Failed
//
// Ready and Failed re-enter Pending on the next trigger with new input.
// There is no terminal state.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/minios-linux/leeplate/translation"
)

// State is the controller state.
type State int

const (
	Idle State = iota
	Pending
	Ready
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Pending:
		return "pending"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Translator is the translation collaborator.
type Translator interface {
	Translate(ctx context.Context, req translation.Request) (translation.Result, error)
}

// Capabilities answers whether the speech backend supports a language.
type Capabilities interface {
	IsSupported(ctx context.Context, code string) (bool, error)
}

// AudioControls is the availability of the listen/download controls per
// side. Play and download share a side's flag.
type AudioControls struct {
	Source bool
	Target bool
}

// View renders the session. Calls happen outside the controller lock,
// on the goroutine that completed the translation.
type View interface {
	// ShowResult displays a successful translation.
	ShowResult(res translation.Result)
	// SetSourceLanguage updates the displayed source-language selector
	// after auto-detection.
	SetSourceLanguage(code string)
	// SetAudioControls enables or disables the audio controls.
	SetAudioControls(c AudioControls)
}

// TransientNetworkError wraps a failed translation call. The session
// state is unchanged apart from entering Failed; the next trigger with
// the same input retries.
type TransientNetworkError struct {
	Err error
}

func (e *TransientNetworkError) Error() string {
	return "translation failed: " + e.Err.Error()
}

func (e *TransientNetworkError) Unwrap() error {
	return e.Err
}

// Outcome tells the caller what a Submit did.
type Outcome int

const (
	// Skipped means the trigger was a no-op: empty text, unchanged input,
	// or a duplicate of the in-flight request.
	Skipped Outcome = iota
	// Applied means a translation call completed and its result is shown.
	Applied
	// Discarded means a translation call completed but a newer trigger
	// had superseded it, so its response was dropped.
	Discarded
	// Errored means the translation call failed.
	Errored
)

func (o Outcome) String() string {
	switch o {
	case Skipped:
		return "skipped"
	case Applied:
		return "applied"
	case Discarded:
		return "discarded"
	case Errored:
		return "errored"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Controller is the session state machine. It is safe for concurrent use.
type Controller struct {
	translator Translator
	caps       Capabilities
	view       View
	log        *zap.Logger

	mu         sync.Mutex
	state      State
	last       string // fingerprint of the last successful request
	inflight   string // fingerprint of the pending request
	generation uint64
	current    *translation.Result
	controls   AudioControls

	running int           // translation calls not yet fully applied
	idle    chan struct{} // closed when running drops to zero
}

// New returns an Idle controller. caps and view may be nil.
func New(translator Translator, caps Capabilities, view View, log *zap.Logger) *Controller {
	if log == nil {
		log = zap.NewNop()
	}
	return &Controller{
		translator: translator,
		caps:       caps,
		view:       view,
		log:        log.Named("session"),
	}
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Result returns the displayed result, if any.
func (c *Controller) Result() (translation.Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return translation.Result{}, false
	}
	return *c.current, true
}

// Fingerprint returns the fingerprint of the last successful request.
func (c *Controller) Fingerprint() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// Controls returns the current audio control availability.
func (c *Controller) Controls() AudioControls {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.controls
}

// Wait blocks until no translation call is running. When it returns nil,
// the result and audio controls of the latest call are in place. A Submit
// skipped as a duplicate of the in-flight request returns at once, so
// callers that need the outcome wait here.
func (c *Controller) Wait(ctx context.Context) error {
	c.mu.Lock()
	idle := c.idle
	c.mu.Unlock()
	if idle == nil {
		return nil
	}
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// begin and end bracket a translation call; c.mu must be held for begin.
func (c *Controller) begin() {
	if c.running == 0 {
		c.idle = make(chan struct{})
	}
	c.running++
}

func (c *Controller) end() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running--
	if c.running == 0 {
		close(c.idle)
		c.idle = nil
	}
}

// Submit handles one trigger. It blocks for the duration of the
// translation call, if one is made.
func (c *Controller) Submit(ctx context.Context, req translation.Request) (Outcome, error) {
	if req.IsEmpty() {
		return Skipped, nil
	}
	fp := req.Fingerprint()

	c.mu.Lock()
	switch {
	case c.state == Pending && fp == c.inflight:
		c.mu.Unlock()
		c.log.Debug("duplicate of in-flight request")
		return Skipped, nil
	case c.state == Pending && fp == c.last:
		// Input went back to what is already displayed: drop the in-flight call.
		c.generation++
		c.inflight = ""
		c.state = Ready
		c.mu.Unlock()
		c.log.Debug("reverted to displayed input, in-flight request dropped")
		return Skipped, nil
	case c.state != Pending && fp == c.last:
		c.mu.Unlock()
		return Skipped, nil
	}

	c.generation++
	gen := c.generation
	c.inflight = fp
	c.state = Pending
	c.begin()
	c.mu.Unlock()
	defer c.end()

	c.log.Debug("translating",
		zap.Uint64("generation", gen),
		zap.String("source", req.Source),
		zap.String("target", req.Target))

	res, err := c.translator.Translate(ctx, req)

	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		c.log.Debug("discarding stale response", zap.Uint64("generation", gen), zap.Error(err))
		return Discarded, nil
	}
	c.inflight = ""
	if err != nil {
		c.state = Failed
		c.mu.Unlock()
		c.log.Warn("translation failed", zap.Error(err))
		return Errored, &TransientNetworkError{Err: err}
	}
	c.state = Ready
	c.last = fp
	c.current = &res
	c.mu.Unlock()

	if c.view != nil {
		c.view.ShowResult(res)
		if req.IsAutoDetect() && res.Source != "" {
			c.view.SetSourceLanguage(res.Source)
		}
	}

	c.updateControls(ctx, gen, res)
	return Applied, nil
}

// updateControls queries speech support for both sides independently. A
// failed lookup disables its side rather than assuming support.
func (c *Controller) updateControls(ctx context.Context, gen uint64, res translation.Result) {
	if c.caps == nil {
		return
	}

	source := c.supported(ctx, res.Source)
	target := c.supported(ctx, res.Target)
	controls := AudioControls{Source: source, Target: target}

	c.mu.Lock()
	if gen != c.generation {
		// A newer request owns the controls now.
		c.mu.Unlock()
		return
	}
	c.controls = controls
	c.mu.Unlock()

	if c.view != nil {
		c.view.SetAudioControls(controls)
	}
}

func (c *Controller) supported(ctx context.Context, code string) bool {
	if code == "" {
		return false
	}
	ok, err := c.caps.IsSupported(ctx, code)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			c.log.Warn("speech language lookup failed", zap.String("lang", code), zap.Error(err))
		}
		return false
	}
	return ok
}
