package facecrop

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dixieflatline76/facecrop/pkg/detect"
	"github.com/dixieflatline76/facecrop/util"
	"github.com/dixieflatline76/facecrop/util/log"
	"golang.org/x/sync/singleflight"
)

// Listener receives every status change.
type Listener func(status Status, message string)

// Controller owns the face model and the processing status, and runs one image at a
// time. Submitting a new image cancels the run in flight.
type Controller struct {
	loader   detect.Loader
	pipeline *Pipeline
	opts     Options

	loadGroup singleflight.Group

	mu        sync.Mutex
	model     detect.Model
	status    Status
	message   string
	runSeq    uint64
	cancelRun context.CancelCauseFunc
	listeners map[int]Listener
	nextID    int

	runs *util.SafeCounter
}

// NewController creates an idle controller.
func NewController(loader detect.Loader, opts Options) *Controller {
	def := DefaultOptions()
	if opts.ModelLoadTimeout <= 0 {
		opts.ModelLoadTimeout = def.ModelLoadTimeout
	}
	if opts.DetectTimeout <= 0 {
		opts.DetectTimeout = def.DetectTimeout
	}
	return &Controller{
		loader:    loader,
		pipeline:  NewPipeline(opts),
		opts:      opts,
		status:    StatusIdle,
		message:   StatusIdle.Message(),
		listeners: make(map[int]Listener),
		runs:      util.NewSafeInt(),
	}
}

// Start loads the face model. Concurrent callers share one load. A failed load leaves
// the controller in StatusError until Start is called again.
func (c *Controller) Start(ctx context.Context) error {
	_, err, _ := c.loadGroup.Do("model", func() (any, error) {
		c.mu.Lock()
		if c.model != nil {
			c.mu.Unlock()
			return nil, nil
		}
		c.mu.Unlock()

		c.setStatus(StatusModelLoading, StatusModelLoading.Message())
		model, err := c.load(ctx)
		if err != nil {
			if !errors.Is(err, ErrModelLoad) {
				err = fmt.Errorf("%w: %w", ErrModelLoad, err)
			}
			log.Printf("Face model failed to load: %v", err)
			c.setStatus(StatusError, "Could not load the face model: "+err.Error())
			return nil, err
		}

		c.mu.Lock()
		c.model = model
		c.mu.Unlock()
		c.setStatus(StatusModelReady, StatusModelReady.Message())
		return nil, nil
	})
	return err
}

// load runs the loader under the load timeout, whether or not the loader honours its context.
func (c *Controller) load(ctx context.Context) (detect.Model, error) {
	if c.loader == nil {
		return nil, fmt.Errorf("%w: no loader", ErrModelLoad)
	}
	ctx, cancel := context.WithTimeoutCause(ctx, c.opts.ModelLoadTimeout, ErrTimeout)
	defer cancel()

	type loadResult struct {
		model detect.Model
		err   error
	}
	resultChan := make(chan loadResult, 1)
	go func() {
		m, err := c.loader.Load(ctx)
		resultChan <- loadResult{model: m, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, context.Cause(ctx)
	case r := <-resultChan:
		if r.err == nil && r.model == nil {
			return nil, fmt.Errorf("%w: loader returned no model", ErrModelLoad)
		}
		return r.model, r.err
	}
}

// Submit runs the pipeline on data. NoFaceFound is a normal outcome and returns a nil
// error. If another Submit arrives before this one finishes, this one returns
// ErrSuperseded and leaves the status alone.
func (c *Controller) Submit(ctx context.Context, data []byte) (Result, error) {
	c.mu.Lock()
	model := c.model
	if model == nil {
		status, message := c.status, c.message
		c.mu.Unlock()
		return Result{Status: status, Message: message}, ErrModelNotReady
	}
	if c.cancelRun != nil {
		c.cancelRun(ErrSuperseded)
	}
	c.runSeq++
	seq := c.runSeq
	runCtx, cancel := context.WithCancelCause(ctx)
	c.cancelRun = cancel
	notify := c.transitionLocked(StatusDetecting, StatusDetecting.Message())
	c.mu.Unlock()
	notify()

	defer cancel(nil)
	c.runs.Increment()

	detectCtx, detectCancel := context.WithTimeoutCause(runCtx, c.opts.DetectTimeout, ErrTimeout)
	defer detectCancel()

	res, err := c.pipeline.Process(detectCtx, model, data)
	if err != nil && detectCtx.Err() != nil {
		if cause := context.Cause(detectCtx); cause != nil && !errors.Is(err, cause) {
			err = fmt.Errorf("%w: %w", cause, err)
		}
	}

	c.mu.Lock()
	if seq != c.runSeq {
		c.mu.Unlock()
		log.Debugf("run %s superseded", res.RunID)
		return Result{RunID: res.RunID}, ErrSuperseded
	}
	c.cancelRun = nil

	res, err = classify(res, err)
	notify = c.transitionLocked(res.Status, res.Message)
	c.mu.Unlock()
	notify()

	if err != nil {
		log.Printf("Run %s failed: %v", res.RunID, err)
	} else {
		log.Debugf("run %s: %s in %dms", res.RunID, res.Status, res.ElapsedMS)
	}
	return res, err
}

// classify maps a pipeline outcome to its terminal status.
func classify(res Result, err error) (Result, error) {
	switch {
	case err == nil:
		if res.Status == StatusIdle {
			res.Status = StatusSuccess
		}
		if res.Message == "" {
			res.Message = res.Status.Message()
		}
		return res, nil
	case errors.Is(err, ErrNoFace):
		res.Status = StatusNoFaceFound
		res.Message = MessageNoFace
		return res, nil
	case errors.Is(err, ErrDegenerateGeometry):
		res.Status = StatusNoFaceFound
		res.Message = MessageNoUsableFace
		res.Image, res.Preview = "", ""
		return res, nil
	default:
		res.Status = StatusError
		res.Message = err.Error()
		res.Image, res.Preview = "", ""
		return res, err
	}
}

// Status returns the current status and its message.
func (c *Controller) Status() (Status, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status, c.message
}

// ModelReady reports whether the face model has loaded.
func (c *Controller) ModelReady() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.model != nil
}

// Runs returns how many images have been submitted to a loaded model.
func (c *Controller) Runs() int {
	return c.runs.Value()
}

// Options returns the options the pipeline runs with.
func (c *Controller) Options() Options {
	return c.opts
}

// Subscribe registers l for status changes and returns a function that removes it.
// Listeners are called synchronously, in no particular order.
func (c *Controller) Subscribe(l Listener) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = l
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.listeners, id)
	}
}

func (c *Controller) setStatus(status Status, message string) {
	c.mu.Lock()
	notify := c.transitionLocked(status, message)
	c.mu.Unlock()
	notify()
}

// transitionLocked records the new status and returns the notification to send once
// the lock is released.
func (c *Controller) transitionLocked(status Status, message string) func() {
	c.status, c.message = status, message
	listeners := make([]Listener, 0, len(c.listeners))
	for _, l := range c.listeners {
		listeners = append(listeners, l)
	}
	return func() {
		for _, l := range listeners {
			l(status, message)
		}
	}
}
