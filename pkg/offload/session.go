package offload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/emergingrobotics/remote-offload/pkg/device"
	"github.com/emergingrobotics/remote-offload/pkg/infer"
	"github.com/emergingrobotics/remote-offload/pkg/memory"
	"github.com/emergingrobotics/remote-offload/pkg/tensor"
)

// State is the lifecycle state of a Session
type State int

const (
	StateUninitialized State = iota
	StateContextRegistered
	StateModelBound
	StateReady
	StateInferring
	StateClosed
)

var stateNames = map[State]string{
	StateUninitialized:     "uninitialized",
	StateContextRegistered: "context-registered",
	StateModelBound:        "model-bound",
	StateReady:             "ready",
	StateInferring:         "inferring",
	StateClosed:            "closed",
}

// String returns the state name
func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// frame is the remote memory behind the currently bound input
type frame struct {
	handle memory.HandleID
	tensor *tensor.RemoteTensor
}

// Session drives one workload context through registration, model import,
// input binding and inference. Phases run one at a time; a Session is safe
// to query from other goroutines while an inference is in flight.
type Session struct {
	mu     sync.Mutex
	id     uuid.UUID
	mgr    *device.Manager
	core   infer.Core
	logger *slog.Logger

	sel       device.Selector
	selSet    bool
	width     int
	height    int
	color     tensor.ColorFormat
	resize    infer.ResizeAlgorithm
	inputName string

	state    State
	wc       *device.WorkloadContext
	ec       *device.ExecutionContext
	alloc    *memory.Allocator
	binder   *tensor.Binder
	net      infer.Network
	req      infer.Request
	current  *frame
	stats    Stats
	inflight sync.WaitGroup
}

// New creates a session over a registration manager and an execution core
func New(mgr *device.Manager, core infer.Core, opts ...Option) (*Session, error) {
	if mgr == nil || core == nil {
		return nil, fmt.Errorf("%w: manager and core are required", ErrInvalidConfig)
	}

	s := &Session{
		id:     uuid.New(),
		mgr:    mgr,
		core:   core,
		logger: slog.Default(),
		color:  tensor.ColorNV12,
		resize: infer.ResizeBilinear,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.width <= 0 || s.height <= 0 {
		return nil, fmt.Errorf("%w: frame size %dx%d", ErrInvalidConfig, s.width, s.height)
	}
	if s.color.Subsampled() && (s.width%2 != 0 || s.height%2 != 0) {
		return nil, fmt.Errorf("%w: %s frames need even dimensions, got %dx%d", ErrInvalidConfig, s.color, s.width, s.height)
	}
	if !s.selSet {
		s.sel = device.Selector{Kind: mgr.Info().Kind, Index: device.AnyIndex}
	}
	s.logger = s.logger.With("session", s.id.String())
	return s, nil
}

// ID returns the session identifier
func (s *Session) ID() uuid.UUID {
	return s.id
}

// State returns the current state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// FrameDimensions returns the configured frame width and height
func (s *Session) FrameDimensions() (int, int) {
	return s.width, s.height
}

// Stats returns a snapshot of inference statistics
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Request returns the inference request once a model is loaded
func (s *Session) Request() infer.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.req
}

// Network returns the loaded network
func (s *Session) Network() infer.Network {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.net
}

func (s *Session) expect(op string, states ...State) error {
	for _, st := range states {
		if s.state == st {
			return nil
		}
	}
	return fmt.Errorf("%w: %s in state %s", ErrInvalidState, op, s.state)
}

// Init registers the session's workload context with the device
func (s *Session) Init() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.expect("init", StateUninitialized); err != nil {
		return err
	}
	wc, err := s.mgr.Register()
	if err != nil {
		s.logger.Error("device registration failed", "error", err)
		return err
	}
	s.wc = wc
	s.state = StateContextRegistered
	s.logger.Info("workload context registered", "context", int64(wc.ID()))
	return nil
}

// LoadModel binds an execution context and imports the compiled network at
// path into it. On failure the execution context is released and the
// session stays registered.
func (s *Session) LoadModel(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.expect("load model", StateContextRegistered); err != nil {
		return err
	}

	ec, err := s.mgr.CreateExecutionContext(s.wc, s.sel)
	if err != nil {
		return err
	}
	s.logger.Debug("execution context created", "device", ec.Selector().String())

	net, req, err := s.importModel(path, ec)
	if err != nil {
		ec.Close()
		s.logger.Error("model import failed", "path", path, "error", err)
		return err
	}

	inputName := s.inputName
	if inputName == "" {
		inputName = net.Inputs()[0].Name
	} else if _, ok := infer.FindPort(net.Inputs(), inputName); !ok {
		req.Close()
		net.Close()
		ec.Close()
		return fmt.Errorf("%w: %q is not an input of %s", infer.ErrUnknownInput, inputName, net.Name())
	}

	s.ec = ec
	s.net = net
	s.req = req
	s.inputName = inputName
	s.alloc = memory.NewAllocator(ec, memory.WithLogger(s.logger))
	s.binder = tensor.NewBinder(s.alloc, s.logger)
	s.state = StateModelBound
	s.logger.Info("model loaded", "network", net.Name(), "input", inputName)
	return nil
}

func (s *Session) importModel(path string, ec *device.ExecutionContext) (infer.Network, infer.Request, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: could not open file: %w", infer.ErrModelImport, err)
	}
	defer f.Close()

	net, err := s.core.ImportNetwork(f, ec)
	if err != nil {
		if !errors.Is(err, infer.ErrModelImport) {
			err = fmt.Errorf("%w: %w", infer.ErrModelImport, err)
		}
		return nil, nil, err
	}
	if len(net.Inputs()) == 0 {
		net.Close()
		return nil, nil, fmt.Errorf("%w: network %s declares no inputs", infer.ErrModelImport, net.Name())
	}

	req, err := net.CreateInferRequest()
	if err != nil {
		net.Close()
		return nil, nil, fmt.Errorf("%w: create infer request: %w", infer.ErrModelImport, err)
	}
	return net, req, nil
}

// PrepareInput moves a raw frame into remote memory and binds a full-frame
// view of it to the input: allocate, sync, create the tensor, attach the
// preprocessing, narrow to the region of interest, bind. A failure at any
// step releases what this call created and leaves the previous binding in
// place.
func (s *Session) PrepareInput(raw []byte) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.expect("prepare input", StateModelBound, StateReady); err != nil {
		return err
	}

	size := uint64(len(raw))
	h, err := s.alloc.Allocate(size, memory.LinearDesc(size))
	if err != nil {
		return err
	}
	var rt *tensor.RemoteTensor
	defer func() {
		if err == nil {
			return
		}
		if rt != nil {
			rt.Release()
		}
		s.alloc.Release(h)
	}()

	if err = s.alloc.SyncToDevice(h, raw); err != nil {
		return err
	}
	s.logger.Debug("frame synced", "handle", uint64(h), "bytes", size)

	rt, err = s.binder.CreateTensor(s.ec, tensor.Desc{
		Shape:       tensor.Shape{N: 1, C: 3, H: s.height, W: s.width},
		Precision:   tensor.PrecisionU8,
		Layout:      tensor.LayoutNCHW,
		ColorFormat: s.color,
	}, h)
	if err != nil {
		return err
	}

	pp, err := s.req.PreProcess(s.inputName)
	if err != nil {
		return err
	}
	pp.ResizeAlgorithm = s.resize
	pp.ColorFormat = s.color

	view, err := s.binder.CreateRegionOfInterest(rt, tensor.ROI{Width: s.width, Height: s.height})
	if err != nil {
		return err
	}
	if err = s.req.SetInputBinding(s.inputName, view, pp); err != nil {
		return err
	}

	prev := s.current
	s.current = &frame{handle: h, tensor: rt}
	if prev != nil {
		if rerr := s.releaseFrame(prev); rerr != nil {
			s.logger.Warn("release previous frame failed", "error", rerr)
		}
	}
	s.state = StateReady
	return nil
}

func (s *Session) releaseFrame(f *frame) error {
	return errors.Join(f.tensor.Release(), s.alloc.Release(f.handle))
}

// RunInference runs the request on the bound input. The session returns
// to Ready whether or not the execution layer succeeds, so the caller can
// retry with a fresh input.
func (s *Session) RunInference(ctx context.Context) error {
	s.mu.Lock()
	if err := s.expect("run inference", StateReady); err != nil {
		s.mu.Unlock()
		return err
	}
	s.state = StateInferring
	req := s.req
	s.inflight.Add(1)
	s.mu.Unlock()
	defer s.inflight.Done()

	start := time.Now()
	err := req.Infer(ctx)
	elapsed := time.Since(start)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateInferring {
		s.state = StateReady
	}
	s.stats.record(elapsed, err)
	if err != nil {
		s.logger.Warn("inference failed", "error", err)
		return err
	}
	s.logger.Debug("inference complete", "latency", elapsed)
	return nil
}

// Output returns an output tensor of the last inference
func (s *Session) Output(name string) (*infer.Tensor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.expect("output", StateReady); err != nil {
		return nil, err
	}
	return s.req.Output(name)
}

// Close releases the bindings, remote memory, request, network and
// execution context, then deregisters the workload context. It waits for
// an in-flight inference and is a no-op once the session is closed.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return nil
	}
	s.state = StateClosed
	s.mu.Unlock()

	s.inflight.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	if s.req != nil {
		errs = append(errs, s.req.Close())
	}
	if s.current != nil {
		errs = append(errs, s.releaseFrame(s.current))
		s.current = nil
	}
	if s.alloc != nil {
		errs = append(errs, s.alloc.Close())
	}
	if s.net != nil {
		errs = append(errs, s.net.Close())
	}
	if s.ec != nil {
		errs = append(errs, s.ec.Close())
	}
	if s.wc != nil {
		errs = append(errs, s.wc.Close())
	}

	err := errors.Join(errs...)
	if err != nil {
		s.logger.Warn("session closed with errors", "error", err)
	} else {
		s.logger.Info("session closed", "inferences", s.stats.Inferences, "failures", s.stats.Failures)
	}
	return err
}
