// Package plink is a live-coding music workstation core: a tick clock drives
// an audio graph while scripts and a score schedule actions against it.
package plink

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	intaudio "github.com/cbegin/plink-go/internal/audio"
	"github.com/cbegin/plink-go/internal/audiosys"
	"github.com/cbegin/plink-go/internal/code"
	"github.com/cbegin/plink-go/internal/code/js"
	"github.com/cbegin/plink-go/internal/graph"
	"github.com/cbegin/plink-go/internal/metronome"
	"github.com/cbegin/plink-go/internal/scheduler"
	"github.com/cbegin/plink-go/internal/score"
	"github.com/cbegin/plink-go/internal/ticktime"
	"github.com/cbegin/plink-go/internal/transport"
	"github.com/cbegin/plink-go/internal/units"
)

const (
	DefaultSampleRate   = 48000
	DefaultBufferFrames = 512
	// clockFrames bounds how far the clock runs ahead of the audio within
	// one Render call.
	clockFrames = 64
)

type Option func(*worldConfig)

type worldConfig struct {
	sampleRate   int
	bufferFrames int
	tempo        float64
	logger       *slog.Logger
	factory      *units.Factory
	newEngine    code.NewEngineFunc
	scrollback   int
	threshold    float32
}

func defaultWorldConfig() worldConfig {
	return worldConfig{
		sampleRate:   DefaultSampleRate,
		bufferFrames: DefaultBufferFrames,
		tempo:        score.DefaultBaseTempo,
		scrollback:   code.DefaultScrollback,
		threshold:    1e-4,
	}
}

func WithSampleRate(rate int) Option {
	return func(cfg *worldConfig) {
		cfg.sampleRate = rate
	}
}

// WithBufferFrames sets the largest block the graph renders at once and the
// live output buffer size.
func WithBufferFrames(n int) Option {
	return func(cfg *worldConfig) {
		cfg.bufferFrames = n
	}
}

func WithTempo(bpm float64) Option {
	return func(cfg *worldConfig) {
		cfg.tempo = bpm
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(cfg *worldConfig) {
		cfg.logger = l
	}
}

// WithFactory replaces the unit registry. Its frame size must cover the
// buffer frames.
func WithFactory(f *units.Factory) Option {
	return func(cfg *worldConfig) {
		cfg.factory = f
	}
}

// WithEngine selects the scripting language. The default is JavaScript.
func WithEngine(fn code.NewEngineFunc) Option {
	return func(cfg *worldConfig) {
		cfg.newEngine = fn
	}
}

// WithScrollback bounds the console history.
func WithScrollback(n int) Option {
	return func(cfg *worldConfig) {
		cfg.scrollback = n
	}
}

// WithSilenceThreshold sets the level under which offline renders count
// output as silent.
func WithSilenceThreshold(v float32) Option {
	return func(cfg *worldConfig) {
		cfg.threshold = v
	}
}

// World wires the clock, transport, scheduler, score, audio system and
// scripting engine together. Render is the only method meant for the audio
// goroutine.
type World struct {
	cfg worldConfig
	log *slog.Logger

	graph     *graph.Graph
	audio     *audiosys.System
	metronome *metronome.Metronome
	transport *transport.Transport
	scheduler *scheduler.Scheduler
	model     *score.Model
	performer *score.Performer
	host      *code.Host
	engine    code.Engine
	console   *code.Console

	mu     sync.Mutex
	id     uuid.UUID
	script string
	player *intaudio.Player
}

func New(opts ...Option) (*World, error) {
	cfg := defaultWorldConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.sampleRate <= 0 {
		return nil, errors.New("sampleRate must be positive")
	}
	if cfg.bufferFrames <= 0 {
		return nil, errors.New("bufferFrames must be positive")
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	if cfg.factory == nil {
		cfg.factory = units.NewFactory(units.WithMaxFrames(cfg.bufferFrames))
	}
	if cfg.newEngine == nil {
		cfg.newEngine = js.Factory(js.WithLogger(cfg.logger))
	}

	w := &World{
		cfg:       cfg,
		log:       cfg.logger.With("component", "world"),
		id:        uuid.New(),
		model:     score.NewModel(score.New()),
		console:   code.NewConsole(cfg.scrollback),
		scheduler: scheduler.New(scheduler.WithLogger(cfg.logger)),
	}

	var err error
	if w.metronome, err = metronome.New(cfg.tempo); err != nil {
		return nil, err
	}
	w.transport = transport.New(w.metronome)

	w.graph = graph.New(cfg.factory,
		graph.WithSampleRate(cfg.sampleRate),
		graph.WithMaxFrames(cfg.bufferFrames),
		graph.WithLogger(cfg.logger),
	)
	if w.audio, err = audiosys.New(w.graph, audiosys.WithLogger(cfg.logger), audiosys.WithBuses(cfg.factory.Buses())); err != nil {
		w.graph.Close()
		return nil, fmt.Errorf("cannot create audio system: %w", err)
	}

	delegate := code.Fanout{w.console, code.DelegateFuncs{
		Log:       func(msg string) { w.log.Info(msg, "source", "script") },
		Exception: func(msg string) { w.log.Warn("script exception", "error", msg) },
	}}
	w.host = code.NewHost(code.Environment{
		Audio:     w.audio,
		Metronome: w.metronome,
		Transport: w.transport,
		Scheduler: w.scheduler,
		Delegate:  delegate,
	})
	if w.engine, err = cfg.newEngine(w.host, delegate); err != nil {
		w.graph.Close()
		return nil, fmt.Errorf("cannot create script engine: %w", err)
	}
	w.performer = score.NewPerformer(w.model, code.Runner{Engine: w.engine, Delegate: delegate}, cfg.logger)

	w.metronome.OnTick(w.scheduler.MasterTick)
	w.metronome.OnTick(w.transport.Tick)
	w.transport.AddClient(w.scheduler)
	w.transport.AddClient(w.performer)
	w.transport.OnRunningStateChange(w.scheduler.TransportStateChanged)
	w.transport.OnRunningStateChange(w.performer.TransportStateChanged)
	w.transport.OnRunningStateChange(w.sessionChanged)

	if err := w.audio.Start(); err != nil {
		w.graph.Close()
		return nil, err
	}
	return w, nil
}

// A session starting from stopped takes the score's tempo.
func (w *World) sessionChanged(ch transport.Change) {
	w.log.Debug("transport", "from", ch.From, "to", ch.To, "at", ch.At)
	if ch.From != transport.Stopped || ch.To != transport.Starting {
		return
	}
	if bpm := w.model.Snapshot().BaseTempo; bpm > 0 {
		if err := w.metronome.SetTempo(bpm); err != nil {
			w.log.Warn("cannot apply score tempo", "tempo", bpm, "error", err)
		}
	}
}

// Render produces len(out)/2 interleaved stereo frames. The clock advances in
// short slices, each followed by the audio it scheduled.
func (w *World) Render(out []float32) {
	sr := float64(w.cfg.sampleRate)
	for len(out) > 0 {
		n := min(len(out), clockFrames*2)
		w.metronome.Advance(n/2, sr)
		w.audio.Render(out[:n])
		out = out[n:]
	}
}

func (w *World) SampleRate() int { return w.cfg.sampleRate }

func (w *World) Audio() *audiosys.System         { return w.audio }
func (w *World) Metronome() *metronome.Metronome { return w.metronome }
func (w *World) Transport() *transport.Transport { return w.transport }
func (w *World) Scheduler() *scheduler.Scheduler { return w.scheduler }
func (w *World) Score() *score.Model             { return w.model }
func (w *World) Performer() *score.Performer     { return w.performer }
func (w *World) Engine() code.Engine             { return w.engine }

func (w *World) State() transport.State     { return w.transport.State() }
func (w *World) Position() ticktime.Time    { return w.transport.ProgramPosition() }
func (w *World) Tempo() float64             { return w.metronome.Tempo() }
func (w *World) SetTempo(bpm float64) error { return w.metronome.SetTempo(bpm) }
func (w *World) Start()                     { w.transport.StartInPlace() }
func (w *World) Stop()                      { w.transport.Stop() }
func (w *World) Console() []code.Entry      { return w.console.Entries() }

// Channels lists channel names in creation order.
func (w *World) Channels() []string {
	var names []string
	for _, c := range w.audio.Channels() {
		names = append(names, c.Name())
	}
	return names
}

// EvalCommand evaluates one expression through the console, so the command
// and its outcome land in the scrollback.
func (w *World) EvalCommand(cmd string) (string, bool, error) {
	return w.console.Eval(w.engine, cmd)
}

// Eval is EvalCommand for callers that only watch the console.
func (w *World) Eval(cmd string) {
	if _, _, err := w.EvalCommand(cmd); err != nil {
		w.log.Debug("command failed", "command", cmd, "error", err)
	}
}

// SetScript resets the engine and runs src as the workspace script.
func (w *World) SetScript(src string) error {
	w.mu.Lock()
	w.script = src
	w.mu.Unlock()
	return w.runScript(src)
}

func (w *World) Script() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.script
}

func (w *World) runScript(src string) error {
	if err := w.engine.ResetState(); err != nil {
		return fmt.Errorf("cannot reset script engine: %w", err)
	}
	if src == "" {
		return nil
	}
	if err := w.engine.EvalScript(src); err != nil {
		w.console.ExceptionOccurred(err.Error())
		return err
	}
	return nil
}

// Interrupt is called when the audio device goes away: nothing scheduled
// survives and the transport stops.
func (w *World) Interrupt() {
	w.scheduler.Clear()
	w.transport.Stop()
}

// Open starts live output to the default audio device.
func (w *World) Open() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.player != nil {
		return nil
	}
	p, err := intaudio.NewPlayer(w.cfg.sampleRate, w.cfg.bufferFrames, w)
	if err != nil {
		return err
	}
	w.player = p
	p.Play()
	w.log.Info("audio output open", "sampleRate", w.cfg.sampleRate, "bufferFrames", w.cfg.bufferFrames)
	return nil
}

// Close stops live output and releases the graph.
func (w *World) Close() error {
	w.mu.Lock()
	p := w.player
	w.player = nil
	w.mu.Unlock()

	var err error
	if p != nil {
		err = p.Close()
		w.Interrupt()
	}
	w.graph.Close()
	return err
}
