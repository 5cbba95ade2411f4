package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"regexp"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/torosent/ga4sim/internal/backoff"
	"github.com/torosent/ga4sim/internal/failure"
	"github.com/torosent/ga4sim/internal/job"
	"github.com/torosent/ga4sim/internal/measurement"
	"github.com/torosent/ga4sim/internal/metrics"
	"github.com/torosent/ga4sim/internal/pages"
	"github.com/torosent/ga4sim/internal/pool"
	"github.com/torosent/ga4sim/internal/runner"
	"github.com/torosent/ga4sim/internal/tracing"
	"github.com/torosent/ga4sim/internal/usage"
)

// Bootstrapper produces a session from an interactive page visit. engage asks
// the implementation to keep the page open for params.Duration.
type Bootstrapper interface {
	Bootstrap(ctx context.Context, params job.SessionParams, engage bool) (job.Session, error)
}

// Emitter submits an ordered event list for a session.
type Emitter interface {
	Emit(ctx context.Context, session job.Session, events []measurement.Event) (measurement.Report, error)
}

// Quota reserves users against a daily ceiling shared across runs.
type Quota interface {
	Reserve(ctx context.Context, n, ceiling int, now time.Time) (usage.Reservation, error)
}

var (
	// ErrInvalidUserCount rejects a user count outside 1..MaxDailyUsers.
	ErrInvalidUserCount = errors.New("invalid user count")
	// ErrMissingCollaborator rejects a mode whose bootstrapper or emitter is not configured.
	ErrMissingCollaborator = errors.New("missing collaborator")
)

var sessionIDPattern = regexp.MustCompile(`^\d+\.\d+$`)

const opSimulate = "simulate"

// Settings are the immutable run inputs loaded from configuration.
type Settings struct {
	Target             string
	Pages              []pages.Page
	Ranges             job.Ranges
	MaxConcurrentUsers int
	MaxDailyUsers      int
	// HeavyCap and LightCap bound each pool on top of MaxConcurrentUsers
	// when no override is given.
	HeavyCap int
	LightCap int
}

func (s Settings) withDefaults() Settings {
	if s.MaxConcurrentUsers <= 0 {
		s.MaxConcurrentUsers = 50
	}
	if s.MaxDailyUsers <= 0 {
		s.MaxDailyUsers = 1000
	}
	if s.HeavyCap <= 0 {
		s.HeavyCap = 10
	}
	if s.LightCap <= 0 {
		s.LightCap = 20
	}
	if len(s.Pages) == 0 {
		s.Pages = pages.Default
	}
	if len(s.Ranges.PagePaths) == 0 {
		s.Ranges.PagePaths = pages.Paths(s.Pages)
	}
	return s
}

// Request is one simulation run.
type Request struct {
	Users int
	Mode  job.Mode
	Debug bool
	// ConcurrencyOverride pins both pool ceilings when positive.
	ConcurrencyOverride int
}

// Orchestrator coordinates simulation runs.
type Orchestrator struct {
	settings     Settings
	bootstrapper Bootstrapper
	emitter      Emitter
	debugEmitter Emitter
	quota        Quota
	collector    *metrics.Collector
	tracer       trace.Tracer
	log          zerolog.Logger
	backoff      backoff.Policy
	sleep        func(context.Context, time.Duration) error
	seed         int64
	now          func() time.Time
	hooks        []func(Entry)
	logFailures  bool
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithBootstrapper sets the session bootstrapper used by browser and hybrid jobs.
func WithBootstrapper(b Bootstrapper) Option { return func(o *Orchestrator) { o.bootstrapper = b } }

// WithEmitter sets the event emitter used by mp and hybrid jobs.
func WithEmitter(e Emitter) Option { return func(o *Orchestrator) { o.emitter = e } }

// WithDebugEmitter sets the emitter used when a request asks for debug
// validation. Without it debug runs use the regular emitter.
func WithDebugEmitter(e Emitter) Option { return func(o *Orchestrator) { o.debugEmitter = e } }

// WithQuota enables the cross-run daily ceiling.
func WithQuota(q Quota) Option { return func(o *Orchestrator) { o.quota = q } }

// WithCollector records phase and job metrics into c.
func WithCollector(c *metrics.Collector) Option { return func(o *Orchestrator) { o.collector = c } }

// WithTracer records run, job and phase spans.
func WithTracer(t trace.Tracer) Option { return func(o *Orchestrator) { o.tracer = t } }

// WithLogger sets the orchestrator logger.
func WithLogger(l zerolog.Logger) Option { return func(o *Orchestrator) { o.log = l } }

// WithBackoff replaces the retry schedule.
func WithBackoff(p backoff.Policy) Option { return func(o *Orchestrator) { o.backoff = p } }

// WithSleep replaces the wait between retry attempts.
func WithSleep(fn func(context.Context, time.Duration) error) Option {
	return func(o *Orchestrator) { o.sleep = fn }
}

// WithSeed makes session parameters and job ids reproducible. Zero means time-based.
func WithSeed(seed int64) Option { return func(o *Orchestrator) { o.seed = seed } }

// WithClock replaces the clock used for job creation and quota days.
func WithClock(now func() time.Time) Option { return func(o *Orchestrator) { o.now = now } }

// WithFailureLog logs every failed job at warn level.
func WithFailureLog(enabled bool) Option { return func(o *Orchestrator) { o.logFailures = enabled } }

// WithJobHook registers fn to observe every recorded entry. Hooks are called
// concurrently from job goroutines; a panicking hook is logged and ignored.
func WithJobHook(fn func(Entry)) Option {
	return func(o *Orchestrator) { o.hooks = append(o.hooks, fn) }
}

// New creates an orchestrator.
func New(settings Settings, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		settings:  settings.withDefaults(),
		collector: metrics.NewCollector(),
		tracer:    noop.NewTracerProvider().Tracer("ga4sim"),
		log:       zerolog.Nop(),
		backoff:   backoff.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Collector returns the metrics collector fed by runs.
func (o *Orchestrator) Collector() *metrics.Collector { return o.collector }

// task is one job together with its creation index.
type task struct {
	index int
	job   *job.Job
	done  bool
}

type run struct {
	req     Request
	emitter Emitter
	heavy   *pool.Limiter
	acc     *accumulator
}

// RunSimulation validates req, creates its jobs and runs them to completion.
// The error is non-nil only when the request is rejected before any job is
// created; every job outcome is reported in the tally.
func (o *Orchestrator) RunSimulation(ctx context.Context, req Request) (Tally, error) {
	if err := o.validate(req); err != nil {
		o.log.Error().Err(err).Int("users", req.Users).Msg("simulation rejected")
		return Tally{}, err
	}
	if o.quota != nil {
		res, err := o.quota.Reserve(ctx, req.Users, o.settings.MaxDailyUsers, o.now())
		if err != nil {
			err = failure.FatalConfig(opSimulate, err)
			o.log.Error().Err(err).Int("used_today", res.Used).Msg("simulation rejected")
			return Tally{}, err
		}
		o.log.Debug().Int("used_today", res.Used).Int("remaining", res.Remaining).Msg("daily usage reserved")
	}

	start := time.Now()
	ctx, span := tracing.StartRunSpan(ctx, o.tracer, req.Mode.String(), req.Users)

	heavyTasks, lightTasks := o.materialize(req)

	limiters := pool.NewSet()
	heavy := limiters.Get(pool.Heavy, func() *pool.Limiter {
		return pool.NewLimiter(pool.Heavy, o.Limit(pool.Heavy, req.ConcurrencyOverride), req.ConcurrencyOverride > 0)
	})
	light := limiters.Get(pool.Light, func() *pool.Limiter {
		return pool.NewLimiter(pool.Light, o.Limit(pool.Light, req.ConcurrencyOverride), req.ConcurrencyOverride > 0)
	})

	r := &run{req: req, emitter: o.emitterFor(req.Debug), heavy: heavy, acc: &accumulator{}}

	o.log.Info().
		Int("users", req.Users).
		Str("mode", req.Mode.String()).
		Bool("debug", req.Debug).
		Str("pools", limiters.Describe()).
		Msg("simulation started")

	var (
		wg      sync.WaitGroup
		results [2]runner.Result[*task]
	)
	for i, set := range []struct {
		tasks   []*task
		limiter *pool.Limiter
	}{{heavyTasks, heavy}, {lightTasks, light}} {
		if len(set.tasks) == 0 {
			continue
		}
		wg.Add(1)
		go func(i int, tasks []*task, limiter *pool.Limiter) {
			defer wg.Done()
			results[i] = runner.RunBatches(ctx, tasks, limiter, func(ctx context.Context, t *task) error {
				return o.runTask(ctx, r, t)
			}, func(index, size int) {
				o.log.Debug().Str("pool", string(limiter.Name())).Int("batch", index+1).Int("size", size).Msg("batch started")
			})
		}(i, set.tasks, set.limiter)
	}
	wg.Wait()

	// Jobs that never ran or panicked still get exactly one entry.
	batches := 0
	for _, res := range results {
		batches += res.Batches
		for _, out := range res.Outcomes {
			if !out.Item.done {
				o.recordUnfinished(r, out.Item, out.Err)
			}
		}
	}

	tally := r.acc.tally()
	tally.Mode = req.Mode.String()
	tally.Debug = req.Debug
	tally.Batches = batches
	tally.Limits = map[pool.Name]int{pool.Heavy: heavy.Limit(), pool.Light: light.Limit()}
	tally.HighWater = limiters.HighWater()
	tally.Duration = time.Since(start)
	tally.DurationMs = float64(tally.Duration) / float64(time.Millisecond)

	tracing.EndSpan(span, nil)
	o.log.Info().
		Int("succeeded", tally.Succeeded).
		Int("failed", tally.Failed).
		Int("events", tally.EventsSent).
		Dur("duration", tally.Duration).
		Msg("simulation finished")
	return tally, nil
}

func (o *Orchestrator) validate(req Request) error {
	if req.Users <= 0 || req.Users > o.settings.MaxDailyUsers {
		return failure.FatalConfig(opSimulate, fmt.Errorf("%w: %d (must be between 1 and the daily ceiling %d)", ErrInvalidUserCount, req.Users, o.settings.MaxDailyUsers))
	}
	known := false
	for _, m := range job.Modes {
		if m == req.Mode {
			known = true
		}
	}
	if !known {
		return failure.FatalConfig(opSimulate, fmt.Errorf("unknown mode %s", req.Mode))
	}
	if req.ConcurrencyOverride < 0 {
		return failure.FatalConfig(opSimulate, fmt.Errorf("concurrency override must be >= 0, got %d", req.ConcurrencyOverride))
	}
	for _, p := range req.Mode.Phases() {
		switch p {
		case job.PhaseBootstrap:
			if o.bootstrapper == nil {
				return failure.FatalConfig(opSimulate, fmt.Errorf("%w: %s mode needs a bootstrapper", ErrMissingCollaborator, req.Mode))
			}
		case job.PhaseEmit:
			if o.emitterFor(req.Debug) == nil {
				return failure.FatalConfig(opSimulate, fmt.Errorf("%w: %s mode needs an emitter", ErrMissingCollaborator, req.Mode))
			}
		}
	}
	return nil
}

// materialize creates every job of the run and splits them by pool.
func (o *Orchestrator) materialize(req Request) (heavy, light []*task) {
	seed := o.seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))
	entropy := ulid.Monotonic(rng, 0)
	created := o.now()

	for i := 0; i < req.Users; i++ {
		params := job.DrawSessionParams(o.settings.Ranges, rng)
		t := &task{index: i, job: job.New(req.Mode, params, created, entropy)}
		if req.Mode.Pool() == pool.Heavy {
			heavy = append(heavy, t)
		} else {
			light = append(light, t)
		}
	}
	return heavy, light
}

// Limit returns the initial size of the named pool for a request with the
// given concurrency override.
func (o *Orchestrator) Limit(name pool.Name, override int) int {
	if override > 0 {
		return override
	}
	ceiling := o.settings.LightCap
	if name == pool.Heavy {
		ceiling = o.settings.HeavyCap
	}
	return max(min(o.settings.MaxConcurrentUsers, ceiling), 1)
}

func (o *Orchestrator) emitterFor(debug bool) Emitter {
	if debug && o.debugEmitter != nil {
		return o.debugEmitter
	}
	return o.emitter
}

func (o *Orchestrator) runTask(ctx context.Context, r *run, t *task) error {
	j := t.job
	start := time.Now()
	ctx, span := tracing.StartJobSpan(ctx, o.tracer, j.ID, j.Mode.String())

	err := o.execute(ctx, r, j)

	tracing.EndSpan(span, err, tracing.AttrStatus.String(string(j.Status)))
	o.record(r, t, entryFor(j, time.Since(start)))
	return err
}

// execute drives j through its phases. Any phase error ends the job failed.
func (o *Orchestrator) execute(ctx context.Context, r *run, j *job.Job) error {
	for _, phase := range j.Mode.Phases() {
		if err := o.runPhase(ctx, r, j, phase); err != nil {
			if terr := j.Fail(phase, err); terr != nil {
				return errors.Join(err, terr)
			}
			return err
		}
	}
	return j.Succeed()
}

func (o *Orchestrator) runPhase(ctx context.Context, r *run, j *job.Job, phase job.Phase) error {
	if err := j.BeginPhase(phase); err != nil {
		return err
	}

	var op func(context.Context) error
	switch phase {
	case job.PhaseBootstrap:
		engage := j.Mode == job.Browser
		op = func(ctx context.Context) error {
			session, err := o.bootstrapper.Bootstrap(ctx, j.Params, engage)
			if err != nil {
				return err
			}
			if !sessionIDPattern.MatchString(session.ID) {
				return failure.FatalConfig(string(phase), fmt.Errorf("malformed session id %q", session.ID))
			}
			j.Session = &session
			return nil
		}
	case job.PhaseEmit:
		if j.Session == nil {
			j.Synthesize()
		}
		events := o.events(j)
		op = func(ctx context.Context) error {
			report, err := r.emitter.Emit(ctx, *j.Session, events)
			if r.req.Debug && len(report.Messages) > 0 {
				j.Report = append(j.Report, report.Messages...)
			}
			if err != nil {
				return err
			}
			j.EventsSent += report.Events
			return nil
		}
	default:
		return failure.FatalConfig(string(phase), errors.New("unhandled phase"))
	}

	policy := runner.PolicyFromBackoff(o.backoff)
	policy.Sleep = o.sleep
	policy.OnAttempt = func(attempt int, err error) {
		j.RecordAttempt(phase, err)
		if err != nil {
			o.log.Debug().
				Str("job", j.ID).
				Str("phase", string(phase)).
				Int("attempt", attempt).
				Str("class", string(failure.Classify(err))).
				Err(err).
				Msg("attempt failed")
		}
	}

	_, err := policy.Do(ctx, func(ctx context.Context, attempt int) error {
		pctx, span := tracing.StartPhaseSpan(ctx, o.tracer, string(phase), attempt)
		start := time.Now()
		err := op(pctx)
		o.collector.RecordPhase(string(phase), time.Since(start), err)
		if err != nil {
			tracing.EndSpan(span, err, tracing.AttrKind.String(string(failure.KindOf(err))))
		} else {
			tracing.EndSpan(span, nil)
		}
		if failure.IsResourceExhausted(err) {
			o.narrow(r.heavy)
		}
		return err
	})
	return err
}

func (o *Orchestrator) events(j *job.Job) []measurement.Event {
	site := measurement.Site{Target: o.settings.Target, Pages: o.settings.Pages}
	switch j.Mode {
	case job.MP:
		return measurement.MPEvents(site, j.Params)
	case job.Hybrid:
		return measurement.HybridEvents(site, *j.Session, j.Params)
	default:
		return nil
	}
}

// narrow halves the heavy ceiling after a resource exhaustion.
func (o *Orchestrator) narrow(l *pool.Limiter) {
	prev := l.Limit()
	if next := l.Narrow(); next < prev {
		o.log.Warn().Int("from", prev).Int("to", next).Msg("heavy pool narrowed after resource exhaustion")
	}
}

// record adds the entry for t exactly once and notifies the hooks.
func (o *Orchestrator) record(r *run, t *task, e Entry) {
	r.acc.add(t.index, e)
	t.done = true
	o.collector.RecordJob(e.Status == job.StatusSucceeded, e.EventsSent)
	if e.Status == job.StatusFailed && o.logFailures {
		ev := o.log.Warn().Str("job", e.JobID).Str("mode", e.Mode)
		if e.LastError != nil {
			ev = ev.Str("phase", string(e.LastError.Phase)).Str("kind", string(e.LastError.Kind)).Str("error", e.LastError.Message)
		}
		ev.Msg("job failed")
	}
	for _, hook := range o.hooks {
		o.callHook(hook, e)
	}
}

func (o *Orchestrator) callHook(hook func(Entry), e Entry) {
	defer func() {
		if v := recover(); v != nil {
			o.log.Error().Str("job", e.JobID).Interface("panic", v).Msg("job hook panicked")
		}
	}()
	hook(e)
}

// recordUnfinished records a job whose function did not return normally:
// it never acquired a slot because the run was cancelled, or it panicked.
func (o *Orchestrator) recordUnfinished(r *run, t *task, cause error) {
	if cause == nil {
		cause = errors.New("job did not complete")
	}
	j := t.job
	switch j.Status {
	case job.StatusBootstrapping:
		_ = j.Fail(job.PhaseBootstrap, cause)
	case job.StatusEmitting:
		_ = j.Fail(job.PhaseEmit, cause)
	default:
		// A pending job cannot transition to failed; the entry carries the status.
		j.RecordFailure(j.Mode.Phases()[0], cause)
	}

	e := entryFor(j, 0)
	e.Status = job.StatusFailed
	o.record(r, t, e)
}
