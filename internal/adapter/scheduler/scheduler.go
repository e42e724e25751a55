package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"authflow/internal/platform/logger"
)

// JobFunc представляет функцию фоновой задачи.
type JobFunc func(ctx context.Context) error

// OverlapPolicy определяет поведение при перекрытии запусков одной задачи.
type OverlapPolicy int

const (
	// SkipIfRunning пропускает запуск, если предыдущий еще выполняется (по умолчанию).
	SkipIfRunning OverlapPolicy = iota
	// DelayIfRunning ждет завершения предыдущего запуска.
	DelayIfRunning
	// AllowOverlap разрешает параллельные запуски.
	AllowOverlap
)

// Job описывает задачу по расписанию.
type Job struct {
	// Name уникально в пределах планировщика.
	Name string
	// Schedule в формате cron (поле секунд необязательно) или дескриптор: "@every 10m", "@hourly".
	Schedule string
	// Timeout ограничивает один запуск. Ноль - без ограничения.
	Timeout time.Duration
	Overlap OverlapPolicy
	Run     JobFunc
}

// Hooks вызываются вокруг каждого запуска задачи.
type Hooks struct {
	OnStart  func(name string)
	OnFinish func(name string, d time.Duration, err error)
}

// Entry - задача, зарегистрированная в планировщике.
type Entry struct {
	Name     string
	Schedule string
	Next     time.Time
	Prev     time.Time
}

// ErrUnknownJob возвращается при обращении к незарегистрированной задаче.
var ErrUnknownJob = errors.New("scheduler: unknown job")

// Option настраивает Scheduler.
type Option func(*Scheduler)

// WithLogger задает логгер планировщика.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.log = l
		}
	}
}

// WithHooks задает хуки наблюдаемости.
func WithHooks(h Hooks) Option {
	return func(s *Scheduler) { s.hooks = h }
}

// WithLocation задает часовой пояс для cron-выражений (по умолчанию UTC).
func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) { s.loc = loc }
}

type registered struct {
	id  cron.EntryID
	job *Job
	mu  sync.Mutex // общий для запусков по расписанию и RunNow
}

// Scheduler запускает задачи по cron-расписанию.
type Scheduler struct {
	cron   *cron.Cron
	log    *slog.Logger
	hooks  Hooks
	loc    *time.Location
	parser cron.Parser

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	jobs      map[string]*registered
	startOnce sync.Once
	stopOnce  sync.Once
}

// New создает планировщик. Отмена ctx останавливает его так же, как Stop.
func New(ctx context.Context, opts ...Option) *Scheduler {
	s := &Scheduler{
		log:    logger.Discard(),
		loc:    time.UTC,
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		jobs:   make(map[string]*registered),
	}
	for _, o := range opts {
		o(s)
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.cron = cron.New(
		cron.WithParser(s.parser),
		cron.WithLocation(s.loc),
		cron.WithLogger(cronLogger{log: s.log.With(slog.String("component", "cron"))}),
	)
	return s
}

// Add регистрирует задачу. Расписание проверяется сразу.
func (s *Scheduler) Add(job Job) error {
	if job.Name == "" || job.Run == nil {
		return fmt.Errorf("scheduler: job needs a name and a func")
	}
	if _, err := s.parser.Parse(job.Schedule); err != nil {
		return fmt.Errorf("scheduler: job %q: %w", job.Name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.Name]; ok {
		return fmt.Errorf("scheduler: job %q already registered", job.Name)
	}

	r := &registered{job: &job}
	id, err := s.cron.AddJob(job.Schedule, cron.NewChain(cron.Recover(cronLogger{log: s.log})).Then(cron.FuncJob(func() { s.run(r) })))
	if err != nil {
		return fmt.Errorf("scheduler: job %q: %w", job.Name, err)
	}
	r.id = id
	s.jobs[job.Name] = r

	s.log.Info("job added", slog.String("name", job.Name), slog.String("schedule", job.Schedule))
	return nil
}

// Remove снимает задачу с расписания. Уже идущий запуск не прерывается.
func (s *Scheduler) Remove(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.jobs[name]
	if !ok {
		return false
	}
	s.cron.Remove(r.id)
	delete(s.jobs, name)
	s.log.Info("job removed", slog.String("name", name))
	return true
}

// RunNow синхронно выполняет задачу вне расписания и возвращает ее ошибку.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	r, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return s.execute(ctx, r)
}

// Entries возвращает зарегистрированные задачи, отсортированные по имени.
func (s *Scheduler) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, 0, len(s.jobs))
	for name, r := range s.jobs {
		e := s.cron.Entry(r.id)
		out = append(out, Entry{Name: name, Schedule: r.job.Schedule, Next: e.Next, Prev: e.Prev})
	}
	slices.SortFunc(out, func(a, b Entry) int { return strings.Compare(a.Name, b.Name) })
	return out
}

// Start запускает планировщик. Повторный вызов ничего не делает.
func (s *Scheduler) Start() {
	s.startOnce.Do(func() {
		s.log.Info("starting scheduler", slog.Int("jobs", len(s.jobs)))
		s.cron.Start()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			<-s.ctx.Done()
			s.stopOnce.Do(s.stop)
		}()
	})
}

// Stop останавливает планировщик и ждет завершения идущих задач,
// но не дольше, чем живет ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.stopOnce.Do(s.stop)
		s.wg.Wait()
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.log.Warn("scheduler stop deadline exceeded")
		return ctx.Err()
	}
}

func (s *Scheduler) stop() {
	<-s.cron.Stop().Done()
	s.log.Info("scheduler stopped")
}

// run - точка входа cron. Ошибки только логируются.
func (s *Scheduler) run(r *registered) {
	_ = s.execute(s.ctx, r)
}

func (s *Scheduler) execute(parent context.Context, r *registered) (err error) {
	job := r.job
	switch job.Overlap {
	case SkipIfRunning:
		if !r.mu.TryLock() {
			s.log.Debug("job already running, skipped", slog.String("name", job.Name))
			return nil
		}
		defer r.mu.Unlock()
	case DelayIfRunning:
		r.mu.Lock()
		defer r.mu.Unlock()
	}

	if s.hooks.OnStart != nil {
		s.hooks.OnStart(job.Name)
	}

	ctx := parent
	if job.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, job.Timeout)
		defer cancel()
	}

	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("job %s panicked: %v", job.Name, p)
		}
		d := time.Since(start)
		if s.hooks.OnFinish != nil {
			s.hooks.OnFinish(job.Name, d, err)
		}
		if err != nil {
			s.log.Error("job failed", slog.String("name", job.Name), slog.Duration("duration", d), logger.Error(err))
			return
		}
		s.log.Debug("job completed", slog.String("name", job.Name), slog.Duration("duration", d))
	}()

	return job.Run(ctx)
}

// cronLogger адаптирует cron.Logger к slog.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug(msg, kv(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error(msg, append([]any{logger.Error(err)}, kv(keysAndValues)...)...)
}

func kv(keysAndValues []any) []any {
	out := make([]any, 0, len(keysAndValues))
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		out = append(out, slog.Any(key, keysAndValues[i+1]))
	}
	return out
}
