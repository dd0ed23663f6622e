// Package media runs the asynchronous artifact pipeline: a priority
// queue of generation tasks drained by a concurrency-capped worker loop,
// so image, audio, and video production never blocks the next turn.
package media

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/duskmantle/courtmind/api/schemas"
	"github.com/duskmantle/courtmind/internal/config"
)

var (
	// ErrTaskExists rejects an enqueue for a (turn, modality) pair that
	// already has a live or failed task.
	ErrTaskExists = errors.New("media: task already queued for turn and modality")
	// ErrTaskInFlight rejects a regenerate while an attempt is running.
	ErrTaskInFlight = errors.New("media: task currently in progress")
	// ErrNoGenerator reports a modality with no configured collaborator.
	ErrNoGenerator = errors.New("media: no generator for modality")
)

// Base priority per modality; lower numbers dispatch first.
const (
	priorityImage = 10
	priorityAudio = 20
	priorityVideo = 40
)

// distressDivisor converts the [0,100] distress axis into a priority
// reduction for image and audio tasks.
const distressDivisor = 10

// PriorityFor computes the priority number for a new task. High distress
// urgentizes image and audio so the most charged moments render first;
// video keeps its base priority. Floored at 0.
func PriorityFor(m schemas.Modality, ledger schemas.Ledger) int {
	var p int
	switch m {
	case schemas.ModalityImage:
		p = priorityImage - int(ledger.Distress)/distressDivisor
	case schemas.ModalityAudio:
		p = priorityAudio - int(ledger.Distress)/distressDivisor
	default:
		p = priorityVideo
	}
	if p < 0 {
		p = 0
	}
	return p
}

type taskKey struct {
	TurnID   string
	Modality schemas.Modality
}

// TurnStore is the slice of the turn registry the scheduler drives.
type TurnStore interface {
	SetMediaStatus(turnID string, m schemas.Modality, to schemas.MediaStatus) error
	MarkReady(turnID string, m schemas.Modality, artifact schemas.MediaArtifact) error
	MarkError(turnID string, m schemas.Modality, msg string) error
	ResetMedia(turnID string, m schemas.Modality) error
}

// Scheduler owns the three task queues. A (turn, modality) pair lives in
// exactly one of pending, in-progress, or failed at any time.
type Scheduler struct {
	cfg        config.MediaConfig
	turns      TurnStore
	generators map[schemas.Modality]schemas.MediaGenerator
	log        *zap.Logger

	mu         sync.Mutex
	pending    taskHeap
	cooling    []*pendingTask
	inProgress map[taskKey]*schemas.MediaTask
	failed     map[taskKey]*schemas.MediaTask
	seq        uint64

	wake     chan struct{}
	cancel   context.CancelFunc
	loopDone chan struct{}
	workers  sync.WaitGroup
	started  bool
}

func NewScheduler(cfg config.MediaConfig, turns TurnStore, generators map[schemas.Modality]schemas.MediaGenerator, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ConcurrencyCap < 1 {
		cfg.ConcurrencyCap = 1
	}
	return &Scheduler{
		cfg:        cfg,
		turns:      turns,
		generators: generators,
		log:        logger.Named("media"),
		inProgress: make(map[taskKey]*schemas.MediaTask),
		failed:     make(map[taskKey]*schemas.MediaTask),
		wake:       make(chan struct{}, 1),
	}
}

// Start launches the worker loop. It returns an error if called twice.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return errors.New("media: scheduler already started")
	}
	s.started = true

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.loopDone = make(chan struct{})
	go s.loop(loopCtx)
	return nil
}

// Stop cancels the loop and any in-flight generation attempts and waits
// for them to drain.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	cancel, done := s.cancel, s.loopDone
	s.mu.Unlock()

	cancel()
	<-done
	s.workers.Wait()
}

// Enqueue registers a generation task for one (turn, modality) pair and
// flips the turn's track to pending. Priority is computed from the
// ledger at enqueue time.
func (s *Scheduler) Enqueue(req schemas.MediaRequest, ledger schemas.Ledger) error {
	if _, ok := s.generators[req.Modality]; !ok {
		return fmt.Errorf("%w: %s", ErrNoGenerator, req.Modality)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enqueueLocked(req, ledger)
}

func (s *Scheduler) enqueueLocked(req schemas.MediaRequest, ledger schemas.Ledger) error {
	k := taskKey{TurnID: req.TurnID, Modality: req.Modality}
	if s.holdsLocked(k) {
		return fmt.Errorf("%w: %s/%s", ErrTaskExists, req.TurnID, req.Modality)
	}
	if err := s.turns.SetMediaStatus(req.TurnID, req.Modality, schemas.MediaPending); err != nil {
		return err
	}

	task := &schemas.MediaTask{
		ID:         uuid.New().String(),
		TurnID:     req.TurnID,
		Modality:   req.Modality,
		Request:    req,
		Priority:   PriorityFor(req.Modality, ledger),
		EnqueuedAt: time.Now().UTC(),
	}
	s.pushLocked(task, time.Time{})

	s.log.Debug("media task enqueued",
		zap.String("turn_id", task.TurnID),
		zap.String("modality", string(task.Modality)),
		zap.Int("priority", task.Priority))
	s.signal()
	return nil
}

// Regenerate clears a turn's ready or errored track and queues a fresh
// task for it. Idle tracks, as left by a snapshot restore, queue
// directly. It refuses while an attempt for the pair is pending or in
// flight, so the single-queue invariant holds.
func (s *Scheduler) Regenerate(req schemas.MediaRequest, ledger schemas.Ledger) error {
	if _, ok := s.generators[req.Modality]; !ok {
		return fmt.Errorf("%w: %s", ErrNoGenerator, req.Modality)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	k := taskKey{TurnID: req.TurnID, Modality: req.Modality}
	if _, ok := s.inProgress[k]; ok {
		return ErrTaskInFlight
	}
	if s.pendingIndexLocked(k) >= 0 {
		return fmt.Errorf("%w: %s/%s", ErrTaskExists, req.TurnID, req.Modality)
	}
	if err := s.turns.ResetMedia(req.TurnID, req.Modality); err != nil {
		return err
	}
	delete(s.failed, k)
	return s.enqueueLocked(req, ledger)
}

// DropTurns discards every queued or failed task belonging to the
// given turn ids. The engine calls it after pruning turns so failed
// entries for turns that no longer exist stop surfacing.
func (s *Scheduler) DropTurns(turnIDs ...string) {
	if len(turnIDs) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	gone := make(map[string]struct{}, len(turnIDs))
	for _, id := range turnIDs {
		gone[id] = struct{}{}
	}
	for k := range s.failed {
		if _, ok := gone[k.TurnID]; ok {
			delete(s.failed, k)
		}
	}
	kept := s.pending[:0]
	for _, pt := range s.pending {
		if _, ok := gone[pt.task.TurnID]; !ok {
			kept = append(kept, pt)
		}
	}
	if len(kept) != len(s.pending) {
		for i, pt := range kept {
			pt.index = i
		}
		s.pending = kept
		heap.Init(&s.pending)
	}
	cooled := s.cooling[:0]
	for _, pt := range s.cooling {
		if _, ok := gone[pt.task.TurnID]; !ok {
			cooled = append(cooled, pt)
		}
	}
	s.cooling = cooled
}

// Counts reports the size of each queue.
func (s *Scheduler) Counts() (pending, inProgress, failed int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending.Len() + len(s.cooling), len(s.inProgress), len(s.failed)
}

// FailedTasks returns copies of every task that exhausted its retries.
func (s *Scheduler) FailedTasks() []schemas.MediaTask {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]schemas.MediaTask, 0, len(s.failed))
	for _, task := range s.failed {
		out = append(out, *task)
	}
	return out
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.loopDone)

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.wake:
		case <-ticker.C:
		}
		s.dispatch(ctx)
	}
}

// dispatch promotes cooled tasks back onto the heap and fills every free
// concurrency slot with the most urgent pending work.
func (s *Scheduler) dispatch(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	kept := s.cooling[:0]
	for _, pt := range s.cooling {
		if pt.readyAt.After(now) {
			kept = append(kept, pt)
			continue
		}
		heap.Push(&s.pending, pt)
	}
	s.cooling = kept

	for len(s.inProgress) < s.cfg.ConcurrencyCap && s.pending.Len() > 0 {
		pt := heap.Pop(&s.pending).(*pendingTask)
		task := pt.task
		k := taskKey{TurnID: task.TurnID, Modality: task.Modality}

		if err := s.turns.SetMediaStatus(task.TurnID, task.Modality, schemas.MediaInProgress); err != nil {
			// Turn was pruned or the track moved underneath us; drop the task.
			s.log.Warn("dropping media task",
				zap.String("turn_id", task.TurnID),
				zap.String("modality", string(task.Modality)),
				zap.Error(err))
			continue
		}
		s.inProgress[k] = task
		s.workers.Add(1)
		go s.generate(ctx, task)
	}
}

// generate runs one attempt against the modality's collaborator.
func (s *Scheduler) generate(ctx context.Context, task *schemas.MediaTask) {
	defer s.workers.Done()

	gen := s.generators[task.Modality]
	attemptCtx, cancel := context.WithTimeout(ctx, s.cfg.AttemptTimeout)
	res, err := gen.Generate(attemptCtx, task.Request)
	cancel()

	if err != nil {
		s.handleFailure(ctx, task, err)
		return
	}
	s.handleSuccess(task, res)
}

func (s *Scheduler) handleSuccess(task *schemas.MediaTask, res schemas.MediaResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.inProgress, taskKey{TurnID: task.TurnID, Modality: task.Modality})
	if err := s.turns.MarkReady(task.TurnID, task.Modality, res.Artifact); err != nil {
		s.log.Warn("could not attach finished artifact",
			zap.String("turn_id", task.TurnID),
			zap.String("modality", string(task.Modality)),
			zap.Error(err))
		return
	}
	s.log.Info("media artifact ready",
		zap.String("turn_id", task.TurnID),
		zap.String("modality", string(task.Modality)),
		zap.Int("retries", task.Retries))
}

// handleFailure classifies the error and either cools the task down for
// another attempt or parks it in the failed queue.
func (s *Scheduler) handleFailure(ctx context.Context, task *schemas.MediaTask, genErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := taskKey{TurnID: task.TurnID, Modality: task.Modality}
	delete(s.inProgress, k)
	task.Retries++
	task.LastError = genErr.Error()

	if ctx.Err() != nil {
		// Shutting down; leave the track errored rather than dangling
		// in progress.
		_ = s.turns.MarkError(task.TurnID, task.Modality, "shutdown during generation")
		s.failed[k] = task
		return
	}

	if task.Retries > s.cfg.MaxRetries {
		s.failed[k] = task
		if err := s.turns.MarkError(task.TurnID, task.Modality, task.LastError); err != nil {
			s.log.Warn("could not mark track errored", zap.String("turn_id", task.TurnID), zap.Error(err))
		}
		s.log.Warn("media task failed permanently",
			zap.String("turn_id", task.TurnID),
			zap.String("modality", string(task.Modality)),
			zap.Int("retries", task.Retries),
			zap.Error(genErr))
		return
	}

	delay := s.retryDelay(genErr, task.Retries)
	if err := s.turns.SetMediaStatus(task.TurnID, task.Modality, schemas.MediaPending); err != nil {
		s.log.Warn("could not return track to pending", zap.String("turn_id", task.TurnID), zap.Error(err))
		s.failed[k] = task
		return
	}
	s.pushLocked(task, time.Now().Add(delay))
	s.log.Debug("media task re-enqueued",
		zap.String("turn_id", task.TurnID),
		zap.String("modality", string(task.Modality)),
		zap.Int("retry", task.Retries),
		zap.Duration("delay", delay),
		zap.Error(genErr))
}

// retryDelay grows exponentially with the retry count for rate-limit
// failures and stays a short fixed interval for everything else.
func (s *Scheduler) retryDelay(err error, retries int) time.Duration {
	if schemas.IsRateLimited(err) {
		return s.cfg.RateLimitBase * (1 << (retries - 1))
	}
	return s.cfg.BackoffBase
}

// pushLocked adds a task to the pending side: straight onto the heap, or
// into the cooldown list when readyAt is in the future.
func (s *Scheduler) pushLocked(task *schemas.MediaTask, readyAt time.Time) {
	s.seq++
	pt := &pendingTask{task: task, readyAt: readyAt, seq: s.seq}
	if readyAt.After(time.Now()) {
		s.cooling = append(s.cooling, pt)
		return
	}
	heap.Push(&s.pending, pt)
}

func (s *Scheduler) holdsLocked(k taskKey) bool {
	if _, ok := s.inProgress[k]; ok {
		return true
	}
	if _, ok := s.failed[k]; ok {
		return true
	}
	return s.pendingIndexLocked(k) >= 0
}

func (s *Scheduler) pendingIndexLocked(k taskKey) int {
	for i, pt := range s.pending {
		if pt.task.TurnID == k.TurnID && pt.task.Modality == k.Modality {
			return i
		}
	}
	for i, pt := range s.cooling {
		if pt.task.TurnID == k.TurnID && pt.task.Modality == k.Modality {
			return len(s.pending) + i
		}
	}
	return -1
}

func (s *Scheduler) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}
