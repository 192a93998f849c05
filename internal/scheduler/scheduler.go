// Package scheduler implements the Check Scheduler (spec.md §4.6): the
// single driver loop that pulls profiles off the Queue Store, runs their
// pending checks through the Dispatcher and Validator, and submits
// terminally-accepted profiles downstream; plus a cooperative reactivation
// loop that retries deferred checks as connections free up.
//
// The two-goroutine main/periodic-loop shape and its context-driven
// shutdown are grounded on the teacher's
// internal/jobs/checker/thread_handler.go worker-pool dispatcher.
package scheduler

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"steamgate/internal/domain"
	"steamgate/internal/ingest"
)

// Queue is the subset of *queue.Store the Scheduler depends on.
type Queue interface {
	NextProcessable() (domain.Profile, bool, error)
	ByID(steamID string) (domain.Profile, bool, error)
	UpdateCheck(steamID string, check domain.CheckName, status domain.CheckStatus) (bool, error)
	SetPrivate(steamID string, private bool) error
	Remove(steamID string) error
	All() ([]domain.Profile, error)
}

// Cooldowns is the subset of *cooldown.Store the Scheduler depends on for
// reactivation.
type Cooldowns interface {
	CleanupExpired() (int, error)
	IsAvailable(connIndex int, endpoint domain.EndpointClass) bool
}

// Registry is the subset of *registry.Registry the Scheduler depends on
// for reactivation's availability check.
type Registry interface {
	All() []domain.Connection
}

// Dispatcher performs one upstream call and classifies the outcome.
type Dispatcher interface {
	Request(url string) domain.Outcome
}

// Validator interprets a Dispatcher outcome for a given check.
type Validator interface {
	Run(check domain.CheckName, outcome domain.Outcome) domain.Verdict
}

// Ingest submits an all-passed profile downstream.
type Ingest interface {
	Submit(profile domain.Profile) (ingest.Outcome, error)
}

// History records check verdicts and profile lifecycle transitions for
// observability (SPEC_FULL.md §4.7). It is optional: a Scheduler with no
// History attached simply skips recording, since the audit trail is never
// load-bearing for scheduling correctness.
type History interface {
	Record(steamID, check, kind string, passed bool, details map[string]any)
}

// URLBuilder constructs the upstream URL for a check against a steamID.
type URLBuilder func(check domain.CheckName, steamID string) string

// Scheduler owns the main and reactivation loops.
type Scheduler struct {
	queue      Queue
	cooldowns  Cooldowns
	registry   Registry
	dispatcher Dispatcher
	validator  Validator
	ingest     Ingest
	buildURL   URLBuilder
	deferred   *DeferredSet
	history    History

	processingDelay    time.Duration
	emptyQueueDelay    time.Duration
	reactivationPeriod time.Duration

	reentrant atomic.Bool
}

// New constructs a Scheduler from its collaborators and timing
// configuration (spec.md §4.6, §6).
func New(q Queue, cooldowns Cooldowns, reg Registry, d Dispatcher, v Validator, ing Ingest, buildURL URLBuilder, processingDelay, emptyQueueDelay, reactivationPeriod time.Duration) *Scheduler {
	return &Scheduler{
		queue:              q,
		cooldowns:          cooldowns,
		registry:           reg,
		dispatcher:         d,
		validator:          v,
		ingest:             ing,
		buildURL:           buildURL,
		deferred:           NewDeferredSet(),
		processingDelay:    processingDelay,
		emptyQueueDelay:    emptyQueueDelay,
		reactivationPeriod: reactivationPeriod,
	}
}

// SetHistory attaches an (optional) History recorder. Called once during
// bootstrap, before Run; unset by default so tests never need a fake.
func (s *Scheduler) SetHistory(h History) {
	s.history = h
}

// record is a nil-safe helper so call sites don't need to check s.history
// themselves.
func (s *Scheduler) record(steamID, check, kind string, passed bool, details map[string]any) {
	if s.history == nil {
		return
	}
	s.history.Record(steamID, check, kind, passed, details)
}

// Run drives the main loop until ctx is cancelled, alongside a cooperative
// reactivation goroutine (spec.md §4.6, §5).
func (s *Scheduler) Run(ctx context.Context) {
	s.restoreDeferredSet()
	go s.reactivationLoop(ctx)
	s.mainLoop(ctx)
}

// restoreDeferredSet scans the queue for every (steam_id, check) pair
// already sitting in the deferred state and seeds the in-memory
// DeferredSet from it, so a restart doesn't strand those checks: the
// reactivation loop only ever walks s.deferred.Snapshot(), and runChecks
// skips anything that isn't to_check, so a deferred check this process
// never saw would otherwise sit untouched forever (spec.md §3 DeferredSet:
// "Reconstructed at startup by scanning the queue for deferred statuses so
// it survives restarts").
func (s *Scheduler) restoreDeferredSet() {
	profiles, err := s.queue.All()
	if err != nil {
		log.Error("scheduler: restore deferred set failed", "error", err)
		return
	}

	restored := 0
	for _, p := range profiles {
		for check, status := range p.Checks {
			if status != domain.StatusDeferred {
				continue
			}
			s.deferred.Add(p.SteamID, check)
			restored++
		}
	}
	if restored > 0 {
		log.Info("scheduler: restored deferred checks from queue", "count", restored)
	}
}

func (s *Scheduler) mainLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		s.tick(ctx)
	}
}

// tick runs one iteration of the main loop. The reentrancy flag guards
// against overlapping invocations if Run is ever driven from more than one
// goroutine (spec.md §4.6 "a reentrancy flag prevents overlapping main
// loops").
func (s *Scheduler) tick(ctx context.Context) {
	if !s.reentrant.CompareAndSwap(false, true) {
		return
	}
	defer s.reentrant.Store(false)

	s.reactivate(ctx)

	profile, ok, err := s.queue.NextProcessable()
	if err != nil {
		log.Error("scheduler: next_processable failed", "error", err)
		sleepCtx(ctx, s.emptyQueueDelay)
		return
	}
	if !ok {
		sleepCtx(ctx, s.emptyQueueDelay)
		return
	}

	if profile.AllTerminal() {
		if profile.AllPassed() {
			s.submit(profile)
		} else if err := s.queue.Remove(profile.SteamID); err != nil {
			log.Error("scheduler: remove failed profile failed", "steam_id", profile.SteamID, "error", err)
		}
		sleepCtx(ctx, s.processingDelay)
		return
	}

	s.runChecks(ctx, profile)
	sleepCtx(ctx, s.processingDelay)
}

// runChecks attempts every to_check check on profile in fixed declaration
// order, stopping immediately on the first failure (spec.md §4.6). private
// tracks profile.Private plus anything steam_level discovers within this
// same pass: steam_level runs immediately before friends/csgo_inventory in
// domain.CheckOrder, so the queue-store's SetPrivate write (a separate
// copy) is not enough — the short-circuit below must see it on the same
// call that discovered it, not just on a later tick.
func (s *Scheduler) runChecks(ctx context.Context, profile domain.Profile) {
	private := profile.Private
	for _, check := range domain.CheckOrder {
		if profile.Checks[check] != domain.StatusToCheck {
			continue
		}

		if private && (check == domain.CheckFriends || check == domain.CheckCSGOInventory) {
			if _, err := s.queue.UpdateCheck(profile.SteamID, check, domain.StatusPassed); err != nil {
				log.Error("scheduler: update_check failed", "steam_id", profile.SteamID, "check", check, "error", err)
			}
			continue
		}

		status, isPrivate := s.runOneCheck(profile.SteamID, check)
		if isPrivate {
			private = true
		}
		if status == domain.StatusFailed {
			s.record(profile.SteamID, string(check), "rejected", false, nil)
			if err := s.queue.Remove(profile.SteamID); err != nil {
				log.Error("scheduler: remove failed profile failed", "steam_id", profile.SteamID, "error", err)
			}
			return
		}
	}
}

// runOneCheck dispatches and interprets a single check, persisting the
// resulting status and returns it alongside whether the verdict was a
// private-data signal, so runChecks can react to a just-discovered private
// profile within the same pass without waiting for a separately-loaded
// queue copy to catch up. reactivate discards the flag.
func (s *Scheduler) runOneCheck(steamID string, check domain.CheckName) (domain.CheckStatus, bool) {
	url := s.buildURL(check, steamID)
	outcome := s.dispatcher.Request(url)
	verdict := s.validator.Run(check, outcome)

	var status domain.CheckStatus
	switch verdict.Outcome {
	case domain.VerdictSuccess:
		if verdict.Private {
			if err := s.queue.SetPrivate(steamID, true); err != nil {
				log.Error("scheduler: set_private failed", "steam_id", steamID, "error", err)
			}
		}
		if verdict.Passed {
			status = domain.StatusPassed
		} else {
			status = domain.StatusFailed
		}
	case domain.VerdictDeferred:
		status = domain.StatusDeferred
		s.deferred.Add(steamID, check)
	case domain.VerdictTransportError:
		log.Warn("scheduler: transport error on check, deferring", "steam_id", steamID, "check", check, "details", verdict.Details)
		status = domain.StatusDeferred
		s.deferred.Add(steamID, check)
	default:
		log.Error("scheduler: unknown verdict outcome", "outcome", verdict.Outcome)
		status = domain.StatusDeferred
		s.deferred.Add(steamID, check)
	}

	if status != domain.StatusDeferred {
		s.deferred.Remove(steamID, check)
	}
	if _, err := s.queue.UpdateCheck(steamID, check, status); err != nil {
		log.Error("scheduler: update_check failed", "steam_id", steamID, "check", check, "error", err)
	}
	s.record(steamID, string(check), "check_result", status == domain.StatusPassed, verdict.Details)
	return status, verdict.Outcome == domain.VerdictSuccess && verdict.Private
}

// submit forwards an all-passed profile downstream and applies the result
// per spec.md §4.6/§7: accepted or permanently rejected profiles are
// removed; a retryable failure leaves the profile untouched for the next
// cycle.
func (s *Scheduler) submit(profile domain.Profile) {
	outcome, err := s.ingest.Submit(profile)
	if err != nil {
		log.Warn("scheduler: downstream submission error, will retry", "steam_id", profile.SteamID, "error", err)
		return
	}

	switch outcome {
	case ingest.Accepted:
		s.record(profile.SteamID, "", "accepted", true, nil)
		if err := s.queue.Remove(profile.SteamID); err != nil {
			log.Error("scheduler: remove accepted profile failed", "steam_id", profile.SteamID, "error", err)
		}
	case ingest.Rejected:
		log.Warn("scheduler: downstream rejected profile, removing", "steam_id", profile.SteamID)
		s.record(profile.SteamID, "", "rejected", false, nil)
		if err := s.queue.Remove(profile.SteamID); err != nil {
			log.Error("scheduler: remove rejected profile failed", "steam_id", profile.SteamID, "error", err)
		}
	case ingest.Retryable:
		log.Debug("scheduler: downstream temporarily unavailable, retrying next cycle", "steam_id", profile.SteamID)
	}
}

// sleepCtx sleeps for d or returns early if ctx is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) {
	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
}
