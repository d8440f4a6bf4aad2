package aggregator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/skypath/nichebot/internal/models"
	"github.com/skypath/nichebot/internal/providers"
	"golang.org/x/sync/semaphore"
)

// Per-call timeouts. A best-effort source gets a short leash so one hanging
// API cannot stall a whole cycle.
const (
	requiredFetchTimeout = 15 * time.Second
	optionalFetchTimeout = 5 * time.Second

	breakerThreshold = 2
)

// Aggregator fans one query out across a set of providers and merges the
// results. Required providers escalate failures to the log; optional
// providers degrade silently and trip the breaker when repeatedly broken.
type Aggregator struct {
	registry *providers.Registry
	required map[string]bool
	breaker  *Breaker
	sem      *semaphore.Weighted
}

// New creates an aggregator. requiredNames lists the stable tier; every
// other requested provider is treated as optional.
func New(registry *providers.Registry, requiredNames []string, maxConcurrent int64) *Aggregator {
	if maxConcurrent < 1 {
		maxConcurrent = 4
	}

	required := make(map[string]bool, len(requiredNames))
	for _, name := range requiredNames {
		required[name] = true
	}

	return &Aggregator{
		registry: registry,
		required: required,
		breaker:  NewBreaker(breakerThreshold),
		sem:      semaphore.NewWeighted(maxConcurrent),
	}
}

// Breaker exposes the circuit-breaker state for health reporting.
func (a *Aggregator) Breaker() *Breaker {
	return a.breaker
}

type fetchResult struct {
	provider string
	mentions []models.Mention
}

// Collect fetches mentions for query from the named providers in parallel
// and returns the merged, still-undeduplicated result set. The error is
// non-nil only when no requested provider could be called at all.
func (a *Aggregator) Collect(ctx context.Context, query string, providerNames []string, opts providers.FetchOptions) ([]models.Mention, error) {
	var wg sync.WaitGroup
	resultsChan := make(chan fetchResult, len(providerNames))

	attempted := 0
	for _, name := range providerNames {
		provider, ok := a.registry.Get(name)
		if !ok {
			logrus.Warnf("Unknown provider %q requested, skipping", name)
			continue
		}
		if !provider.IsEnabled() {
			logrus.Debugf("Provider %s disabled by configuration, skipping", name)
			continue
		}
		if !a.required[name] && a.breaker.Disabled(name) {
			logrus.Debugf("Provider %s tripped its breaker, skipping", name)
			continue
		}

		attempted++
		wg.Add(1)
		go func(p providers.Provider) {
			defer wg.Done()
			resultsChan <- fetchResult{
				provider: p.GetName(),
				mentions: a.fetchOne(ctx, p, query, opts),
			}
		}(provider)
	}

	if attempted == 0 {
		return nil, fmt.Errorf("no usable providers among %v", providerNames)
	}

	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	var allMentions []models.Mention
	for result := range resultsChan {
		allMentions = append(allMentions, result.mentions...)
	}

	logrus.Infof("Collected %d mentions for %q from %d providers", len(allMentions), query, attempted)
	return allMentions, nil
}

// fetchOne runs one provider call with the tier-appropriate timeout and
// failure policy. It never returns an error: required failures are logged
// and contribute nothing, optional failures feed the breaker.
func (a *Aggregator) fetchOne(ctx context.Context, p providers.Provider, query string, opts providers.FetchOptions) []models.Mention {
	name := p.GetName()
	required := a.required[name]

	timeout := optionalFetchTimeout
	if required {
		timeout = requiredFetchTimeout
	}

	if err := a.sem.Acquire(ctx, 1); err != nil {
		logrus.Errorf("Fetch from %s aborted: %v", name, err)
		return nil
	}
	defer a.sem.Release(1)

	fetchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	mentions, err := p.FetchMentions(fetchCtx, query, opts)

	if required {
		if err != nil {
			logrus.Errorf("Required provider %s failed for %q: %v", name, query, err)
			return nil
		}
		logrus.Infof("Provider %s returned %d mentions for %q", name, len(mentions), query)
		return mentions
	}

	// Optional tier: errors and empty results both count as strikes.
	if err != nil || len(mentions) == 0 {
		if err != nil {
			logrus.Debugf("Optional provider %s failed for %q: %v", name, query, err)
		} else {
			logrus.Debugf("Optional provider %s returned nothing for %q", name, query)
		}
		if a.breaker.RecordFailure(name) {
			logrus.Infof("Optional provider %s disabled for this process after repeated failures", name)
		}
		return nil
	}

	a.breaker.RecordSuccess(name)
	logrus.Debugf("Provider %s returned %d mentions for %q", name, len(mentions), query)
	return mentions
}
