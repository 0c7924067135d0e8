package runner

import (
	"sort"
	"sync"
)

// Delta reports what changed when a batch was applied: the results seen for
// the first time this session (in arrival order) and the node ids whose
// error flag just turned on. The caller projects these into UI side
// effects; the Aggregator itself holds no reference to rendering or
// messaging.
type Delta struct {
	FirstSeen    []*NodeResult
	NewlyErrored []string
}

// Aggregator folds fetched result batches into a monotonically-growing view
// keyed by node id. Later arrivals for a node overwrite earlier ones; a
// node may legitimately re-report while a run continues. Writes happen only
// from the polling loop, in strict arrival order; reads copy under a lock
// so the UI may observe state concurrently.
type Aggregator struct {
	mutex        sync.RWMutex
	results      map[string]*NodeResult
	errorNodeIDs map[string]bool
	seenNodeIDs  map[string]bool
}

// NewAggregator returns an empty aggregator.
func NewAggregator() *Aggregator {
	a := &Aggregator{}
	a.Reset()
	return a
}

// Reset clears all aggregation state at the start of a new session.
func (a *Aggregator) Reset() {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	a.results = map[string]*NodeResult{}
	a.errorNodeIDs = map[string]bool{}
	a.seenNodeIDs = map[string]bool{}
}

// Apply folds one batch into the aggregation state, in the order received,
// and returns the delta. A node id produces at most one first-seen entry
// across the lifetime of a session, no matter how many batches mention it.
// Error membership follows the last-seen record: a clean re-report clears
// the node's error flag.
func (a *Aggregator) Apply(batch *ResultBatch) *Delta {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	delta := &Delta{}
	if batch == nil {
		return delta
	}
	for _, result := range batch.Results {
		if result == nil || result.NodeID == "" {
			continue
		}
		a.results[result.NodeID] = result.Copy()

		if result.HasError {
			if !a.errorNodeIDs[result.NodeID] {
				a.errorNodeIDs[result.NodeID] = true
				delta.NewlyErrored = append(delta.NewlyErrored, result.NodeID)
			}
		} else {
			delete(a.errorNodeIDs, result.NodeID)
		}

		if !a.seenNodeIDs[result.NodeID] {
			a.seenNodeIDs[result.NodeID] = true
			delta.FirstSeen = append(delta.FirstSeen, result.Copy())
		}
	}
	return delta
}

// Results returns a copy of the current per-node results.
func (a *Aggregator) Results() map[string]*NodeResult {
	a.mutex.RLock()
	defer a.mutex.RUnlock()

	results := make(map[string]*NodeResult, len(a.results))
	for id, result := range a.results {
		results[id] = result.Copy()
	}
	return results
}

// Result returns the last-seen result for a node.
func (a *Aggregator) Result(nodeID string) (*NodeResult, bool) {
	a.mutex.RLock()
	defer a.mutex.RUnlock()

	result, ok := a.results[nodeID]
	if !ok {
		return nil, false
	}
	return result.Copy(), true
}

// ErrorNodeIDs returns the sorted ids whose last-seen result reported an
// error.
func (a *Aggregator) ErrorNodeIDs() []string {
	a.mutex.RLock()
	defer a.mutex.RUnlock()

	return sortedKeys(a.errorNodeIDs)
}

// NodeIDs returns the sorted ids of all nodes with a result this session.
func (a *Aggregator) NodeIDs() []string {
	a.mutex.RLock()
	defer a.mutex.RUnlock()

	ids := make([]string, 0, len(a.results))
	for id := range a.results {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// DistinctCount returns the number of distinct result-bearing nodes.
func (a *Aggregator) DistinctCount() int {
	a.mutex.RLock()
	defer a.mutex.RUnlock()

	return len(a.results)
}

// ErrorCount returns the number of nodes currently flagged as errored.
func (a *Aggregator) ErrorCount() int {
	a.mutex.RLock()
	defer a.mutex.RUnlock()

	return len(a.errorNodeIDs)
}

// HasErrors reports whether any node's last-seen result carries an error.
func (a *Aggregator) HasErrors() bool {
	return a.ErrorCount() > 0
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
