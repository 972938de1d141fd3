package tutoring

import (
	"context"
	"fmt"
	"sync"

	"github.com/chalklabs/chalk-core/core/texttospeech"
)

const defaultSynthesisConcurrency = 3

// synthesisResult pairs a sentence with the outcome of its synthesis call.
// Exactly one of Audio and Err is meaningful.
type synthesisResult struct {
	Sentence Sentence
	Audio    *texttospeech.Audio
	Err      error
}

type pendingSynthesis struct {
	ctx      context.Context
	sentence Sentence
}

// synthesisDispatcher runs synthesis calls concurrently up to a fixed
// ceiling while emitting results strictly in submission order. Audio that
// completes for a later sentence is held back until every earlier sentence
// has been emitted, so slow early sentences never reorder the stream.
type synthesisDispatcher struct {
	synthesize func(context.Context, Sentence) (*texttospeech.Audio, error)

	mu   sync.Mutex
	cond *sync.Cond

	concurrency int
	inFlight    int
	pending     []pendingSynthesis

	submitted []int
	completed map[int]synthesisResult
	emitted   int

	closed  bool
	stopped bool
}

func newSynthesisDispatcher(concurrency int, synthesize func(context.Context, Sentence) (*texttospeech.Audio, error)) *synthesisDispatcher {
	if concurrency < 1 {
		concurrency = 1
	}

	d := &synthesisDispatcher{
		synthesize:  synthesize,
		concurrency: concurrency,
		completed:   map[int]synthesisResult{},
	}
	d.cond = sync.NewCond(&d.mu)
	return d
}

// Submit queues a sentence for synthesis and returns immediately. When the
// concurrency ceiling is reached the sentence waits for a free slot in
// submission order. Submissions after Close or Stop are dropped.
func (d *synthesisDispatcher) Submit(ctx context.Context, sentence Sentence) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed || d.stopped {
		return
	}

	d.submitted = append(d.submitted, sentence.Index)
	d.pending = append(d.pending, pendingSynthesis{ctx: ctx, sentence: sentence})
	d.launchLocked()
}

// Close marks the submission stream complete. Results ends once every
// submitted sentence has been emitted.
func (d *synthesisDispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.cond.Broadcast()
}

// Stop abandons the dispatcher: queued sentences are dropped and results of
// calls already in flight are discarded when they return.
func (d *synthesisDispatcher) Stop() {
	d.mu.Lock()
	d.stopped = true
	d.pending = nil
	d.mu.Unlock()
	d.cond.Broadcast()
}

func (d *synthesisDispatcher) launchLocked() {
	for d.inFlight < d.concurrency && len(d.pending) > 0 {
		next := d.pending[0]
		d.pending = d.pending[1:]
		d.inFlight++
		go d.run(next)
	}
}

func (d *synthesisDispatcher) run(p pendingSynthesis) {
	var audio *texttospeech.Audio
	err := func() (err error) {
		defer func() {
			if recovered := recover(); recovered != nil {
				err = fmt.Errorf("synthesis panicked: %v", recovered)
			}
		}()

		audio, err = d.synthesize(p.ctx, p.sentence)
		return err
	}()

	d.mu.Lock()
	d.inFlight--
	if !d.stopped {
		d.completed[p.sentence.Index] = synthesisResult{Sentence: p.sentence, Audio: audio, Err: err}
	}
	d.launchLocked()
	d.mu.Unlock()
	d.cond.Broadcast()
}

// Results yields outcomes in submission order, blocking until the next
// sentence in line completes. A failed synthesis still occupies its
// position, carried as a result with Err set. Safe for a single consumer.
func (d *synthesisDispatcher) Results(yield func(synthesisResult) bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for {
		for d.emitted < len(d.submitted) {
			result, ok := d.completed[d.submitted[d.emitted]]
			if !ok {
				break
			}
			delete(d.completed, d.submitted[d.emitted])
			d.emitted++

			d.mu.Unlock()
			proceed := yield(result)
			d.mu.Lock()
			if !proceed {
				return
			}
		}

		if d.stopped {
			return
		}
		if d.closed && d.emitted >= len(d.submitted) {
			return
		}

		d.cond.Wait()
	}
}
