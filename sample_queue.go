// SPDX-License-Identifier: EPL-2.0

package stemmix

import (
	"sync"
	"time"

	"github.com/ik5/stemmix/audio"
)

// samplePoll is how often the queue checks whether the active sample has
// finished playing.
const samplePoll = 20 * time.Millisecond

// SampleQueue plays one-shot samples through a shared mixing graph, one
// at a time in arrival order. It is an explicit scheduler owned by the
// session: every channel that wants queued sample playback shares the one
// instance its mixer hands out, instead of coordinating through globals.
type SampleQueue struct {
	graph *audio.Graph

	stop chan struct{}
	done chan struct{}

	mu        sync.Mutex
	pending   []audio.Source
	active    *audio.GraphChannel
	activeSrc audio.Source
	closed    bool
}

func NewSampleQueue(g *audio.Graph) *SampleQueue {
	q := &SampleQueue{
		graph: g,
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go q.run()
	return q
}

// Enqueue schedules src for playback after everything queued before it.
// The queue takes ownership of the source and closes it when done.
func (q *SampleQueue) Enqueue(src audio.Source) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}
	q.pending = append(q.pending, src)
	q.advanceLocked()
	return nil
}

// Pending reports how many samples wait behind the active one.
func (q *SampleQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.pending)
}

// advanceLocked starts the next pending sample when nothing is playing.
// Sources the graph rejects are dropped. Callers hold q.mu.
func (q *SampleQueue) advanceLocked() {
	for q.active == nil && len(q.pending) > 0 {
		src := q.pending[0]
		q.pending = q.pending[1:]

		ch, err := q.graph.AddChannel(src, audio.ChannelConfig{})
		if err != nil {
			src.Close()
			continue
		}
		q.active = ch
		q.activeSrc = src
	}
}

func (q *SampleQueue) run() {
	defer close(q.done)

	ticker := time.NewTicker(samplePoll)
	defer ticker.Stop()

	for {
		select {
		case <-q.stop:
			return
		case <-ticker.C:
			q.mu.Lock()
			if q.active != nil && q.active.Done() {
				q.graph.RemoveChannel(q.active)
				q.activeSrc.Close()
				q.active = nil
				q.activeSrc = nil
				q.advanceLocked()
			}
			q.mu.Unlock()
		}
	}
}

// Close stops the scheduler and releases every queued source. Safe to
// call more than once.
func (q *SampleQueue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true

	for _, src := range q.pending {
		src.Close()
	}
	q.pending = nil
	if q.active != nil {
		q.graph.RemoveChannel(q.active)
		q.activeSrc.Close()
		q.active = nil
		q.activeSrc = nil
	}
	q.mu.Unlock()

	close(q.stop)
	<-q.done
	return nil
}
