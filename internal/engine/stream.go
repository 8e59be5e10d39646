package engine

// generationUpdate pairs a SizeUpdate with the generation id of the
// computation that produced it, so a superseded computation's stragglers
// can be filtered out at the consumer rather than joined or killed.
type generationUpdate struct {
	generation uint64
	update     SizeUpdate
}

// UpdateStream is an unbounded, lossless multi-producer single-consumer
// channel. Workers are the producers; the orchestrator is the sole
// consumer. Messages are delivered in per-sender FIFO order; cross-sender
// order is unspecified (spec.md §4.4).
//
// Go channels are naturally bounded, so "unbounded" is implemented with an
// internal unbounded buffer goroutine rather than a channel of channels:
// workers never block sending, which matters because a blocked worker
// would stall behind a UI thread that is busy rendering a frame.
type UpdateStream struct {
	in     chan generationUpdate
	out    chan generationUpdate
	closed chan struct{}
}

// NewUpdateStream creates a stream and starts its internal buffering
// goroutine, which exits once the producer side is closed and drained.
func NewUpdateStream() *UpdateStream {
	s := &UpdateStream{
		in:     make(chan generationUpdate, 64),
		out:    make(chan generationUpdate, 64),
		closed: make(chan struct{}),
	}
	go s.pump()
	return s
}

func (s *UpdateStream) pump() {
	defer close(s.out)
	var queue []generationUpdate
	for {
		if len(queue) == 0 {
			v, ok := <-s.in
			if !ok {
				return
			}
			queue = append(queue, v)
		}
		select {
		case v, ok := <-s.in:
			if !ok {
				// Drain whatever remains before exiting.
				for _, q := range queue {
					s.out <- q
				}
				return
			}
			queue = append(queue, v)
		case s.out <- queue[0]:
			queue = queue[1:]
		}
	}
}

// send is called by a worker to publish an update. Never blocks the
// caller on the consumer's pace beyond the internal buffer channel.
func (s *UpdateStream) send(generation uint64, update SizeUpdate) {
	s.in <- generationUpdate{generation: generation, update: update}
}

// Close shuts down the producer side. Safe to call once all workers for
// every generation that ever used this stream have finished.
func (s *UpdateStream) Close() {
	close(s.in)
}

// Recv blocks for the first available update, then drains everything
// immediately available without blocking, returning the full batch. This
// is the batching behaviour spec.md §4.4 requires: one redraw per batch,
// not one per message, and it naturally lets stale-generation messages
// from a cancelled computation get processed (and dropped) in bulk
// instead of starving fresh output one message at a time.
func (s *UpdateStream) Recv() ([]generationUpdate, bool) {
	first, ok := <-s.out
	if !ok {
		return nil, false
	}
	batch := []generationUpdate{first}
	for {
		select {
		case v, ok := <-s.out:
			if !ok {
				return batch, true
			}
			batch = append(batch, v)
		default:
			return batch, true
		}
	}
}
