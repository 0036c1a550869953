// Package pipeline runs a message through the ordered detector list and
// fans batches out over a worker pool.
package pipeline

import (
	"sync"

	"github.com/bouncesift/bouncesift/internal/detect"
	"github.com/bouncesift/bouncesift/internal/mailmsg"
)

const defaultWorkers = 4

// Pipeline holds the detectors in evaluation order: protocol-specific ones
// first, the RFC3834 last-resort detector at the end. Detectors are
// stateless, so one Pipeline is safe for any number of goroutines.
type Pipeline struct {
	detectors []detect.Detector
}

// New builds a pipeline over the given detectors, evaluated in order.
func New(detectors ...detect.Detector) *Pipeline {
	return &Pipeline{detectors: detectors}
}

// Default returns the standard detector ordering.
func Default() *Pipeline {
	return New(
		detect.NewDSNDetector(),
		detect.NewAutoReplyDetector(),
	)
}

// Detectors returns the configured detectors in evaluation order.
func (p *Pipeline) Detectors() []detect.Detector {
	return p.detectors
}

// Analyze classifies one message: the first detector that recognizes it
// wins. Returns nil when no detector matches; that is not an error.
func (p *Pipeline) Analyze(msg *mailmsg.Message) *detect.Report {
	if msg == nil || len(msg.Headers) == 0 {
		return nil
	}
	for _, d := range p.detectors {
		if report := d.Detect(msg); report != nil {
			return report
		}
	}
	return nil
}

// AnalyzeBatch classifies a batch of messages over a fixed worker pool.
// The returned slice is index-aligned with msgs; unclassified messages get
// a nil entry.
func (p *Pipeline) AnalyzeBatch(msgs []*mailmsg.Message, workers int) []*detect.Report {
	if workers <= 0 {
		workers = defaultWorkers
	}
	if workers > len(msgs) {
		workers = len(msgs)
	}

	reports := make([]*detect.Report, len(msgs))
	if len(msgs) == 0 {
		return reports
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				reports[i] = p.Analyze(msgs[i])
			}
		}()
	}
	for i := range msgs {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return reports
}
