package logcollection

import (
	"bufio"
	"errors"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/core-tools/hsu-desk/pkg/logcollection/config"
)

const readBufferSize = 64 * 1024

// LineHandler receives every stripped, non-empty line read from a unit
type LineHandler func(line string)

// LineObserver is told about every forwarded line, e.g. for metrics
type LineObserver func(unit string, bytes int)

// StreamCollector reads the merged output stream of each running unit
// line by line and hands the lines to a per-stream handler.
type StreamCollector struct {
	config   config.LogCollectionConfig
	logger   StructuredLogger
	observer LineObserver

	mutex sync.RWMutex
	units map[string]*unitCollector
}

type unitCollector struct {
	mutex  sync.Mutex
	status UnitCollectionStatus
}

func NewStreamCollector(cfg config.LogCollectionConfig, logger StructuredLogger) *StreamCollector {
	if cfg.MaxLineBytes <= 0 {
		cfg.MaxLineBytes = config.DefaultLogCollectionConfig().MaxLineBytes
	}
	return &StreamCollector{
		config: cfg,
		logger: logger,
		units:  make(map[string]*unitCollector),
	}
}

// SetLineObserver installs fn; call before the first Collect
func (c *StreamCollector) SetLineObserver(fn LineObserver) {
	c.observer = fn
}

// Collect starts a reader goroutine for stream. The returned channel is closed
// once the stream reaches EOF or fails. The stream itself is not closed.
func (c *StreamCollector) Collect(unit string, stream io.Reader, handler LineHandler) <-chan struct{} {
	uc := c.getOrCreate(unit)
	uc.mutex.Lock()
	uc.status.Active = true
	uc.status.LastError = ""
	uc.mutex.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.streamReader(unit, uc, stream, handler)
	}()
	return done
}

func (c *StreamCollector) streamReader(unit string, uc *unitCollector, stream io.Reader, handler LineHandler) {
	logger := c.logger.WithUnit(unit)
	reader := bufio.NewReaderSize(stream, readBufferSize)
	var pending []byte

	flush := func() {
		line := strings.TrimSpace(string(pending))
		pending = pending[:0]
		if line == "" {
			return
		}
		uc.mutex.Lock()
		uc.status.LinesProcessed++
		uc.status.BytesProcessed += int64(len(line))
		uc.status.LastActivity = time.Now()
		uc.mutex.Unlock()
		if c.observer != nil {
			c.observer(unit, len(line))
		}
		handler(line)
	}

	for {
		chunk, isPrefix, err := reader.ReadLine()
		if len(chunk) > 0 {
			pending = append(pending, chunk...)
		}
		if err != nil {
			if len(pending) > 0 {
				flush()
			}
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				logger.WithError(err).Warnf("Error reading unit output")
				uc.mutex.Lock()
				uc.status.LastError = err.Error()
				uc.mutex.Unlock()
			}
			break
		}
		// Over-long lines are forwarded in pieces
		if !isPrefix || len(pending) >= c.config.MaxLineBytes {
			flush()
		}
	}

	uc.mutex.Lock()
	uc.status.Active = false
	uc.mutex.Unlock()
	logger.Debugf("Unit output stream closed")
}

func (c *StreamCollector) getOrCreate(unit string) *unitCollector {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	uc, ok := c.units[unit]
	if !ok {
		uc = &unitCollector{status: UnitCollectionStatus{Unit: unit}}
		c.units[unit] = uc
	}
	return uc
}

// Status returns the collection status of one unit
func (c *StreamCollector) Status(unit string) (UnitCollectionStatus, bool) {
	c.mutex.RLock()
	uc, ok := c.units[unit]
	c.mutex.RUnlock()
	if !ok {
		return UnitCollectionStatus{}, false
	}
	uc.mutex.Lock()
	defer uc.mutex.Unlock()
	return uc.status, true
}

// AllStatus returns the status of every unit that has been collected from, sorted by unit
func (c *StreamCollector) AllStatus() []UnitCollectionStatus {
	c.mutex.RLock()
	units := make([]*unitCollector, 0, len(c.units))
	for _, uc := range c.units {
		units = append(units, uc)
	}
	c.mutex.RUnlock()

	result := make([]UnitCollectionStatus, 0, len(units))
	for _, uc := range units {
		uc.mutex.Lock()
		result = append(result, uc.status)
		uc.mutex.Unlock()
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Unit < result[j].Unit })
	return result
}
