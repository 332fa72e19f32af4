package cron

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/core-tools/hsu-desk/pkg/errors"
	"github.com/core-tools/hsu-desk/pkg/logging"
)

const (
	// MaxCallTimeout caps a single call so a hung server cannot hold a stop forever
	MaxCallTimeout = 30 * time.Second

	// MaxBodyBytes is the most of a response body that is recorded
	MaxBodyBytes = 1 << 20
)

// EmitFunc receives the text records of one unit
type EmitFunc func(text string)

// PollObserver is told about every call; statusCode is 0 when no response arrived
type PollObserver func(statusCode int, duration time.Duration)

type Config struct {
	URL      string
	Interval time.Duration
	// CallTimeout defaults to min(Interval, MaxCallTimeout)
	CallTimeout time.Duration
	Client      *http.Client
}

type State struct {
	Calls               int64
	ConsecutiveFailures int
	LastCall            time.Time
	LastStatusCode      int
	LastError           string
}

// Poller calls one URL on a fixed interval until stopped. The wait between
// calls is interruptible; a call already in flight finishes first.
type Poller struct {
	config   Config
	unit     string
	emit     EmitFunc
	observer PollObserver
	logger   logging.Logger

	stopChan chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	started  bool

	mutex sync.Mutex
	state State
}

// NewHTTPClient returns a client with certificate verification enabled
func NewHTTPClient() *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	return &http.Client{Transport: transport}
}

func NewPoller(config Config, unit string, emit EmitFunc, logger logging.Logger) *Poller {
	if config.Client == nil {
		config.Client = NewHTTPClient()
	}
	if config.CallTimeout <= 0 {
		config.CallTimeout = config.Interval
		if config.CallTimeout <= 0 || config.CallTimeout > MaxCallTimeout {
			config.CallTimeout = MaxCallTimeout
		}
	}
	return &Poller{
		config:   config,
		unit:     unit,
		emit:     emit,
		logger:   logger,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// SetObserver installs fn; call before Start
func (p *Poller) SetObserver(fn PollObserver) {
	p.observer = fn
}

func ValidateConfig(config Config) error {
	if config.URL == "" {
		return errors.NewValidationError("cron URL is required", nil)
	}
	if config.Interval <= 0 {
		return errors.NewValidationError("cron interval must be positive", nil).
			WithContext("interval", config.Interval.String())
	}
	return nil
}

// Start launches the loop; the first call happens immediately
func (p *Poller) Start(ctx context.Context) error {
	if err := ValidateConfig(p.config); err != nil {
		return err
	}

	p.mutex.Lock()
	if p.started {
		p.mutex.Unlock()
		return errors.NewAlreadyRunningError("poller already started", nil).WithContext("unit", p.unit)
	}
	p.started = true
	p.mutex.Unlock()

	p.logger.Infof("Starting poller, url: %s, interval: %v", p.config.URL, p.config.Interval)
	go p.loop(ctx)
	return nil
}

// Stop asks the loop to exit and waits until it has
func (p *Poller) Stop() {
	p.stopOnce.Do(func() { close(p.stopChan) })

	p.mutex.Lock()
	started := p.started
	p.mutex.Unlock()
	if started {
		<-p.done
	}
	p.logger.Infof("Poller stopped, calls: %d", p.State().Calls)
}

// Done is closed when the loop has exited
func (p *Poller) Done() <-chan struct{} {
	return p.done
}

func (p *Poller) State() State {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.state
}

func (p *Poller) loop(ctx context.Context) {
	defer close(p.done)

	timer := time.NewTimer(0)
	defer timer.Stop()
	<-timer.C

	for {
		select {
		case <-p.stopChan:
			return
		case <-ctx.Done():
			return
		default:
		}

		p.poll(ctx)

		timer.Reset(p.config.Interval)
		select {
		case <-p.stopChan:
			return
		case <-ctx.Done():
			return
		case <-timer.C:
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	url := p.config.URL
	started := time.Now()

	statusCode, body, err := p.call(ctx)
	duration := time.Since(started)

	p.mutex.Lock()
	p.state.Calls++
	p.state.LastCall = started
	p.state.LastStatusCode = statusCode
	if err != nil || statusCode >= 400 {
		p.state.ConsecutiveFailures++
	} else {
		p.state.ConsecutiveFailures = 0
	}
	if err != nil {
		p.state.LastError = err.Error()
	} else {
		p.state.LastError = ""
	}
	p.mutex.Unlock()

	if p.observer != nil {
		p.observer(statusCode, duration)
	}

	if err != nil {
		pollErr := errors.NewPollError("call failed", err).WithContext("url", url)
		p.logger.Warnf("%v", pollErr)
		p.emit(fmt.Sprintf("Error calling %s: %v", url, err))
		return
	}

	if statusCode >= 400 {
		p.logger.Warnf("%v", errors.NewPollError("server returned an error status", nil).
			WithContext("url", url).WithContext("status", fmt.Sprintf("%d", statusCode)))
	} else {
		p.logger.Debugf("Polled %s: %d in %v", url, statusCode, duration)
	}
	p.emit(fmt.Sprintf("Called %s: %d", url, statusCode))
	p.emit(fmt.Sprintf("Response: %s", body))
}

func (p *Poller) call(ctx context.Context) (int, string, error) {
	callCtx, cancel := context.WithTimeout(ctx, p.config.CallTimeout)
	defer cancel()

	request, err := http.NewRequestWithContext(callCtx, http.MethodGet, p.config.URL, nil)
	if err != nil {
		return 0, "", err
	}

	response, err := p.config.Client.Do(request)
	if err != nil {
		return 0, "", err
	}
	defer response.Body.Close()

	body, err := io.ReadAll(io.LimitReader(response.Body, MaxBodyBytes))
	if err != nil {
		// The status line arrived, so record it together with the partial body
		p.logger.Warnf("Failed to read response body, url: %s, error: %v", p.config.URL, err)
	}
	return response.StatusCode, string(body), nil
}
