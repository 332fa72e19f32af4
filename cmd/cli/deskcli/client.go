package main

import (
	"context"
	"fmt"
	"time"

	coreControl "github.com/core-tools/hsu-core/pkg/control"
	coreDomain "github.com/core-tools/hsu-core/pkg/domain"
	coreLogging "github.com/core-tools/hsu-core/pkg/logging"
	sprintfLogging "github.com/core-tools/hsu-core/pkg/logging/sprintf"

	"github.com/core-tools/hsu-desk/pkg/control"
	"github.com/core-tools/hsu-desk/pkg/domain"
	"github.com/core-tools/hsu-desk/pkg/errors"
	"github.com/core-tools/hsu-desk/pkg/logging"
)

func logPrefix(module string) string {
	return fmt.Sprintf("module: %s-client , ", module)
}

func newLoggers(verbose bool) (coreLogging.Logger, logging.Logger) {
	if !verbose {
		nop := func(string, ...interface{}) {}
		return coreLogging.NewLogger("", coreLogging.LogFuncs{Debugf: nop, Infof: nop, Warnf: nop, Errorf: nop}),
			logging.Nop()
	}

	logger := sprintfLogging.NewStdSprintfLogger()
	coreLogger := coreLogging.NewLogger(
		logPrefix("hsu-core"), coreLogging.LogFuncs{
			Debugf: logger.Debugf,
			Infof:  logger.Infof,
			Warnf:  logger.Warnf,
			Errorf: logger.Errorf,
		})
	deskLogger := logging.NewLogger(
		logPrefix("hsu-desk"), logging.LogFuncs{
			Debugf: logger.Debugf,
			Infof:  logger.Infof,
			Warnf:  logger.Warnf,
			Errorf: logger.Errorf,
		})
	return coreLogger, deskLogger
}

// withContract connects to the desk server, waits until it answers ping and
// runs fn against its control gateway
func withContract(fn func(ctx context.Context, contract domain.Contract) error) error {
	if opts.ServerPath == "" && opts.AttachPort == 0 {
		return errors.NewValidationError("server path or attach port is required", nil)
	}

	coreLogger, deskLogger := newLoggers(opts.Verbose)

	coreConnection, err := coreControl.NewConnection(coreControl.ConnectionOptions{
		ServerPath: opts.ServerPath,
		AttachPort: opts.AttachPort,
	}, coreLogger)
	if err != nil {
		return errors.NewIOError("failed to connect to desk server", err).WithContext("port", opts.AttachPort)
	}

	coreClientGateway := coreControl.NewGRPCClientGateway(coreConnection.GRPC(), coreLogger)
	deskClientGateway := control.NewGRPCClientGateway(coreConnection.GRPC(), deskLogger)

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(opts.Timeout)*time.Second)
	defer cancel()

	retryPingOptions := coreDomain.RetryPingOptions{
		RetryAttempts: 5,
		RetryInterval: 1 * time.Second,
	}
	if err := coreDomain.RetryPing(ctx, coreClientGateway, retryPingOptions, coreLogger); err != nil {
		return errors.NewIOError("desk server does not answer", err).WithContext("port", opts.AttachPort)
	}

	return fn(ctx, deskClientGateway)
}
