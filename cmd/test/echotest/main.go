// Echotest is a stand-in unit for trying the desk: it writes a line to
// stdout on every tick until signalled or until the run duration elapses.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	flags "github.com/jessevdk/go-flags"
)

type flagOptions struct {
	RunDuration int  `long:"run-duration" description:"Duration in seconds to run, then exit (debug feature)"`
	IntervalMS  int  `long:"interval-ms" default:"1000" description:"Milliseconds between output lines"`
	ExitCode    int  `long:"exit-code" description:"Exit code used when the run duration elapses"`
	Stderr      bool `long:"stderr" description:"Also write every line to stderr"`
	MemoryMB    int  `long:"memory-mb" description:"Memory in Megabytes to allocate (debug feature)"`
}

func main() {
	var opts flagOptions
	var argv []string = os.Args[1:]
	var parser = flags.NewParser(&opts, flags.HelpFlag)
	var err error
	_, err = parser.ParseArgs(argv)
	if err != nil {
		fmt.Printf("Command line flags parsing failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Running Echotest, opts: %+v...\n", opts)

	ctx := context.Background()
	if opts.RunDuration > 0 {
		fmt.Printf("Using RUN DURATION of %d seconds\n", opts.RunDuration)
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(opts.RunDuration)*time.Second)
		defer cancel()
	}

	var s []byte
	if opts.MemoryMB > 0 {
		fmt.Printf("Using MEMORY MB of %d Megabytes\n", opts.MemoryMB)
		s = make([]byte, opts.MemoryMB*1024*1024)
	}
	for i := 0; i < len(s); i++ {
		s[i] = 0
	}

	interval := time.Duration(opts.IntervalMS) * time.Millisecond
	if interval <= 0 {
		interval = time.Second
	}

	sig := make(chan os.Signal, 1)
	if runtime.GOOS == "windows" {
		signal.Notify(sig) // Unix signals not implemented on Windows
	} else {
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	}

	fmt.Printf("Echotest is ready\n")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for tick := 1; ; tick++ {
		select {
		case receivedSignal := <-sig:
			fmt.Printf("Echotest received signal: %v\n", receivedSignal)
			fmt.Printf("Echotest stopped\n")
			return
		case <-ctx.Done():
			fmt.Printf("Echotest timed out, exit code %d\n", opts.ExitCode)
			os.Exit(opts.ExitCode)
		case <-ticker.C:
			fmt.Printf("Echotest tick %d\n", tick)
			if opts.Stderr {
				fmt.Fprintf(os.Stderr, "Echotest stderr tick %d\n", tick)
			}
		}
	}
}
