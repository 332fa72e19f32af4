package main

import (
	"fmt"
	"os"

	coreLogging "github.com/core-tools/hsu-core/pkg/logging"
	flags "github.com/jessevdk/go-flags"

	"github.com/core-tools/hsu-desk/pkg/logcollection"
	"github.com/core-tools/hsu-desk/pkg/runner"
)

type flagOptions struct {
	Config      string `long:"config" short:"c" description:"daemon settings file (YAML); defaults are used when omitted"`
	RunDuration int    `long:"run-duration" description:"Duration in seconds to run the desk (debug feature)"`
	LogFormat   string `long:"log-format" default:"console" choice:"console" choice:"json" description:"daemon log format"`
	LogFile     string `long:"log-file" default:"stdout" description:"daemon log output: stdout, stderr or a file path"`
	Validate    bool   `long:"validate" description:"validate the settings file and exit"`
}

func logPrefix(module string) string {
	return fmt.Sprintf("module: %s-server , ", module)
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

	if opts.Validate {
		if opts.Config == "" {
			fmt.Println("Config file is required for validation")
			os.Exit(1)
		}
		if err := runner.ValidateConfigFile(opts.Config); err != nil {
			fmt.Printf("Configuration is invalid: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Configuration is valid")
		return
	}

	structured, err := logcollection.NewStructuredLogger(logcollection.LoggerConfig{
		Level:  logcollection.InfoLevel,
		Format: opts.LogFormat,
		Output: opts.LogFile,
	})
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer structured.Close()

	structured.Infof("opts: %+v", opts)

	coreLogger := coreLogging.NewLogger(
		logPrefix("hsu-core"), coreLogging.LogFuncs{
			Debugf: structured.Debugf,
			Infof:  structured.Infof,
			Warnf:  structured.Warnf,
			Errorf: structured.Errorf,
		})
	deskLogger := logcollection.NewFacadeLogger(logPrefix("hsu-desk"), structured)

	if err := runner.Run(opts.RunDuration, opts.Config, coreLogger, structured, deskLogger); err != nil {
		deskLogger.Errorf("Desk runner failed: %v", err)
		_ = structured.Sync()
		os.Exit(1)
	}
}
