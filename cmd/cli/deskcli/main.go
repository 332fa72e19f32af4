package main

import (
	"fmt"
	"os"

	flags "github.com/jessevdk/go-flags"
)

type globalOptions struct {
	ServerPath string `long:"server" description:"path to the desk server executable to launch"`
	AttachPort int    `long:"port" default:"50066" description:"port of a running desk server"`
	Timeout    int    `long:"timeout" default:"30" description:"seconds to wait for the server"`
	Verbose    bool   `long:"verbose" short:"v" description:"log connection details"`
}

var opts globalOptions

func main() {
	parser := flags.NewParser(&opts, flags.HelpFlag|flags.PassDoubleDash)
	parser.SubcommandsOptional = false

	addCommand(parser, "status", "Show every unit", &statusCommand{})
	addCommand(parser, "start", "Start a unit", &startCommand{})
	addCommand(parser, "stop", "Stop a unit", &stopCommand{})
	addCommand(parser, "restart", "Stop then start a unit", &restartCommand{})
	addCommand(parser, "clear", "Clear a unit's log history", &clearCommand{})
	addCommand(parser, "logs", "Print a unit's log history", &logsCommand{})

	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			fmt.Println(err)
			return
		}
		printError(err)
		os.Exit(1)
	}
}

func addCommand(parser *flags.Parser, name, description string, command interface{}) {
	if _, err := parser.AddCommand(name, description, description, command); err != nil {
		fmt.Printf("Failed to register command %s: %v\n", name, err)
		os.Exit(1)
	}
}
