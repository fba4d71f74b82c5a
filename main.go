package main

import (
	"io"
	"log/slog"
	"os"

	"github.com/fatih/color"

	config "github.com/drummonds/pdf2img/config"
	database "github.com/drummonds/pdf2img/database"
	engine "github.com/drummonds/pdf2img/engine"
	"github.com/drummonds/pdf2img/engine/imgextract"
	"github.com/drummonds/pdf2img/engine/pdfinfo"
)

// Logger is global since we will need it everywhere
var Logger *slog.Logger

// injectGlobals injects all of our globals into their packages
func injectGlobals(logger *slog.Logger) {
	Logger = logger
	database.Logger = Logger
	config.Logger = Logger
	engine.Logger = Logger
	pdfinfo.Logger = Logger
	imgextract.Logger = Logger
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes the command line and returns the process exit code
func run(args []string, stdout, stderr io.Writer) int {
	cliConfig, logger := config.SetupCLI()
	injectGlobals(logger) //inject the logger into all of the packages

	root := newRootCmd(cliConfig)
	if args == nil {
		// cobra falls back to os.Args for nil
		args = []string{}
	}
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	if err := root.Execute(); err != nil {
		Logger.Debug("Command failed", "error", err)
		color.New(color.FgRed).Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
