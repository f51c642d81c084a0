// Copyright 2026 The Oxen Authors
// This file is part of the Oxen core library.
//
// This software is provided "as is", without warranty of any kind,
// express or implied, including but not limited to the warranties
// of merchantability, fitness for a particular purpose and
// noninfringement. In no event shall the authors or copyright
// holders be liable for any claim, damages, or other liability,
// whether in an action of contract, tort or otherwise, arising
// from, out of or in connection with the software or the use or
// other dealings in the software.

// oxen is the command-line entry point over the dataset version
// control core (spec §6.3): one cli.Command per verb, operating on the
// repository found by walking up from the current directory.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/Oxen-AI/oxen-release-sub010/config"
	"github.com/Oxen-AI/oxen-release-sub010/oxenerr"
	"github.com/Oxen-AI/oxen-release-sub010/repo"
)

var verboseFlag = &cli.BoolFlag{
	Name:  "verbose",
	Usage: "print the full error cause chain on failure",
}

// env is read exactly once, here, and threaded through every command
// via repo.Open/repo.Init. No package below this one calls os.Getenv.
var env config.Env

var verbose bool

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "oxen"
	app.Usage = "content-addressed dataset version control"
	app.Flags = []cli.Flag{verboseFlag}
	app.Before = func(ctx *cli.Context) error {
		verbose = ctx.Bool("verbose")
		return nil
	}
	app.Commands = []*cli.Command{
		initCommand,
		addCommand,
		rmCommand,
		statusCommand,
		commitCommand,
		logCommand,
		branchCommand,
		checkoutCommand,
		restoreCommand,
		cloneCommand,
		pushCommand,
		pullCommand,
		diffCommand,
		serveCommand,
	}
	return app
}

func main() {
	env = config.LoadEnv()
	if err := newApp().Run(os.Args); err != nil {
		printError(err, verbose)
		os.Exit(1)
	}
}

// printError writes the stable one-line "category: detail" summary
// (spec §7) to stderr, appending the full causal chain when verbose.
func printError(err error, verbose bool) {
	if e, ok := err.(*oxenerr.Error); ok {
		fmt.Fprintln(os.Stderr, e.Summary())
		if verbose {
			fmt.Fprintf(os.Stderr, "%+v\n", err)
		}
		return
	}
	fmt.Fprintln(os.Stderr, err)
}

func workingDir() (string, error) {
	return os.Getwd()
}

// openRepo opens the repository containing the current directory.
func openRepo() (*repo.Repo, error) {
	dir, err := workingDir()
	if err != nil {
		return nil, err
	}
	return repo.Open(dir, env)
}
