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

package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/Oxen-AI/oxen-release-sub010/objects"
	"github.com/Oxen-AI/oxen-release-sub010/oxenhash"
)

var logCommand = &cli.Command{
	Name:      "log",
	Usage:     "show commit history, newest first",
	ArgsUsage: " ",
	Flags: []cli.Flag{
		&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Usage: "stop after this many commits (0 means unbounded)"},
	},
	Action: runLog,
}

func runLog(ctx *cli.Context) error {
	r, err := openRepo()
	if err != nil {
		return err
	}
	defer r.Close()
	entries, err := r.Log(objects.Hash{}, ctx.Int("limit"))
	if err != nil {
		return err
	}
	for _, e := range entries {
		fmt.Printf("commit %s\n", e.Hash)
		fmt.Printf("Author: %s <%s>\n", e.Commit.Author, e.Commit.Email)
		fmt.Printf("Date:   %s\n\n", e.Commit.Timestamp.Format("Mon Jan 2 15:04:05 2006 -0700"))
		fmt.Printf("    %s\n\n", e.Commit.Message)
	}
	return nil
}

var branchCommand = &cli.Command{
	Name:      "branch",
	Usage:     "list branches, or create one at HEAD when a name is given",
	ArgsUsage: "[name]",
	Action:    runBranch,
}

func runBranch(ctx *cli.Context) error {
	r, err := openRepo()
	if err != nil {
		return err
	}
	defer r.Close()
	if name := ctx.Args().First(); name != "" {
		return r.Branch(name)
	}
	names, err := r.Branches()
	if err != nil {
		return err
	}
	for _, n := range names {
		fmt.Println(n)
	}
	return nil
}

var checkoutCommand = &cli.Command{
	Name:      "checkout",
	Usage:     "move HEAD to a ref or commit and materialize it onto the working directory",
	ArgsUsage: "<ref|commit>",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "force", Aliases: []string{"f"}, Usage: "discard uncommitted changes"},
	},
	Action: runCheckout,
}

func runCheckout(ctx *cli.Context) error {
	r, err := openRepo()
	if err != nil {
		return err
	}
	defer r.Close()
	return r.Checkout(ctx.Args().First(), ctx.Bool("force"))
}

var restoreCommand = &cli.Command{
	Name:      "restore",
	Usage:     "re-materialize a path as it existed at a commit, without moving HEAD",
	ArgsUsage: "<path>",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "source", Usage: "commit to restore from (defaults to HEAD)"},
	},
	Action: runRestore,
}

func runRestore(ctx *cli.Context) error {
	r, err := openRepo()
	if err != nil {
		return err
	}
	defer r.Close()
	var from objects.Hash
	if s := ctx.String("source"); s != "" {
		h, err := oxenhash.ParseHash(s)
		if err != nil {
			return err
		}
		from = h
	}
	return r.Restore(ctx.Args().First(), from)
}

var diffCommand = &cli.Command{
	Name:      "diff",
	Usage:     "show changes between two commits (from the empty tree when only <to> is given)",
	ArgsUsage: "[<from>] <to>",
	Action:    runDiff,
}

func runDiff(ctx *cli.Context) error {
	r, err := openRepo()
	if err != nil {
		return err
	}
	defer r.Close()

	var from objects.Hash
	to := ctx.Args().First()
	if ctx.Args().Len() >= 2 {
		f, err := oxenhash.ParseHash(ctx.Args().Get(0))
		if err != nil {
			return err
		}
		from = f
		to = ctx.Args().Get(1)
	}
	toHash, err := oxenhash.ParseHash(to)
	if err != nil {
		return err
	}
	changes, err := r.Diff(from, toHash)
	if err != nil {
		return err
	}
	for _, c := range changes {
		fmt.Printf("%-10s %s\n", c.Type, c.Path)
	}
	return nil
}
