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
	"context"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/Oxen-AI/oxen-release-sub010/repo"
)

var initCommand = &cli.Command{
	Name:      "init",
	Usage:     "create a new repository in the current directory",
	ArgsUsage: " ",
	Action:    runInit,
}

func runInit(ctx *cli.Context) error {
	dir, err := workingDir()
	if err != nil {
		return err
	}
	r, err := repo.Init(dir, env)
	if err != nil {
		return err
	}
	defer r.Close()
	fmt.Printf("initialized empty repository in %s\n", r.Root())
	return nil
}

var addCommand = &cli.Command{
	Name:      "add",
	Usage:     "stage a file or directory for the next commit",
	ArgsUsage: "<path>",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "all", Aliases: []string{"A"}, Usage: "stage every change under path using the parallel scanner"},
	},
	Action: runAdd,
}

func runAdd(ctx *cli.Context) error {
	path := ctx.Args().First()
	r, err := openRepo()
	if err != nil {
		return err
	}
	defer r.Close()
	if ctx.Bool("all") {
		return r.AddAll(context.Background(), path)
	}
	return r.Add(path)
}

var rmCommand = &cli.Command{
	Name:      "rm",
	Usage:     "stage a file or directory for removal",
	ArgsUsage: "<path>",
	Action:    runRm,
}

func runRm(ctx *cli.Context) error {
	r, err := openRepo()
	if err != nil {
		return err
	}
	defer r.Close()
	return r.Rm(ctx.Args().First())
}

var statusCommand = &cli.Command{
	Name:      "status",
	Usage:     "show staged and unstaged changes",
	ArgsUsage: " ",
	Action:    runStatus,
}

func runStatus(ctx *cli.Context) error {
	r, err := openRepo()
	if err != nil {
		return err
	}
	defer r.Close()
	report, err := r.Status()
	if err != nil {
		return err
	}
	for _, e := range report.Staged {
		fmt.Printf("staged:   %-10s %s\n", e.Kind, e.Path)
	}
	for _, e := range report.Unstaged {
		fmt.Printf("unstaged: %-10s %s\n", e.Kind, e.Path)
	}
	return nil
}

var commitCommand = &cli.Command{
	Name:      "commit",
	Usage:     "commit the staging table onto HEAD",
	ArgsUsage: " ",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "message", Aliases: []string{"m"}, Usage: "commit message", Required: true},
		&cli.StringFlag{Name: "author", Usage: "commit author name", Value: "oxen"},
		&cli.StringFlag{Name: "email", Usage: "commit author email"},
	},
	Action: runCommit,
}

func runCommit(ctx *cli.Context) error {
	r, err := openRepo()
	if err != nil {
		return err
	}
	defer r.Close()
	author := ctx.String("author")
	email := ctx.String("email")
	if author == "oxen" && r.Config().User.Name != "" {
		author = r.Config().User.Name
	}
	if email == "" {
		email = r.Config().User.Email
	}
	c, err := r.Commit(ctx.String("message"), author, email)
	if err != nil {
		return err
	}
	fmt.Println(c.Hash())
	return nil
}
