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
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/Oxen-AI/oxen-release-sub010/objects"
	"github.com/Oxen-AI/oxen-release-sub010/oxenhash"
	"github.com/Oxen-AI/oxen-release-sub010/repo"
)

const defaultRemote = "origin"

var cloneCommand = &cli.Command{
	Name:      "clone",
	Usage:     "create a repository and pull a branch from a remote",
	ArgsUsage: "<url> <dst>",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "branch", Aliases: []string{"b"}, Value: "main", Usage: "branch to pull after creating the repository"},
	},
	Action: runClone,
}

func runClone(ctx *cli.Context) error {
	url := ctx.Args().Get(0)
	dst := ctx.Args().Get(1)
	r, err := repo.Init(dst, env)
	if err != nil {
		return err
	}
	defer r.Close()
	r.Config().SetRemote(defaultRemote, url)
	if err := r.Config().Save(filepath.Join(r.Root(), ".oxen")); err != nil {
		return err
	}
	branch := ctx.String("branch")
	commit, err := r.Pull(context.Background(), defaultRemote, branch)
	if err != nil {
		return err
	}
	if commit.IsZero() {
		return nil
	}
	return r.Checkout(branch, true)
}

var pushCommand = &cli.Command{
	Name:      "push",
	Usage:     "upload a branch's commits to a remote",
	ArgsUsage: "[remote] [branch]",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "expect", Usage: "fail the push if the remote branch has moved past this commit"},
	},
	Action: runPush,
}

func runPush(ctx *cli.Context) error {
	remote := firstOr(ctx.Args().Get(0), defaultRemote)
	branch := firstOr(ctx.Args().Get(1), "main")
	var expected objects.Hash
	if s := ctx.String("expect"); s != "" {
		h, err := oxenhash.ParseHash(s)
		if err != nil {
			return err
		}
		expected = h
	}
	r, err := openRepo()
	if err != nil {
		return err
	}
	defer r.Close()
	return r.Push(context.Background(), remote, branch, expected)
}

var pullCommand = &cli.Command{
	Name:      "pull",
	Usage:     "fetch a branch from a remote and advance the local ref to match",
	ArgsUsage: "[remote] [branch]",
	Action:    runPull,
}

func runPull(ctx *cli.Context) error {
	remote := firstOr(ctx.Args().Get(0), defaultRemote)
	branch := firstOr(ctx.Args().Get(1), "main")
	r, err := openRepo()
	if err != nil {
		return err
	}
	defer r.Close()
	commit, err := r.Pull(context.Background(), remote, branch)
	if err != nil {
		return err
	}
	fmt.Println(commit)
	return nil
}

func firstOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
