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
	"net/http"

	"github.com/urfave/cli/v2"
)

var serveCommand = &cli.Command{
	Name:      "serve",
	Usage:     "expose this repository over the sync protocol for push/pull clients",
	ArgsUsage: " ",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "addr", Value: ":3410", Usage: "address to listen on"},
	},
	Action: runServe,
}

func runServe(ctx *cli.Context) error {
	r, err := openRepo()
	if err != nil {
		return err
	}
	defer r.Close()
	addr := ctx.String("addr")
	fmt.Printf("serving %s on %s\n", r.Root(), addr)
	return http.ListenAndServe(addr, r.Serve())
}
