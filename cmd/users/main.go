// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package main provides the bookshelf users CLI for the sqlite backend.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

func main() {
	// .env file is optional
	_ = godotenv.Load()

	opts := &options{in: os.Stdin}
	err := newRootCmd(opts).Execute()
	opts.close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
