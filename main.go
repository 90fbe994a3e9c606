// Copyright 2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/beevik/lite6502/disasm"
	"github.com/beevik/lite6502/host"
	"github.com/beevik/term"
	"github.com/pkg/profile"
)

var (
	demo       bool
	cpuprofile string
)

func init() {
	flag.BoolVar(&demo, "demo", false, "run the demo program and exit")
	flag.StringVar(&cpuprofile, "cpuprofile", "", "write a CPU profile to `dir`")
	flag.CommandLine.Usage = func() {
		fmt.Println("Usage: lite6502 [options] [command file] ..\nOptions:")
		flag.PrintDefaults()
	}
}

func main() {
	flag.Parse()

	if cpuprofile != "" {
		defer profile.Start(profile.CPUProfile, profile.ProfilePath(cpuprofile), profile.Quiet).Stop()
	}

	h := host.New()

	if demo {
		if err := host.Demo(h.CPU(), h.Memory()); err != nil {
			exitOnError(err)
		}
		fmt.Println(disasm.RegisterString(&h.CPU().Reg))
		return
	}

	// Run commands contained in command-line files.
	for _, filename := range flag.Args() {
		file, err := os.Open(filename)
		if err != nil {
			exitOnError(err)
		}
		err = h.RunCommands(file, os.Stdout, false)
		file.Close()
		if err != nil {
			exitOnError(err)
		}
	}

	// Break on Ctrl-C.
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)
	go handleInterrupt(h, c)

	// Run commands from stdin, interactively if it is a terminal.
	interactive := term.IsTerminal(int(os.Stdin.Fd()))
	if err := h.RunCommands(os.Stdin, os.Stdout, interactive); err != nil {
		exitOnError(err)
	}
}

func handleInterrupt(h *host.Host, c chan os.Signal) {
	for {
		<-c
		h.Break()
	}
}

func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
	os.Exit(1)
}
