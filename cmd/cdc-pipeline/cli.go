// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package main

import (
	"flag"
	"fmt"
	"os"
)

var (
	flagConfigFile string
	flagLogLevel   string
	flagStdin      bool
	flagGops       bool
	flagVersion    bool
)

const helpText = `Usage: cdc-pipeline [OPTIONS]

Options:
  -config <file>    Path to a .env-style configuration file (default .env)
  -loglevel <level> One of debug, info, notice, warn, err, crit (default info)
  -stdin             Read test_decoding lines from stdin instead of spawning pg_recvlogical
  -gops              Start the gops diagnostics agent
  -version           Print version information and exit
`

func cliInit() {
	flag.BoolVar(&flagVersion, "version", false, "Print version information and exit")
	flag.StringVar(&flagConfigFile, "config", ".env", "Path to a .env-style configuration file")
	flag.StringVar(&flagLogLevel, "loglevel", "info", "One of debug, info, notice, warn, err, crit")
	flag.BoolVar(&flagStdin, "stdin", false, "Read test_decoding lines from stdin instead of spawning pg_recvlogical")
	flag.BoolVar(&flagGops, "gops", false, "Start the gops diagnostics agent")
	flag.Usage = func() { fmt.Fprint(os.Stderr, helpText) }
	flag.Parse()
}
