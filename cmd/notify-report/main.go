package main

import (
	"context"
	"flag"
	"os"

	"github.com/castlegate/visitbooker/internal/platform/config"
	"github.com/castlegate/visitbooker/internal/tools/notifyreport"
)

func main() {
	cfg, err := notifyreport.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		config.Exitf("parse flags: %v", err)
	}
	if err := notifyreport.Run(context.Background(), cfg, os.Stdout); err != nil {
		config.Exitf("build report: %v", err)
	}
}
