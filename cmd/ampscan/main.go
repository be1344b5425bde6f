// Command ampscan runs mesh processing scripts and reports scan statistics.
//
// Usage:
//
//	ampscan [-config file] [-kernel sdfx|manifold] [-out dir] [-buffers] script.ampscan
//	ampscan [-config file] stat scan.stl
//
// Script results and statistics are printed to stdout as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/abel-research/ampscan/pkg/config"
	"github.com/abel-research/ampscan/pkg/engine"
	"github.com/abel-research/ampscan/pkg/kernel"
	"github.com/abel-research/ampscan/pkg/kernel/manifold"
	"github.com/abel-research/ampscan/pkg/kernel/sdfx"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("ampscan", flag.ContinueOnError)
	fs.SetOutput(stderr)
	cfgPath := fs.String("config", "", "YAML or TOML configuration file")
	outDir := fs.String("out", "", "directory to write named meshes to as STL")
	buffers := fs.Bool("buffers", false, "include render buffers of named meshes in the report")
	kernelName := fs.String("kernel", "sdfx", "phantom geometry kernel: sdfx or manifold")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: ampscan [-config file] [-kernel name] [-out dir] [-buffers] script")
		fmt.Fprintln(stderr, "       ampscan [-config file] stat file.stl")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg := config.Default()
	if *cfgPath != "" {
		var err error
		if cfg, err = config.Load(*cfgPath); err != nil {
			fmt.Fprintf(stderr, "ampscan: %v\n", err)
			return 1
		}
	}
	log, err := cfg.Logger(stderr)
	if err != nil {
		fmt.Fprintf(stderr, "ampscan: %v\n", err)
		return 1
	}
	k, err := selectKernel(*kernelName)
	if err != nil {
		fmt.Fprintf(stderr, "ampscan: %v\n", err)
		return 1
	}
	app, err := NewApp(cfg, *outDir, log, engine.WithKernel(k))
	if err != nil {
		fmt.Fprintf(stderr, "ampscan: %v\n", err)
		return 1
	}
	app.IncludeBuffers = *buffers

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")

	rest := fs.Args()
	switch {
	case len(rest) == 2 && rest[0] == "stat":
		sum, err := app.Stat(context.Background(), rest[1])
		if err != nil {
			log.Error("stat failed", "file", rest[1], "err", err)
			return 1
		}
		if err := enc.Encode(sum); err != nil {
			log.Error("writing summary", "err", err)
			return 1
		}
		return 0

	case len(rest) == 1:
		result, err := app.EvaluateFile(rest[0])
		if err != nil {
			log.Error("reading script", "err", err)
			return 1
		}
		if err := enc.Encode(result); err != nil {
			log.Error("writing result", "err", err)
			return 1
		}
		if len(result.Errors) > 0 {
			return 1
		}
		return 0
	}

	fs.Usage()
	return 2
}

// selectKernel returns the phantom kernel registered under name.
func selectKernel(name string) (kernel.Kernel, error) {
	switch name {
	case "", "sdfx":
		return sdfx.New(), nil
	case "manifold":
		return manifold.New()
	}
	return nil, fmt.Errorf("unknown kernel %q, expected sdfx or manifold", name)
}
