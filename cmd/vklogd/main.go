// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of vklogd.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/gops/agent"

	"github.com/vklog/vklogd/internal/arena"
	"github.com/vklog/vklogd/internal/config"
	"github.com/vklog/vklogd/internal/diag"
	"github.com/vklog/vklogd/internal/dispatch"
	"github.com/vklog/vklogd/internal/driver"
	"github.com/vklog/vklogd/internal/format"
	"github.com/vklog/vklogd/internal/output"
	"github.com/vklog/vklogd/internal/render"
	"github.com/vklog/vklogd/internal/txcache"
	"github.com/vklog/vklogd/internal/vsl"
	"github.com/vklog/vklogd/pkg/log"
)

// version is set with -ldflags at build time; "dev" otherwise.
var version = "dev"

func main() {
	var (
		flagHelp       bool
		flagVersion    bool
		flagDumpConfig bool
		flagConfigPath string
		flagMatch      uint64
		flagGops       bool
	)
	flag.BoolVar(&flagHelp, "h", false, "print usage and exit")
	flag.BoolVar(&flagVersion, "V", false, "print version and exit")
	flag.BoolVar(&flagDumpConfig, "X", false, "print the resolved configuration as JSON and exit")
	flag.BoolVar(&flagGops, "gops", false, "listen via github.com/google/gops/agent (for debugging)")
	flag.StringVar(&flagConfigPath, "S", "/etc/vklogd/vklogd.conf", "path to the configuration file")
	flag.Func("m", "required tagsSeen bitmask for the post-completion matcher", func(s string) error {
		v, err := strconv.ParseUint(s, 0, 64)
		if err != nil {
			return err
		}
		flagMatch = v
		return nil
	})
	flag.Parse()

	if flagHelp {
		flag.Usage()
		os.Exit(1)
	}
	if flagVersion {
		fmt.Println("vklogd", version)
		os.Exit(0)
	}

	// See https://github.com/google/gops (runtime overhead is almost zero)
	if flagGops {
		if err := agent.Listen(agent.Options{}); err != nil {
			log.Fatalf("gops/agent.Listen failed: %s", err.Error())
		}
	}

	cfg, err := config.Load(flagConfigPath)
	if err != nil {
		log.Fatalf("loading config %q: %s", flagConfigPath, err.Error())
	}

	if flagDumpConfig {
		doc, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			log.Fatal(err)
		}
		fmt.Println(string(doc))
		os.Exit(0)
	}

	log.SetLevel(cfg.LogLevel)
	if err := log.SetOutputs(logToBitmask(cfg.LogTo), "vklogd"); err != nil {
		log.Fatal(err)
	}

	hostname, err := os.Hostname()
	if err != nil {
		log.Fatalf("resolving hostname: %s", err.Error())
	}

	a := arena.New()
	compiler := format.NewCompiler(a, hostname)

	if cfg.FormatMain == "" {
		log.Fatal("config: format.main must be set")
	}
	mainTmpl, err := compiler.Compile(cfg.FormatMain, 0)
	if err != nil {
		log.Fatalf("compiling format.main: %s", err.Error())
	}

	templates := []*format.Template{mainTmpl}
	var keyTmpl *format.Template
	if cfg.FormatKey != "" {
		keyTmpl, err = compiler.Compile(cfg.FormatKey, 1)
		if err != nil {
			log.Fatalf("compiling format.key: %s", err.Error())
		}
		templates = append(templates, keyTmpl)
	}

	slotCounts := make([]int, len(templates))
	for i, t := range templates {
		slotCounts[i] = len(t.Slots)
	}

	cache := txcache.New(cfg.LoglineHashsize, cfg.LoglineHashMax, cfg.ScratchSize, slotCounts, func() int64 { return time.Now().Unix() })
	counters := &diag.Counters{}

	d := &dispatch.Dispatcher{
		Cache:      cache,
		Handlers:   compiler.Handlers,
		Templates:  templates,
		Counters:   counters,
		TagSizeMax: cfg.TagSizeMax,
		Datacopy:   cfg.Datacopy,
		EndTag:     vsl.TagReqEnd,
	}

	ratePeriod, err := time.ParseDuration(cfg.LogRatePeriod)
	if err != nil {
		log.Fatalf("config: log.rate.period: %s", err.Error())
	}
	rl := diag.NewRateLimiter(cfg.LogRateMax)
	stopRollover := make(chan struct{})
	go rl.RunRollover(ratePeriod, stopRollover)
	defer close(stopRollover)

	adapter, err := newAdapter(cfg, counters, rl)
	if err != nil {
		log.Fatalf("initializing output adapter: %s", err.Error())
	}
	if closer, ok := adapter.(interface{ Close() }); ok {
		defer closer.Close()
	}

	fconfs := []render.Fconf{{Template: mainTmpl, Encoding: encodingOf(cfg.FormatMainEncoding), Kind: output.Main}}
	if keyTmpl != nil {
		fconfs = append(fconfs, render.Fconf{Template: keyTmpl, Encoding: encodingOf(cfg.FormatKeyEncoding), Kind: output.Key})
	}

	renderer := &render.Renderer{
		Fconfs:   fconfs,
		Cache:    cache,
		Adapter:  adapter,
		Counters: counters,
	}
	if flagMatch != 0 {
		renderer.Filter = func(tagsSeen uint64) bool { return tagsSeen&flagMatch == flagMatch }
	}

	if cfg.DiagAddr != "" {
		httpSrv := diag.NewHTTPServer(cfg.DiagAddr, counters)
		if err := httpSrv.Start(); err != nil {
			log.Fatalf("starting diagnostics http server: %s", err.Error())
		}
		defer httpSrv.Shutdown(context.Background())
	}

	var stats *diag.StatsWriter
	if cfg.StatsFile != "" {
		stats, err = diag.NewStatsWriter(cfg.StatsFile, counters)
		if err != nil {
			log.Fatalf("opening stats file: %s", err.Error())
		}
		interval, err := time.ParseDuration(cfg.StatsInterval)
		if err != nil {
			log.Fatalf("config: stats.interval: %s", err.Error())
		}
		if err := stats.Start(interval); err != nil {
			log.Fatalf("starting stats emitter: %s", err.Error())
		}
		defer stats.Stop()
	}

	logPath := cfg.VarnishArgs["r"]
	if logPath == "" {
		log.Fatal("config: varnish.arg.r (reader log path) must be set")
	}
	reader, err := vsl.NewTailReader(logPath, vsl.TagNames)
	if err != nil {
		log.Fatalf("opening reader: %s", err.Error())
	}

	drv := driver.New(reader, d, renderer, adapter, stats)
	os.Exit(drv.Run())
}

func logToBitmask(s string) int {
	bits := 0
	for _, part := range strings.Split(s, "|") {
		switch strings.TrimSpace(part) {
		case "stderr":
			bits |= log.ToStderr
		case "syslog":
			bits |= log.ToSyslog
		}
	}
	return bits
}

func encodingOf(s string) render.Encoding {
	if s == "json" {
		return render.EncodingJSON
	}
	return render.EncodingString
}

func newAdapter(cfg *config.Config, counters *diag.Counters, rl *diag.RateLimiter) (output.Adapter, error) {
	switch cfg.Output {
	case "stdout":
		return output.NewStdout(os.Stdout), nil
	case "null":
		return output.Null{}, nil
	default:
		return output.NewBus(output.BusConfig{
			Address:   cfg.BusOptions["kafka.address"],
			Subject:   cfg.Topic,
			Partition: cfg.Partition,
		}, counters, rl)
	}
}
