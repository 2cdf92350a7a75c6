// Copyright (c) 2023, The KLEM Authors.
// All rights reserved.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions are met:
// 1. Redistributions of source code must retain the above copyright
//    notice, this list of conditions and the following disclaimer.
// 2. Redistributions in binary form must reproduce the above copyright
//    notice, this list of conditions and the following disclaimer in the
//    documentation and/or other materials provided with the distribution.
// 3. Neither the name of the copyright holder nor the
//    names of its contributors may be used to endorse or promote products
//    derived from this software without specific prior written permission.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND CONTRIBUTORS "AS IS"
// AND ANY EXPRESS OR IMPLIED WARRANTIES, INCLUDING, BUT NOT LIMITED TO, THE
// IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE
// ARE DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR CONTRIBUTORS BE
// LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL, SPECIAL, EXEMPLARY, OR
// CONSEQUENTIAL DAMAGES (INCLUDING, BUT NOT LIMITED TO, PROCUREMENT OF
// SUBSTITUTE GOODS OR SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS
// INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY, WHETHER IN
// CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING NEGLIGENCE OR OTHERWISE)
// ARISING IN ANY WAY OUT OF THE USE OF THIS SOFTWARE, EVEN IF ADVISED OF THE
// POSSIBILITY OF SUCH DAMAGE.

// Package klem_main wires configuration, controller, console and control server of the klem
// daemon.
package klem_main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/klemu/klem/cli"
	"github.com/klemu/klem/config"
	"github.com/klemu/klem/ctrl"
	"github.com/klemu/klem/logger"
	"github.com/klemu/klem/pcap"
	"github.com/klemu/klem/prng"
	"github.com/klemu/klem/progctx"
	"github.com/klemu/klem/status"
)

const shutdownTimeout = 3 * time.Second

type MainArgs struct {
	ConfigFile  string
	Device      string
	Id          int
	Mode        string
	Backend     string
	LogLevel    string
	LogFile     string
	GrpcAddress string
	PcapFile    string
	PcapFormat  string
	AutoStart   bool
	NoCli       bool
	Seed        int64
}

var (
	args MainArgs
)

func parseArgs() map[string]bool {
	flag.StringVar(&args.ConfigFile, "config", "", "YAML configuration file")
	flag.StringVar(&args.Device, "device", "", "link device: interface name, multicast group or hub label")
	flag.IntVar(&args.Id, "id", 0, "node id stamped on emitted frames (0-255)")
	flag.StringVar(&args.Mode, "mode", "", "transport mode: lemu or bridge")
	flag.StringVar(&args.Backend, "backend", "", "link backend: packet, udp or mem")
	flag.StringVar(&args.LogLevel, "log", "", "set logging level: trace, debug, info, warn, error.")
	flag.StringVar(&args.LogFile, "log-file", "", "also log to this file, rotated")
	flag.StringVar(&args.GrpcAddress, "grpc", "", "gRPC control server address, \"off\" disables it")
	flag.StringVar(&args.PcapFile, "pcap", "", "capture file")
	flag.StringVar(&args.PcapFormat, "pcap-format", "", "capture format: dot11 or radiotap")
	flag.BoolVar(&args.AutoStart, "autostart", false, "start the radio right away")
	flag.BoolVar(&args.NoCli, "no-cli", false, "do not run the interactive console")
	flag.Int64Var(&args.Seed, "seed", 0, "seed of the address generator, 0 for a random seed")

	flag.Parse()

	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})
	return set
}

// loadConfig reads the configuration file, when given, and applies the flags set on the command
// line over it.
func loadConfig(set map[string]bool) (*config.Config, error) {
	cfg := config.Default()
	if args.ConfigFile != "" {
		var err error
		if cfg, err = config.Load(args.ConfigFile); err != nil {
			return nil, err
		}
	}

	if set["device"] {
		cfg.Device = args.Device
	}
	if set["id"] {
		cfg.Id = args.Id
	}
	if set["mode"] {
		cfg.Mode = args.Mode
	}
	if set["backend"] {
		cfg.Link.Backend = args.Backend
	}
	if set["log"] {
		cfg.Log.Level = args.LogLevel
	}
	if set["log-file"] {
		cfg.Log.File = args.LogFile
	}
	if set["grpc"] {
		cfg.Grpc.Address = args.GrpcAddress
	}
	if set["pcap"] {
		cfg.Pcap.File = args.PcapFile
		if pcap.ParseFrameTypeStr(cfg.Pcap.Format) == pcap.FrameTypeOff {
			cfg.Pcap.Format = pcap.FrameTypeDot11Str
		}
	}
	if set["pcap-format"] {
		cfg.Pcap.Format = args.PcapFormat
	}
	if set["autostart"] {
		cfg.AutoStart = args.AutoStart
	}
	return cfg, cfg.Validate()
}

func Main(ctx *progctx.ProgCtx, cliOptions *cli.CliOptions) {
	cfg, err := loadConfig(parseArgs())
	logger.FatalIfError(err)

	level, err := logger.ParseLevelString(cfg.Log.Level)
	logger.FatalIfError(err)
	logger.SetLevel(level)
	if cfg.Log.File != "" {
		logger.SetOutputFile(cfg.Log.LogFileOptions())
	}
	defer logger.Sync()

	prng.Init(args.Seed)
	handleSignals(ctx)

	c, err := ctrl.New(cfg, ctrl.Options{})
	logger.FatalIfError(err)

	if cfg.AutoStart {
		if err = c.Start(); err != nil {
			logger.Errorf("autostart failed: %v", err)
		}
	}

	rt := cli.NewCmdRunner(ctx, c)

	if cfg.Grpc.Address != "" && cfg.Grpc.Address != "off" {
		srv := status.NewServer(c, rt, cfg.Grpc.Address)
		ctx.Defer(srv.Stop)
		ctx.Go("grpc", func() {
			if err := srv.Run(); err != nil && ctx.Err() == nil {
				logger.Errorf("gRPC control server stopped unexpectedly: %+v", err)
			}
		})
	}

	if !args.NoCli {
		// closing stdin ends the console
		ctx.Defer(func() {
			_ = os.Stdin.Close()
		})
		go cli.RunCli(ctx, rt, cliOptions)
	}

	<-ctx.Done()
	logger.Debugf("waiting for klem to stop gracefully ...")
	c.Close()
	if err = ctx.WaitTimeout(shutdownTimeout); err != nil {
		logger.Warnf("%v", err)
	}
}

func handleSignals(ctx *progctx.ProgCtx) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGINT, syscall.SIGHUP)
	signal.Ignore(syscall.SIGALRM)

	ctx.WaitAdd("handleSignals", 1)
	go func() {
		defer logger.Debugf("handleSignals exit.")
		defer ctx.WaitDone("handleSignals")

		for {
			select {
			case sig := <-c:
				logger.Infof("signal received: %v", sig)
				ctx.Cancel(nil)
			case <-ctx.Done():
				return
			}
		}
	}()
}
