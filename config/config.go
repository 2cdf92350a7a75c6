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

// Package config holds the YAML configuration of a klem daemon instance.
package config

import (
	"net"
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/klemu/klem/envelope"
	"github.com/klemu/klem/link"
	"github.com/klemu/klem/logger"
	"github.com/klemu/klem/pcap"
	"github.com/klemu/klem/radio"
	"github.com/klemu/klem/types"
)

const (
	DefaultUdpGroup    = "239.255.75.77:47000"
	DefaultGrpcAddress = "localhost:9100"
	DefaultSSID        = "klem"
	DefaultChannel     = 1
)

type Config struct {
	Device    string      `yaml:"device"`
	Id        int         `yaml:"id"`
	Mode      string      `yaml:"mode"`
	Filter    []int       `yaml:"filter,flow"`
	AutoStart bool        `yaml:"autostart"`
	Link      LinkConfig  `yaml:"link"`
	Radio     RadioConfig `yaml:"radio"`
	Pcap      PcapConfig  `yaml:"pcap"`
	Grpc      GrpcConfig  `yaml:"grpc"`
	Log       LogConfig   `yaml:"log"`
}

type LinkConfig struct {
	Backend      string        `yaml:"backend"`
	Interface    string        `yaml:"interface,omitempty"`
	Peer         string        `yaml:"peer,omitempty"`
	Timeout      time.Duration `yaml:"timeout"`
	MaxRetries   int           `yaml:"max_retries"`
	BackoffUnit  time.Duration `yaml:"backoff_unit"`
	StallBackoff time.Duration `yaml:"stall_backoff"`
}

type QueueConfig struct {
	Class             int `yaml:"class"`
	types.QueueParams `yaml:",inline"`
}

type InterfaceConfig struct {
	Name   string `yaml:"name"`
	SSID   string `yaml:"ssid"`
	Active bool   `yaml:"active"`
}

type RadioConfig struct {
	Address          string            `yaml:"address,omitempty"`
	BeaconIntervalTU int               `yaml:"beacon_interval_tu"`
	Band             string            `yaml:"band"`
	Channel          int               `yaml:"channel"`
	Power            int32             `yaml:"power"`
	CompleteOnDrain  bool              `yaml:"complete_on_drain"`
	Queues           []QueueConfig     `yaml:"queues,omitempty"`
	Interfaces       []InterfaceConfig `yaml:"interfaces,omitempty"`
}

type PcapConfig struct {
	File   string `yaml:"file,omitempty"`
	Format string `yaml:"format"`
}

type GrpcConfig struct {
	Address string `yaml:"address"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file,omitempty"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

func Default() *Config {
	return &Config{
		Id:   types.DefaultNodeId,
		Mode: envelope.FramedModeName,
		Link: LinkConfig{
			Backend:      string(link.BackendPacket),
			Timeout:      link.DefaultTimeout,
			MaxRetries:   link.DefaultMaxRetries,
			BackoffUnit:  link.DefaultBackoffUnit,
			StallBackoff: link.DefaultStallBackoff,
		},
		Radio: RadioConfig{
			BeaconIntervalTU: radio.DefaultBeaconIntervalTU,
			Band:             types.Band2GHz.String(),
			Channel:          DefaultChannel,
			Power:            types.DefaultCapability().Power,
			Interfaces: []InterfaceConfig{
				{Name: "wlan0", SSID: DefaultSSID, Active: true},
			},
		},
		Pcap: PcapConfig{Format: pcap.FrameTypeOffStr},
		Grpc: GrpcConfig{Address: DefaultGrpcAddress},
		Log: LogConfig{
			Level:      logger.GetLevelString(logger.DefaultLevel),
			MaxSizeMB:  16,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// Load reads a YAML file over the defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read config %s", path)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "config %s", path)
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "decode yaml")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(cfg)
}

func (cfg *Config) Validate() error {
	if cfg.Id < 0 || cfg.Id > types.MaxNodeId {
		return errors.Errorf("id %d out of range 0..%d", cfg.Id, types.MaxNodeId)
	}
	if _, err := envelope.ParseMode(cfg.Mode); err != nil {
		return err
	}
	for _, id := range cfg.Filter {
		if id < 0 || id > types.MaxNodeId {
			return errors.Errorf("filter id %d out of range 0..%d", id, types.MaxNodeId)
		}
	}
	if err := cfg.Link.validate(); err != nil {
		return err
	}
	if err := cfg.Radio.validate(); err != nil {
		return err
	}
	if ft := pcap.ParseFrameTypeStr(cfg.Pcap.Format); ft == pcap.FrameTypeUnknown {
		return errors.Errorf("unknown pcap format: %s", cfg.Pcap.Format)
	} else if ft != pcap.FrameTypeOff && cfg.Pcap.File == "" {
		return errors.Errorf("pcap format %s needs a file", cfg.Pcap.Format)
	}
	if _, err := logger.ParseLevelString(cfg.Log.Level); err != nil {
		return err
	}
	return nil
}

func (lc *LinkConfig) validate() error {
	if _, err := link.ParseBackend(lc.Backend); err != nil {
		return err
	}
	if _, err := lc.PeerAddr(); err != nil {
		return err
	}
	if lc.Timeout < 0 || lc.BackoffUnit < 0 || lc.StallBackoff < 0 || lc.MaxRetries < 0 {
		return errors.New("link timeouts and retries must not be negative")
	}
	return nil
}

// PeerAddr returns the configured peer link address, broadcast when unset.
func (lc *LinkConfig) PeerAddr() (net.HardwareAddr, error) {
	if lc.Peer == "" {
		return types.BroadcastAddr, nil
	}
	addr, err := net.ParseMAC(lc.Peer)
	if err != nil || len(addr) != 6 {
		return nil, errors.Errorf("invalid peer address: %s", lc.Peer)
	}
	return addr, nil
}

func (rc *RadioConfig) validate() error {
	if rc.BeaconIntervalTU <= 0 || rc.BeaconIntervalTU > 0xffff {
		return errors.Errorf("beacon interval %d TU out of range", rc.BeaconIntervalTU)
	}
	if _, err := rc.Capability(); err != nil {
		return err
	}
	if _, err := rc.HardwareAddr(); err != nil {
		return err
	}
	for _, q := range rc.Queues {
		if q.Class < 0 || q.Class >= types.NumPriorityClasses {
			return errors.Errorf("queue class %d out of range", q.Class)
		}
	}
	names := map[string]bool{}
	for _, iface := range rc.Interfaces {
		if iface.Name == "" || names[iface.Name] {
			return errors.Errorf("interface names must be unique and not empty: %q", iface.Name)
		}
		names[iface.Name] = true
	}
	return nil
}

// Capability resolves band and channel into the descriptor stamped on emitted frames.
func (rc *RadioConfig) Capability() (types.Capability, error) {
	band, err := types.ParseBand(rc.Band)
	if err != nil {
		return types.Capability{}, err
	}
	ch, err := types.LookupChannel(band, rc.Channel)
	if err != nil {
		return types.Capability{}, err
	}
	return types.Capability{Band: band, Frequency: ch.Frequency, Power: rc.Power}, nil
}

// HardwareAddr returns the configured radio address, or nil when a random one should be used.
func (rc *RadioConfig) HardwareAddr() (net.HardwareAddr, error) {
	if rc.Address == "" {
		return nil, nil
	}
	addr, err := net.ParseMAC(rc.Address)
	if err != nil || len(addr) != 6 {
		return nil, errors.Errorf("invalid radio address: %s", rc.Address)
	}
	return addr, nil
}

// LogFileOptions returns the rotation options of the log file.
func (lc *LogConfig) LogFileOptions() logger.FileOptions {
	return logger.FileOptions{
		Filename:   lc.File,
		MaxSizeMB:  lc.MaxSizeMB,
		MaxBackups: lc.MaxBackups,
		MaxAgeDays: lc.MaxAgeDays,
		Compress:   lc.Compress,
	}
}
