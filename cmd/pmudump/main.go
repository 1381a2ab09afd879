// pmudump 读取一个 C37.118 配置帧（文件或在线设备），以 YAML 输出配置摘要，
// 可选继续读取若干数据帧一并输出
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/taoyao-code/pmu-gateway/internal/api"
	"github.com/taoyao-code/pmu-gateway/internal/logging"
	"github.com/taoyao-code/pmu-gateway/internal/protocol/c37118"
	"github.com/taoyao-code/pmu-gateway/internal/session"
	"github.com/taoyao-code/pmu-gateway/internal/transport"
)

type options struct {
	file    string
	network string
	addr    string
	idcode  uint
	version int
	crc     bool
	scale   bool
	trace   bool
	samples int
	timeout time.Duration
}

// dump 输出文档
type dump struct {
	Config  api.ConfigView   `yaml:"config"`
	Samples []api.SampleView `yaml:"samples,omitempty"`
}

func main() {
	var o options
	flag.StringVar(&o.file, "file", "", "配置帧文件（原始字节或 PMUC 持久化信封）")
	flag.StringVar(&o.network, "network", "tcp", "tcp|udp|unix|unixgram")
	flag.StringVar(&o.addr, "addr", "", "PMU 地址，例如 10.0.0.5:4712")
	flag.UintVar(&o.idcode, "idcode", 1, "PMU IDCODE")
	flag.IntVar(&o.version, "cfg", 2, "请求的配置帧版本 1|2")
	flag.BoolVar(&o.crc, "crc", true, "校验 CHK")
	flag.BoolVar(&o.scale, "scale", false, "按 PHUNIT/ANUNIT 换算")
	flag.BoolVar(&o.trace, "trace", false, "输出逐字段解码日志（stderr）")
	flag.IntVar(&o.samples, "samples", 0, "在线模式下额外读取的数据帧数")
	flag.DurationVar(&o.timeout, "timeout", 15*time.Second, "在线模式总超时")
	flag.Parse()

	if err := run(o, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "pmudump:", err)
		os.Exit(1)
	}
}

func run(o options, w io.Writer) error {
	parse := c37118.ParseOptions{VerifyCRC: o.crc, ApplyScaling: o.scale}
	log := zap.NewNop()
	if o.trace {
		l, err := zap.NewDevelopment()
		if err != nil {
			return err
		}
		log = l
		parse.Trace = logging.CodecTrace(log)
	}

	var d *dump
	var err error
	switch {
	case o.file != "":
		d, err = fromFile(o.file, parse)
	case o.addr != "":
		d, err = fromDevice(o, log)
	default:
		return errors.New("one of -file or -addr is required")
	}
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(d)
}

func fromFile(path string, parse c37118.ParseOptions) (*dump, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg *c37118.ConfigFrame
	if c37118.IsPersisted(b) {
		cfg, err = c37118.UnmarshalConfig(b)
	} else {
		cfg, err = c37118.ParseConfigFrame(b, parse)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &dump{Config: api.NewConfigView(cfg)}, nil
}

// sampleSink 收集前 n 个数据帧
type sampleSink struct {
	n    int
	got  []*c37118.DataFrame
	full chan struct{}
}

func (s *sampleSink) OnData(df *c37118.DataFrame) {
	if len(s.got) >= s.n {
		return
	}
	s.got = append(s.got, df)
	if len(s.got) == s.n {
		close(s.full)
	}
}

func fromDevice(o options, log *zap.Logger) (*dump, error) {
	ctx, cancel := context.WithTimeout(context.Background(), o.timeout)
	defer cancel()

	sink := &sampleSink{n: o.samples, full: make(chan struct{})}
	s := session.New(session.Options{
		IDCode:        uint16(o.idcode),
		Network:       o.network,
		Addr:          o.addr,
		Transport:     transport.Options{DialTimeout: 5 * time.Second, ReadTimeout: 5 * time.Second, WriteTimeout: 5 * time.Second},
		ConfigVersion: o.version,
		VerifyCRC:     o.crc,
		ApplyScaling:  o.scale,
		Trace:         o.trace,
	}, session.Deps{Logger: log, Sinks: []session.Sink{sink}})

	if err := s.Connect(ctx); err != nil {
		return nil, err
	}
	defer s.Close()
	cfg, err := s.FetchConfig(ctx)
	if err != nil {
		return nil, err
	}
	d := &dump{Config: api.NewConfigView(cfg)}
	if o.samples <= 0 {
		return d, nil
	}

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	go func() {
		select {
		case <-sink.full:
			stop()
		case <-runCtx.Done():
		}
	}()
	if err := s.Stream(runCtx); err != nil {
		return nil, err
	}
	for _, df := range sink.got {
		d.Samples = append(d.Samples, api.NewSampleView(df))
	}
	return d, nil
}
