// dhcpd is a DHCPv4 server: it listens on the configured network interfaces
// and assigns IPv4 addresses out of per-subnet pools.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/netip"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/golibs/timeutil"
	"github.com/google/gopacket/layers"
	"github.com/leaselab/dhcpd/internal/dhcpd"
	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/yaml.v3"
)

func main() {
	confPath := flag.String("c", "dhcpd.yaml", "path to the configuration file")
	verbose := flag.Bool("v", false, "enable debug logging")
	flag.Parse()

	lvl := slog.LevelInfo
	if *verbose {
		lvl = slog.LevelDebug
	}

	logger := slogutil.New(&slogutil.Config{
		Format:       slogutil.FormatDefault,
		Level:        lvl,
		AddTimestamp: true,
	})

	ctx := context.Background()

	err := run(ctx, logger, *confPath)
	if err != nil {
		logger.ErrorContext(ctx, "fatal", slogutil.KeyError, err)

		os.Exit(1)
	}
}

// run loads the configuration and serves until a termination signal arrives.
func run(ctx context.Context, logger *slog.Logger, confPath string) (err error) {
	conf, err := loadConfig(confPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	conf.Logger = logger
	conf.DeviceManager = dhcpd.PacketDeviceManager{}
	conf.Clock = timeutil.SystemClock{}
	conf.PromRegistry = prometheus.DefaultRegisterer

	srv, err := dhcpd.New(ctx, conf)
	if err != nil {
		// Don't wrap the error since it's informative enough as is.
		return err
	}

	err = srv.Start(ctx)
	if err != nil {
		return fmt.Errorf("starting: %w", err)
	}

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-sigCtx.Done()

	logger.InfoContext(ctx, "shutting down")

	return srv.Shutdown(ctx)
}

// fileConf is the on-disk YAML form of the server configuration.
type fileConf struct {
	Hostname         string            `yaml:"hostname"`
	DefaultLeaseTime timeutil.Duration `yaml:"default_lease_time"`
	MinLeaseTime     timeutil.Duration `yaml:"min_lease_time"`
	MaxLeaseTime     timeutil.Duration `yaml:"max_lease_time"`
	ICMPTimeout      timeutil.Duration `yaml:"icmp_timeout"`
	Subnets          []*fileSubnetConf `yaml:"subnets"`
}

// fileSubnetConf is the on-disk YAML form of a single subnet.
type fileSubnetConf struct {
	Interface  string       `yaml:"interface"`
	Subnet     netip.Prefix `yaml:"subnet"`
	ServerIP   netip.Addr   `yaml:"server_ip"`
	RangeStart netip.Addr   `yaml:"range_start"`
	RangeEnd   netip.Addr   `yaml:"range_end"`
	Options    []string     `yaml:"options"`
}

// loadConfig reads and converts the configuration file.
func loadConfig(path string) (conf *dhcpd.Config, err error) {
	defer func() { err = errors.Annotate(err, "config %q: %w", path) }()

	data, err := os.ReadFile(path)
	if err != nil {
		// Don't wrap the error since there is already an annotation deferred.
		return nil, err
	}

	fc := &fileConf{}
	err = yaml.Unmarshal(data, fc)
	if err != nil {
		return nil, fmt.Errorf("parsing yaml: %w", err)
	}

	conf = &dhcpd.Config{
		Hostname:         fc.Hostname,
		DefaultLeaseTime: time.Duration(fc.DefaultLeaseTime),
		MinLeaseTime:     time.Duration(fc.MinLeaseTime),
		MaxLeaseTime:     time.Duration(fc.MaxLeaseTime),
		ICMPTimeout:      time.Duration(fc.ICMPTimeout),
	}

	for i, fs := range fc.Subnets {
		var opts layers.DHCPOptions
		for _, s := range fs.Options {
			var opt layers.DHCPOption
			opt, err = dhcpd.ParseOption(s)
			if err != nil {
				return nil, fmt.Errorf("subnet at index %d: %w", i, err)
			}

			opts = append(opts, opt)
		}

		conf.Subnets = append(conf.Subnets, &dhcpd.SubnetConfig{
			InterfaceName: fs.Interface,
			Subnet:        fs.Subnet,
			ServerIP:      fs.ServerIP,
			RangeStart:    fs.RangeStart,
			RangeEnd:      fs.RangeEnd,
			Options:       opts,
		})
	}

	return conf, nil
}
