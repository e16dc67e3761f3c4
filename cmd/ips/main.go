// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Command ips is the host-level intrusion prevention system: it loads a
// rule set and a config file, installs an nftables rule that queues IPv4
// traffic to userspace, and evaluates every packet against the rule set
// until a signal tells it to tear down and exit.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"grimm.is/ips/internal/adminapi"
	"grimm.is/ips/internal/clock"
	"grimm.is/ips/internal/config"
	ipserrors "grimm.is/ips/internal/errors"
	"grimm.is/ips/internal/firewall"
	"grimm.is/ips/internal/logging"
	"grimm.is/ips/internal/metrics"
	"grimm.is/ips/internal/netq"
	"grimm.is/ips/internal/ratelimit"
	"grimm.is/ips/internal/rules"
	"grimm.is/ips/internal/verdict"
)

func main() {
	configPath := flag.String("config", "./ips.hcl", "Path to HCL config file")
	verbose := flag.Bool("verbose", false, "Verbose mode")
	queueNum := flag.Int("queue-num", -1, "NFQUEUE number to bind (overrides the config file)")
	flag.Parse()

	logger := logging.New(logging.Config{Output: os.Stderr, Level: levelFor(*verbose)})
	logging.SetDefault(logger)

	if err := run(*configPath, *verbose, *queueNum, logger); err != nil {
		logger.Error("exiting", "error", err)
		os.Exit(1)
	}
}

func levelFor(verbose bool) logging.Level {
	if verbose {
		return logging.LevelDebug
	}
	return logging.LevelInfo
}

func run(configPath string, verbose bool, queueNum int, logger *logging.Logger) error {
	logger.Info("loading config", "path", configPath)
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if verbose {
		cfg.Verbose = true
		logger = logging.New(logging.Config{Output: os.Stderr, Level: logging.LevelDebug})
		logging.SetDefault(logger)
	}
	if queueNum >= 0 {
		cfg.QueueNum = uint16(queueNum)
	}

	logger.Info("loading rules", "path", cfg.RulesPath)
	ruleSet, err := rules.Load(cfg.RulesPath, logger)
	if err != nil {
		if ipserrors.GetKind(err) != ipserrors.KindNotFound {
			return fmt.Errorf("load rules: %w", err)
		}
		logger.Warn("rules file not found, starting with an empty rule set", "error", err)
	}
	if cfg.Verbose {
		rules.DumpVerbose(logger, ruleSet)
	}

	limiter := ratelimit.New(clock.Real{})
	reg := prometheus.NewRegistry()
	m := metrics.New()
	if err := m.Register(reg); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}
	m.RulesLoaded.Set(float64(len(ruleSet)))

	fw, err := firewall.New(logger)
	if err != nil {
		return fmt.Errorf("connect to nftables: %w", err)
	}
	if err := fw.Install(cfg.QueueNum); err != nil {
		return fmt.Errorf("install nfqueue rule: %w", err)
	}
	defer func() {
		if err := fw.Teardown(); err != nil {
			logger.Error("nfqueue rule teardown failed", "error", err)
		}
	}()

	admin := adminapi.New(cfg.AdminListenAddr, adminapi.DefaultServerConfig(), logger, reg, m, limiter,
		func() []rules.Rule { return ruleSet })
	admin.Start()
	defer func() {
		if err := admin.Stop(); err != nil {
			logger.Error("admin API shutdown failed", "error", err)
		}
	}()

	decide := func(pkt verdict.PacketView) bool {
		accept := verdict.Decide(pkt, ruleSet, limiter, logger)
		m.ObserveVerdict(accept)
		return accept
	}

	reader := netq.NewReader(cfg.QueueNum, logger, decide)
	if err := reader.Start(); err != nil {
		return fmt.Errorf("start nfqueue reader: %w", err)
	}
	defer reader.Stop()

	logger.Info("IPS started successfully", "queue_num", cfg.QueueNum, "admin_addr", cfg.AdminListenAddr)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	return nil
}
