package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/savoirfairelinux/confcore/pkg/config"
	"github.com/savoirfairelinux/confcore/pkg/manager"
	"github.com/savoirfairelinux/confcore/pkg/profiling"
	"github.com/savoirfairelinux/confcore/pkg/telemetry"
)

func main() {
	var (
		configFilePath = flag.String("config", "config.yaml", "configuration file path")
		cpuProfile     = flag.String("cpuProfile", "", "write CPU profile to `file`")
		memProfile     = flag.String("memProfile", "", "write memory profile to `file`")
	)
	flag.Parse()

	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, ForceColors: true})

	deferredFunctions := []func(){}
	if *cpuProfile != "" {
		deferredFunctions = append(deferredFunctions, profiling.InitCPUProfiling(cpuProfile))
	}
	if *memProfile != "" {
		deferredFunctions = append(deferredFunctions, profiling.InitMemoryProfiling(memProfile))
	}

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		for _, fn := range deferredFunctions {
			fn()
		}
		os.Exit(0)
	}()

	cfg, err := config.LoadConfig(*configFilePath)
	if err != nil {
		logrus.WithError(err).Fatal("could not load config")
		return
	}

	switch cfg.LogLevel {
	case "debug":
		logrus.SetLevel(logrus.DebugLevel)
	case "info":
		logrus.SetLevel(logrus.InfoLevel)
	case "warn":
		logrus.SetLevel(logrus.WarnLevel)
	case "error":
		logrus.SetLevel(logrus.ErrorLevel)
	case "fatal":
		logrus.SetLevel(logrus.FatalLevel)
	case "panic":
		logrus.SetLevel(logrus.PanicLevel)
	default:
		logrus.SetLevel(logrus.InfoLevel)
	}

	tp, err := telemetry.SetupTelemetry(cfg.Telemetry)
	if err != nil {
		logrus.WithError(err).Fatal("could not set up telemetry")
		return
	}
	defer tp.Shutdown(context.Background()) //nolint:errcheck

	mgr := manager.NewManager(cfg.Conference, logrus.NewEntry(logrus.StandardLogger()))

	logrus.WithField("active", mgr.Active()).Info("conference engine ready")

	// The engine itself only orchestrates conference state: admitting a call factory's
	// Call/VideoMixer/RingBufferPool/Recorder/Account implementations into a
	// manager.Manager and forwarding conf-order payloads to it is the surrounding
	// process's job, not this binary's — this entrypoint exists to load configuration,
	// wire logging/telemetry/profiling, and block until asked to exit.
	select {}
}
