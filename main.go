// SPDX-License-Identifier: GPL-2.0-only

package main

import (
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/efficientgo/core/errors"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/viper"

	"github.com/tamias/usbbridge/bridge"
	"github.com/tamias/usbbridge/libusb"
	"github.com/tamias/usbbridge/loopback"
)

const (
	logLevelAll   = "all"
	logLevelDebug = "debug"
	logLevelInfo  = "info"
	logLevelWarn  = "warn"
	logLevelError = "error"
	logLevelNone  = "none"
)

var (
	availableLogLevels = strings.Join([]string{
		logLevelAll,
		logLevelDebug,
		logLevelInfo,
		logLevelWarn,
		logLevelError,
		logLevelNone,
	}, ", ")
)

// Main is the principal function for the binary, wrapped only by `main` for convenience.
func Main() error {
	if err := initConfig(); err != nil {
		return err
	}

	deviceSpecs, err := getConfiguredDevices()
	if err != nil {
		return err
	}
	if len(deviceSpecs) == 0 {
		return fmt.Errorf("at least one device must be specified")
	}

	logger := log.NewJSONLogger(log.NewSyncWriter(os.Stdout))
	logLevel := viper.GetString("log-level")
	switch logLevel {
	case logLevelAll:
		logger = level.NewFilter(logger, level.AllowAll())
	case logLevelDebug:
		logger = level.NewFilter(logger, level.AllowDebug())
	case logLevelInfo:
		logger = level.NewFilter(logger, level.AllowInfo())
	case logLevelWarn:
		logger = level.NewFilter(logger, level.AllowWarn())
	case logLevelError:
		logger = level.NewFilter(logger, level.AllowError())
	case logLevelNone:
		logger = level.NewFilter(logger, level.AllowNone())
	default:
		return fmt.Errorf("log level %v unknown; possible values are: %s", logLevel, availableLogLevels)
	}
	logger = log.With(logger, "ts", log.DefaultTimestampUTC)
	logger = log.With(logger, "caller", log.DefaultCaller)

	r := prometheus.NewRegistry()
	r.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	channel := loopback.New(viper.GetDuration("latency"))
	for _, spec := range deviceSpecs {
		if err := channel.AddDevice(spec); err != nil {
			return errors.Wrapf(err, "failed to register simulated device %d", spec.ID)
		}
	}
	b := bridge.New(channel, logger, r)

	var g run.Group
	{
		// Run the HTTP server.
		mux := http.NewServeMux()
		mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
		mux.Handle("/metrics", promhttp.HandlerFor(r, promhttp.HandlerOpts{}))
		listen := viper.GetString("listen")
		l, err := net.Listen("tcp", listen)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %v", listen, err)
		}

		g.Add(func() error {
			if err := http.Serve(l, mux); err != nil && err != http.ErrServerClosed {
				return fmt.Errorf("server exited unexpectedly: %v", err)
			}
			return nil
		}, func(error) {
			_ = l.Close()
		})
	}

	{
		// Exit gracefully on SIGINT and SIGTERM.
		term := make(chan os.Signal, 1)
		signal.Notify(term, syscall.SIGINT, syscall.SIGTERM)
		cancel := make(chan struct{})
		g.Add(func() error {
			for {
				select {
				case <-term:
					_ = logger.Log("msg", "caught interrupt; gracefully cleaning up; see you next time!")
					return nil
				case <-cancel:
					return nil
				}
			}
		}, func(error) {
			close(cancel)
		})
	}

	{
		// Exercise the simulated bus until interrupted.
		cancel := make(chan struct{})
		g.Add(func() error {
			_ = logger.Log("msg", "starting the USB bridge simulation")
			return runSimulation(b, logger, cancel)
		}, func(error) {
			close(cancel)
		})
	}

	return g.Run()
}

// runSimulation enumerates the simulated bus, dumps the descriptor tree of
// every device and then ping-pongs a payload through the first device's bulk
// endpoints once a second.
func runSimulation(b *bridge.Bridge, logger log.Logger, cancel <-chan struct{}) error {
	devices, err := b.GetDeviceList(nil)
	if err != nil {
		return errors.Wrap(err, "device enumeration failed")
	}
	defer b.FreeDeviceList(devices, true)

	for _, dev := range devices {
		desc, err := b.GetDeviceDescriptor(dev)
		if err != nil {
			return errors.Wrap(err, "device descriptor lookup failed")
		}
		_ = logger.Log(
			"msg", "enumerated device",
			"bus", b.GetBusNumber(dev),
			"address", b.GetDeviceAddress(dev),
			"vendor", fmt.Sprintf("%04x", desc.VendorID),
			"product", fmt.Sprintf("%04x", desc.ProductID),
		)
		config, err := b.GetActiveConfigDescriptor(dev)
		if err != nil {
			_ = level.Warn(logger).Log("msg", "device has no usable configuration", "address", b.GetDeviceAddress(dev), "err", err)
			continue
		}
		for _, iface := range config.Interfaces {
			for _, alt := range iface.AltSettings {
				_ = logger.Log(
					"msg", "interface",
					"number", alt.InterfaceNumber,
					"class", alt.InterfaceClass,
					"endpoints", alt.NumEndpoints,
				)
			}
		}
		b.FreeConfigDescriptor(config)
	}

	handle, err := b.Open(devices[0])
	if err != nil {
		return errors.Wrap(err, "failed to open first simulated device")
	}
	defer b.Close(handle)

	if err := b.ClaimInterface(handle, 0); err != nil {
		return errors.Wrap(err, "failed to claim interface 0")
	}
	defer func() { _ = b.ReleaseInterface(handle, 0) }()

	payload := []byte("usbbridge loopback ping")
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-cancel:
			return nil
		case <-ticker.C:
		}

		if _, err := b.BulkTransfer(handle, 0x02, payload, time.Second); err != nil {
			_ = level.Warn(logger).Log("msg", "bulk write failed", "err", err)
			continue
		}

		t := b.AllocTransfer(0)
		t.DevHandle = handle
		t.Type = libusb.TransferTypeBulk
		t.Endpoint = 0x82
		t.Buffer = make([]byte, len(payload))
		t.Timeout = time.Second
		t.Flags = libusb.TransferFreeTransfer
		t.Callback = func(t *bridge.Transfer) {
			_ = logger.Log("msg", "loopback completion", "status", t.Status.String(), "bytes", t.ActualLength)
		}
		if err := b.SubmitTransfer(t); err != nil {
			_ = level.Warn(logger).Log("msg", "bulk read submission failed", "err", err)
			continue
		}
		if err := b.HandleEventsTimeout(nil, 2*time.Second); err != nil {
			_ = level.Warn(logger).Log("msg", "event handling failed", "err", err)
		}
	}
}

func main() {
	if err := Main(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Execution failed: %v\n", err)
		os.Exit(1)
	}
}
