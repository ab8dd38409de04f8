package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	mbus "github.com/hootrhino/gombus"
	"github.com/hootrhino/gombus/internal/config"
	"github.com/hootrhino/gombus/internal/logging"
)

var (
	configPath string
	logLevel   string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Poll the configured meters",
	Example: `  # Poll with ./mbus.yaml or ./configs/mbus.yaml
  mbus-poll run

  # Explicit config file, debug logging
  mbus-poll run --config /etc/mbus/mbus.yaml --log-level debug

  # Override the link from the environment
  MBUS_LINK_KIND=tcp MBUS_LINK_ADDRESS=10.0.0.5:10001 mbus-poll run`,
	RunE: runPoller,
}

var decodeCmd = &cobra.Command{
	Use:   "decode <hex>",
	Short: "Decode one frame given as hex",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := parseHex(strings.Join(args, " "))
		if err != nil {
			return err
		}
		return decodeFrame(cmd.OutOrStdout(), raw)
	},
}

func init() {
	runCmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to config file (yaml, toml or json)")
	runCmd.Flags().StringVar(&logLevel, "log-level", "", "Override logging.level (debug, info, warn, error, none)")
}

func runPoller(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	logger, err := logging.InitLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	adapter, err := openLink(cfg.Link)
	if err != nil {
		return err
	}
	defer adapter.Close()
	logger.Info("link open", zap.String("kind", cfg.Link.Kind), zap.String("address", cfg.Link.Address))

	reg := prometheus.NewRegistry()
	handler := mbus.NewProtocolHandler(adapter, mbus.HandlerConfig{
		RxTimeout:      cfg.Scheduler.RxTimeout,
		MaxQueueDepth:  cfg.Scheduler.MaxQueueDepth,
		MaxSendRetries: cfg.Scheduler.MaxSendRetries,
		MaxRxBuffer:    cfg.Scheduler.MaxRxBuffer,
	}, mbus.WithLogger(logger.Named("scheduler")), mbus.WithMetrics(mbus.NewMetrics(reg)))

	meters, err := loadMeters(cfg.Meters)
	if err != nil {
		return err
	}
	poller := mbus.NewPoller(handler, mbus.PollerConfig{
		TickInterval:    cfg.Scheduler.TickInterval,
		ReadoutInterval: cfg.Meters.ReadoutInterval,
		ResetDelay:      cfg.Meters.ResetDelay,
		Meters:          meters,
	}, logger.Named("poller"))
	poller.SetOnReadout(func(r mbus.Readout) {
		logReadout(logger, r)
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Metrics.Enable {
		srv := serveMetrics(cfg.Metrics, reg, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	err = poller.Run(ctx)
	if errors.Is(err, context.Canceled) {
		logger.Info("shutting down")
		return nil
	}
	return err
}

func loadMeters(cfg config.MetersConfig) ([]mbus.Meter, error) {
	meters := make([]mbus.Meter, 0, len(cfg.Devices))
	for _, d := range cfg.Devices {
		meters = append(meters, mbus.Meter{
			Name:         d.Name,
			Address:      byte(d.Address),
			ID:           d.ID,
			Manufacturer: strings.ToUpper(d.Manufacturer),
		})
	}
	if cfg.CSVFile != "" {
		f, err := os.Open(cfg.CSVFile)
		if err != nil {
			return nil, fmt.Errorf("open meter list: %w", err)
		}
		defer f.Close()
		fromCSV, err := mbus.NewCSVMeterParser().ParseCSV(f)
		if err != nil {
			return nil, fmt.Errorf("meter list %s: %w", cfg.CSVFile, err)
		}
		meters = append(meters, fromCSV...)
	}
	for _, m := range meters {
		if err := mbus.ValidateMeter(m); err != nil {
			return nil, fmt.Errorf("meter %q: %w", m.Name, err)
		}
	}
	return meters, nil
}

func openLink(cfg config.LinkConfig) (*mbus.StreamAdapter, error) {
	switch strings.ToLower(cfg.Kind) {
	case "tcp":
		return mbus.DialTCP(cfg.Address, cfg.DialTimeout)
	default:
		return mbus.OpenSerial(mbus.SerialConfig{
			Address:      cfg.Address,
			BaudRate:     cfg.BaudRate,
			DataBits:     cfg.DataBits,
			StopBits:     cfg.StopBits,
			Parity:       strings.ToUpper(cfg.Parity),
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		})
	}
}

func serveMetrics(cfg config.MetricsConfig, reg *prometheus.Registry, logger *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: cfg.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", zap.Error(err))
		}
	}()
	logger.Info("metrics listening", zap.String("addr", cfg.Addr), zap.String("path", cfg.Path))
	return srv
}

func logReadout(logger *zap.Logger, r mbus.Readout) {
	h := r.Data.Header
	logger.Info("readout",
		zap.String("meter", r.Meter.Name),
		zap.Uint64("id", h.IdentificationNumber),
		zap.String("manufacturer", h.Manufacturer),
		zap.String("medium", mbus.MediumName(h.Medium)),
	)
	for i, rec := range r.Data.Records {
		if rec.IsSpecial() {
			continue
		}
		q := rec.Quantity()
		value, err := rec.Value()
		if err != nil {
			logger.Warn("record not decoded", zap.Int("index", i), zap.Error(err))
			continue
		}
		logger.Info("record",
			zap.String("meter", r.Meter.Name),
			zap.Int("index", i),
			zap.String("quantity", q.Name),
			zap.String("unit", q.Unit),
			zap.String("function", rec.Function()),
			zap.Uint64("storage", rec.StorageNumber()),
			zap.String("value", formatValue(value)),
		)
	}
}

func parseHex(s string) ([]byte, error) {
	s = strings.NewReplacer(" ", "", ":", "", "\n", "", "\t", "", "0x", "", "0X", "").Replace(s)
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex input: %w", err)
	}
	return raw, nil
}

func decodeFrame(w io.Writer, raw []byte) error {
	frame, n, err := mbus.ParseResponse(raw)
	if err != nil {
		return fmt.Errorf("parse frame: %w", err)
	}
	if n != len(raw) {
		fmt.Fprintf(w, "warning: %d trailing bytes ignored\n", len(raw)-n)
	}
	fmt.Fprintf(w, "frame: %s\n", frame)
	if !mbus.IsUserData(frame) {
		return nil
	}

	data, err := mbus.ParseVariableData(frame)
	if data == nil {
		return err
	}
	h := data.Header
	fmt.Fprintf(w, "id: %08d  manufacturer: %s  version: %d  medium: %s\n",
		h.IdentificationNumber, h.Manufacturer, h.Version, mbus.MediumName(h.Medium))
	fmt.Fprintf(w, "access: %d  status: 0x%02X\n", h.AccessNumber, h.Status)
	for i, rec := range data.Records {
		if rec.IsSpecial() {
			fmt.Fprintf(w, "%2d  special DIF 0x%02X  % X\n", i, rec.DIF, rec.Data)
			continue
		}
		q := rec.Quantity()
		value, verr := rec.Value()
		if verr != nil {
			fmt.Fprintf(w, "%2d  %-24s error: %v\n", i, q.Name, verr)
			continue
		}
		fmt.Fprintf(w, "%2d  %-24s %-14s storage %d  %s %s\n",
			i, q.Name, rec.Function(), rec.StorageNumber(), formatValue(value), q.Unit)
	}
	if data.MoreRecordsFollow {
		fmt.Fprintln(w, "more records follow")
	}
	if data.Skipped > 0 {
		fmt.Fprintf(w, "%d records skipped\n", data.Skipped)
	}
	return err
}

func formatValue(v mbus.DecodedValue) string {
	switch v.Type {
	case "none":
		return "-"
	case "int", "real", "bcd":
		return fmt.Sprintf("%g", v.Float64)
	case "date":
		return v.AsType.(time.Time).Format(time.DateOnly)
	case "datetime":
		return v.AsType.(time.Time).Format("2006-01-02 15:04")
	case "bytes":
		return fmt.Sprintf("% X", v.Raw)
	default:
		return fmt.Sprint(v.AsType)
	}
}
