package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/d1nch8g/voiceorder/audio"
	"github.com/d1nch8g/voiceorder/config"
	"github.com/d1nch8g/voiceorder/engine"
	"github.com/d1nch8g/voiceorder/observe"
	"github.com/d1nch8g/voiceorder/store"
)

var version = "dev"

var (
	configPath string
	envFile    string
	inputFile  string
)

var rootCmd = &cobra.Command{
	Use:   "voiceorder",
	Short: "Talk or type to the café ordering assistant",
	Long: `Talk or type to the café ordering assistant.

Streams microphone audio to the backend, plays the spoken replies and
shows the menu, cart and order confirmation as they change.

Commands read from stdin:
  <text>        send a text message
  /talk         start or stop recording
  /menu         reload the menu
  /order <id>   show an order
  /ok           dismiss the thank-you card
  /quit         exit

Examples:
  voiceorder
  voiceorder --config voiceorder.yaml
  voiceorder --input sample.mp3`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context())
	},
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "voiceorder.yaml", "YAML config file (missing file uses defaults)")
	rootCmd.Flags().StringVar(&envFile, "env", ".env", "dotenv file with VOICEORDER_* overrides")
	rootCmd.Flags().StringVarP(&inputFile, "input", "i", "", "stream an MP3 file instead of the microphone")
	rootCmd.Version = version
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.LoadConfig(configPath, envFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := observe.NewLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	metrics := observe.Discard()
	g, ctx := errgroup.WithContext(ctx)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if cfg.MetricsAddr != "" {
		shutdown, err := observe.InitProvider(version)
		if err != nil {
			return fmt.Errorf("failed to init metrics: %w", err)
		}
		defer shutdown(context.Background())
		metrics = observe.Default()
		g.Go(func() error { return observe.Serve(ctx, cfg.MetricsAddr) })
	}

	st := store.New()
	renderer := store.NewRenderer()
	unsubscribe := st.Subscribe(func(s store.Snapshot) {
		fmt.Fprintln(os.Stdout, renderer.Render(s))
	})
	defer unsubscribe()

	deps := engine.Deps{Store: st, Metrics: metrics}
	if inputFile != "" {
		capture := audio.Config{
			SampleRate:      cfg.Capture.SampleRate,
			FramesPerBuffer: cfg.Capture.FramesPerBuffer,
		}
		deps.Streamer = func() audio.AudioStreamer {
			return audio.NewFileStreamer(inputFile, capture)
		}
	}
	eng := engine.NewEngine(cfg, deps)

	g.Go(func() error { return eng.Start(ctx) })
	g.Go(func() error {
		c := newConsole(eng, os.Stdout)
		c.run(ctx, os.Stdin)
		cancel()
		return nil
	})

	if err := g.Wait(); err != nil {
		slog.Error("voiceorder stopped with error", "err", err)
		return err
	}
	return nil
}
