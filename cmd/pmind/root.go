package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/pmind-ai/pmind"
	bt "github.com/pmind-ai/pmind/bubbletea"
	pmindjson "github.com/pmind-ai/pmind/json"
	"github.com/pmind-ai/pmind/server"
	"github.com/pmind-ai/pmind/telemetry"
	pmindtoml "github.com/pmind-ai/pmind/toml"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

// errNoPrompt is returned by ask when neither an argument nor stdin
// provides a prompt.
var errNoPrompt = errors.New("no prompt given")

func newRootCmd(env environ) *cobra.Command {
	f := &flags{}

	root := &cobra.Command{
		Use:           "pmind",
		Short:         "Chat with the pmind assistant",
		Version:       version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd, env, f)
			if err != nil {
				return err
			}
			return runTUI(cmd.Context(), cfg, env, f.direct)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&f.config, "config", "", "config file (default ~/.pmind/config.toml)")
	pf.StringVar(&f.logFile, "log-file", "", "log file (default ~/.pmind/logs/pmind.log)")
	pf.StringVar(&f.server, "server", "", "chat server URL")
	pf.StringVar(&f.mode, "mode", "", "response style: creative or precise")
	pf.StringVar(&f.backend, "backend", "", "model API for serve and --direct: gemini or anthropic")
	pf.StringVar(&f.model, "model", "", "model for serve and --direct (default depends on the backend)")
	pf.BoolVar(&f.direct, "direct", false, "talk to the model API in-process instead of the chat server")
	pf.DurationVar(&f.timeout, "timeout", 0, "per-reply timeout (0 disables)")

	root.AddCommand(newAskCmd(env, f), newServeCmd(env, f), newConfigCmd(env, f))
	return root
}

func newAskCmd(env environ, f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "ask [prompt]",
		Short: "Ask one question and print the reply",
		Long: `Ask one question and print the reply as it streams.

Without a prompt argument the prompt is read from stdin:
  echo "What is Go?" | pmind ask`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd, env, f)
			if err != nil {
				return err
			}
			prompt := strings.Join(args, " ")
			if prompt == "" {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
				prompt = string(data)
			}
			if strings.TrimSpace(prompt) == "" {
				return errNoPrompt
			}
			return runAsk(cmd.Context(), cfg, f.direct, prompt, cmd.OutOrStdout())
		},
	}
}

func newServeCmd(env environ, f *flags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the chat server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd, env, f)
			if err != nil {
				return err
			}
			logger := slog.New(slog.NewJSONHandler(cmd.ErrOrStderr(), nil))
			return runServe(cmd.Context(), cfg, logger)
		},
	}
	cmd.Flags().StringVar(&f.listen, "listen", "", "listen address (default :10000)")
	cmd.Flags().IntVar(&f.rateLimit, "rate-limit", 0, "chat requests per minute per client (0 disables)")
	return cmd
}

func newConfigCmd(env environ, f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as TOML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd, env, f)
			if err != nil {
				return err
			}
			return pmindtoml.Encode(cmd.OutOrStdout(), cfg)
		},
	}
}

func runTUI(ctx context.Context, cfg pmind.Config, env environ, direct bool) error {
	logger, closer, err := telemetry.NewLogger(cfg.LogFile, slog.LevelInfo)
	if err != nil {
		return err
	}
	defer closer.Close()
	slog.SetDefault(logger)

	provider, err := resolveProvider(ctx, cfg, direct)
	if err != nil {
		return err
	}
	opts := []pmind.SessionOption{
		pmind.WithLogger(logger),
		pmind.WithThemeStore(pmindjson.NewPrefsStore(filepath.Join(env.dataDir(), "prefs.json"))),
		pmind.WithSystemTheme(systemTheme),
		pmind.WithTimeout(cfg.RequestTimeout),
		pmind.WithMode(cfg.Mode),
	}
	identity := resolveIdentity(cfg, env)
	if identity != nil {
		opts = append(opts, pmind.WithIdentityProvider(identity))
	}
	session := pmind.NewSession(provider, opts...)
	defer session.Close()

	logger.Info("starting", slog.String("version", version), slog.String("server", cfg.ServerURL), slog.Bool("direct", direct))
	if err := bt.Run(ctx, bt.New(session, bt.WithSignInRequired(identity != nil))); err != nil {
		return fmt.Errorf("TUI: %w", err)
	}
	return nil
}

// runAsk sends prompt and writes the reply to out as it grows.
func runAsk(ctx context.Context, cfg pmind.Config, direct bool, prompt string, out io.Writer) error {
	logger, closer, err := telemetry.NewLogger(cfg.LogFile, slog.LevelInfo)
	if err != nil {
		return err
	}
	defer closer.Close()

	provider, err := resolveProvider(ctx, cfg, direct)
	if err != nil {
		return err
	}
	session := pmind.NewSession(provider,
		pmind.WithLogger(logger),
		pmind.WithTimeout(cfg.RequestTimeout),
		pmind.WithMode(cfg.Mode),
	)
	defer session.Close()

	var printed string
	unsubscribe := session.Subscribe(func(s pmind.Snapshot) {
		last, ok := s.Messages.Last()
		if !ok || last.Role != pmind.RoleAssistant || !strings.HasPrefix(last.Content, printed) {
			return
		}
		fmt.Fprint(out, last.Content[len(printed):])
		printed = last.Content
	})
	defer unsubscribe()

	if err := session.Send(ctx, prompt); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if snap := session.Snapshot(); snap.Err != nil {
		if printed != "" {
			fmt.Fprintln(out)
		}
		return fmt.Errorf("no reply: %w", snap.Err)
	}
	fmt.Fprintln(out)
	return nil
}

func runServe(ctx context.Context, cfg pmind.Config, logger *slog.Logger) error {
	provider, err := backendProvider(ctx, cfg)
	if err != nil {
		return err
	}
	tel, err := telemetry.Setup(ctx, cfg.TelemetryDir, "pmind", version)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown", slog.Any("error", err))
		}
	}()

	srv := server.New(provider,
		server.WithLogger(logger),
		server.WithTracer(tel.Tracer),
		server.WithMeter(tel.Meter),
		server.WithRateLimit(cfg.RateLimit),
	)
	logger.Info("serving", slog.String("backend", string(cfg.Backend)), slog.String("model", provider.Model()), slog.Int("rate_limit", cfg.RateLimit))
	return serve(ctx, srv, cfg.Listen, logger)
}

// serve runs srv until ctx is cancelled, then shuts it down gracefully.
func serve(ctx context.Context, srv *server.Server, addr string, logger *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(addr) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
}
