// leeplate is an interactive translation and speech client.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/getsentry/sentry-go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/minios-linux/leeplate/audiocache"
	"github.com/minios-linux/leeplate/backendtest"
	"github.com/minios-linux/leeplate/client"
	"github.com/minios-linux/leeplate/config"
	"github.com/minios-linux/leeplate/i18n"
	"github.com/minios-linux/leeplate/langcache"
	"github.com/minios-linux/leeplate/langmeta"
	"github.com/minios-linux/leeplate/playback"
	"github.com/minios-linux/leeplate/session"
	"github.com/minios-linux/leeplate/storage"
	"github.com/minios-linux/leeplate/translation"
)

// Version information (set via -ldflags during build)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// ANSI colors
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[0;31m"
	colorGreen  = "\033[0;32m"
	colorYellow = "\033[1;33m"
	colorBlue   = "\033[0;34m"
	colorDim    = "\033[2m"
)

func logInfo(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorBlue+"[INFO]"+colorReset+" "+format+"\n", args...)
}

func logSuccess(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorGreen+"[OK]"+colorReset+" "+format+"\n", args...)
}

func logWarning(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorYellow+"[WARN]"+colorReset+" "+format+"\n", args...)
}

func logError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorRed+"[ERROR]"+colorReset+" "+format+"\n", args...)
}

// ---------------------------------------------------------------------------
// Global flags
// ---------------------------------------------------------------------------

type globalFlags struct {
	server     string
	configPath string
	verbose    bool
	ephemeral  bool
}

var flags globalFlags

// ---------------------------------------------------------------------------
// Root command
// ---------------------------------------------------------------------------

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "leeplate",
		Short: i18n.T("Translate text and listen to it from the terminal"),
		Long: `leeplate: interactive translation and speech client.

Talks to a leeplate translation backend: translates text as you type,
auto-detects the source language, and speaks or saves either side of
the translation when the speech backend supports the language.

Commands:
  translate     Translate text (interactive when no text is given)
  speak         Speak text in a language
  download      Save spoken text as an MP3 file
  languages     List languages supported for speech
  cache         Manage the cached speech-language list
  fake-backend  Serve a local fake backend for development

Configuration is read from .leeplate.yaml (or ~/.config/leeplate/config.yaml),
then LEEPLATE_* environment variables and .env, then flags.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global persistent flags, inherited by all subcommands
	root.PersistentFlags().StringVar(&flags.server, "server", "", "Backend base URL (overrides config and LEEPLATE_SERVER)")
	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "Config file (default: ./.leeplate.yaml)")
	root.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "Enable detailed logging")
	root.PersistentFlags().BoolVar(&flags.ephemeral, "ephemeral", false, "Do not read or write persistent state")

	root.AddCommand(
		newTranslateCmd(),
		newSpeakCmd(),
		newDownloadCmd(),
		newLanguagesCmd(),
		newCacheCmd(),
		newFakeBackendCmd(),
		newVersionCmd(),
	)

	return root
}

func main() {
	i18n.Init("")
	if err := newRootCmd().Execute(); err != nil {
		logError("%v", err)
		os.Exit(1)
	}
}

// ---------------------------------------------------------------------------
// Application wiring
// ---------------------------------------------------------------------------

// app holds the collaborators shared by the commands.
type app struct {
	cfg      config.Config
	log      *zap.Logger
	client   *client.Client
	store    storage.Store
	langs    *langcache.Cache
	audio    *audiocache.Cache
	playback *playback.Adapter
	sentry   bool
}

func newApp() (*app, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(wd, flags.configPath)
	if err != nil {
		return nil, err
	}
	if flags.server != "" {
		cfg.Server = flags.server
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	log, err := newLogger(flags.verbose)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	if cfg.Path != "" {
		log.Debug("loaded config", zap.String("path", cfg.Path))
	}

	c, err := client.New(client.Options{
		BaseURL:    cfg.Server,
		Proxy:      cfg.Proxy,
		Timeout:    cfg.Timeout,
		MaxRetries: cfg.MaxRetries,
		UserAgent:  "leeplate/" + version,
		Logger:     log,
	})
	if err != nil {
		return nil, err
	}

	var store storage.Store
	if flags.ephemeral {
		store = storage.NewMemory()
	} else {
		f, err := storage.OpenDefault()
		if err != nil {
			return nil, err
		}
		store = f
	}

	a := &app{
		cfg:    cfg,
		log:    log,
		client: c,
		store:  store,
		langs:  langcache.New(c, store, langcache.WithLogger(log)),
		audio:  audiocache.New(c, log),
	}
	a.playback = playback.New(a.audio, playback.MP3Decoder{ValidateOnly: true}, playback.ExecPlayer{Command: cfg.Player}, log)
	a.sentry = initSentry(cfg.SentryDSN, log)
	return a, nil
}

// close flushes buffered logs and pending error reports.
func (a *app) close() {
	_ = a.log.Sync()
	if a.sentry {
		sentry.Flush(2 * time.Second)
	}
}

// newLogger returns a development logger when verbose, else a console
// logger that only reports warnings and errors.
func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.DisableStacktrace = true
	cfg.Sampling = nil
	return cfg.Build()
}

func initSentry(dsn string, log *zap.Logger) bool {
	if dsn == "" {
		return false
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:         dsn,
		Release:     "leeplate@" + version,
		Environment: os.Getenv("LEEPLATE_ENV"),
	})
	if err != nil {
		log.Warn("sentry init failed", zap.Error(err))
		return false
	}
	log.Debug("sentry initialized")
	return true
}

// report sends err to Sentry when configured. Only failures worth a
// human look are reported: translation failures and undecodable audio.
func (a *app) report(err error, op string) {
	if !a.sentry || err == nil || errors.Is(err, context.Canceled) {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("op", op)
		scope.SetTag("server", a.cfg.Server)
		sentry.CaptureException(err)
	})
}

// signalContext returns a context cancelled on the first interrupt.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		select {
		case <-sigCh:
			logWarning(i18n.T("Interrupted"))
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}

// ---------------------------------------------------------------------------
// version (display version information)
// ---------------------------------------------------------------------------

func newVersionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  `Display version, commit hash, and build date.`,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("leeplate version %s\n", version)
			fmt.Printf("  commit:    %s\n", commit)
			fmt.Printf("  built:     %s\n", date)
			fmt.Printf("  ui:        %s (catalogs: %s)\n", i18n.Lang(), strings.Join(i18n.Available(), ", "))
		},
	}

	return cmd
}

// ---------------------------------------------------------------------------
// translate (one-shot or interactive)
// ---------------------------------------------------------------------------

func newTranslateCmd() *cobra.Command {
	var (
		from     string
		to       string
		debounce time.Duration
	)

	cmd := &cobra.Command{
		Use:   "translate [TEXT]",
		Short: "Translate text (interactive when no text is given)",
		Long: `Translate text between languages.

With TEXT, translates once and prints the result. Without TEXT, starts an
interactive session: every line you enter replaces the input text and is
translated after a short pause. Lines starting with ':' are commands:

  :from CODE            set the source language ("auto" to detect)
  :to CODE              set the target language
  :swap                 swap languages and continue from the translation
  :listen source|target speak one side of the last translation
  :save source|target [DIR]
                        save one side as MP3
  :state                show session state
  :quit                 leave

Examples:
  leeplate translate "Bonjour tout le monde" --to en
  leeplate translate --from de --to ru`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			if from == "" {
				from = a.cfg.SourceLang
			}
			if to == "" {
				to = a.cfg.TargetLang
			}
			from, to = langmeta.Canonical(from), langmeta.Canonical(to)
			if to == langmeta.AutoDetect {
				return errors.New(i18n.T("target language cannot be auto"))
			}
			if debounce <= 0 {
				debounce = a.cfg.Debounce
			}

			ctx, cancel := signalContext()
			defer cancel()

			if len(args) == 1 {
				return runTranslateOnce(ctx, a, translation.Request{Text: args[0], Source: from, Target: to})
			}

			logInfo(i18n.T("Interactive mode: %s → %s. Type text to translate, :help for commands."),
				langmeta.Label(from, ""), langmeta.Label(to, ""))
			r := newREPL(ctx, replDeps{
				Translator:  a.client,
				Caps:        a.langs,
				Audio:       a.playback,
				Log:         a.log,
				From:        from,
				To:          to,
				Delay:       debounce,
				DownloadDir: a.cfg.DownloadDir,
				Out:         os.Stdout,
				Report:      a.report,
			})
			return r.run(os.Stdin)
		},
	}

	cmd.Flags().StringVarP(&from, "from", "f", "", "Source language (default from config, \"auto\" to detect)")
	cmd.Flags().StringVarP(&to, "to", "t", "", "Target language (default from config)")
	cmd.Flags().DurationVar(&debounce, "debounce", 0, "Pause before an edit is translated (default from config)")

	return cmd
}

// onceView prints a one-shot translation.
type onceView struct {
	detected string
	controls session.AudioControls
}

func (v *onceView) ShowResult(res translation.Result) {
	fmt.Println(res.Text)
}

func (v *onceView) SetSourceLanguage(code string) {
	v.detected = code
}

func (v *onceView) SetAudioControls(c session.AudioControls) {
	v.controls = c
}

func runTranslateOnce(ctx context.Context, a *app, req translation.Request) error {
	if req.IsEmpty() {
		return errors.New(i18n.T("nothing to translate"))
	}
	view := &onceView{}
	ctrl := session.New(a.client, a.langs, view, a.log)

	if _, err := ctrl.Submit(ctx, req); err != nil {
		a.report(err, "translate")
		return err
	}

	res, _ := ctrl.Result()
	if view.detected != "" {
		logInfo(i18n.T("Detected language: %s"), langmeta.Label(view.detected, ""))
	}
	if flags.verbose {
		logInfo(i18n.T("Speech: %s"), formatControls(res, view.controls))
	}
	return nil
}

// formatControls renders audio availability for both sides of res.
func formatControls(res translation.Result, c session.AudioControls) string {
	mark := func(ok bool) string {
		if ok {
			return colorGreen + "✓" + colorReset
		}
		return colorRed + "✗" + colorReset
	}
	return fmt.Sprintf("%s %s  %s %s", res.Source, mark(c.Source), res.Target, mark(c.Target))
}

// ---------------------------------------------------------------------------
// speak / download
// ---------------------------------------------------------------------------

func newSpeakCmd() *cobra.Command {
	var lang string

	cmd := &cobra.Command{
		Use:   "speak TEXT",
		Short: "Speak text in a language",
		Long: `Fetch speech for TEXT and play it through the configured player
(default: mpv reading from stdin).

Example:
  leeplate speak "Guten Tag" --lang de`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			ctx, cancel := signalContext()
			defer cancel()

			lang = langmeta.Canonical(lang)
			if err := requireSpeech(ctx, a, lang); err != nil {
				return err
			}
			if err := a.playback.Play(ctx, args[0], lang); err != nil {
				var derr *playback.DecodeError
				if errors.As(err, &derr) {
					a.report(err, "decode")
				}
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&lang, "lang", "l", "en", "Speech language")

	return cmd
}

func newDownloadCmd() *cobra.Command {
	var (
		lang string
		dir  string
	)

	cmd := &cobra.Command{
		Use:   "download TEXT",
		Short: "Save spoken text as an MP3 file",
		Long: `Fetch speech for TEXT and save it as <slug>.mp3, where the slug is
derived from the first 20 characters of the text.

Example:
  leeplate download "Guten Tag" --lang de --dir ~/Music`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			ctx, cancel := signalContext()
			defer cancel()

			lang = langmeta.Canonical(lang)
			if err := requireSpeech(ctx, a, lang); err != nil {
				return err
			}
			if dir == "" {
				dir = a.cfg.DownloadDir
			}
			path, err := a.playback.Download(ctx, args[0], lang, dir)
			if err != nil {
				return err
			}
			logSuccess(i18n.T("Saved %s"), describeFile(path))
			return nil
		},
	}

	cmd.Flags().StringVarP(&lang, "lang", "l", "en", "Speech language")
	cmd.Flags().StringVarP(&dir, "dir", "d", "", "Output directory (default from config)")

	return cmd
}

// describeFile renders a path with its size, e.g. "hello.mp3 (12 kB)".
func describeFile(path string) string {
	info, err := os.Stat(path)
	if err != nil {
		return path
	}
	return fmt.Sprintf("%s (%s)", path, humanize.Bytes(uint64(info.Size())))
}

// requireSpeech rejects languages the speech backend does not support. A
// failed lookup is only a warning: the backend gets the final word.
func requireSpeech(ctx context.Context, a *app, lang string) error {
	ok, err := a.langs.IsSupported(ctx, lang)
	if err != nil {
		logWarning(i18n.T("Could not check speech support: %v"), err)
		return nil
	}
	if !ok {
		return fmt.Errorf(i18n.T("speech is not available for %s (see 'leeplate languages')"), langmeta.Label(lang, ""))
	}
	return nil
}

// ---------------------------------------------------------------------------
// languages / cache
// ---------------------------------------------------------------------------

func newLanguagesCmd() *cobra.Command {
	var refresh bool

	cmd := &cobra.Command{
		Use:   "languages",
		Short: "List languages supported for speech",
		Long: `List the languages the speech backend supports. The list is cached
for 7 days; use --refresh to fetch it again.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			ctx, cancel := signalContext()
			defer cancel()

			var set langcache.Set
			if refresh {
				set, err = a.langs.Refresh(ctx)
			} else {
				set, err = a.langs.Languages(ctx)
			}
			if err != nil {
				return err
			}

			codes := set.Codes()
			width := langColumnWidth(codes)
			for _, code := range codes {
				fmt.Printf("  %-*s  %s\n", width, code, langmeta.Label(code, set[code]))
			}
			if expiry, ok := a.langs.Expiry(); ok {
				logInfo(i18n.N("%d language, cached until %s", "%d languages, cached until %s", len(codes)),
					len(codes), humanize.Time(expiry))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&refresh, "refresh", false, "Ignore the cached list and fetch it again")

	return cmd
}

// langColumnWidth returns the width of the widest language code.
func langColumnWidth(langs []string) int {
	width := 0
	for _, lang := range langs {
		if len(lang) > width {
			width = len(lang)
		}
	}
	return width
}

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the cached speech-language list",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Drop the cached speech-language list",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.langs.Invalidate(); err != nil {
				return err
			}
			logSuccess(i18n.T("Speech language cache cleared"))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "info",
		Short: "Show where state is stored and when the list expires",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			if f, ok := a.store.(*storage.File); ok {
				fmt.Printf("  storage: %s\n", f.Path())
			} else {
				fmt.Printf("  storage: %s\n", i18n.T("in memory"))
			}
			if expiry, ok := a.langs.Expiry(); ok {
				state := i18n.T("fresh")
				if !time.Now().Before(expiry) {
					state = i18n.T("stale")
				}
				fmt.Printf("  languages: %s, %s (%s)\n", expiry.Local().Format(time.DateTime), humanize.Time(expiry), state)
			} else {
				fmt.Printf("  languages: %s\n", i18n.T("not cached"))
			}
			return nil
		},
	})

	return cmd
}

// ---------------------------------------------------------------------------
// fake-backend (local development server)
// ---------------------------------------------------------------------------

func newFakeBackendCmd() *cobra.Command {
	var (
		addr     string
		detected string
		latency  time.Duration
		langs    string
	)

	cmd := &cobra.Command{
		Use:   "fake-backend",
		Short: "Serve a local fake backend for development",
		Long: `Serve an in-process fake of the translation backend. Translations are
"[<target>] <text>", detection always reports --detect, and speech is a
placeholder byte string (players will reject it; downloads work).

Example:
  leeplate fake-backend --addr :8000 &
  leeplate translate --server http://127.0.0.1:8000 "hola"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			b := backendtest.New()
			b.DetectedLanguage = detected
			if langs != "" {
				set := make(map[string]string)
				for _, code := range strings.Split(langs, ",") {
					code = langmeta.Canonical(code)
					if code != "" {
						set[code] = langmeta.Resolve(code).Name
					}
				}
				b.SetLanguages(set)
			}
			for _, ep := range []string{backendtest.EndpointTranslate, backendtest.EndpointSpeak, backendtest.EndpointSpokenLanguages} {
				b.SetLatency(ep, latency)
			}

			ctx, cancel := signalContext()
			defer cancel()

			srv := &http.Server{
				Addr:              addr,
				Handler:           b.Router(),
				ReadHeaderTimeout: 5 * time.Second,
				IdleTimeout:       120 * time.Second,
			}
			logInfo(i18n.T("Fake backend listening on %s"), addr)
			return runServer(ctx, srv)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8000", "Listen address")
	cmd.Flags().StringVar(&detected, "detect", "fr", "Language reported for auto-detected input")
	cmd.Flags().DurationVar(&latency, "latency", 0, "Artificial delay per request")
	cmd.Flags().StringVar(&langs, "speech-langs", "", "Comma-separated speech languages (default: built-in list)")

	return cmd
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		return err
	}
}
