package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/minios-linux/leeplate/debounce"
	"github.com/minios-linux/leeplate/i18n"
	"github.com/minios-linux/leeplate/langmeta"
	"github.com/minios-linux/leeplate/playback"
	"github.com/minios-linux/leeplate/session"
	"github.com/minios-linux/leeplate/translation"
)

// ---------------------------------------------------------------------------
// Interactive translation session
// ---------------------------------------------------------------------------

type replDeps struct {
	Translator  session.Translator
	Caps        session.Capabilities
	Audio       *playback.Adapter
	Log         *zap.Logger
	From, To    string
	Delay       time.Duration
	DownloadDir string
	Out         io.Writer
	Report      func(err error, op string)
	TimerFunc   debounce.TimerFunc
}

// repl reads edits and commands line by line. It is also the session's
// View: results, detected languages and audio availability are printed as
// the controller reports them.
type repl struct {
	ctx         context.Context
	ctrl        *session.Controller
	deb         *debounce.Debouncer[translation.Request, session.Outcome]
	audio       *playback.Adapter
	downloadDir string
	report      func(error, string)

	outMu sync.Mutex
	out   io.Writer

	mu   sync.Mutex
	text string
	from string
	to   string
	last *debounce.Call[session.Outcome]
}

func newREPL(ctx context.Context, d replDeps) *repl {
	r := &repl{
		ctx:         ctx,
		audio:       d.Audio,
		downloadDir: d.DownloadDir,
		report:      d.Report,
		out:         d.Out,
		from:        d.From,
		to:          d.To,
	}
	if r.report == nil {
		r.report = func(error, string) {}
	}
	r.ctrl = session.New(d.Translator, d.Caps, r, d.Log)

	var opts []debounce.Option
	if d.TimerFunc != nil {
		opts = append(opts, debounce.WithTimerFunc(d.TimerFunc))
	}
	r.deb = debounce.New[translation.Request, session.Outcome](ctx, d.Delay, r.submit, opts...)
	return r
}

func (r *repl) printf(format string, args ...any) {
	r.outMu.Lock()
	defer r.outMu.Unlock()
	fmt.Fprintf(r.out, format, args...)
}

// ShowResult implements session.View.
func (r *repl) ShowResult(res translation.Result) {
	r.printf("%s→%s %s\n", colorGreen, colorReset, res.Text)
}

// SetSourceLanguage implements session.View. The detected language
// becomes the selected source language.
func (r *repl) SetSourceLanguage(code string) {
	r.mu.Lock()
	r.from = code
	r.mu.Unlock()
	r.printf("%s  %s %s%s\n", colorDim, i18n.T("detected:"), langmeta.Label(code, ""), colorReset)
}

// SetAudioControls implements session.View.
func (r *repl) SetAudioControls(c session.AudioControls) {
	res, ok := r.ctrl.Result()
	if !ok {
		return
	}
	r.printf("%s  %s%s %s\n", colorDim, i18n.T("speech:"), colorReset, formatControls(res, c))
}

// submit is the debounced function.
func (r *repl) submit(ctx context.Context, req translation.Request) (session.Outcome, error) {
	outcome, err := r.ctrl.Submit(ctx, req)
	if err != nil {
		r.printf("%s[ERROR]%s %s: %v\n", colorRed, colorReset, i18n.T("Translation failed"), err)
		r.report(err, "translate")
	}
	return outcome, err
}

func (r *repl) request() translation.Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	return translation.Request{Text: r.text, Source: r.from, Target: r.to}
}

// trigger schedules a translation of the current input.
func (r *repl) trigger() {
	call := r.deb.Trigger(r.request())
	r.mu.Lock()
	r.last = call
	r.mu.Unlock()
}

// settle runs any pending translation now and waits until the controller
// has applied it. The debounced call alone is not enough: a duplicate of
// the in-flight request resolves as skipped while the original still runs.
func (r *repl) settle() {
	r.deb.Flush()
	r.mu.Lock()
	last := r.last
	r.mu.Unlock()
	if last != nil {
		_, _ = last.Wait(r.ctx)
	}
	_ = r.ctrl.Wait(r.ctx)
}

func (r *repl) run(in io.Reader) error {
	defer r.deb.Stop()

	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		if r.ctx.Err() != nil {
			return nil
		}
		line := sc.Text()
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, ":") {
			quit, err := r.command(trimmed)
			if err != nil {
				r.printf("%s[ERROR]%s %v\n", colorRed, colorReset, err)
			}
			if quit {
				return nil
			}
			continue
		}

		r.mu.Lock()
		r.text = line
		r.mu.Unlock()
		r.trigger()
	}
	r.settle()
	return sc.Err()
}

// command executes a ':' command and reports whether to quit.
func (r *repl) command(line string) (bool, error) {
	fields := strings.Fields(strings.TrimPrefix(line, ":"))
	if len(fields) == 0 {
		return false, nil
	}
	name, args := fields[0], fields[1:]

	switch name {
	case "q", "quit", "exit":
		r.settle()
		return true, nil

	case "help", "h":
		r.printf("%s\n", i18n.T(":from CODE  :to CODE  :swap  :listen source|target  :save source|target [DIR]  :state  :quit"))
		return false, nil

	case "from":
		if len(args) != 1 {
			return false, errors.New(i18n.T("usage: :from CODE"))
		}
		r.mu.Lock()
		r.from = langmeta.Canonical(args[0])
		r.mu.Unlock()
		r.trigger()
		return false, nil

	case "to":
		if len(args) != 1 {
			return false, errors.New(i18n.T("usage: :to CODE"))
		}
		code := langmeta.Canonical(args[0])
		if code == langmeta.AutoDetect {
			return false, errors.New(i18n.T("target language cannot be auto"))
		}
		r.mu.Lock()
		r.to = code
		r.mu.Unlock()
		r.trigger()
		return false, nil

	case "swap":
		return false, r.swap()

	case "listen":
		if len(args) != 1 {
			return false, errors.New(i18n.T("usage: :listen source|target"))
		}
		r.settle()
		text, lang, err := r.side(args[0])
		if err != nil {
			return false, err
		}
		if err := r.audio.Play(r.ctx, text, lang); err != nil {
			var derr *playback.DecodeError
			if errors.As(err, &derr) {
				r.report(err, "decode")
			}
			return false, err
		}
		return false, nil

	case "save":
		if len(args) < 1 || len(args) > 2 {
			return false, errors.New(i18n.T("usage: :save source|target [DIR]"))
		}
		r.settle()
		text, lang, err := r.side(args[0])
		if err != nil {
			return false, err
		}
		dir := r.downloadDir
		if len(args) == 2 {
			dir = args[1]
		}
		path, err := r.audio.Download(r.ctx, text, lang, dir)
		if err != nil {
			return false, err
		}
		r.printf("%s[OK]%s %s %s\n", colorGreen, colorReset, i18n.T("Saved"), describeFile(path))
		return false, nil

	case "state":
		r.printState()
		return false, nil
	}

	return false, fmt.Errorf(i18n.T("unknown command :%s (try :help)"), name)
}

// swap exchanges source and target languages and continues from the
// translation. An auto-detected source is replaced by the language it
// resolved to.
func (r *repl) swap() error {
	r.settle()
	res, ok := r.ctrl.Result()

	r.mu.Lock()
	from := r.from
	if from == langmeta.AutoDetect {
		if !ok {
			r.mu.Unlock()
			return errors.New(i18n.T("cannot swap before the source language is known"))
		}
		from = res.Source
	}
	r.from, r.to = r.to, from
	if ok {
		r.text = res.Text
	}
	r.mu.Unlock()

	r.trigger()
	return nil
}

// side returns the text and language for one side of the displayed
// translation, if speech is available for it.
func (r *repl) side(name string) (text, lang string, err error) {
	res, ok := r.ctrl.Result()
	if !ok {
		return "", "", errors.New(i18n.T("nothing translated yet"))
	}
	controls := r.ctrl.Controls()

	switch name {
	case "source", "src", "s":
		text, lang, ok = res.Origin, res.Source, controls.Source
	case "target", "dest", "t":
		text, lang, ok = res.Text, res.Target, controls.Target
	default:
		return "", "", fmt.Errorf(i18n.T("unknown side %q (use source or target)"), name)
	}
	if !ok {
		return "", "", fmt.Errorf(i18n.T("speech is not available for %s"), langmeta.Label(lang, ""))
	}
	return text, lang, nil
}

func (r *repl) printState() {
	r.mu.Lock()
	from, to := r.from, r.to
	r.mu.Unlock()

	fp := r.ctrl.Fingerprint()
	if fp == "" {
		fp = "-"
	}
	r.printf("  state:       %s\n", r.ctrl.State())
	r.printf("  languages:   %s → %s\n", langmeta.Label(from, ""), langmeta.Label(to, ""))
	r.printf("  fingerprint: %s\n", fp)
	if res, ok := r.ctrl.Result(); ok {
		r.printf("  speech:      %s\n", formatControls(res, r.ctrl.Controls()))
	}
}
