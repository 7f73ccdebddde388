// Package playback turns cached speech audio into sound or a file.
//
// Play fetches audio through the audio cache, decodes it, and hands the
// decoded buffer to a Player. Download writes the encoded audio to a file
// named after the text. Neither operation modifies the cache.
package playback

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/hajimehoshi/go-mp3"
	"go.uber.org/zap"
)

// ErrNoAudio is returned by Download when the backend produced no audio.
var ErrNoAudio = errors.New("no audio available")

// DecodeError reports malformed audio bytes.
type DecodeError struct {
	Lang string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding %s audio: %v", e.Lang, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Source supplies audio bytes, normally an *audiocache.Cache.
type Source interface {
	Get(ctx context.Context, text, lang string) ([]byte, error)
}

// Buffer is decoded, playable audio.
type Buffer struct {
	// Encoded is the original MP3 stream. External players read this.
	Encoded []byte
	// PCM is signed 16-bit little-endian stereo samples for in-process
	// players. It is nil when the decoder only validated the stream.
	PCM        []byte
	SampleRate int
	Channels   int
}

// Decoder turns encoded audio into a Buffer.
type Decoder interface {
	Decode(data []byte) (*Buffer, error)
}

// frameBytes is the PCM size of one decoded MPEG-1 Layer III frame:
// 1152 samples, 2 channels, 2 bytes each.
const frameBytes = 1152 * 2 * 2

// MP3Decoder decodes MP3 streams.
type MP3Decoder struct {
	// ValidateOnly decodes only the first frame to check the stream and
	// leaves Buffer.PCM nil. Use it with players that read Buffer.Encoded.
	ValidateOnly bool
}

// Decode implements Decoder.
func (m MP3Decoder) Decode(data []byte) (*Buffer, error) {
	if len(data) == 0 {
		return nil, errors.New("empty audio")
	}
	d, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	buf := &Buffer{Encoded: data, SampleRate: d.SampleRate(), Channels: 2}

	if m.ValidateOnly {
		n, err := io.ReadFull(d, make([]byte, frameBytes))
		if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
			return nil, err
		}
		if n == 0 {
			return nil, errors.New("no audio frames")
		}
		return buf, nil
	}

	pcm, err := io.ReadAll(d)
	if err != nil {
		return nil, err
	}
	if len(pcm) == 0 {
		return nil, errors.New("no audio frames")
	}
	buf.PCM = pcm
	return buf, nil
}

// Player plays a decoded buffer and blocks until playback ends.
type Player interface {
	Play(ctx context.Context, buf *Buffer) error
}

// ExecPlayer pipes the encoded stream into an external player reading
// stdin, e.g. ["mpv", "--no-video", "-"] or ["ffplay", "-nodisp", "-autoexit", "-"].
type ExecPlayer struct {
	Command []string
}

// Play implements Player.
func (p ExecPlayer) Play(ctx context.Context, buf *Buffer) error {
	if len(p.Command) == 0 {
		return errors.New("no player command configured")
	}
	cmd := exec.CommandContext(ctx, p.Command[0], p.Command[1:]...)
	cmd.Stdin = bytes.NewReader(buf.Encoded)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return fmt.Errorf("running %s: %w: %s", p.Command[0], err, msg)
		}
		return fmt.Errorf("running %s: %w", p.Command[0], err)
	}
	return nil
}

// Adapter plays and exports speech audio.
type Adapter struct {
	source  Source
	decoder Decoder
	player  Player
	log     *zap.Logger
}

// New returns an adapter. A nil decoder selects MP3Decoder; a nil logger
// disables logging.
func New(source Source, decoder Decoder, player Player, log *zap.Logger) *Adapter {
	if decoder == nil {
		decoder = MP3Decoder{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Adapter{
		source:  source,
		decoder: decoder,
		player:  player,
		log:     log.Named("playback"),
	}
}

// Play speaks text in lang.
func (a *Adapter) Play(ctx context.Context, text, lang string) error {
	audio, err := a.source.Get(ctx, text, lang)
	if err != nil {
		return fmt.Errorf("fetching audio: %w", err)
	}
	if len(audio) == 0 {
		return ErrNoAudio
	}

	buf, err := a.decoder.Decode(audio)
	if err != nil {
		derr := &DecodeError{Lang: lang, Err: err}
		a.log.Error("audio decode failed", zap.String("lang", lang), zap.Int("bytes", len(audio)), zap.Error(err))
		return derr
	}

	if a.player == nil {
		return errors.New("no audio player configured")
	}
	a.log.Debug("playing", zap.String("lang", lang), zap.Int("sample_rate", buf.SampleRate), zap.Int("encoded_bytes", len(buf.Encoded)))
	return a.player.Play(ctx, buf)
}

// Download writes the audio for text to dir and returns the file path.
func (a *Adapter) Download(ctx context.Context, text, lang, dir string) (string, error) {
	audio, err := a.source.Get(ctx, text, lang)
	if err != nil {
		return "", fmt.Errorf("fetching audio: %w", err)
	}
	if len(audio) == 0 {
		a.log.Warn("download requested but no audio available", zap.String("lang", lang))
		return "", fmt.Errorf("%w for %q (%s)", ErrNoAudio, truncateRunes(text, 20), lang)
	}

	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating download directory: %w", err)
	}

	path := filepath.Join(dir, FileName(text))
	if err := os.WriteFile(path, audio, 0644); err != nil {
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	return path, nil
}

// FileName derives the download file name from the first 20 characters of
// text: lower-cased, with runs of anything but letters and digits turned
// into single dashes.
func FileName(text string) string {
	var b strings.Builder
	dash := false
	for _, r := range truncateRunes(strings.TrimSpace(text), 20) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	slug := strings.TrimRight(b.String(), "-")
	if slug == "" {
		slug = "speech"
	}
	return slug + ".mp3"
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
