// Package objectkey allocates collision-resistant storage keys of the form
// {handle}/{DD-MM-YYYY}-{suffix}.jpg.
package objectkey

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	mrand "math/rand/v2"
	"strings"
	"sync"
	"time"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"photoline/internal/logging"
	"photoline/internal/media/raster"
)

const (
	alphabet     = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	suffixLength = 10
	dateLayout   = "02-01-2006"

	// fallbackHandle is used when an email has an empty local part.
	fallbackHandle = "user"
)

// Key is a relative storage key.
type Key string

func (k Key) String() string { return string(k) }

// Filename returns the final path segment.
func (k Key) Filename() string {
	s := string(k)
	if i := strings.LastIndexByte(s, '/'); i >= 0 {
		return s[i+1:]
	}
	return s
}

// Allocator builds keys from an owner handle, the date and a random suffix.
type Allocator struct {
	entropy io.Reader
	logger  *slog.Logger

	mu       sync.Mutex
	fallback *mrand.Rand
}

// Option customizes an Allocator.
type Option func(*Allocator)

// WithEntropy replaces crypto/rand as the primary random source.
func WithEntropy(r io.Reader) Option {
	return func(a *Allocator) {
		if r != nil {
			a.entropy = r
		}
	}
}

// WithFallback replaces the time-seeded PCG used when the primary source fails.
func WithFallback(rng *mrand.Rand) Option {
	return func(a *Allocator) {
		if rng != nil {
			a.fallback = rng
		}
	}
}

// WithLogger attaches a logger for fallback warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Allocator) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// NewAllocator returns an Allocator backed by crypto/rand.
func NewAllocator(opts ...Option) *Allocator {
	seed := uint64(time.Now().UnixNano())
	a := &Allocator{
		entropy:  rand.Reader,
		logger:   logging.NewNop(),
		fallback: mrand.New(mrand.NewPCG(seed, seed>>1|1)),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Allocate returns a fresh key for handle at now. now is rendered in UTC.
func (a *Allocator) Allocate(handle string, now time.Time) (Key, error) {
	if err := validSegment(handle, false); err != nil {
		return "", fmt.Errorf("allocate key: handle: %w", err)
	}
	suffix := a.suffix()
	key := Key(fmt.Sprintf("%s/%s-%s.%s", handle, now.UTC().Format(dateLayout), suffix, raster.Extension))
	if err := Validate(string(key)); err != nil {
		return "", fmt.Errorf("allocate key: %w", err)
	}
	return key, nil
}

func (a *Allocator) suffix() string {
	out, err := readAlphabet(a.entropy, suffixLength)
	if err == nil {
		return out
	}
	a.logger.Warn("secure random source failed; using fallback generator",
		logging.String(logging.FieldEventType, "key_entropy_fallback"),
		logging.String(logging.FieldErrorHint, "check the system entropy source"),
		logging.Error(err),
	)

	a.mu.Lock()
	defer a.mu.Unlock()
	buf := make([]byte, suffixLength)
	for i := range buf {
		buf[i] = alphabet[a.fallback.IntN(len(alphabet))]
	}
	return string(buf)
}

// readAlphabet draws n symbols with rejection sampling so every symbol is
// equally likely.
func readAlphabet(r io.Reader, n int) (string, error) {
	const limit = 256 - 256%len(alphabet)
	out := make([]byte, 0, n)
	buf := make([]byte, n*2)
	for len(out) < n {
		if _, err := io.ReadFull(r, buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			out = append(out, alphabet[int(b)%len(alphabet)])
			if len(out) == n {
				break
			}
		}
	}
	return string(out), nil
}

// Handle derives a folder-safe owner handle from an email address: the local
// part lower-cased, with every character outside [a-z0-9] replaced by '-'.
// Input is composed to NFC first so an accented letter maps to one '-'.
func Handle(email string) string {
	local := strings.TrimSpace(email)
	if at := strings.LastIndexByte(local, '@'); at >= 0 {
		local = local[:at]
	}
	if local == "" {
		return fallbackHandle
	}

	var b strings.Builder
	for _, r := range norm.NFC.String(local) {
		r = unicode.ToLower(r)
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			continue
		}
		b.WriteByte('-')
	}
	return b.String()
}

// Validate checks that key is exactly {folder}/{file} with safe characters.
func Validate(key string) error {
	folder, file, ok := strings.Cut(key, "/")
	if !ok {
		return errors.New("key must contain one folder separator")
	}
	if strings.Contains(file, "/") {
		return errors.New("key must contain one folder separator")
	}
	if err := validSegment(folder, false); err != nil {
		return fmt.Errorf("folder: %w", err)
	}
	if err := validSegment(file, true); err != nil {
		return fmt.Errorf("file: %w", err)
	}
	return nil
}

func validSegment(segment string, allowUpper bool) error {
	if segment == "" {
		return errors.New("empty segment")
	}
	if segment == "." || strings.Contains(segment, "..") {
		return errors.New("relative segment")
	}
	for _, r := range segment {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
		case allowUpper && r >= 'A' && r <= 'Z':
		default:
			return fmt.Errorf("invalid character %q", r)
		}
	}
	return nil
}
