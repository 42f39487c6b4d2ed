package scan

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/tazhate/medremind/internal/domain"
	"github.com/tazhate/medremind/internal/metrics"
)

// Recognizer turns an image into text.
type Recognizer interface {
	Recognize(ctx context.Context, image []byte) (string, error)
}

// Announcer speaks the scan outcome to the user. An empty name is a failed
// scan.
type Announcer interface {
	SpeakScanResult(ctx context.Context, user *domain.User, name string) error
}

const defaultCacheSize = 128

// Scanner runs OCR on label photos and parses the result. Text of images
// already seen is served from an LRU cache.
type Scanner struct {
	ocr     Recognizer
	voice   Announcer
	catalog *Catalog
	cache   *lru.Cache[string, string]
	log     zerolog.Logger
}

// New creates a Scanner. voice may be nil.
func New(ocr Recognizer, voice Announcer, cacheSize int, log zerolog.Logger) (*Scanner, error) {
	if cacheSize <= 0 {
		cacheSize = defaultCacheSize
	}
	cache, err := lru.New[string, string](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create ocr cache: %w", err)
	}
	return &Scanner{
		ocr:     ocr,
		voice:   voice,
		catalog: DefaultCatalog(),
		cache:   cache,
		log:     log.With().Str("component", "scan").Logger(),
	}, nil
}

// Scan reads a label photo. A label that yields no catalog medicine is not
// an error; its LabelInfo reports Recognized false.
func (s *Scanner) Scan(ctx context.Context, user *domain.User, image []byte) (LabelInfo, error) {
	if len(image) == 0 {
		return LabelInfo{}, fmt.Errorf("%w: image is empty", domain.ErrValidation)
	}
	if s.ocr == nil {
		return LabelInfo{}, fmt.Errorf("ocr is not configured")
	}

	sum := sha256.Sum256(image)
	key := hex.EncodeToString(sum[:])

	text, cached := s.cache.Get(key)
	if !cached {
		var err error
		text, err = s.ocr.Recognize(ctx, image)
		if err != nil {
			metrics.ScansTotal.WithLabelValues("error").Inc()
			s.announce(ctx, user, "")
			return LabelInfo{}, fmt.Errorf("recognize label: %w", err)
		}
		s.cache.Add(key, text)
	}

	info := s.catalog.Parse(text)
	name := ""
	outcome := "unrecognized"
	if info.Recognized() {
		name = info.Name.Value
		outcome = "recognized"
	}
	metrics.ScansTotal.WithLabelValues(outcome).Inc()
	s.announce(ctx, user, name)

	s.log.Info().
		Bool("cached", cached).
		Bool("recognized", info.Recognized()).
		Str("name", info.Name.Value).
		Float64("confidence", info.Confidence).
		Msg("label scanned")
	return info, nil
}

func (s *Scanner) announce(ctx context.Context, user *domain.User, name string) {
	if s.voice == nil || user == nil {
		return
	}
	if err := s.voice.SpeakScanResult(ctx, user, name); err != nil {
		s.log.Debug().Err(err).Msg("scan voice")
	}
}
