package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"
)

var nonWordOrSpace = regexp.MustCompile(`[^\w\s]`)

// SynthesisError carries the provider's status code and response body when a
// text-to-speech request is rejected.
type SynthesisError struct {
	StatusCode int
	Body       string
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("tts request failed with status code %d: %s", e.StatusCode, e.Body)
}

// Normalize strips hyphens and quotes, then every remaining character that is
// not a word character or whitespace. Keeps the voiceover from reading
// punctuation aloud.
func Normalize(text string) string {
	replaced := strings.NewReplacer("-", " ", `"`, " ", "'", " ").Replace(text)
	return nonWordOrSpace.ReplaceAllString(replaced, "")
}

// Synthesizer converts hook text into an audio file through the ElevenLabs
// API. One call per hook row; rows are independent of each other. Retries,
// if any, are the caller's responsibility.
type Synthesizer struct {
	apiKey          string
	voiceID         string
	baseURL         string
	client          *http.Client
	keepPunctuation bool
	log             *logrus.Logger
}

// NewSynthesizer builds a Synthesizer for one job's credentials.
func NewSynthesizer(apiKey, voiceID string, log *logrus.Logger) *Synthesizer {
	return &Synthesizer{
		apiKey:  apiKey,
		voiceID: voiceID,
		baseURL: "https://api.elevenlabs.io/v1/text-to-speech",
		client:  http.DefaultClient,
		log:     log,
	}
}

// WithBaseURL overrides the provider endpoint. Used by tests.
func (s *Synthesizer) WithBaseURL(url string) *Synthesizer {
	s.baseURL = strings.TrimRight(url, "/")
	return s
}

// KeepPunctuation disables the pre-request text normalization.
func (s *Synthesizer) KeepPunctuation() *Synthesizer {
	s.keepPunctuation = true
	return s
}

type synthesisRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// Synthesize requests speech for text and streams the binary audio to
// destPath. The file is written to a sidecar path and renamed into place, so
// a consumable file at destPath is always complete.
func (s *Synthesizer) Synthesize(ctx context.Context, text, destPath string) error {
	if !s.keepPunctuation {
		text = Normalize(text)
	}

	payload, err := json.Marshal(synthesisRequest{
		Text:    text,
		ModelID: "eleven_monolingual_v1",
		VoiceSettings: voiceSettings{
			Stability:       0.5,
			SimilarityBoost: 0.75,
		},
	})
	if err != nil {
		return fmt.Errorf("encoding synthesis request: %w", err)
	}

	url := fmt.Sprintf("%s/%s", s.baseURL, s.voiceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building synthesis request: %w", err)
	}
	req.Header.Set("Accept", "audio/mpeg")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("synthesis request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		s.log.Errorf("TTS request failed with status code %d: %s", resp.StatusCode, string(body))
		return &SynthesisError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	partPath := destPath + ".part"
	out, err := os.Create(partPath)
	if err != nil {
		return fmt.Errorf("creating audio file: %w", err)
	}

	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		os.Remove(partPath)
		return fmt.Errorf("writing audio file: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(partPath)
		return fmt.Errorf("closing audio file: %w", err)
	}

	if err := os.Rename(partPath, destPath); err != nil {
		os.Remove(partPath)
		return fmt.Errorf("finalizing audio file: %w", err)
	}
	return nil
}
