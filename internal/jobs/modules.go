package jobs

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/lalithlochan/clipforge/internal/db"
)

var (
	// ErrUnknownModule is returned for a module identifier outside the catalog.
	ErrUnknownModule = errors.New("unknown module")
	// ErrInvalidParams wraps every parameter validation failure.
	ErrInvalidParams = errors.New("invalid params")
)

const maxSpeechChars = 5000

// ImageToVideoParams animates a still image.
type ImageToVideoParams struct {
	ImageURL        string `json:"image_url"`
	Duration        int    `json:"duration"`
	Quality         string `json:"quality"`
	MotionIntensity int    `json:"motion_intensity"`
	Prompt          string `json:"prompt,omitempty"`
	EnhancePrompt   bool   `json:"enhance_prompt,omitempty"`
}

// ImageParams generates still images from a prompt.
type ImageParams struct {
	Prompt        string `json:"prompt"`
	AspectRatio   string `json:"aspect_ratio"`
	Count         int    `json:"count"`
	Style         string `json:"style,omitempty"`
	EnhancePrompt bool   `json:"enhance_prompt,omitempty"`
}

// TextToSpeechParams synthesizes narration.
type TextToSpeechParams struct {
	Text  string `json:"text"`
	Voice string `json:"voice"`
}

// AudioToVideoParams builds a video around an audio track.
type AudioToVideoParams struct {
	AudioURL string `json:"audio_url"`
	ImageURL string `json:"image_url,omitempty"`
}

// UGCVideoParams renders a scripted avatar clip.
type UGCVideoParams struct {
	Script string `json:"script"`
	Avatar string `json:"avatar"`
}

type normalizer func(raw json.RawMessage) (any, error)

var catalog = map[string]normalizer{
	db.ModuleImageToVideo: normalizeImageToVideo,
	db.ModuleImage:        normalizeImage,
	db.ModuleTextToSpeech: normalizeTextToSpeech,
	db.ModuleAudioToVideo: normalizeAudioToVideo,
	db.ModuleUGCVideo:     normalizeUGCVideo,
}

// Modules lists the supported module identifiers.
func Modules() []string {
	return []string{
		db.ModuleImageToVideo,
		db.ModuleImage,
		db.ModuleTextToSpeech,
		db.ModuleAudioToVideo,
		db.ModuleUGCVideo,
	}
}

// NormalizeParams validates raw against the module's schema and returns
// the canonical encoding with defaults filled in.
func NormalizeParams(module string, raw json.RawMessage) (json.RawMessage, error) {
	fn, ok := catalog[module]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownModule, module)
	}
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		raw = json.RawMessage(`{}`)
	}

	params, err := fn(raw)
	if err != nil {
		return nil, err
	}

	out, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encode params: %w", err)
	}
	return out, nil
}

func decode(raw json.RawMessage, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidParams, fmt.Sprintf(format, args...))
}

func validURL(field, raw string) error {
	if raw == "" {
		return invalid("%s is required", field)
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return invalid("%s must be an http(s) URL", field)
	}
	return nil
}

func normalizeImageToVideo(raw json.RawMessage) (any, error) {
	var p ImageToVideoParams
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	if err := validURL("image_url", p.ImageURL); err != nil {
		return nil, err
	}

	if p.Duration == 0 {
		p.Duration = 5
	}
	if p.Duration != 5 && p.Duration != 10 {
		return nil, invalid("duration must be 5 or 10 seconds")
	}

	if p.Quality == "" {
		p.Quality = "standard"
	}
	switch p.Quality {
	case "standard", "high", "ultra":
	default:
		return nil, invalid("quality must be standard, high, or ultra")
	}

	if p.MotionIntensity == 0 {
		p.MotionIntensity = 5
	}
	if p.MotionIntensity < 1 || p.MotionIntensity > 10 {
		return nil, invalid("motion_intensity must be between 1 and 10")
	}

	p.Prompt = strings.TrimSpace(p.Prompt)
	return p, nil
}

func normalizeImage(raw json.RawMessage) (any, error) {
	var p ImageParams
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	p.Prompt = strings.TrimSpace(p.Prompt)
	if p.Prompt == "" {
		return nil, invalid("prompt is required")
	}

	if p.AspectRatio == "" {
		p.AspectRatio = "1:1"
	}
	switch p.AspectRatio {
	case "1:1", "16:9", "9:16", "4:3":
	default:
		return nil, invalid("aspect_ratio must be one of 1:1, 16:9, 9:16, 4:3")
	}

	if p.Count == 0 {
		p.Count = 1
	}
	if p.Count < 1 || p.Count > 4 {
		return nil, invalid("count must be between 1 and 4")
	}
	return p, nil
}

func normalizeTextToSpeech(raw json.RawMessage) (any, error) {
	var p TextToSpeechParams
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	p.Text = strings.TrimSpace(p.Text)
	if p.Text == "" {
		return nil, invalid("text is required")
	}
	if utf8.RuneCountInString(p.Text) > maxSpeechChars {
		return nil, invalid("text exceeds %d characters", maxSpeechChars)
	}
	if p.Voice == "" {
		p.Voice = "alloy"
	}
	return p, nil
}

func normalizeAudioToVideo(raw json.RawMessage) (any, error) {
	var p AudioToVideoParams
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	if err := validURL("audio_url", p.AudioURL); err != nil {
		return nil, err
	}
	if p.ImageURL != "" {
		if err := validURL("image_url", p.ImageURL); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func normalizeUGCVideo(raw json.RawMessage) (any, error) {
	var p UGCVideoParams
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	p.Script = strings.TrimSpace(p.Script)
	if p.Script == "" {
		return nil, invalid("script is required")
	}
	if p.Avatar == "" {
		p.Avatar = "default"
	}
	return p, nil
}
