package jobs

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lalithlochan/clipforge/internal/db"
)

func TestNormalizeParams(t *testing.T) {
	tests := []struct {
		name    string
		module  string
		params  string
		wantErr error
		want    string
	}{
		{
			name:   "image-to-video defaults",
			module: db.ModuleImageToVideo,
			params: `{"image_url":"https://cdn.example.com/a.png"}`,
			want:   `{"image_url":"https://cdn.example.com/a.png","duration":5,"quality":"standard","motion_intensity":5}`,
		},
		{
			name:    "image-to-video bad duration",
			module:  db.ModuleImageToVideo,
			params:  `{"image_url":"https://cdn.example.com/a.png","duration":7}`,
			wantErr: ErrInvalidParams,
		},
		{
			name:    "image-to-video motion out of range",
			module:  db.ModuleImageToVideo,
			params:  `{"image_url":"https://cdn.example.com/a.png","motion_intensity":11}`,
			wantErr: ErrInvalidParams,
		},
		{
			name:    "image-to-video missing image",
			module:  db.ModuleImageToVideo,
			params:  `{}`,
			wantErr: ErrInvalidParams,
		},
		{
			name:   "image defaults",
			module: db.ModuleImage,
			params: `{"prompt":"  neon city  "}`,
			want:   `{"prompt":"neon city","aspect_ratio":"1:1","count":1}`,
		},
		{
			name:    "image bad aspect",
			module:  db.ModuleImage,
			params:  `{"prompt":"x","aspect_ratio":"3:2"}`,
			wantErr: ErrInvalidParams,
		},
		{
			name:   "speech default voice",
			module: db.ModuleTextToSpeech,
			params: `{"text":"hello"}`,
			want:   `{"text":"hello","voice":"alloy"}`,
		},
		{
			name:    "audio-to-video requires audio",
			module:  db.ModuleAudioToVideo,
			params:  `{"image_url":"https://cdn.example.com/a.png"}`,
			wantErr: ErrInvalidParams,
		},
		{
			name:   "ugc default avatar",
			module: db.ModuleUGCVideo,
			params: `{"script":"Buy now"}`,
			want:   `{"script":"Buy now","avatar":"default"}`,
		},
		{
			name:    "null params treated as empty",
			module:  db.ModuleUGCVideo,
			params:  `null`,
			wantErr: ErrInvalidParams,
		},
		{
			name:    "malformed json",
			module:  db.ModuleImage,
			params:  `{"prompt":`,
			wantErr: ErrInvalidParams,
		},
		{
			name:    "unknown module",
			module:  "chat",
			params:  `{}`,
			wantErr: ErrUnknownModule,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeParams(tt.module, json.RawMessage(tt.params))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(got))
		})
	}
}

func TestNormalizeParams_SpeechLengthLimit(t *testing.T) {
	long := strings.Repeat("a", maxSpeechChars+1)
	params, _ := json.Marshal(TextToSpeechParams{Text: long})

	_, err := NormalizeParams(db.ModuleTextToSpeech, params)
	assert.ErrorIs(t, err, ErrInvalidParams)
}

func TestCanTransition(t *testing.T) {
	allowed := map[[2]string]bool{
		{db.StatusQueued, db.StatusProcessing}:     true,
		{db.StatusQueued, db.StatusFailed}:         true,
		{db.StatusProcessing, db.StatusProcessing}: true,
		{db.StatusProcessing, db.StatusCompleted}:  true,
		{db.StatusProcessing, db.StatusFailed}:     true,
	}
	statuses := []string{db.StatusQueued, db.StatusProcessing, db.StatusCompleted, db.StatusFailed}

	for _, from := range statuses {
		for _, to := range statuses {
			assert.Equal(t, allowed[[2]string{from, to}], CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestModulesAreInCatalog(t *testing.T) {
	for _, m := range Modules() {
		_, ok := catalog[m]
		assert.True(t, ok, m)
	}
	assert.Len(t, catalog, len(Modules()))
}
