package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
)

const speechURL = "https://api.openai.com/v1/audio/speech"

type speechRequest struct {
	Model          string  `json:"model"`
	Input          string  `json:"input"`
	Voice          string  `json:"voice"`
	ResponseFormat string  `json:"response_format,omitempty"`
	Speed          float64 `json:"speed,omitempty"`
}

// API synthesizes speech through the hosted endpoint and plays the
// returned MP3 on the local speakers.
type API struct {
	key    string
	model  string
	voice  string
	speed  float64
	client *http.Client
	url    string
}

func NewAPI(key, model, voice string, speed float64, client *http.Client) (*API, error) {
	if key == "" {
		return nil, errors.New("speech synthesis needs an api key")
	}
	if model == "" {
		model = "tts-1"
	}
	if voice == "" {
		voice = "alloy"
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &API{key: key, model: model, voice: voice, speed: speed, client: client, url: speechURL}, nil
}

func (a *API) Close() error { return nil }

func (a *API) Speak(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}

	body, err := json.Marshal(speechRequest{
		Model:          a.model,
		Input:          text,
		Voice:          a.voice,
		ResponseFormat: "mp3",
		Speed:          a.speed,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+a.key)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("speech request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("speech api: %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read audio: %w", err)
	}
	return playMP3(ctx, io.NopCloser(bytes.NewReader(audio)))
}

// playMP3 decodes and plays a whole MP3 stream, blocking until it
// finishes or the context ends.
func playMP3(ctx context.Context, rc io.ReadCloser) error {
	streamer, format, err := mp3.Decode(rc)
	if err != nil {
		return fmt.Errorf("decode mp3: %w", err)
	}
	defer streamer.Close()

	if err := speaker.Init(format.SampleRate, format.SampleRate.N(time.Second/10)); err != nil {
		return fmt.Errorf("init speaker: %w", err)
	}

	// The callback runs on the mixer goroutine and must never block.
	done := make(chan bool, 1)
	speaker.Play(beep.Seq(streamer, beep.Callback(func() {
		done <- true
	})))

	select {
	case <-ctx.Done():
		speaker.Clear()
		return ctx.Err()
	case <-done:
		return nil
	}
}
