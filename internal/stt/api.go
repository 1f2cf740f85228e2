package stt

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

const transcriptionURL = "https://api.openai.com/v1/audio/transcriptions"

// API transcribes through the hosted audio endpoint. Captured PCM is
// wrapped in a WAV container and uploaded as a multipart form.
type API struct {
	key      string
	model    string
	language string
	rate     int
	client   *http.Client
	url      string
}

// NewAPI builds the remote engine. The client carries any proxy the
// daemon was started with; nil falls back to a plain 30s client.
func NewAPI(key, model, language string, rate int, client *http.Client) (*API, error) {
	if key == "" {
		return nil, fmt.Errorf("%w: no api key", ErrUnavailable)
	}
	if model == "" {
		model = "whisper-1"
	}
	if language == "auto" {
		language = "" // the endpoint detects language when the hint is absent
	}
	if rate <= 0 {
		rate = 16000
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &API{key: key, model: model, language: language, rate: rate, client: client, url: transcriptionURL}, nil
}

func (a *API) Close() error { return nil }

func (a *API) Transcribe(ctx context.Context, pcm []float32) (Utterance, error) {
	if len(pcm) == 0 {
		return Utterance{}, errors.New("no audio samples")
	}
	captured := time.Now()

	var form bytes.Buffer
	mw := multipart.NewWriter(&form)
	part, err := mw.CreateFormFile("file", "utterance.wav")
	if err != nil {
		return Utterance{}, err
	}
	if err := writeWAV(part, pcm, a.rate); err != nil {
		return Utterance{}, err
	}
	if err := mw.WriteField("model", a.model); err != nil {
		return Utterance{}, err
	}
	if a.language != "" {
		if err := mw.WriteField("language", a.language); err != nil {
			return Utterance{}, err
		}
	}
	if err := mw.Close(); err != nil {
		return Utterance{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, &form)
	if err != nil {
		return Utterance{}, err
	}
	req.Header.Set("Authorization", "Bearer "+a.key)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := a.client.Do(req)
	if err != nil {
		return Utterance{}, fmt.Errorf("transcription request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Utterance{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Utterance{}, fmt.Errorf("transcription api: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var out struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return Utterance{}, fmt.Errorf("parse response: %w", err)
	}

	u := Utterance{Text: strings.TrimSpace(out.Text), CapturedAt: captured}
	if u.Text != "" {
		u.Confidence = 0.95
	}
	return u, nil
}

// writeWAV wraps PCM in a minimal 16-bit mono RIFF container.
func writeWAV(w io.Writer, pcm []float32, rate int) error {
	samples := make([]int16, len(pcm))
	for i, v := range pcm {
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		samples[i] = int16(v * 32767)
	}
	dataLen := uint32(len(samples) * 2)

	var hdr bytes.Buffer
	hdr.WriteString("RIFF")
	binary.Write(&hdr, binary.LittleEndian, 36+dataLen)
	hdr.WriteString("WAVE")
	hdr.WriteString("fmt ")
	binary.Write(&hdr, binary.LittleEndian, uint32(16))
	binary.Write(&hdr, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&hdr, binary.LittleEndian, uint16(1)) // mono
	binary.Write(&hdr, binary.LittleEndian, uint32(rate))
	binary.Write(&hdr, binary.LittleEndian, uint32(rate*2))
	binary.Write(&hdr, binary.LittleEndian, uint16(2))
	binary.Write(&hdr, binary.LittleEndian, uint16(16))
	hdr.WriteString("data")
	binary.Write(&hdr, binary.LittleEndian, dataLen)

	if _, err := w.Write(hdr.Bytes()); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, samples)
}
