package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ErrSuspicious is returned when the endpoint answered with something
// that reads like a refusal instead of a translation.
var ErrSuspicious = errors.New("translation looks like a refusal")

// Translator translates text into targetLang.
type Translator interface {
	Translate(ctx context.Context, text, targetLang string) (string, error)
}

type request struct {
	Text       string `json:"text"`
	TargetLang string `json:"targetLang"`
}

type response struct {
	Translated string `json:"translated"`
}

// Client calls the external POST {text, targetLang} -> {translated} endpoint.
type Client struct {
	url  string
	http *http.Client
}

func NewClient(url string, timeout time.Duration) *Client {
	return &Client{
		url:  url,
		http: &http.Client{Timeout: timeout},
	}
}

func (c *Client) Translate(ctx context.Context, text, targetLang string) (string, error) {
	body, err := json.Marshal(request{Text: text, TargetLang: targetLang})
	if err != nil {
		return "", fmt.Errorf("failed to marshal translation request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build translation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call translation endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("translation endpoint returned %d", resp.StatusCode)
	}
	var out response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode translation response: %w", err)
	}
	translated := strings.TrimSpace(out.Translated)
	if translated == "" {
		return "", errors.New("empty translation")
	}
	if LooksLikeRefusal(text, translated) {
		return "", ErrSuspicious
	}
	return translated, nil
}

var refusalMarkers = []string{
	"i'm sorry",
	"i am sorry",
	"sorry, i",
	"i cannot",
	"i can't",
	"as an ai",
	"unable to translate",
	"عذرا",
	"عذراً",
	"آسف",
	"لا أستطيع",
}

// LooksLikeRefusal reports whether translated reads like an apology or a
// refusal that the original text did not contain.
func LooksLikeRefusal(original, translated string) bool {
	t := strings.ToLower(translated)
	o := strings.ToLower(original)
	for _, marker := range refusalMarkers {
		if strings.Contains(t, marker) && !strings.Contains(o, marker) {
			return true
		}
	}
	return false
}

// Noop returns the text unchanged. It is used when no endpoint is configured.
type Noop struct{}

func (Noop) Translate(_ context.Context, text, _ string) (string, error) {
	return text, nil
}
