package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"sttstudio/internal/interfaces"
)

// UpstreamError is a non-200 reply from a transcription provider. Kind is
// "DG" for the general provider and "HF" for the inference endpoint, so
// the rendered tag matches the job log taxonomy (DG_ERR_503, HF_ERR_429).
type UpstreamError struct {
	Kind       string
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s_ERR_%d: %s", e.Kind, e.StatusCode, e.Body)
}

// perModelDefaults are the boolean flags the general provider sends unless
// overridden by options. whisper-large defaults
// smart_format to false; every other supported model defaults it true.
func perModelDefaults(model string) map[string]bool {
	defaults := map[string]bool{
		"smart_format":     true,
		"punctuate":        true,
		"diarize":          false,
		"paragraphs":       false,
		"numerals":         false,
		"profanity_filter": false,
		"utterances":       true,
		"filler_words":     false,
	}
	if model == "whisper-large" {
		defaults["smart_format"] = false
	}
	return defaults
}

// GeneralProvider talks to the Deepgram-style general transcription API:
// POST /v1/listen?<params>, Authorization: Token <key>.
type GeneralProvider struct {
	client  *Client
	baseURL string
	apiKey  string
}

func NewGeneralProvider(client *Client, baseURL, apiKey string) *GeneralProvider {
	return &GeneralProvider{client: client, baseURL: strings.TrimSuffix(baseURL, "/"), apiKey: apiKey}
}

func (p *GeneralProvider) Transcribe(ctx context.Context, req interfaces.TranscribeRequest) (string, error) {
	q := url.Values{}
	q.Set("model", req.Model)
	if req.Language == "auto" || req.Language == "" {
		q.Set("detect_language", "true")
	} else {
		q.Set("language", req.Language)
	}

	defaults := perModelDefaults(req.Model)
	for flag, def := range defaults {
		val := def
		if override, ok := req.Params[flag]; ok {
			val = override == "true" || override == "1"
		}
		q.Set(flag, strconv.FormatBool(val))
	}
	if uttSplit, ok := req.Params["utt_split"]; ok && uttSplit != "" {
		q.Set("utt_split", uttSplit)
	}
	if keywords, ok := req.Params["keywords"]; ok && keywords != "" {
		for _, kw := range strings.Split(keywords, ",") {
			if kw = strings.TrimSpace(kw); kw != "" {
				q.Add("keywords", kw)
			}
		}
	}

	endpoint := p.baseURL + "/listen?" + q.Encode()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(req.Audio))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Authorization", "Token "+p.apiKey)
	httpReq.Header.Set("Content-Type", "audio/wav")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", &UpstreamError{Kind: "DG", StatusCode: resp.StatusCode, Body: truncate(string(body), 300)}
	}

	var parsed struct {
		Results struct {
			Channels []struct {
				Alternatives []struct {
					Transcript string `json:"transcript"`
				} `json:"alternatives"`
			} `json:"channels"`
		} `json:"results"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("decode general provider response: %w", err)
	}
	if len(parsed.Results.Channels) == 0 || len(parsed.Results.Channels[0].Alternatives) == 0 {
		return "", nil
	}
	return parsed.Results.Channels[0].Alternatives[0].Transcript, nil
}

// HFProvider talks to the Hugging Face-style inference endpoint used for
// the Japanese-specialist kotoba model: POST <url>?wait_for_model=true,
// Authorization: Bearer <key>, no language/params.
type HFProvider struct {
	client *Client
	url    string
	token  string
}

func NewHFProvider(client *Client, endpointURL, token string) *HFProvider {
	return &HFProvider{client: client, url: endpointURL, token: token}
}

func (p *HFProvider) Transcribe(ctx context.Context, req interfaces.TranscribeRequest) (string, error) {
	endpoint := p.url + "?wait_for_model=true"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(req.Audio))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.token)
	httpReq.Header.Set("Content-Type", "audio/wav")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", &UpstreamError{Kind: "HF", StatusCode: resp.StatusCode, Body: truncate(string(body), 300)}
	}

	var parsed struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("decode hf provider response: %w", err)
	}
	return parsed.Text, nil
}

// SelectProvider picks general vs. HF-class by model name substring
// match: any model containing "kotoba" goes to the HF endpoint;
// everything else goes to the general provider.
func SelectProvider(model string, general, hf interfaces.Provider) interfaces.Provider {
	if strings.Contains(strings.ToLower(model), "kotoba") {
		return hf
	}
	return general
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
