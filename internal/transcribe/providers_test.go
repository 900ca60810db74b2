package transcribe

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sttstudio/internal/interfaces"
)

func TestSelectProviderRoutesKotobaToHF(t *testing.T) {
	general := &GeneralProvider{}
	hf := &HFProvider{}

	assert.Equal(t, interfaces.Provider(hf), SelectProvider("kotoba-tech/kotoba-whisper-v2.2", general, hf))
	assert.Equal(t, interfaces.Provider(general), SelectProvider("nova-2-general", general, hf))
	assert.Equal(t, interfaces.Provider(general), SelectProvider("whisper-large", general, hf))
}

func TestGeneralProviderBuildsParamsAndParsesTranscript(t *testing.T) {
	var gotQuery map[string][]string
	var gotAuth, gotContentType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		w.Write([]byte(`{"results":{"channels":[{"alternatives":[{"transcript":"hello world"}]}]}}`))
	}))
	defer server.Close()

	client := NewClient(5*time.Second, 0)
	p := NewGeneralProvider(client, server.URL, "test-key")

	text, err := p.Transcribe(context.Background(), interfaces.TranscribeRequest{
		Audio:    []byte("RIFF"),
		Model:    "nova-2-general",
		Language: "en",
		Params:   map[string]string{"utt_split": "1.2", "keywords": "foo, bar"},
	})
	require.NoError(t, err)
	assert.Equal(t, "hello world", text)

	assert.Equal(t, "Token test-key", gotAuth)
	assert.Equal(t, "audio/wav", gotContentType)
	assert.Equal(t, []string{"nova-2-general"}, gotQuery["model"])
	assert.Equal(t, []string{"en"}, gotQuery["language"])
	assert.Empty(t, gotQuery["detect_language"])
	assert.Equal(t, []string{"true"}, gotQuery["smart_format"])
	assert.Equal(t, []string{"1.2"}, gotQuery["utt_split"])
	assert.ElementsMatch(t, []string{"foo", "bar"}, gotQuery["keywords"])
}

func TestGeneralProviderAutoLanguageSetsDetect(t *testing.T) {
	var gotQuery map[string][]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		w.Write([]byte(`{"results":{"channels":[]}}`))
	}))
	defer server.Close()

	p := NewGeneralProvider(NewClient(5*time.Second, 0), server.URL, "k")
	text, err := p.Transcribe(context.Background(), interfaces.TranscribeRequest{Model: "nova-3-general", Language: "auto"})
	require.NoError(t, err)
	assert.Empty(t, text)
	assert.Equal(t, []string{"true"}, gotQuery["detect_language"])
	assert.Empty(t, gotQuery["language"])
}

func TestGeneralProviderWhisperLargeDefaultsSmartFormatOff(t *testing.T) {
	var gotQuery map[string][]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		w.Write([]byte(`{"results":{"channels":[]}}`))
	}))
	defer server.Close()

	p := NewGeneralProvider(NewClient(5*time.Second, 0), server.URL, "k")
	_, err := p.Transcribe(context.Background(), interfaces.TranscribeRequest{Model: "whisper-large", Language: "en"})
	require.NoError(t, err)
	assert.Equal(t, []string{"false"}, gotQuery["smart_format"])
}

func TestGeneralProviderNon200ReturnsUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "over quota", http.StatusTooManyRequests)
	}))
	defer server.Close()

	p := NewGeneralProvider(NewClient(5*time.Second, 0), server.URL, "k")
	_, err := p.Transcribe(context.Background(), interfaces.TranscribeRequest{Model: "nova-2-general", Language: "en"})
	require.Error(t, err)

	var ue *UpstreamError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, "DG", ue.Kind)
	assert.Equal(t, http.StatusTooManyRequests, ue.StatusCode)
	assert.Contains(t, err.Error(), "DG_ERR_429")
}

func TestHFProviderParsesTextAndSendsBearer(t *testing.T) {
	var gotAuth, gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotQuery = r.URL.RawQuery
		w.Write([]byte(`{"text":"こんにちは"}`))
	}))
	defer server.Close()

	p := NewHFProvider(NewClient(5*time.Second, 0), server.URL, "hf-token")
	text, err := p.Transcribe(context.Background(), interfaces.TranscribeRequest{Model: "kotoba-tech/kotoba-whisper-v2.2"})
	require.NoError(t, err)
	assert.Equal(t, "こんにちは", text)
	assert.Equal(t, "Bearer hf-token", gotAuth)
	assert.Equal(t, "wait_for_model=true", gotQuery)
}

func TestHFProviderNon200ReturnsUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "loading", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	p := NewHFProvider(NewClient(5*time.Second, 0), server.URL, "t")
	_, err := p.Transcribe(context.Background(), interfaces.TranscribeRequest{})
	require.Error(t, err)

	var ue *UpstreamError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, "HF", ue.Kind)
	assert.Equal(t, 503, ue.StatusCode)
}
