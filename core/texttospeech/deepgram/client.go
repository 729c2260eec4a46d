package deepgram

import (
	"fmt"
	"os"
	"slices"
)

type Voice string

const (
	VoiceThalia  Voice = "aura-2-thalia-en"
	VoiceAsteria Voice = "aura-2-asteria-en"
	VoiceOrion   Voice = "aura-2-orion-en"
	VoiceHelena  Voice = "aura-2-helena-en"
)

const defaultVoice = VoiceThalia

func AvailableVoices() []Voice {
	return []Voice{VoiceThalia, VoiceAsteria, VoiceOrion, VoiceHelena}
}

type TextToSpeechClient struct {
	apiKey string
	voice  Voice
}

type TextToSpeechClientOption func(*TextToSpeechClient)

func NewTextToSpeechClient(opts ...TextToSpeechClientOption) (*TextToSpeechClient, error) {
	client := &TextToSpeechClient{voice: defaultVoice}

	for _, opt := range opts {
		opt(client)
	}

	if client.apiKey == "" {
		apiKey, ok := os.LookupEnv("DEEPGRAM_API_KEY")
		if !ok {
			return nil, fmt.Errorf("deepgram api key not found")
		}
		client.apiKey = apiKey
	}

	return client, nil
}

func WithAPIKey(apiKey string) TextToSpeechClientOption {
	return func(c *TextToSpeechClient) { c.apiKey = apiKey }
}

func WithVoice(voice Voice) TextToSpeechClientOption {
	return func(c *TextToSpeechClient) {
		if !slices.Contains(AvailableVoices(), voice) {
			return
		}
		c.voice = voice
	}
}
