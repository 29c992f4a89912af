package providers

import (
	"encoding/json"
	"strconv"
	"strings"
)

// imageInputs returns the seed image URLs from either image_input or image_urls
func imageInputs(options map[string]any) []string {
	for _, key := range []string{"image_input", "image_urls"} {
		switch v := options[key].(type) {
		case []string:
			if len(v) > 0 {
				return v
			}
		case []any:
			urls := make([]string, 0, len(v))
			for _, item := range v {
				if s, ok := item.(string); ok && s != "" {
					urls = append(urls, s)
				}
			}
			if len(urls) > 0 {
				return urls
			}
		case string:
			if v != "" {
				return []string{v}
			}
		}
	}
	return nil
}

// videoInput returns a seed video URL, for video-to-video
func videoInput(options map[string]any) string {
	for _, key := range []string{"video_input", "video_url"} {
		if s, ok := options[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func stringOption(options map[string]any, key string) string {
	switch v := options[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	default:
		return ""
	}
}

// intOption accepts numbers and numeric strings such as "5" or "5s"
func intOption(options map[string]any, key string) (int, bool) {
	switch v := options[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	case json.Number:
		n, err := v.Int64()
		return int(n), err == nil
	case string:
		n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimSpace(v), "s"))
		return n, err == nil
	default:
		return 0, false
	}
}

// requirePrompt enforces that a prompt or some seed media is present
func requirePrompt(params GenerateParams) error {
	if strings.TrimSpace(params.Prompt) != "" {
		return nil
	}
	if len(imageInputs(params.Options)) > 0 || videoInput(params.Options) != "" {
		return nil
	}
	return ErrPromptRequired
}
