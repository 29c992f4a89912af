package main

import "media_gateway/internal/models"

// defaultCatalogue is the model catalogue shipped with a fresh install
func defaultCatalogue() []*models.ModelConfig {
	return []*models.ModelConfig{
		{
			ID:               "seedance-2.0",
			DisplayName:      "Seedance 2.0",
			Description:      "Latest multi-modal AI video model with text, image, and video-to-video support",
			CurrentProvider:  string(models.ProviderEvolink),
			ProviderModelID:  "seedance-2.0",
			ProviderModelMap: models.ProviderModelMap{"evolink": "seedance-2.0"},
			Enabled:          true,
			Verified:         true,
			SupportedModes:   models.StringList{models.SceneTextToVideo, models.SceneImageToVideo, models.SceneVideoToVideo},
			Parameters: models.ModelParameters{
				Resolutions:  []string{"480p", "720p"},
				Durations:    []int{5, 10},
				AspectRatios: []string{"16:9", "9:16", "1:1"},
			},
			CreditsCost: models.CreditsCost{
				models.SceneTextToVideo:  6,
				models.SceneImageToVideo: 8,
				models.SceneVideoToVideo: 10,
			},
			Tags:     models.StringList{"Multi-Modal", "With Audio"},
			Priority: 100,
		},
		{
			ID:               "seedance-1.5-pro",
			DisplayName:      "Seedance 1.5 Pro",
			Description:      "Professional AI video model with audio support",
			CurrentProvider:  string(models.ProviderFal),
			ProviderModelID:  "fal-ai/bytedance/seedance/v1.5/pro",
			ProviderModelMap: models.ProviderModelMap{"fal": "fal-ai/bytedance/seedance/v1.5/pro"},
			Enabled:          true,
			Verified:         true,
			SupportedModes:   models.StringList{models.SceneTextToVideo, models.SceneImageToVideo},
			Parameters: models.ModelParameters{
				Resolutions: []string{"480p", "720p"},
				Durations:   []int{5, 10},
			},
			CreditsCost: models.CreditsCost{models.SceneTextToVideo: 6, models.SceneImageToVideo: 8},
			Tags:        models.StringList{"With Audio"},
			Priority:    90,
		},
		{
			ID:               "kling-3.0",
			DisplayName:      "Kling 3.0",
			Description:      "Kling 3.0 video model",
			CurrentProvider:  string(models.ProviderFal),
			ProviderModelID:  "fal-ai/kling-video/o3/standard/image-to-video",
			ProviderModelMap: models.ProviderModelMap{"fal": "fal-ai/kling-video/o3/standard/image-to-video"},
			Enabled:          true,
			SupportedModes:   models.StringList{models.SceneImageToVideo},
			Tags:             models.StringList{},
			Priority:         85,
		},
		{
			ID:               "veo-3",
			DisplayName:      "Veo 3",
			Description:      "Google Veo 3 text-to-video model",
			CurrentProvider:  string(models.ProviderFal),
			ProviderModelID:  "fal-ai/veo3",
			ProviderModelMap: models.ProviderModelMap{"fal": "fal-ai/veo3"},
			Enabled:          true,
			SupportedModes:   models.StringList{models.SceneTextToVideo},
			Parameters: models.ModelParameters{
				Resolutions: []string{"720p", "1080p"},
				Durations:   []int{5, 10},
			},
			CreditsCost: models.CreditsCost{models.SceneTextToVideo: 8},
			Tags:        models.StringList{"High Quality"},
			Priority:    80,
		},
		{
			ID:               "sora-2-pro",
			DisplayName:      "Sora 2 Pro",
			Description:      "OpenAI Sora 2 Pro video generation model",
			CurrentProvider:  string(models.ProviderKie),
			ProviderModelID:  "sora-2-pro-text-to-video",
			ProviderModelMap: models.ProviderModelMap{"kie": "sora-2-pro-text-to-video"},
			Enabled:          true,
			SupportedModes:   models.StringList{models.SceneTextToVideo, models.SceneImageToVideo},
			Parameters: models.ModelParameters{
				Resolutions: []string{"480p", "720p", "1080p"},
				Durations:   []int{5, 10, 15},
			},
			CreditsCost: models.CreditsCost{models.SceneTextToVideo: 10, models.SceneImageToVideo: 12},
			Tags:        models.StringList{"Premium"},
			Priority:    70,
		},
	}
}
