package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/klumsiland/chat-server/internal/ai"
	"github.com/klumsiland/chat-server/internal/config"
	apperrors "github.com/klumsiland/chat-server/internal/errors"
	"github.com/klumsiland/chat-server/internal/model"
)

// Fallback texts returned instead of upstream errors.
const (
	StoryUnavailable = "Story generation not available"
	StoryDamaged     = "The ancient scrolls containing this story have been damaged..."
)

const (
	storyTemperature    = 0.8
	storyMaxTokens      = 1000
	suggestionMaxTokens = 100
	translateMaxTokens  = 200
)

// Generator is the subset of the AI client used for stories. *ai.Client implements it.
type Generator interface {
	CreateChatCompletion(ctx context.Context, req *ai.ChatCompletionRequest) (*ai.ChatCompletionResponse, error)
	CreateImage(ctx context.Context, req *ai.ImageRequest) (*ai.ImageResponse, error)
}

type StoryConfig struct {
	Model     string
	ImageSize string
	// Window is the number of recent messages a story is built from.
	Window int
}

// StoryService turns role-play conversations into generated stories and images.
// Upstream failures never surface as errors: callers get fallback text instead.
type StoryService struct {
	generator Generator
	chat      *ChatService
	cfg       StoryConfig
}

// NewStoryService returns a service that answers every request with fallbacks
// when generator is nil.
func NewStoryService(generator Generator, chat *ChatService, cfg StoryConfig) *StoryService {
	return &StoryService{
		generator: generator,
		chat:      chat,
		cfg:       cfg,
	}
}

func (s *StoryService) Enabled() bool {
	return s.generator != nil
}

// GenerateStory writes an alternative history story from the recent messages of a session.
func (s *StoryService) GenerateStory(ctx context.Context, sessionID, era, year string) (string, error) {
	era = strings.TrimSpace(era)
	if era == "" {
		return "", apperrors.MissingRequired("era")
	}
	if !s.Enabled() {
		return StoryUnavailable, nil
	}

	messages, err := s.chat.Recent(ctx, sessionID, s.cfg.Window)
	if err != nil {
		return "", err
	}

	system := fmt.Sprintf("You are a creative storyteller specializing in alternative history narratives. "+
		"Based on the following conversation taking place in %s (Year: %s), "+
		"create a compelling \"What If\" scenario that explores an alternative historical outcome. "+
		"Make it dramatic, historically plausible, and engaging.", era, strings.TrimSpace(year))
	user := fmt.Sprintf("Conversation:\n%s\n\nCreate a \"What If\" alternative history story based on this conversation.",
		formatConversation(messages))

	temperature := storyTemperature
	maxTokens := storyMaxTokens
	resp, err := s.generator.CreateChatCompletion(ctx, &ai.ChatCompletionRequest{
		Model: s.cfg.Model,
		Messages: []ai.ChatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: &temperature,
		MaxTokens:   &maxTokens,
	})
	if err != nil {
		log.Warn().Err(err).Str("sessionId", sessionID).Msg("story generation failed")
		return StoryDamaged, nil
	}

	story := resp.Text()
	if story == "" {
		return StoryDamaged, nil
	}

	log.Info().Str("sessionId", sessionID).Int("messages", len(messages)).Msg("story generated")
	return story, nil
}

// GenerateImage returns the URL of a generated scene, or "" when generation fails.
func (s *StoryService) GenerateImage(ctx context.Context, era string, characters []string, scene string) (string, error) {
	era = strings.TrimSpace(era)
	scene = strings.TrimSpace(scene)
	if era == "" {
		return "", apperrors.MissingRequired("era")
	}
	if scene == "" {
		return "", apperrors.MissingRequired("scene")
	}
	if !s.Enabled() {
		return "", nil
	}

	prompt := fmt.Sprintf("Create a historically accurate image set in %s featuring %s in the following scene: %s.",
		era, strings.Join(characters, " and "), scene)

	resp, err := s.generator.CreateImage(ctx, &ai.ImageRequest{
		Prompt: prompt,
		N:      1,
		Size:   s.cfg.ImageSize,
	})
	if err != nil {
		log.Warn().Err(err).Msg("image generation failed")
		return "", nil
	}
	if len(resp.Data) == 0 {
		return "", nil
	}
	return resp.Data[0].URL, nil
}

type SuggestParams struct {
	UserName   string
	IsRolePlay bool
	Era        string
	Character  string
}

// Suggest proposes a reply for the visitor based on the last few messages, or "".
func (s *StoryService) Suggest(ctx context.Context, sessionID string, params SuggestParams) (string, error) {
	userName := strings.TrimSpace(params.UserName)
	if userName == "" {
		return "", apperrors.MissingRequired("userName")
	}
	if !s.Enabled() {
		return "", nil
	}

	messages, err := s.chat.Recent(ctx, sessionID, config.SuggestionWindow)
	if err != nil {
		return "", err
	}

	prompt := fmt.Sprintf("Based on this recent conversation:\n%s\n\nSuggest a response for %s",
		formatConversation(messages), userName)
	if params.IsRolePlay && params.Era != "" && params.Character != "" {
		prompt += fmt.Sprintf(", role-playing as %s in %s. Keep it historically accurate.", params.Character, params.Era)
	}

	maxTokens := suggestionMaxTokens
	resp, err := s.generator.CreateChatCompletion(ctx, &ai.ChatCompletionRequest{
		Model: s.cfg.Model,
		Messages: []ai.ChatMessage{
			{Role: "system", Content: "You are a helpful assistant suggesting concise responses."},
			{Role: "user", Content: prompt},
		},
		MaxTokens: &maxTokens,
	})
	if err != nil {
		log.Warn().Err(err).Str("sessionId", sessionID).Msg("suggestion failed")
		return "", nil
	}
	return resp.Text(), nil
}

// Translate returns text in language, or text unchanged when translation fails.
func (s *StoryService) Translate(ctx context.Context, text, language string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", apperrors.MissingRequired("message")
	}
	language = strings.TrimSpace(language)
	if language == "" {
		return "", apperrors.MissingRequired("targetLanguage")
	}
	if !s.Enabled() {
		return text, nil
	}

	maxTokens := translateMaxTokens
	resp, err := s.generator.CreateChatCompletion(ctx, &ai.ChatCompletionRequest{
		Model: s.cfg.Model,
		Messages: []ai.ChatMessage{
			{Role: "system", Content: "You are a professional translator."},
			{Role: "user", Content: fmt.Sprintf("Translate the following message to %s:\n\n%q", language, text)},
		},
		MaxTokens: &maxTokens,
	})
	if err != nil {
		log.Warn().Err(err).Str("language", language).Msg("translation failed")
		return text, nil
	}

	if translated := resp.Text(); translated != "" {
		return translated, nil
	}
	return text, nil
}

func formatConversation(messages []model.Message) string {
	lines := make([]string, 0, len(messages))
	for i := range messages {
		lines = append(lines, fmt.Sprintf("%s: %s", messages[i].Speaker(), messages[i].Content))
	}
	return strings.Join(lines, "\n")
}
