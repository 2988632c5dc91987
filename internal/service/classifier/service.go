package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/zhouzirui/z-haven/backend/internal/analysis/crisis"
	"github.com/zhouzirui/z-haven/backend/internal/logger"
	"github.com/zhouzirui/z-haven/backend/internal/model/triage"
)

// ErrClassificationFailure 表示无法得到可信的分类结果。调用方不得据此默认为 neutral。
var ErrClassificationFailure = errors.New("classification failed")

// Config 控制分类服务的行为。
type Config struct {
	// CacheTTL 缓存分类结果，相同文本走相同路由。为 0 时不缓存。
	CacheTTL time.Duration
	// Screen 非空时，明显的紧急表述在调用模型前直接判定为 emergency。
	Screen *crisis.Screen
}

// Service 使用大模型把用户消息分为 emergency / distress / neutral。
type Service struct {
	classifier compose.Runnable[map[string]any, *schema.Message]
	screen     *crisis.Screen
	cache      *cache.Cache
	log        *zap.Logger
}

// NewService 编译分类链。chatModel 可与补全服务共用。
func NewService(ctx context.Context, chatModel model.ChatModel, cfg Config, log *zap.Logger) (*Service, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("chat model is required")
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage(classifierSystemPrompt),
		schema.UserMessage(classifierUserPrompt),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile classifier chain: %w", err)
	}

	svc := &Service{
		classifier: runnable,
		screen:     cfg.Screen,
		log:        logger.Module(log, "classifier"),
	}
	if cfg.CacheTTL > 0 {
		svc.cache = cache.New(cfg.CacheTTL, 2*cfg.CacheTTL)
	}
	return svc, nil
}

// Classify 返回文本的分类。任何失败都以 ErrClassificationFailure 返回。
func (s *Service) Classify(ctx context.Context, text string) (triage.Category, error) {
	key := cacheKey(text)
	if key == "" {
		return "", fmt.Errorf("%w: empty text", ErrClassificationFailure)
	}

	if s.cache != nil {
		if cached, found := s.cache.Get(key); found {
			return cached.(triage.Category), nil
		}
	}

	if s.screen != nil {
		if hits := s.screen.Find(text, true); len(hits) > 0 {
			s.log.Info("crisis lexicon hit", zap.String("phrase", hits[0].Phrase))
			s.remember(key, triage.Emergency)
			return triage.Emergency, nil
		}
	}

	msg, err := s.classifier.Invoke(ctx, map[string]any{"message": strings.TrimSpace(text)},
		compose.WithChatModelOption(model.WithTemperature(0)))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrClassificationFailure, err)
	}
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		return "", fmt.Errorf("%w: empty model output", ErrClassificationFailure)
	}

	category, reason, err := parseClassifierOutput(msg.Content)
	if err != nil {
		s.log.Warn("unusable classifier output", zap.String("output", msg.Content), zap.Error(err))
		return "", fmt.Errorf("%w: %v", ErrClassificationFailure, err)
	}

	s.log.Debug("classified message", zap.String("category", string(category)), zap.String("reason", reason))
	s.remember(key, category)
	return category, nil
}

func (s *Service) remember(key string, category triage.Category) {
	if s.cache != nil {
		s.cache.Set(key, category, cache.DefaultExpiration)
	}
}

// cacheKey 对文本做大小写与空白归一。
func cacheKey(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// parseClassifierOutput 接受要求的 JSON 对象，也接受单独的标签。
func parseClassifierOutput(content string) (triage.Category, string, error) {
	trimmed := strings.TrimSpace(content)

	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start != -1 && end > start {
		payload := &classifierPayload{}
		if err := json.Unmarshal([]byte(trimmed[start:end+1]), payload); err != nil {
			return "", "", err
		}
		category, ok := triage.ParseCategory(payload.Category)
		if !ok {
			return "", "", fmt.Errorf("unknown category %q", payload.Category)
		}
		return category, strings.TrimSpace(payload.Reason), nil
	}

	category, ok := triage.ParseCategory(trimmed)
	if !ok {
		return "", "", fmt.Errorf("unknown category %q", trimmed)
	}
	return category, "", nil
}

type classifierPayload struct {
	Category string `json:"category"`
	Reason   string `json:"reason"`
}

const classifierSystemPrompt = "You triage messages sent to a mental wellness helpline. Classify the user's message into exactly one category.\n" +
	"emergency: immediate danger to life or safety, such as suicidal intent, self-harm in progress, overdose, violence or a medical emergency.\n" +
	"distress: emotional pain, hopelessness, anxiety or sadness that warrants follow-up by a human professional, without immediate danger.\n" +
	"neutral: everything else, including greetings and general questions.\n" +
	"The message may be written in English or Tamil. Reply with only a JSON object with two string fields: category (one of emergency, distress, neutral) and reason (one short sentence). Do not output anything else."

const classifierUserPrompt = "Message:\n{message}"
