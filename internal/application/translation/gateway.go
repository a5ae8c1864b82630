package translation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"fable-ai-api/internal/application/language"
	"fable-ai-api/pkg/logger"
	"fable-ai-api/pkg/metrics"
)

// Provider 翻译提供商端口
type Provider interface {
	Name() string
	// MaxTextLength 单次请求最大字符数，<=0 表示不限制
	MaxTextLength() int
	Translate(ctx context.Context, text, sourceCode, targetCode string) (string, error)
}

// FieldCache 已翻译字段缓存，Get 未命中返回 ok=false
type FieldCache interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
}

// Backoff 指数退避
type Backoff struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
}

// Delay 第 retry 次重试前的等待时间（retry 从 0 开始）
func (b Backoff) Delay(retry int) time.Duration {
	d := b.Initial
	for i := 0; i < retry; i++ {
		d = time.Duration(float64(d) * b.Multiplier)
		if d > b.Max {
			return b.Max
		}
	}
	return d
}

// Config 网关配置
type Config struct {
	RequestTimeout time.Duration
	MaxAttempts    int
	Backoff        Backoff
	Concurrency    int
	// MaxTextLength 覆盖语言表中的默认上限，<=0 使用默认值
	MaxTextLength int
}

func (c Config) withDefaults() Config {
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 20 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.Backoff.Initial <= 0 {
		c.Backoff = Backoff{Initial: 500 * time.Millisecond, Max: 8 * time.Second, Multiplier: 2}
	}
	if c.Backoff.Multiplier < 1 {
		c.Backoff.Multiplier = 1
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.MaxTextLength <= 0 {
		c.MaxTextLength = language.MaxTranslatableLength
	}
	return c
}

type boundProvider struct {
	provider Provider
	limiter  *rate.Limiter
}

// Gateway 翻译网关
type Gateway struct {
	cfg       Config
	cache     FieldCache
	mu        sync.RWMutex
	providers map[language.Provider]boundProvider
	sleep     func(ctx context.Context, d time.Duration) error
}

// NewGateway 创建翻译网关，cache 可为 nil
func NewGateway(cfg Config, cache FieldCache) *Gateway {
	return &Gateway{
		cfg:       cfg.withDefaults(),
		cache:     cache,
		providers: make(map[language.Provider]boundProvider),
		sleep:     sleepContext,
	}
}

// Register 注册提供商，limiter 为 nil 时不限速
func (g *Gateway) Register(p Provider, limiter *rate.Limiter) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.providers[language.Provider(p.Name())] = boundProvider{provider: p, limiter: limiter}
}

func (g *Gateway) provider(name language.Provider) (boundProvider, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	bp, ok := g.providers[name]
	if !ok {
		return boundProvider{}, &ProviderError{Provider: string(name), Err: ErrProviderNotConfigured}
	}
	return bp, nil
}

// TranslateText 翻译单个字段，超长时按段落/句子切分后逐块翻译
func (g *Gateway) TranslateText(ctx context.Context, res language.Resolution, text string) (string, error) {
	if !res.Tier.NeedsTranslation() || strings.TrimSpace(text) == "" {
		return text, nil
	}
	bp, err := g.provider(res.Provider)
	if err != nil {
		return "", err
	}

	limit := g.cfg.MaxTextLength
	if pl := bp.provider.MaxTextLength(); pl > 0 && pl < limit {
		limit = pl
	}
	chunks, cut := SplitText(text, limit)
	if cut {
		logger.Warn(ctx, "sentence longer than provider limit was split on word boundaries",
			"provider", bp.provider.Name(), "limit", limit)
	}

	out := make([]Chunk, len(chunks))
	for i, c := range chunks {
		out[i].Sep = c.Sep
		if strings.TrimSpace(c.Text) == "" {
			out[i].Text = c.Text
			continue
		}
		translated, err := g.translateChunk(ctx, bp, res, c.Text)
		if err != nil {
			return "", err
		}
		out[i].Text = translated
	}
	return JoinChunks(out), nil
}

func (g *Gateway) translateChunk(ctx context.Context, bp boundProvider, res language.Resolution, text string) (string, error) {
	name := bp.provider.Name()
	var lastErr error
	for attempt := 1; attempt <= g.cfg.MaxAttempts; attempt++ {
		if bp.limiter != nil {
			if err := bp.limiter.Wait(ctx); err != nil {
				return "", fmt.Errorf("translation rate limiter: %w", err)
			}
		}

		translated, err := g.call(ctx, bp.provider, res, text)
		if err == nil {
			return translated, nil
		}
		lastErr = err
		if !IsTransient(err) || ctx.Err() != nil {
			return "", err
		}
		if attempt < g.cfg.MaxAttempts {
			delay := g.cfg.Backoff.Delay(attempt - 1)
			logger.Warn(ctx, "transient translation failure, retrying",
				"provider", name, "attempt", attempt, "delay", delay.String(), "error", err)
			if err := g.sleep(ctx, delay); err != nil {
				return "", lastErr
			}
		}
	}
	return "", lastErr
}

// call 单次有超时的提供商调用
func (g *Gateway) call(ctx context.Context, p Provider, res language.Resolution, text string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.cfg.RequestTimeout)
	defer cancel()

	start := time.Now()
	translated, err := p.Translate(callCtx, text, res.SourceCode, res.ProviderCode)
	metrics.TranslationCallDuration.WithLabelValues(p.Name()).Observe(time.Since(start).Seconds())

	if err == nil {
		metrics.TranslationCallTotal.WithLabelValues(p.Name(), "success").Inc()
		return translated, nil
	}
	if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		err = &ProviderError{Provider: p.Name(), Transient: true, Err: fmt.Errorf("request timed out after %s: %w", g.cfg.RequestTimeout, context.DeadlineExceeded)}
	}
	status := "permanent_error"
	if IsTransient(err) {
		status = "transient_error"
	}
	metrics.TranslationCallTotal.WithLabelValues(p.Name(), status).Inc()
	return "", err
}

// StoryText 故事中需要翻译的字段
type StoryText struct {
	Title      string
	Synopsis   string
	Chapters   []ChapterText
	Conclusion string
}

// ChapterText 章节标题与正文
type ChapterText struct {
	Title   string
	Content string
}

// TranslateStory 并发翻译各字段，整体成功或整体失败
// 成功的字段写入缓存，任务重试时不会重复翻译
func (g *Gateway) TranslateStory(ctx context.Context, res language.Resolution, in StoryText) (StoryText, error) {
	if !res.Tier.NeedsTranslation() {
		return in, nil
	}

	out := StoryText{
		Title:      in.Title,
		Synopsis:   in.Synopsis,
		Conclusion: in.Conclusion,
		Chapters:   make([]ChapterText, len(in.Chapters)),
	}
	copy(out.Chapters, in.Chapters)

	fields := []*string{&out.Title, &out.Synopsis, &out.Conclusion}
	for i := range out.Chapters {
		fields = append(fields, &out.Chapters[i].Title, &out.Chapters[i].Content)
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.cfg.Concurrency)
	for _, field := range fields {
		field := field
		source := *field
		eg.Go(func() error {
			translated, err := g.translateField(egCtx, res, source)
			if err != nil {
				return err
			}
			*field = translated
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return StoryText{}, err
	}
	return out, nil
}

func (g *Gateway) translateField(ctx context.Context, res language.Resolution, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return text, nil
	}
	key := CacheKey(string(res.Provider), res.ProviderCode, text)
	if g.cache != nil {
		cached, ok, err := g.cache.Get(ctx, key)
		switch {
		case err != nil:
			logger.Warn(ctx, "translation cache lookup failed", "error", err)
		case ok:
			metrics.TranslationCacheHits.WithLabelValues("hit").Inc()
			return cached, nil
		default:
			metrics.TranslationCacheHits.WithLabelValues("miss").Inc()
		}
	}

	translated, err := g.TranslateText(ctx, res, text)
	if err != nil {
		return "", err
	}
	if g.cache != nil {
		if err := g.cache.Set(ctx, key, translated); err != nil {
			logger.Warn(ctx, "translation cache write failed", "error", err)
		}
	}
	return translated, nil
}

// CacheKey sha256(provider|target|text)
func CacheKey(provider, target, text string) string {
	sum := sha256.Sum256([]byte(provider + "|" + target + "|" + text))
	return hex.EncodeToString(sum[:])
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
