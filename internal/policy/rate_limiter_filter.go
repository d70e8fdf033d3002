package policy

import (
	"context"
	"fmt"
	"strconv"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"

	"github.com/lessucettes/adresu-wordguard/internal/config"
	"github.com/lessucettes/adresu-wordguard/internal/validation"
)

const (
	rateLimiterFilterName = "RateLimiterFilter"
	MsgRateLimited        = "you are posting too fast, please wait a moment"
)

type processedRateRule struct {
	rule *config.RateLimitRule
	id   string
}

// RateLimiterFilter keeps one token bucket per (rule, author or IP) pair.
// Buckets live in an expiring LRU so idle users are forgotten.
type RateLimiterFilter struct {
	cfg        *config.RateLimiterConfig
	limiters   *lru.LRU[string, *rate.Limiter]
	typeToRule map[validation.ContentType]processedRateRule
}

func NewRateLimiterFilter(cfg *config.RateLimiterConfig) (*RateLimiterFilter, error) {
	size := cfg.CacheSize
	if size <= 0 {
		size = 65536
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = time.Minute * 10
	}

	cache := lru.NewLRU[string, *rate.Limiter](size, nil, ttl)
	typeMap := make(map[validation.ContentType]processedRateRule, len(cfg.Rules))

	for i := range cfg.Rules {
		rule := &cfg.Rules[i]
		processed := processedRateRule{
			rule: rule,
			id:   "rule-" + strconv.Itoa(i),
		}
		for _, ct := range rule.ContentTypes {
			typeMap[validation.ContentType(ct)] = processed
		}
	}

	return &RateLimiterFilter{
		cfg:        cfg,
		limiters:   cache,
		typeToRule: typeMap,
	}, nil
}

func (f *RateLimiterFilter) Match(_ context.Context, sub *Submission) (FilterResult, error) {
	newResult := NewResultFunc(rateLimiterFilterName)

	if !f.cfg.Enabled {
		return newResult(true, "filter_disabled", nil)
	}

	currentRate := f.cfg.DefaultRate
	currentBurst := f.cfg.DefaultBurst
	ruleID := "default"
	if processed, exists := f.typeToRule[sub.ContentType]; exists {
		currentRate = processed.rule.Rate
		currentBurst = processed.rule.Burst
		ruleID = processed.id
	}

	if currentRate <= 0 {
		return newResult(true, "rate_unlimited_for_content_type", nil)
	}

	userKeys := make([]string, 0, 2)
	switch f.cfg.By {
	case config.RateByIP:
		if sub.IP != "" {
			userKeys = append(userKeys, "ip:"+sub.IP)
		}
	case config.RateByAuthor:
		if sub.Author != "" {
			userKeys = append(userKeys, "author:"+sub.Author)
		}
	case config.RateByBoth:
		if sub.IP != "" {
			userKeys = append(userKeys, "ip:"+sub.IP)
		}
		if sub.Author != "" {
			userKeys = append(userKeys, "author:"+sub.Author)
		}
	}

	for _, userKey := range userKeys {
		cacheKey := fmt.Sprintf("%s:%s", ruleID, userKey)
		limiter := f.getLimiter(cacheKey, currentRate, currentBurst)
		if !limiter.Allow() {
			return newResult(false, MsgRateLimited, nil)
		}
	}
	return newResult(true, "rate_limit_ok", nil)
}

func (f *RateLimiterFilter) getLimiter(key string, r float64, b int) *rate.Limiter {
	if limiter, ok := f.limiters.Get(key); ok {
		return limiter
	}
	limiter := rate.NewLimiter(rate.Limit(r), b)
	f.limiters.Add(key, limiter)
	return limiter
}
