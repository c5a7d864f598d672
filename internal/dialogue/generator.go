// Package dialogue turns a persona, recent conversation and a prompt into a short
// reply via the AI service. Replies are cached for a few minutes and failures
// degrade to a fixed fallback so the simulation never stalls on AI outages.
package dialogue

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/talgya/npc-city/internal/llm"
)

// Fallback is returned whenever the AI service cannot produce a reply.
const Fallback = "(NPC is silent for now: AI error)"

// Defaults mirror the limits the city has always used.
const (
	DefaultHistoryLimit = 10
	DefaultKeyTurns     = 3
	DefaultCacheSize    = 100
	DefaultCacheTTL     = 5 * time.Minute
	DefaultMaxTokens    = 200
	DefaultTemperature  = 0.8
	DefaultCallTimeout  = 30 * time.Second
)

// Completer is the AI text-generation dependency. *llm.Client satisfies it.
type Completer interface {
	Complete(ctx context.Context, r llm.Request) (string, error)
}

// Turn is one prior conversation entry in AI role terms ("user" or "assistant").
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Options tunes a Generator. Zero values fall back to the defaults above.
type Options struct {
	HistoryLimit int
	KeyTurns     int
	CacheSize    int
	CacheTTL     time.Duration
	MaxTokens    int
	Temperature  float64
	CallTimeout  time.Duration // Upper bound on one shared AI call
}

func (o Options) withDefaults() Options {
	if o.HistoryLimit <= 0 {
		o.HistoryLimit = DefaultHistoryLimit
	}
	if o.KeyTurns <= 0 {
		o.KeyTurns = DefaultKeyTurns
	}
	if o.CacheSize <= 0 {
		o.CacheSize = DefaultCacheSize
	}
	if o.CacheTTL <= 0 {
		o.CacheTTL = DefaultCacheTTL
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = DefaultMaxTokens
	}
	if o.Temperature == 0 {
		o.Temperature = DefaultTemperature
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = DefaultCallTimeout
	}
	return o
}

// Generator is the caching wrapper around the AI call. Safe for concurrent use.
type Generator struct {
	ai    Completer
	opts  Options
	cache *expirable.LRU[string, string]
	calls singleflight.Group
}

// NewGenerator creates a generator. A nil ai always yields Fallback.
func NewGenerator(ai Completer, opts Options) *Generator {
	opts = opts.withDefaults()
	return &Generator{
		ai:    ai,
		opts:  opts,
		cache: expirable.NewLRU[string, string](opts.CacheSize, nil, opts.CacheTTL),
	}
}

// Generate returns a trimmed reply for prompt spoken by persona, given the
// conversation so far. It never returns an error.
func (g *Generator) Generate(ctx context.Context, persona string, history []Turn, prompt string) string {
	key := cacheKey(persona, prompt, tail(history, g.opts.KeyTurns))
	if reply, ok := g.cache.Get(key); ok {
		return reply
	}
	if g.ai == nil {
		return Fallback
	}

	// The shared call outlives any single caller: one waiter giving up must
	// not turn the others' replies into the fallback.
	ch := g.calls.DoChan(key, func() (any, error) {
		if reply, ok := g.cache.Get(key); ok {
			return reply, nil
		}
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.opts.CallTimeout)
		defer cancel()
		reply, err := g.ai.Complete(callCtx, g.request(persona, history, prompt))
		if err != nil {
			return "", err
		}
		reply = strings.TrimSpace(reply)
		if reply == "" {
			return "", errEmptyReply
		}
		g.cache.Add(key, reply)
		return reply, nil
	})

	select {
	case <-ctx.Done():
		slog.Debug("AI reply abandoned", "error", ctx.Err())
		return Fallback
	case res := <-ch:
		if res.Err != nil {
			slog.Error("AI error", "error", res.Err)
			return Fallback
		}
		return res.Val.(string)
	}
}

func (g *Generator) request(persona string, history []Turn, prompt string) llm.Request {
	recent := tail(history, g.opts.HistoryLimit)
	msgs := make([]llm.Message, 0, len(recent)+1)
	for _, t := range recent {
		msgs = append(msgs, llm.Message{Role: t.Role, Content: t.Content})
	}
	msgs = append(msgs, llm.Message{Role: "user", Content: prompt})
	return llm.Request{
		System:      persona,
		Messages:    msgs,
		MaxTokens:   g.opts.MaxTokens,
		Temperature: g.opts.Temperature,
	}
}

var errEmptyReply = errors.New("empty reply")

func tail(history []Turn, n int) []Turn {
	if len(history) <= n {
		return history
	}
	return history[len(history)-n:]
}

func cacheKey(persona, prompt string, recent []Turn) string {
	h, _ := json.Marshal(recent)
	var b strings.Builder
	b.Grow(len(persona) + len(prompt) + len(h) + 2)
	b.WriteString(persona)
	b.WriteByte(0)
	b.WriteString(prompt)
	b.WriteByte(0)
	b.Write(h)
	return b.String()
}
