// Package tokencount counts prompt tokens for grading requests.
//
// Encodings are loaded from the offline BPE tables bundled by
// tiktoken-go-loader, so counting never reaches the network.
package tokencount

import (
	"log/slog"
	"strings"
	"sync"

	tiktoken "github.com/pkoukk/tiktoken-go"
	tiktokenloader "github.com/pkoukk/tiktoken-go-loader"
)

func init() {
	tiktoken.SetBpeLoader(tiktokenloader.NewOfflineLoader())
}

// Counter caches one encoding per model family. Safe for concurrent use.
type Counter struct {
	mu    sync.RWMutex
	cache map[string]*tiktoken.Tiktoken
}

// NewCounter creates an empty Counter.
func NewCounter() *Counter {
	return &Counter{cache: make(map[string]*tiktoken.Tiktoken)}
}

// DefaultCounter is shared by the AI adapters.
var DefaultCounter = NewCounter()

func (c *Counter) encoding(model string) (*tiktoken.Tiktoken, error) {
	name := normalizeModelName(model)

	c.mu.RLock()
	enc, ok := c.cache[name]
	c.mu.RUnlock()
	if ok {
		return enc, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if enc, ok := c.cache[name]; ok {
		return enc, nil
	}
	enc, err := tiktoken.EncodingForModel(name)
	if err != nil {
		slog.Debug("falling back to cl100k_base encoding", slog.String("model", model), slog.Any("error", err))
		if enc, err = tiktoken.GetEncoding("cl100k_base"); err != nil {
			return nil, err
		}
	}
	c.cache[name] = enc
	return enc, nil
}

// normalizeModelName maps provider model ids onto names tiktoken knows.
func normalizeModelName(model string) string {
	model = strings.ToLower(model)
	if i := strings.LastIndex(model, "/"); i >= 0 {
		model = model[i+1:]
	}
	switch {
	case strings.HasPrefix(model, "gpt-4o"):
		return "gpt-4o"
	case strings.Contains(model, "gpt-3.5"):
		return "gpt-3.5-turbo"
	default:
		// cl100k_base is close enough for the other families
		return "gpt-4"
	}
}

// CountTokens counts the tokens of text for model.
func (c *Counter) CountTokens(text, model string) (int, error) {
	enc, err := c.encoding(model)
	if err != nil {
		return 0, err
	}
	return len(enc.Encode(text, nil, nil)), nil
}

// CountChat counts a system + user chat request including the per-message
// framing overhead of OpenAI-compatible APIs.
func (c *Counter) CountChat(systemPrompt, userPrompt, model string) int {
	enc, err := c.encoding(model)
	if err != nil {
		// ~4 chars per token
		return (len(systemPrompt) + len(userPrompt)) / 4
	}
	const perMessage = 4
	n := 3 // reply priming
	for _, m := range [][2]string{{"system", systemPrompt}, {"user", userPrompt}} {
		n += perMessage + len(enc.Encode(m[0], nil, nil)) + len(enc.Encode(m[1], nil, nil))
	}
	return n
}
