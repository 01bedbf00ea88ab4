package advisor

import (
	"os"
	"strings"

	"go.uber.org/zap"
)

const DefaultSystemPrompt = `You are a personal financial advisor. Answer using the client's own figures from the context below.
Quote exact dollar amounts and percentages from the context whenever they are relevant.
If the context does not contain a figure you need, say so instead of guessing.
Keep answers concise and actionable.`

// LoadSystemPrompt reads the prompt file, falling back to
// DefaultSystemPrompt when it is missing or empty.
func LoadSystemPrompt(path string, logger *zap.Logger) string {
	if path == "" {
		return DefaultSystemPrompt
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if logger != nil {
			logger.Warn("system prompt unreadable, using default", zap.String("path", path), zap.Error(err))
		}
		return DefaultSystemPrompt
	}
	if s := strings.TrimSpace(string(data)); s != "" {
		return s
	}
	return DefaultSystemPrompt
}
