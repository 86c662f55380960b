package completion

import (
	"context"
	"fmt"
	"strings"
)

// MockClient returns a deterministic reply derived from the last user line
// of the prompt. Used for offline development.
type MockClient struct{}

func NewMockClient() *MockClient { return &MockClient{} }

func (c *MockClient) Complete(ctx context.Context, prompt string, _ Params) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}
	return fmt.Sprintf("I heard you: %s", lastUserLine(prompt)), nil
}

func lastUserLine(prompt string) string {
	lines := strings.Split(prompt, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if rest, ok := strings.CutPrefix(strings.TrimSpace(lines[i]), "User:"); ok {
			return strings.TrimSpace(rest)
		}
	}
	return "(nothing)"
}
