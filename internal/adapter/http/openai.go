package http

import (
	"encoding/json"
	"regexp"
	"strings"
)

// chatCompletionsRequest is the accepted subset of the OpenAI chat API.
type chatCompletionsRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

// chatMessage keeps content raw: callers send either a plain string or a list
// of typed content parts.
type chatMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

type contentPart struct {
	Type     string `json:"type"`
	Text     string `json:"text"`
	ImageURL struct {
		URL string `json:"url"`
	} `json:"image_url"`
}

type chatCompletion struct {
	ID      string             `json:"id"`
	Object  string             `json:"object"`
	Created int64              `json:"created"`
	Model   string             `json:"model"`
	Choices []completionChoice `json:"choices"`
	Usage   completionUsage    `json:"usage"`
}

type completionChoice struct {
	Index        int               `json:"index"`
	Message      completionMessage `json:"message"`
	FinishReason string            `json:"finish_reason"`
}

type completionMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type completionChunk struct {
	ID      string        `json:"id"`
	Object  string        `json:"object"`
	Created int64         `json:"created"`
	Model   string        `json:"model"`
	Choices []chunkChoice `json:"choices"`
}

type chunkChoice struct {
	Index        int        `json:"index"`
	Delta        chunkDelta `json:"delta"`
	FinishReason *string    `json:"finish_reason"`
}

type chunkDelta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}

type modelList struct {
	Object string      `json:"object"`
	Data   []modelInfo `json:"data"`
}

type modelInfo struct {
	ID          string `json:"id"`
	Object      string `json:"object"`
	Created     int64  `json:"created"`
	OwnedBy     string `json:"owned_by"`
	TaskType    string `json:"task_type"`
	AspectRatio string `json:"aspect_ratio"`
	Resolution  string `json:"resolution"`
	MaxImages   int    `json:"max_images"`
}

// apiError is the OpenAI-style error envelope.
type apiError struct {
	Error apiErrorBody `json:"error"`
}

type apiErrorBody struct {
	Message string  `json:"message"`
	Type    string  `json:"type"`
	Param   *string `json:"param"`
	Code    *string `json:"code"`
}

const (
	errTypeInvalidRequest = "invalid_request_error"
	errTypeAuthentication = "authentication_error"
	errTypeServer         = "server_error"
)

var dataImageRe = regexp.MustCompile(`^data:image/[^;]+;base64,(.+)$`)

// extractPromptAndImages pulls the prompt text and inline base64 images out of
// the last user message. Content may be a plain string or a list of typed
// parts; non-data-URL image references are ignored.
func extractPromptAndImages(messages []chatMessage) (string, []string) {
	var last *chatMessage
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			last = &messages[i]
			break
		}
	}
	if last == nil {
		return "", nil
	}

	var asString string
	if err := json.Unmarshal(last.Content, &asString); err == nil {
		return strings.TrimSpace(asString), nil
	}

	var parts []contentPart
	if err := json.Unmarshal(last.Content, &parts); err != nil {
		return "", nil
	}

	var texts []string
	var images []string
	for _, p := range parts {
		switch p.Type {
		case "text":
			if p.Text != "" {
				texts = append(texts, p.Text)
			}
		case "image_url":
			if m := dataImageRe.FindStringSubmatch(p.ImageURL.URL); m != nil {
				images = append(images, m[1])
			}
		}
	}
	return strings.TrimSpace(strings.Join(texts, "\n")), images
}
