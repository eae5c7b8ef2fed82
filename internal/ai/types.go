package ai

import (
	"encoding/json"
	"errors"
)

const (
	BlockText     = "text"
	BlockImageURL = "image_url"

	RoleUser = "user"
)

// ContentBlock is one typed element of a message's content.
type ContentBlock struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL carries an http(s) URL or a data URI.
type ImageURL struct {
	URL string `json:"url"`
}

func TextBlock(text string) ContentBlock { return ContentBlock{Type: BlockText, Text: text} }

func ImageBlock(url string) ContentBlock {
	return ContentBlock{Type: BlockImageURL, ImageURL: &ImageURL{URL: url}}
}

// ChatMessage is a user turn. Content serializes as a single block object
// when Single is set, otherwise as an array of blocks.
type ChatMessage struct {
	Role    string
	Content []ContentBlock
	Single  bool
}

type chatMessageWire struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

func (m ChatMessage) MarshalJSON() ([]byte, error) {
	var (
		content []byte
		err     error
	)
	if m.Single {
		if len(m.Content) != 1 {
			return nil, errors.New("single-block message must carry exactly one block")
		}
		content, err = json.Marshal(m.Content[0])
	} else {
		content, err = json.Marshal(m.Content)
	}
	if err != nil {
		return nil, err
	}
	return json.Marshal(chatMessageWire{Role: m.Role, Content: content})
}

func (m *ChatMessage) UnmarshalJSON(b []byte) error {
	var w chatMessageWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	m.Role = w.Role
	var one ContentBlock
	if err := json.Unmarshal(w.Content, &one); err == nil {
		m.Content = []ContentBlock{one}
		m.Single = true
		return nil
	}
	m.Single = false
	return json.Unmarshal(w.Content, &m.Content)
}

// ChatPayload is the chat-completions request body.
type ChatPayload struct {
	Model       string        `json:"model"`
	Stream      bool          `json:"stream"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature *float64      `json:"temperature,omitempty"`
	Messages    []ChatMessage `json:"messages"`
}

// Completion is the non-streaming chat-completions response.
type Completion struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Content returns choices[0].message.content, or "" when absent.
func (c *Completion) Content() string {
	if c == nil || len(c.Choices) == 0 {
		return ""
	}
	return c.Choices[0].Message.Content
}
