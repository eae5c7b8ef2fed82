package ai

import "strings"

// Fixed instruction text sent with each tool. Upstream behavior depends on
// these exact strings.
const (
	GeneratePrefix         = "generate image: "
	RecognizePrompt        = "analyze this image and return a detailed recognition result"
	RemoveBackgroundPrompt = "remove the background of this image and return only the background-free image as Base64 or an online link"
)

// Default model per tool.
const (
	DefaultGenerateModel         = "deepseek-r1"
	DefaultRecognizeModel        = "gpt-4o"
	DefaultRemoveBackgroundModel = "gemini-2.5-flash-image"
)

// Models names the model used for each remote tool.
type Models struct {
	Generate         string
	Recognize        string
	RemoveBackground string
}

// BuilderOptions tunes the payloads produced by a Builder. Zero fields take
// the defaults.
type BuilderOptions struct {
	Models              Models
	GenerateMaxTokens   int
	GenerateTemperature float64
	VisionMaxTokens     int
}

// DefaultBuilderOptions returns the stock payload tuning.
func DefaultBuilderOptions() BuilderOptions {
	return BuilderOptions{
		Models: Models{
			Generate:         DefaultGenerateModel,
			Recognize:        DefaultRecognizeModel,
			RemoveBackground: DefaultRemoveBackgroundModel,
		},
		GenerateMaxTokens:   1688,
		GenerateTemperature: 0.5,
		VisionMaxTokens:     800,
	}
}

// Builder maps tool inputs to chat payloads. It performs no I/O.
type Builder struct {
	opts BuilderOptions
}

func NewBuilder(opts BuilderOptions) *Builder {
	def := DefaultBuilderOptions()
	if opts.Models.Generate == "" {
		opts.Models.Generate = def.Models.Generate
	}
	if opts.Models.Recognize == "" {
		opts.Models.Recognize = def.Models.Recognize
	}
	if opts.Models.RemoveBackground == "" {
		opts.Models.RemoveBackground = def.Models.RemoveBackground
	}
	if opts.GenerateMaxTokens <= 0 {
		opts.GenerateMaxTokens = def.GenerateMaxTokens
	}
	if opts.GenerateTemperature <= 0 {
		opts.GenerateTemperature = def.GenerateTemperature
	}
	if opts.VisionMaxTokens <= 0 {
		opts.VisionMaxTokens = def.VisionMaxTokens
	}
	return &Builder{opts: opts}
}

func (b *Builder) Models() Models { return b.opts.Models }

// Generate builds the streaming text-to-image payload.
func (b *Builder) Generate(prompt string) (ChatPayload, error) {
	if strings.TrimSpace(prompt) == "" {
		return ChatPayload{}, &InvalidRequest{Message: "generate requires a prompt"}
	}
	temp := b.opts.GenerateTemperature
	return ChatPayload{
		Model:       b.opts.Models.Generate,
		Stream:      true,
		MaxTokens:   b.opts.GenerateMaxTokens,
		Temperature: &temp,
		Messages: []ChatMessage{{
			Role:    RoleUser,
			Content: []ContentBlock{TextBlock(GeneratePrefix + prompt)},
			Single:  true,
		}},
	}, nil
}

// Recognize builds the image recognition payload. imageURL is a data URI or http(s) URL.
func (b *Builder) Recognize(imageURL string) (ChatPayload, error) {
	return b.vision("recognize", b.opts.Models.Recognize, RecognizePrompt, imageURL)
}

// RemoveBackground builds the background removal payload.
func (b *Builder) RemoveBackground(imageURL string) (ChatPayload, error) {
	return b.vision("remove background", b.opts.Models.RemoveBackground, RemoveBackgroundPrompt, imageURL)
}

func (b *Builder) vision(tool, model, instruction, imageURL string) (ChatPayload, error) {
	if imageURL == "" {
		return ChatPayload{}, &InvalidRequest{Message: tool + " requires an image"}
	}
	return ChatPayload{
		Model:     model,
		Stream:    false,
		MaxTokens: b.opts.VisionMaxTokens,
		Messages: []ChatMessage{{
			Role:    RoleUser,
			Content: []ContentBlock{TextBlock(instruction), ImageBlock(imageURL)},
		}},
	}, nil
}
