package tools

import (
	"fmt"
	"strings"

	"github.com/local/imagetools/internal/ai"
	"github.com/local/imagetools/internal/imagerender"
)

// Tool names one of the supported operations.
type Tool string

const (
	ToolCompress         Tool = "compress"
	ToolGenerate         Tool = "generate"
	ToolRecognize        Tool = "recognize"
	ToolRemoveBackground Tool = "remove_background"
)

// ParseTool accepts the canonical names plus the hyphenated form.
func ParseTool(s string) (Tool, error) {
	switch Tool(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")) {
	case ToolCompress:
		return ToolCompress, nil
	case ToolGenerate:
		return ToolGenerate, nil
	case ToolRecognize:
		return ToolRecognize, nil
	case ToolRemoveBackground:
		return ToolRemoveBackground, nil
	}
	return "", &ai.InvalidRequest{Message: fmt.Sprintf("unknown tool %q", s)}
}

// Visitor handles every Request variant. Adding a variant adds a method here,
// so every implementation stops compiling until it handles the new tool.
type Visitor interface {
	VisitCompress(Compress) error
	VisitGenerate(Generate) error
	VisitRecognize(Recognize) error
	VisitRemoveBackground(RemoveBackground) error
}

// Request is a tool invocation. The set of variants is closed.
type Request interface {
	Tool() Tool
	Validate() error
	Accept(Visitor) error
	sealed()
}

// Compress shrinks an image locally.
type Compress struct {
	Asset  imagerender.Asset
	Config imagerender.Config
}

// Generate asks the remote model to draw an image from a prompt.
type Generate struct {
	Prompt string
}

// Recognize asks the remote model to describe an image.
type Recognize struct {
	Asset imagerender.Asset
}

// RemoveBackground asks the remote model to cut out the subject of an image.
type RemoveBackground struct {
	Asset imagerender.Asset
}

func (Compress) Tool() Tool         { return ToolCompress }
func (Generate) Tool() Tool         { return ToolGenerate }
func (Recognize) Tool() Tool        { return ToolRecognize }
func (RemoveBackground) Tool() Tool { return ToolRemoveBackground }

func (Compress) sealed()         {}
func (Generate) sealed()         {}
func (Recognize) sealed()        {}
func (RemoveBackground) sealed() {}

func (c Compress) Accept(v Visitor) error         { return v.VisitCompress(c) }
func (g Generate) Accept(v Visitor) error         { return v.VisitGenerate(g) }
func (r Recognize) Accept(v Visitor) error        { return v.VisitRecognize(r) }
func (r RemoveBackground) Accept(v Visitor) error { return v.VisitRemoveBackground(r) }

func (c Compress) Validate() error {
	if c.Asset.IsZero() {
		return &ai.InvalidRequest{Message: "compress requires an image"}
	}
	return c.Config.Validate()
}

func (g Generate) Validate() error {
	if strings.TrimSpace(g.Prompt) == "" {
		return &ai.InvalidRequest{Message: "generate requires a prompt"}
	}
	return nil
}

func (r Recognize) Validate() error {
	if r.Asset.IsZero() {
		return &ai.InvalidRequest{Message: "recognize requires an image"}
	}
	return nil
}

func (r RemoveBackground) Validate() error {
	if r.Asset.IsZero() {
		return &ai.InvalidRequest{Message: "remove background requires an image"}
	}
	return nil
}
