package chat

import (
	"context"
	"errors"
	"fmt"

	"github.com/dietnavigator/nutrition-chat/internal/agent"
	"github.com/dietnavigator/nutrition-chat/internal/blob"
	"google.golang.org/genai"
)

// VisionPreamble is prepended to the prompt whenever an image is attached so
// the model works from the picture instead of claiming it has none.
const VisionPreamble = "You are a vision-capable assistant. An image is attached to this message. " +
	"Look at it carefully and use what you see to answer."

// emptyMessage stands in for an empty prompt; the runtime rejects empty messages.
const emptyMessage = " "

var errNoUploader = errors.New("upload image: no uploader configured")

// Builder turns a Request into the message sent to the runtime.
type Builder struct {
	uploader blob.Uploader
}

// NewBuilder returns a Builder staging images through uploader.
func NewBuilder(uploader blob.Uploader) *Builder {
	return &Builder{uploader: uploader}
}

// Build uploads the image, if any, and returns the runtime message. Image
// parts always precede the text part.
func (b *Builder) Build(ctx context.Context, req Request) (agent.Message, error) {
	if !req.HasImage() {
		if req.Prompt == "" {
			return agent.TextMessage(emptyMessage), nil
		}
		return agent.TextMessage(req.Prompt), nil
	}

	if b.uploader == nil {
		return agent.Message{}, errNoUploader
	}
	ref, err := b.uploader.Upload(ctx, req.Image.Data, req.Image.MIMEType)
	if err != nil {
		return agent.Message{}, fmt.Errorf("upload image: %w", err)
	}

	text := VisionPreamble
	if req.Prompt != "" {
		text = VisionPreamble + "\n\n" + req.Prompt
	}

	content := genai.NewContentFromParts([]*genai.Part{
		genai.NewPartFromURI(ref.URI, ref.MIMEType),
		genai.NewPartFromText(text),
	}, genai.RoleUser)
	return agent.ContentMessage(content), nil
}
