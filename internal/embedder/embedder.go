// Package embedder provides clients for the two embedding spaces the asset
// database indexes: a semantic text space (matching the 384-dim
// metadata_embedding column) and a cross-modal CLIP space (matching the
// 512-dim visual_embedding column). All clients talk plain HTTP — no
// additional SDK dependencies are required.
package embedder

import "context"

// TextEmbedder converts text into semantic embeddings for the
// metadata_embedding column. Implementations are safe for concurrent use.
type TextEmbedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// VisualEmbedder converts text or image bytes into the shared CLIP space
// used by the visual_embedding column. Text and image inputs land in the
// same space, so a text description can be matched against indexed images.
type VisualEmbedder interface {
	// EmbedText embeds a natural-language description into the CLIP space.
	EmbedText(ctx context.Context, text string) ([]float32, error)
	// EmbedImage embeds raw image bytes into the CLIP space.
	EmbedImage(ctx context.Context, image []byte) ([]float32, error)
}
