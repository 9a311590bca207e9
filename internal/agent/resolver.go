package agent

import (
	"context"

	"github.com/prodkit/assetq-go/internal/logging"
)

// resolve obtains the embedding vectors the intent asks for. The two
// generations are independent: either may fail without affecting the
// other, and a failed embedding leaves its vector nil — the search simply
// loses that dimension, the turn continues.
func (a *Agent) resolve(ctx context.Context, intent Intent, enhancedQuery string, image []byte) EmbeddingBundle {
	log := logging.FromContext(ctx)

	var bundle EmbeddingBundle
	if a.embedders == nil {
		return bundle
	}

	if intent.NeedsTextEmbedding {
		text, err := a.embedders.Text()
		if err == nil {
			vecs, embedErr := text.Embed(ctx, []string{enhancedQuery})
			if embedErr == nil && len(vecs) == 1 {
				bundle.Text = vecs[0]
			} else {
				err = embedErr
			}
		}
		if bundle.Text == nil {
			log.Warn("agent: text embedding unavailable", "error", err)
		}
	}

	if intent.NeedsVisualEmbedding {
		visual, err := a.embedders.Visual()
		if err == nil {
			if len(image) > 0 {
				// Search-by-example: the uploaded image wins over the
				// cross-modal text path.
				bundle.Visual, err = visual.EmbedImage(ctx, image)
			} else {
				bundle.Visual, err = visual.EmbedText(ctx, enhancedQuery)
			}
		}
		if bundle.Visual == nil {
			log.Warn("agent: visual embedding unavailable", "error", err)
		}
	}

	return bundle
}
