package builder

import (
	"sync"

	"github.com/go-go-golems/arbor/pkg/conversation"
	"github.com/pkg/errors"
	"github.com/tiktoken-go/tokenizer"
)

// perMessageOverhead approximates the role and separator tokens chat
// formats add around every message.
const perMessageOverhead = 4

var (
	codecOnce sync.Once
	codec     tokenizer.Codec
	codecErr  error
)

func getCodec() (tokenizer.Codec, error) {
	codecOnce.Do(func() {
		codec, codecErr = tokenizer.Get(tokenizer.Cl100kBase)
	})
	return codec, codecErr
}

// CountTokens estimates the prompt size of messages with the cl100k_base
// encoding. Media parts are not counted.
func CountTokens(messages []*conversation.Message) (int, error) {
	c, err := getCodec()
	if err != nil {
		return 0, errors.Wrap(err, "could not load tokenizer")
	}

	total := 0
	for _, m := range messages {
		total += perMessageOverhead
		for _, p := range m.Parts {
			if p.Type != conversation.PartText && p.Type != conversation.PartReasoning {
				continue
			}
			ids, _, err := c.Encode(p.Text)
			if err != nil {
				return 0, errors.Wrap(err, "could not encode message")
			}
			total += len(ids)
		}
	}
	return total, nil
}
