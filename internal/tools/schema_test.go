package tools

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSchemaValidate(t *testing.T) {
	schema := Schema{
		Required: []string{"doc_path", "doc_type"},
		Properties: map[string]Property{
			"doc_path": {Type: "string"},
			"doc_type": {Type: "string", Enum: []string{"emails", "writing", "memos", "chat", "other"}},
			"context":  {Type: "string", Nullable: true},
			"approve":  {Type: "boolean"},
		},
	}

	t.Run("valid call", func(t *testing.T) {
		err := schema.Validate(map[string]any{
			"doc_path": "/training/emails-2024",
			"doc_type": "emails",
			"context":  nil,
			"approve":  true,
		})
		assert.NoError(t, err)
	})

	t.Run("missing required field", func(t *testing.T) {
		err := schema.Validate(map[string]any{"doc_path": "/x"})
		assert.True(t, errors.Is(err, ErrMissingRequiredArg))
	})

	t.Run("enum out of domain", func(t *testing.T) {
		err := schema.Validate(map[string]any{
			"doc_path": "/x",
			"doc_type": "spreadsheets",
		})
		assert.True(t, errors.Is(err, ErrInvalidEnumValue))
	})

	t.Run("null in non-nullable field", func(t *testing.T) {
		err := schema.Validate(map[string]any{
			"doc_path": nil,
			"doc_type": "emails",
		})
		assert.True(t, errors.Is(err, ErrNullArgument))
	})

	t.Run("null allowed in nullable field", func(t *testing.T) {
		err := schema.Validate(map[string]any{
			"doc_path": "/x",
			"doc_type": "emails",
			"context":  nil,
		})
		assert.NoError(t, err)
	})

	t.Run("wrong primitive type", func(t *testing.T) {
		err := schema.Validate(map[string]any{
			"doc_path": "/x",
			"doc_type": "emails",
			"approve":  "yes",
		})
		assert.True(t, errors.Is(err, ErrInvalidArgType))
	})

	t.Run("unknown args pass through", func(t *testing.T) {
		err := schema.Validate(map[string]any{
			"doc_path": "/x",
			"doc_type": "emails",
			"extra":    42,
		})
		assert.NoError(t, err)
	})
}
