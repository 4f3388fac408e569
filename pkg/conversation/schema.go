package conversation

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/invopop/jsonschema"
	"github.com/pkg/errors"
	"github.com/xeipuuv/gojsonschema"
)

var (
	documentSchemaOnce sync.Once
	documentSchema     []byte
	documentSchemaErr  error
)

// DocumentSchema returns the JSON schema of the exchange document. Unknown
// properties are allowed so that documents written by richer renderers
// (selection flags, drag state) still validate.
func DocumentSchema() ([]byte, error) {
	documentSchemaOnce.Do(func() {
		reflector := jsonschema.Reflector{
			AllowAdditionalProperties:  true,
			RequiredFromJSONSchemaTags: true,
			DoNotReference:             true,
		}
		schema := reflector.Reflect(&Document{})
		schema.Version = ""
		documentSchema, documentSchemaErr = json.MarshalIndent(schema, "", "  ")
	})
	return documentSchema, documentSchemaErr
}

// ValidateDocument checks data against DocumentSchema. Validation failures
// wrap ErrInvalidDocument and list every violation.
func ValidateDocument(data []byte) error {
	schema, err := DocumentSchema()
	if err != nil {
		return errors.Wrap(err, "could not build document schema")
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(schema),
		gojsonschema.NewBytesLoader(data),
	)
	if err != nil {
		return errors.Wrap(ErrInvalidDocument, err.Error())
	}
	if !result.Valid() {
		descriptions := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			descriptions = append(descriptions, desc.String())
		}
		return errors.Wrap(ErrInvalidDocument, strings.Join(descriptions, "; "))
	}
	return nil
}
