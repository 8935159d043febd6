package providers

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	jmespath "github.com/jmespath-community/go-jmespath"
	"github.com/xeipuuv/gojsonschema"
)

// responseShape describes a provider's success body: the JSON schema it must
// satisfy and the JMESPath expressions that locate the generated text and,
// on failures, the upstream error message.
type responseShape struct {
	schema    *gojsonschema.Schema
	textPath  string
	errorPath string
}

func mustShape(schema, textPath, errorPath string) *responseShape {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schema))
	if err != nil {
		panic(fmt.Sprintf("providers: invalid response schema: %v", err))
	}
	return &responseShape{schema: s, textPath: textPath, errorPath: errorPath}
}

// extract validates body and returns the generated text.
func (s *responseShape) extract(body []byte) (string, error) {
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return "", fmt.Errorf("response is not JSON: %w", err)
	}
	res, err := s.schema.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return "", fmt.Errorf("validate response: %w", err)
	}
	if !res.Valid() {
		msgs := make([]string, 0, len(res.Errors()))
		for _, e := range res.Errors() {
			msgs = append(msgs, e.String())
		}
		return "", fmt.Errorf("unexpected response shape: %s", strings.Join(msgs, "; "))
	}
	v, err := jmespath.Search(s.textPath, doc)
	if err != nil {
		return "", fmt.Errorf("search %q: %w", s.textPath, err)
	}
	text, ok := v.(string)
	if !ok {
		return "", errors.New("unexpected response shape: generated text is not a string")
	}
	return text, nil
}

// upstreamMessage returns the provider's error text from body, or fallback.
func (s *responseShape) upstreamMessage(body []byte, fallback string) string {
	var doc any
	if err := json.Unmarshal(body, &doc); err == nil {
		if v, err := jmespath.Search(s.errorPath, doc); err == nil {
			if msg, ok := v.(string); ok && msg != "" {
				return msg
			}
		}
	}
	if t := strings.TrimSpace(string(body)); t != "" && len(t) <= 200 {
		return t
	}
	return fallback
}
