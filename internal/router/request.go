package router

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/allaspectsdev/llmgate/internal/provider"
)

// Request is a chat completion as submitted by a caller.
type Request struct {
	Messages    []provider.Message `json:"messages" validate:"required,min=1,dive"`
	Model       string             `json:"model"`
	MaxTokens   int                `json:"maxTokens" validate:"gt=0"`
	Temperature float64            `json:"temperature" validate:"gte=0,lte=2"`
}

// Result is a successful completion.
type Result struct {
	Text       string  `json:"text"`
	ProviderID string  `json:"providerId"`
	TokensUsed int     `json:"tokensUsed"`
	Cost       float64 `json:"cost"`
	Cached     bool    `json:"cached"`
	RequestID  string  `json:"requestId,omitempty"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report wire names (messages[0].content) rather than Go field names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// normalize validates req and fills in defaults. It returns an
// InvalidRequest error describing every violated rule.
func normalize(req *Request) error {
	if err := validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return newError(KindInvalidRequest, "%v", err)
		}
		problems := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			problems = append(problems, describe(fe))
		}
		return newError(KindInvalidRequest, "%s", strings.Join(problems, "; "))
	}

	if strings.TrimSpace(req.Model) == "" {
		req.Model = provider.AutoModel
	}
	return nil
}

func describe(fe validator.FieldError) string {
	field := fe.Namespace()
	// Drop the leading struct name ("Request.").
	if i := strings.IndexByte(field, '.'); i >= 0 {
		field = field[i+1:]
	}
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "min":
		return field + " must not be empty"
	case "gt":
		return field + " must be greater than " + fe.Param()
	case "gte":
		return field + " must be at least " + fe.Param()
	case "lte":
		return field + " must be at most " + fe.Param()
	default:
		return field + " failed " + fe.Tag()
	}
}
