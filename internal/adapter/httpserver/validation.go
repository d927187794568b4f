package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"regexp"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"github.com/fairyhunter13/sales-cert-evaluator/internal/domain"
)

// ValidationError describes one rejected request field.
type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

const maxBodyBytes = 1 << 20

var (
	vldOnce sync.Once
	vld     *validator.Validate
	idRe    = regexp.MustCompile(`^[a-zA-Z0-9_.:-]+$`)
)

func getValidator() *validator.Validate {
	vldOnce.Do(func() {
		vld = validator.New(validator.WithRequiredStructEnabled())
		vld.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
		_ = vld.RegisterValidation("resource_id", func(fl validator.FieldLevel) bool {
			return idRe.MatchString(fl.Field().String())
		})
	})
	return vld
}

// ValidateID checks a path identifier.
func ValidateID(field, id string) error {
	if id == "" || len(id) > 100 || !idRe.MatchString(id) {
		return fmt.Errorf("%w: %s must be 1-100 characters of [a-zA-Z0-9_.:-]", domain.ErrInvalidArgument, field)
	}
	return nil
}

// decodeJSON reads a size-capped JSON body into dst and validates it.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) ([]ValidationError, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return nil, fmt.Errorf("%w: body exceeds %d bytes", domain.ErrInvalidArgument, mbe.Limit)
		}
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty body", domain.ErrInvalidArgument)
		}
		return nil, fmt.Errorf("%w: invalid json: %v", domain.ErrInvalidArgument, err)
	}
	if err := getValidator().Struct(dst); err != nil {
		var ve validator.ValidationErrors
		if !errors.As(err, &ve) {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
		}
		out := make([]ValidationError, 0, len(ve))
		for _, fe := range ve {
			out = append(out, ValidationError{
				Field:   strings.TrimPrefix(fe.Namespace(), topLevel(fe.Namespace())),
				Code:    strings.ToUpper(fe.Tag()),
				Message: fmt.Sprintf("failed %q validation", fe.Tag()),
			})
		}
		return out, fmt.Errorf("%w: validation failed", domain.ErrInvalidArgument)
	}
	return nil, nil
}

// topLevel returns the struct name prefix of a validator namespace, dot included.
func topLevel(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[:i+1]
	}
	return ""
}

// SanitizeString drops NUL bytes, trims whitespace and repairs UTF-8.
func SanitizeString(input string) string {
	input = strings.ReplaceAll(input, "\x00", "")
	input = strings.TrimSpace(input)
	if !utf8.ValidString(input) {
		input = strings.ToValidUTF8(input, "")
	}
	return input
}

type tokenRequest struct {
	Username string `json:"username" validate:"required,max=100"`
	Password string `json:"password" validate:"required,max=200"`
}

type startRequest struct {
	Kind string `json:"kind" validate:"required,max=64,resource_id"`
}

type evaluateRequest struct {
	Content string `json:"content" validate:"required,max=200000"`
}

type scoreItem struct {
	Group   string  `json:"group" validate:"required,max=64"`
	Item    string  `json:"item" validate:"required,max=64"`
	Points  float64 `json:"points" validate:"gte=0"`
	Comment string  `json:"comment" validate:"max=2000"`
}

type scoresRequest struct {
	Items    []scoreItem `json:"items" validate:"required,min=1,max=200,dive"`
	Feedback string      `json:"feedback" validate:"max=5000"`
}

func (r scoresRequest) toDomain() []domain.ScoredItem {
	out := make([]domain.ScoredItem, 0, len(r.Items))
	for _, it := range r.Items {
		out = append(out, domain.ScoredItem{
			Key:     domain.ItemKey{GroupID: SanitizeString(it.Group), Item: SanitizeString(it.Item)},
			Points:  it.Points,
			Comment: SanitizeString(it.Comment),
		})
	}
	return out
}
