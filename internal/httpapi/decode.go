package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	goerrors "github.com/goliatone/go-errors"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// decodeJSON reads exactly one JSON object into dst and validates it.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return invalidBody("request body is required")
		}
		return invalidBody(err.Error())
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return invalidBody("unexpected data after JSON body")
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]goerrors.FieldError, 0, len(verrs))
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msg := fmt.Sprintf("failed %q", fe.Tag())
				fields = append(fields, goerrors.FieldError{Field: fe.Field(), Message: msg})
				msgs = append(msgs, fe.Field()+" "+msg)
			}
			return goerrors.NewValidation("validation failed: "+strings.Join(msgs, "; "), fields...).
				WithCode(http.StatusBadRequest).
				WithTextCode(codeValidation)
		}
		return invalidBody(err.Error())
	}
	return nil
}

func invalidBody(msg string) error {
	return goerrors.New(msg, goerrors.CategoryBadInput).
		WithCode(http.StatusBadRequest).
		WithTextCode(codeBadInput)
}
