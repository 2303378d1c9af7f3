// internal/config/validation.go - Struct validation with detailed messages
package config

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/valpere/AdScrapexter/internal/errors"
)

var (
	columnRe   = regexp.MustCompile(`^[A-Za-z]{1,3}$`)
	sqlIdentRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

	validateOnce sync.Once
	validate     *validator.Validate
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		_ = validate.RegisterValidation("column", func(fl validator.FieldLevel) bool {
			return columnRe.MatchString(fl.Field().String())
		})
		_ = validate.RegisterValidation("sqlident", func(fl validator.FieldLevel) bool {
			return sqlIdentRe.MatchString(fl.Field().String())
		})
	})
	return validate
}

// ValidationError represents a single configuration problem
type ValidationError struct {
	Field   string `json:"field"`
	Value   string `json:"value"`
	Message string `json:"message"`
}

// Error implements the error interface
func (ve ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", ve.Field, ve.Message)
}

// ValidateWithDetails returns every problem found in the configuration
func (c *Config) ValidateWithDetails() []ValidationError {
	var out []ValidationError

	if err := getValidator().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				out = append(out, ValidationError{
					Field:   strings.TrimPrefix(fe.Namespace(), "Config."),
					Value:   fmt.Sprintf("%v", fe.Value()),
					Message: describe(fe),
				})
			}
		} else {
			out = append(out, ValidationError{Field: "config", Message: err.Error()})
		}
	}

	if c.Continuation.Backend == "github" && c.Continuation.Repository != "" &&
		!strings.Contains(c.Continuation.Repository, "/") {
		out = append(out, ValidationError{
			Field:   "Continuation.Repository",
			Value:   c.Continuation.Repository,
			Message: "must be in owner/repo form",
		})
	}

	if cols := c.Layout.letters(); hasDuplicate(cols) {
		out = append(out, ValidationError{
			Field:   "Layout",
			Value:   strings.Join(cols, ","),
			Message: "columns must be distinct",
		})
	}

	return out
}

// Validate returns a single KindConfig error summarizing all problems
func (c *Config) Validate() error {
	problems := c.ValidateWithDetails()
	if len(problems) == 0 {
		return nil
	}
	msgs := make([]string, len(problems))
	for i, p := range problems {
		msgs[i] = p.Error()
	}
	return errors.Newf(errors.KindConfig, "invalid configuration: %s", strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_if":
		return "is required"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "min", "gte":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "gtefield":
		return "must not be less than " + fe.Param()
	case "column":
		return "must be a column letter such as B"
	case "sqlident":
		return "must be a plain SQL identifier"
	case "url":
		return "must be a valid URL"
	}
	return "failed " + fe.Tag() + " check"
}

func (l LayoutConfig) letters() []string {
	cols := []string{l.URL, l.Link, l.Name, l.Video}
	if l.Advertiser != "" {
		cols = append(cols, l.Advertiser)
	}
	for i := range cols {
		cols[i] = strings.ToUpper(cols[i])
	}
	return cols
}

func hasDuplicate(items []string) bool {
	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		if _, ok := seen[it]; ok {
			return true
		}
		seen[it] = struct{}{}
	}
	return false
}

// ColumnIndex converts a column letter (A, B, ..., AA) to a 0-based index.
// It returns -1 for an empty or malformed letter.
func ColumnIndex(letter string) int {
	letter = strings.ToUpper(strings.TrimSpace(letter))
	if !columnRe.MatchString(letter) {
		return -1
	}
	idx := 0
	for _, r := range letter {
		idx = idx*26 + int(r-'A') + 1
	}
	return idx - 1
}

// Columns resolves the layout to 0-based indexes. Advertiser is -1 when unset.
func (l LayoutConfig) Columns() (advertiser, url, link, name, video int) {
	return ColumnIndex(l.Advertiser), ColumnIndex(l.URL), ColumnIndex(l.Link), ColumnIndex(l.Name), ColumnIndex(l.Video)
}

// Width is the number of leading columns a store must expose to cover the layout
func (l LayoutConfig) Width() int {
	w := 0
	for _, letter := range l.letters() {
		if idx := ColumnIndex(letter); idx+1 > w {
			w = idx + 1
		}
	}
	return w
}
