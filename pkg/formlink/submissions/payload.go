package submissions

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mikepea/formlink/pkg/formlink/models"
)

// Payload is the identity data a recipient submits through a link
type Payload struct {
	FirstName        string    `json:"first_name" form:"first_name" validate:"required,max=50"`
	MiddleName       *string   `json:"middle_name" form:"middle_name" validate:"omitempty,max=50"`
	LastName         string    `json:"last_name" form:"last_name" validate:"required,max=50"`
	EyeColor         string    `json:"eye_color" form:"eye_color" validate:"required,oneof=brown blue green hazel gray black"`
	HairColor        string    `json:"hair_color" form:"hair_color" validate:"required,oneof=black brown blonde red gray white"`
	Address          *string   `json:"address" form:"address" validate:"omitempty,max=200"`
	DateOfBirth      time.Time `json:"date_of_birth" form:"date_of_birth" time_format:"2006-01-02" validate:"required"`
	Height           float64   `json:"height" form:"height" validate:"required,gt=0"`
	Weight           float64   `json:"weight" form:"weight" validate:"required,gt=0"`
	Gender           string    `json:"gender" form:"gender" validate:"required,oneof=male female other"`
	State            string    `json:"state" form:"state" validate:"required,us_state"`
	City             string    `json:"city" form:"city" validate:"required,max=100"`
	ZipCode          string    `json:"zip_code" form:"zip_code" validate:"required,max=10"`
	OrganDonor       bool      `json:"organ_donor" form:"organ_donor"`
	CorrectiveLenses bool      `json:"corrective_lenses" form:"corrective_lenses"`
}

var usStates = map[string]bool{
	"AL": true, "AK": true, "AZ": true, "AR": true, "CA": true, "CO": true, "CT": true,
	"DE": true, "FL": true, "GA": true, "HI": true, "ID": true, "IL": true, "IN": true,
	"IA": true, "KS": true, "KY": true, "LA": true, "ME": true, "MD": true, "MA": true,
	"MI": true, "MN": true, "MS": true, "MO": true, "MT": true, "NE": true, "NV": true,
	"NH": true, "NJ": true, "NM": true, "NY": true, "NC": true, "ND": true, "OH": true,
	"OK": true, "OR": true, "PA": true, "RI": true, "SC": true, "SD": true, "TN": true,
	"TX": true, "UT": true, "VT": true, "VA": true, "WA": true, "WV": true, "WI": true,
	"WY": true,
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterValidation("us_state", func(fl validator.FieldLevel) bool {
		return usStates[fl.Field().String()]
	})
	return v
}

// Normalize trims whitespace and drops empty optional fields
func (p *Payload) Normalize() {
	p.FirstName = strings.TrimSpace(p.FirstName)
	p.LastName = strings.TrimSpace(p.LastName)
	p.EyeColor = strings.ToLower(strings.TrimSpace(p.EyeColor))
	p.HairColor = strings.ToLower(strings.TrimSpace(p.HairColor))
	p.Gender = strings.ToLower(strings.TrimSpace(p.Gender))
	p.State = strings.ToUpper(strings.TrimSpace(p.State))
	p.City = strings.TrimSpace(p.City)
	p.ZipCode = strings.TrimSpace(p.ZipCode)
	p.MiddleName = trimPtr(p.MiddleName)
	p.Address = trimPtr(p.Address)
}

// Validate checks the payload and returns a *ValidationError describing
// every failing field
func (p Payload) Validate() error {
	err := validate.Struct(p)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		fields := make([]string, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			fields = append(fields, fmt.Sprintf("%s %s", fe.Field(), fe.Tag()))
		}
		return &ValidationError{Fields: fields}
	}
	return fmt.Errorf("%w: %v", ErrValidation, err)
}

// toForm builds the record persisted for this payload
func (p Payload) toForm(id string, link models.Link, submittedAt time.Time) models.Form {
	return models.Form{
		ID:               id,
		FirstName:        p.FirstName,
		MiddleName:       p.MiddleName,
		LastName:         p.LastName,
		EyeColor:         p.EyeColor,
		HairColor:        p.HairColor,
		Address:          p.Address,
		DateOfBirth:      p.DateOfBirth.UTC(),
		Height:           p.Height,
		Weight:           p.Weight,
		Gender:           p.Gender,
		State:            p.State,
		City:             p.City,
		ZipCode:          p.ZipCode,
		OrganDonor:       p.OrganDonor,
		CorrectiveLenses: p.CorrectiveLenses,
		GroupID:          link.GroupID,
		LinkID:           link.ID,
		SubmittedAt:      submittedAt.UTC(),
	}
}

func trimPtr(v *string) *string {
	if v == nil {
		return nil
	}
	s := strings.TrimSpace(*v)
	if s == "" {
		return nil
	}
	return &s
}
