package cases

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"

	"github.com/staffhub/backend/core"
)

type (
	studentFields struct {
		StudentID  string `mapstructure:"studentId" json:"studentId" validate:"required,notblank"`
		Surname    string `mapstructure:"surname" json:"surname" validate:"required,notblank"`
		GivenNames string `mapstructure:"givenNames" json:"givenNames" validate:"required,notblank"`
		DOB        string `mapstructure:"dob" json:"dob"`
	}

	staffFields struct {
		StaffID string `mapstructure:"staffId" json:"staffId" validate:"required,notblank"`
		Surname string `mapstructure:"surname" json:"surname" validate:"required,notblank"`
		Email   string `mapstructure:"email" json:"email"`
	}

	enrolmentFields struct {
		StudentID string `mapstructure:"studentId" json:"studentId" validate:"required,notblank"`
		ClassCode string `mapstructure:"classCode" json:"classCode" validate:"required,notblank"`
	}

	parentFields struct {
		ParentID  string `mapstructure:"parentId" json:"parentId" validate:"required,notblank"`
		StudentID string `mapstructure:"studentId" json:"studentId" validate:"required,notblank"`
		Email     string `mapstructure:"email" json:"email"`
	}

	homeGroupFields struct {
		Code string `mapstructure:"homeGroupCode" json:"homeGroupCode" validate:"required,notblank"`
	}

	houseFields struct {
		Code string `mapstructure:"houseCode" json:"houseCode" validate:"required,notblank"`
	}
)

// messages of the identifying fields, per entity
var missingFieldMessages = map[Entity]map[string]string{
	EntityStudent: {
		"studentId":  "Student missing ID",
		"surname":    "Student missing surname",
		"givenNames": "Student missing given names",
	},
	EntityStaff: {
		"staffId": "Staff missing ID",
		"surname": "Staff missing surname",
	},
	EntityEnrolment: {
		"studentId": "Enrolment missing student ID",
		"classCode": "Enrolment missing class code",
	},
	EntityParent: {
		"parentId":  "Parent missing ID",
		"studentId": "Parent missing student ID",
	},
	EntityHomeGroup: {"homeGroupCode": "Home group missing code"},
	EntityHouse:     {"houseCode": "House missing code"},
}

// Validator rejects records missing an identifying field. Other anomalies are only logged.
type Validator struct {
	validate *validator.Validate
	logger   core.Logger
}

func NewValidator(validate *validator.Validate, logger core.Logger) *Validator {
	return &Validator{validate: validate, logger: logger}
}

func (v *Validator) check(entity Entity, f Fields, dst interface{}) error {
	if err := mapstructure.Decode(map[string]string(f), dst); err != nil {
		return errors.Wrap(err, "decoding fields")
	}
	err := v.validate.Struct(dst)
	if err == nil {
		return nil
	}
	vErrs, ok := err.(validator.ValidationErrors)
	if !ok || len(vErrs) == 0 {
		return errors.Wrap(err, "validating fields")
	}
	field := vErrs[0].Field()
	msg, ok := missingFieldMessages[entity][field]
	if !ok {
		msg = fmt.Sprintf("%s missing %s", entity.Label(), field)
	}
	return core.NewValidationError(errors.New(msg), core.FieldError{Field: field, Error: msg})
}

func (v *Validator) ValidateStudent(f Fields) error {
	var flds studentFields
	if err := v.check(EntityStudent, f, &flds); err != nil {
		return err
	}
	if flds.DOB != "" && !ParseDate(flds.DOB).Valid {
		v.logger.Warn(fmt.Sprintf("student %s: invalid date of birth %q", flds.StudentID, flds.DOB))
	}
	return nil
}

func (v *Validator) ValidateStaff(f Fields) error {
	var flds staffFields
	if err := v.check(EntityStaff, f, &flds); err != nil {
		return err
	}
	v.warnEmail("staff", flds.StaffID, flds.Email)
	return nil
}

func (v *Validator) ValidateEnrolment(f Fields) error {
	var flds enrolmentFields
	return v.check(EntityEnrolment, f, &flds)
}

func (v *Validator) ValidateParent(f Fields) error {
	var flds parentFields
	if err := v.check(EntityParent, f, &flds); err != nil {
		return err
	}
	v.warnEmail("parent", flds.ParentID, flds.Email)
	return nil
}

func (v *Validator) ValidateHomeGroup(f Fields) error {
	var flds homeGroupFields
	return v.check(EntityHomeGroup, f, &flds)
}

func (v *Validator) ValidateHouse(f Fields) error {
	var flds houseFields
	return v.check(EntityHouse, f, &flds)
}

func (v *Validator) warnEmail(kind, id, email string) {
	if email = core.CleanString(email); email == "" {
		return
	}
	if err := v.validate.Var(email, "email"); err != nil {
		v.logger.Warn(fmt.Sprintf("%s %s: invalid email format %q", kind, id, email))
	}
}

// InvalidRecord is a record rejected by its validator.
type InvalidRecord[T any] struct {
	Record T      `json:"record"`
	Error  string `json:"error"`
}

// ValidationOutcome partitions a batch: every record lands in exactly one of Valid or Invalid.
type ValidationOutcome[T any] struct {
	Valid   []T                `json:"valid"`
	Invalid []InvalidRecord[T] `json:"invalid"`
}

// ValidateBatch validates each record on its own; one failing (or panicking) validator
// only rejects its own record.
func ValidateBatch[T any](records []T, validate func(T) error) ValidationOutcome[T] {
	out := ValidationOutcome[T]{
		Valid:   make([]T, 0, len(records)),
		Invalid: make([]InvalidRecord[T], 0),
	}
	for _, rec := range records {
		if err := safeValidate(rec, validate); err != nil {
			msg := err.Error()
			if msg == "" {
				msg = "Validation failed"
			}
			out.Invalid = append(out.Invalid, InvalidRecord[T]{Record: rec, Error: msg})
			continue
		}
		out.Valid = append(out.Valid, rec)
	}
	return out
}

func safeValidate[T any](rec T, validate func(T) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("validator panic: %v", r)
		}
	}()
	return validate(rec)
}
