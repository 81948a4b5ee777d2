package service

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/hudoor/internal/models"
)

// NewValidator returns a validator with the attendance tags registered:
//
//	attendance_status  one of present, absent, truant, escape
//	iso_date           a calendar date in YYYY-MM-DD form
//	period             a class period between 1 and 8
func NewValidator() *validator.Validate {
	v := validator.New()
	registerValidations(v)
	return v
}

func registerValidations(v *validator.Validate) {
	_ = v.RegisterValidation("attendance_status", func(fl validator.FieldLevel) bool {
		return models.AttendanceStatus(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("iso_date", func(fl validator.FieldLevel) bool {
		return validDate(fl.Field().String())
	})
	_ = v.RegisterValidation("period", func(fl validator.FieldLevel) bool {
		p := fl.Field().Int()
		return p >= models.MinPeriod && p <= models.MaxPeriod
	})
}

func validDate(s string) bool {
	if len(s) != len(models.DateLayout) {
		return false
	}
	_, err := time.Parse(models.DateLayout, s)
	return err == nil
}
