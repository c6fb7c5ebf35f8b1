package dcl

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func paramsValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Validate returns an error wrapping ErrInvalidConfiguration when p cannot
// drive a run.
func (p BondParameters) Validate() error {
	if !p.Frequency.Valid() {
		return fmt.Errorf("%w: unknown frequency %d", ErrInvalidConfiguration, int(p.Frequency))
	}
	if p.LeverageFloor >= p.LeverageCeiling {
		return fmt.Errorf("%w: leverage floor %.4f must be below ceiling %.4f",
			ErrInvalidConfiguration, p.LeverageFloor, p.LeverageCeiling)
	}
	if !(p.ConversionPrice > 0) {
		return fmt.Errorf("%w: conversion price must be positive, got %v", ErrInvalidConfiguration, p.ConversionPrice)
	}

	if err := paramsValidator().Struct(p); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %s=%s", fe.Field(), fe.Tag(), fe.Param()))
			}
			return fmt.Errorf("%w: %s", ErrInvalidConfiguration, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
	}
	return nil
}

// PeriodsPerYear is the coupon count per year, zero when rebalancing is off.
func (p BondParameters) PeriodsPerYear() int {
	return int(p.Frequency)
}
