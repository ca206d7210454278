// Package validator provides rule-based input validation.
//
// Rules are built eagerly and checked by Apply, which reports every failure
// at once as ValidationErrors:
//
//	err := validator.Apply(
//	    validator.RequiredString("recipient.id", in.Recipient.ID),
//	    validator.ValidEmail("recipient.email", in.Recipient.Email),
//	    validator.RequiredMap("data", in.Data),
//	)
//
// ValidationErrors matches ErrValidationFailed with errors.Is.
package validator
