// Package errors provides structured error handling with error codes for simple-rbac.
//
// This package standardizes error handling across all packages with typed error
// codes, structured error details, and automatic HTTP status code mapping.
//
// # Basic Usage
//
// Creating errors with codes:
//
//	import "github.com/tendant/simple-rbac/pkg/errors"
//
//	// Create a simple error
//	err := errors.New(errors.ErrCodeRoleNotFound, "role not found")
//
//	// Create error with formatted message
//	err := errors.Newf(errors.ErrCodeValueTooShort, "role name must have at least %d characters", 3)
//
//	// Wrap an existing error
//	err := errors.Wrap(dbErr, errors.ErrCodeInternal, "failed to query database")
//
// # Error Inspection
//
// Checking and extracting codes (works through wrapping):
//
//	if errors.IsCode(err, errors.ErrCodeSuperAdminExists) {
//		// a super admin user already exists
//	}
//
//	code := errors.GetCode(err)
//	status := errors.MapErrorCodeToHTTPStatus(code)
//
// # HTTP Mapping
//
// Validation and domain-rule violations map to 400, permission failures to
// 403, missing roles/users to 404, and id collisions to 409. Anything without
// a recognized code maps to 500.
package errors
