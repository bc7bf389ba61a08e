package betfair

import (
	"errors"
	"fmt"
)

// ErrNotLoggedIn is returned by betting calls made without a session, and
// matches API errors reporting an invalid or expired session.
var ErrNotLoggedIn = errors.New("betfair: not logged in")

// LoginError is returned when the identity service refuses a login.
type LoginError struct {
	Status string
}

func (e *LoginError) Error() string {
	return fmt.Sprintf("betfair: login failed: %s", e.Status)
}

// APIError is an exchange fault.
type APIError struct {
	StatusCode  int
	Code        string
	Details     string
	RequestUUID string
	Fault       string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("betfair: %s (status %d)", e.Code, e.StatusCode)
	if e.Details != "" {
		msg += ": " + e.Details
	}
	return msg
}

// Is reports session faults as ErrNotLoggedIn.
func (e *APIError) Is(target error) bool {
	if target != ErrNotLoggedIn {
		return false
	}
	switch e.Code {
	case "NO_SESSION", "INVALID_SESSION_INFORMATION":
		return true
	}
	return false
}

type faultBody struct {
	FaultCode   string `json:"faultcode"`
	FaultString string `json:"faultstring"`
	Detail      struct {
		APINGException struct {
			ErrorCode    string `json:"errorCode"`
			ErrorDetails string `json:"errorDetails"`
			RequestUUID  string `json:"requestUUID"`
		} `json:"APINGException"`
	} `json:"detail"`
}

func (f faultBody) apiError(status int) *APIError {
	exc := f.Detail.APINGException
	code := exc.ErrorCode
	if code == "" {
		code = f.FaultString
	}
	if code == "" {
		code = "UNKNOWN"
	}
	return &APIError{
		StatusCode:  status,
		Code:        code,
		Details:     exc.ErrorDetails,
		RequestUUID: exc.RequestUUID,
		Fault:       f.FaultCode,
	}
}
