package dto

// OutcomeKind classifies the result of a registration engine operation.
type OutcomeKind string

// Outcome kinds. Every expected condition is reported through one of these;
// the engine never surfaces raw errors to its callers.
const (
	OutcomeSuccess           OutcomeKind = "SUCCESS"
	OutcomeNotFound          OutcomeKind = "NOT_FOUND"
	OutcomeIneligible        OutcomeKind = "INELIGIBLE"
	OutcomeFull              OutcomeKind = "FULL"
	OutcomeAlreadyRegistered OutcomeKind = "ALREADY_REGISTERED"
	OutcomeInternal          OutcomeKind = "INTERNAL"
)

// RegistrationOutcome is the structured result of register/unregister calls:
// a success flag, a human-readable message naming the specific reason, and
// the view the caller should navigate to next.
type RegistrationOutcome struct {
	Kind     OutcomeKind `json:"kind"`
	Success  bool        `json:"success"`
	Message  string      `json:"message"`
	Redirect string      `json:"redirect"`
}

// NewOutcome builds an outcome, deriving the success flag from the kind.
func NewOutcome(kind OutcomeKind, message, redirect string) *RegistrationOutcome {
	return &RegistrationOutcome{
		Kind:     kind,
		Success:  kind == OutcomeSuccess,
		Message:  message,
		Redirect: redirect,
	}
}
