package domain

type CheckoutStep string

const (
	StepCollectingDetails    CheckoutStep = "COLLECTING_DETAILS"
	StepChoosingFulfillment  CheckoutStep = "CHOOSING_FULFILLMENT"
	StepComputingShipping    CheckoutStep = "COMPUTING_SHIPPING"
	StepChoosingPayment      CheckoutStep = "CHOOSING_PAYMENT"
	StepSubmitting           CheckoutStep = "SUBMITTING"
	StepRedirectingToGateway CheckoutStep = "REDIRECTING_TO_GATEWAY"
	StepConfirmed            CheckoutStep = "CONFIRMED"
	StepFailed               CheckoutStep = "FAILED"
)

var formSteps = []CheckoutStep{
	StepCollectingDetails,
	StepChoosingFulfillment,
	StepComputingShipping,
	StepChoosingPayment,
}

var transitions = map[CheckoutStep][]CheckoutStep{
	StepCollectingDetails:    formSteps,
	StepChoosingFulfillment:  formSteps,
	StepComputingShipping:    formSteps,
	StepChoosingPayment:      append(append([]CheckoutStep{}, formSteps...), StepSubmitting, StepRedirectingToGateway),
	StepSubmitting:           {StepConfirmed, StepFailed, StepChoosingPayment},
	StepRedirectingToGateway: {StepConfirmed, StepChoosingPayment},
	StepFailed:               {StepChoosingPayment},
}

// CanTransitionTo reports whether the wizard may move from one step to another.
func CanTransitionTo(from, to CheckoutStep) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func (s CheckoutStep) IsTerminal() bool {
	return s == StepConfirmed
}

// InFlight is true while a submission is waiting on the backend or gateway.
func (s CheckoutStep) InFlight() bool {
	return s == StepSubmitting || s == StepRedirectingToGateway
}

func (s CheckoutStep) String() string {
	return string(s)
}
