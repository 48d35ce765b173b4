package prompts

// EmptyResponseNudge is injected when the model returns no content
// after its tool calls settle, giving it one more chance to answer.
const EmptyResponseNudge = "You executed tool calls but did not provide a response to the user. Please respond now."

// EmptyResponseFallback is the user-facing answer when the model
// produces no content even after being nudged, including when the
// iteration bound is exhausted.
const EmptyResponseFallback = "I gathered the data but wasn't able to compose a response. Please try again."
