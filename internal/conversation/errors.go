package conversation

import "errors"

var (
	// ErrConversationCompleted is returned when the lead is in a status the
	// bot no longer answers (manager, human stages, failure terminals).
	ErrConversationCompleted = errors.New("conversation: completed")
	// ErrGenerationFailed means the customer received the fallback apology.
	ErrGenerationFailed = errors.New("conversation: generation failed")
	ErrEmptyMessage     = errors.New("conversation: empty message")
)
