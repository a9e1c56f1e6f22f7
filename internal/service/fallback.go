package service

import "math/rand/v2"

// fallbackReplies are context-free supportive responses used when the
// completion backend fails or times out. They carry no personalization
// and never trigger crisis detection.
var fallbackReplies = []string{
	"I'm here with you. Take a moment to breathe, and tell me more whenever you're ready.",
	"Thank you for sharing that with me. I'm listening, even if I'm a little slow to respond right now.",
	"It sounds like there's a lot on your mind. Whatever you're feeling right now is okay.",
	"I'm having trouble finding the right words at the moment, but I'm still here. Would you like to keep going?",
	"Sometimes it helps just to put things into words. I'm glad you did.",
}

// FallbackReply picks one supportive response at random.
func FallbackReply() string {
	return fallbackReplies[rand.IntN(len(fallbackReplies))]
}
