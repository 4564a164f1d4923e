// Package messaging defines the pluggable message delivery abstraction and
// its Twilio and direct-WhatsApp implementations.
package messaging

import (
	"context"
	"errors"
	"regexp"
	"time"

	"github.com/PalcoLivre/StageLink/internal/models"
)

// Channel defaults shared by the service implementations.
const (
	DefaultChannelBufferSize = 100
	DefaultChannelTimeout    = 5 * time.Second
)

// ErrServiceStopped is returned by send operations after Stop.
var ErrServiceStopped = errors.New("messaging service stopped")

// phoneNumberRegex strips everything but digits during canonicalization.
var phoneNumberRegex = regexp.MustCompile(`[^0-9]`)

// Service is the message delivery abstraction the rest of the system depends
// on: send outbound, surface inbound as events.
type Service interface {
	// ValidateAndCanonicalizeRecipient validates and canonicalizes a
	// recipient identifier per the backend's rules.
	ValidateAndCanonicalizeRecipient(recipient string) (string, error)

	// SendMessage sends a message to a recipient.
	SendMessage(ctx context.Context, to string, body string) error

	// Start begins any background processing (e.g. event listeners).
	Start(ctx context.Context) error

	// Stop stops background processing and cleans up resources.
	Stop() error

	// Responses returns a channel of inbound messages.
	Responses() <-chan models.Response
}
