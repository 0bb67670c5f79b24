package credential

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/skip2/go-qrcode"
)

const DefaultQRSize = 256

type EventCredential struct {
	EventID string `json:"id"`
	Secret  Token  `json:"secret"`
}

// Bundle is what a check-in station scans: the user and one credential per open event.
type Bundle struct {
	UserID uuid.UUID         `json:"id"`
	Events []EventCredential `json:"events"`
}

// RenderQR encodes the bundle as JSON inside a PNG QR code.
func RenderQR(b Bundle, size int) ([]byte, error) {
	if size <= 0 {
		size = DefaultQRSize
	}
	if b.Events == nil {
		b.Events = []EventCredential{}
	}

	payload, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("failed to encode credential bundle: %w", err)
	}
	png, err := qrcode.Encode(string(payload), qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("failed to render QR code: %w", err)
	}
	return png, nil
}
