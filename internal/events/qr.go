package events

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image/png"
	"strings"

	"github.com/skip2/go-qrcode"
)

// QRSize is the edge length in pixels of generated ticket codes.
const QRSize = 256

// TicketContent is the text encoded in a locally generated ticket code.
func TicketContent(eventID, userID, registrationID string) string {
	return eventID + ":" + userID + ":" + registrationID
}

// decodeStoredQR returns the PNG carried base64-encoded in a registration,
// if it is one.
func decodeStoredQR(stored string) ([]byte, bool) {
	if stored == "" {
		return nil, false
	}
	raw, err := base64.StdEncoding.DecodeString(stored)
	if err != nil {
		return nil, false
	}
	if _, err := png.DecodeConfig(bytes.NewReader(raw)); err != nil {
		return nil, false
	}
	return raw, true
}

// EncodeQR renders content as a PNG QR code.
func EncodeQR(content string) ([]byte, error) {
	qr, err := qrcode.New(content, qrcode.Medium)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}
	return qr.PNG(QRSize)
}

// RenderQR converts content to a compact text QR code using Unicode
// half-block characters. Two bitmap rows become one terminal line.
func RenderQR(content string) (string, error) {
	qr, err := qrcode.New(content, qrcode.Low)
	if err != nil {
		return "", fmt.Errorf("encode qr: %w", err)
	}

	bitmap := qr.Bitmap()
	var sb strings.Builder
	for y := 0; y < len(bitmap); y += 2 {
		sb.WriteString("  ")
		for x := range bitmap[y] {
			top := bitmap[y][x]
			bot := y+1 < len(bitmap) && bitmap[y+1][x]
			switch {
			case top && bot:
				sb.WriteRune('█')
			case top:
				sb.WriteRune('▀')
			case bot:
				sb.WriteRune('▄')
			default:
				sb.WriteRune(' ')
			}
		}
		sb.WriteRune('\n')
	}
	return sb.String(), nil
}
