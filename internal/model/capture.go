package model

import (
	"fmt"
	"net/url"
	"time"
)

// VideoAsset is a finished cinematic capture of an item's model.
type VideoAsset struct {
	ID        string    `json:"id"`
	ItemID    string    `json:"item_id"`
	Filename  string    `json:"filename"`
	MIMEType  string    `json:"mime_type"`
	Size      int       `json:"size"`
	Digest    string    `json:"digest"`
	CreatedAt time.Time `json:"created_at"`

	Data []byte `json:"-"`
}

// CaptureFilename returns the suggested download name for a capture of the
// named item.
func CaptureFilename(itemName string) string {
	return fmt.Sprintf("objectory_%s.webm", FileSlug(itemName))
}

// ShareText is the pre-filled post text for sharing an item.
func ShareText(itemName string) string {
	return fmt.Sprintf("Check out my collection on Objectory: %s #3D #Objectory", itemName)
}

// ShareIntentURL returns the X compose URL pre-filled with text.
func ShareIntentURL(text string) string {
	return "https://twitter.com/intent/tweet?text=" + url.QueryEscape(text)
}
