// Package hds implements Adobe HTTP Dynamic Streaming on top of the shared
// segment pipeline: an F4M manifest names the renditions, a binary bootstrap
// box enumerates their fragments, and the fragments' media payloads are
// relayed as one FLV byte stream.
package hds

import (
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"strings"
)

// Manifest is a parsed F4M document.
type Manifest struct {
	ID         string          `xml:"id"`
	StreamType string          `xml:"streamType"`
	Duration   float64         `xml:"duration"`
	BaseURL    string          `xml:"baseURL"`
	Media      []Media         `xml:"media"`
	Bootstraps []BootstrapInfo `xml:"bootstrapInfo"`
}

// ParseManifest decodes an F4M document.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := xml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing f4m manifest: %w", err)
	}
	if len(m.Media) == 0 {
		return nil, fmt.Errorf("f4m manifest has no media entries")
	}
	return &m, nil
}

// Live reports whether the manifest declares a live presentation.
func (m *Manifest) Live() bool {
	return strings.EqualFold(strings.TrimSpace(m.StreamType), "live")
}

// BootstrapInfo resolves the bootstrap a media entry points at. A media entry
// without an explicit id takes the manifest's first one.
func (m *Manifest) BootstrapInfo(id string) (*BootstrapInfo, error) {
	if id == "" && len(m.Bootstraps) > 0 {
		return &m.Bootstraps[0], nil
	}
	for i := range m.Bootstraps {
		if m.Bootstraps[i].ID == id {
			return &m.Bootstraps[i], nil
		}
	}
	return nil, fmt.Errorf("bootstrap info %q not found", id)
}

// Media is one rendition; URL is the prefix fragment URLs are built from.
type Media struct {
	URL             string `xml:"url,attr"`
	Bitrate         int    `xml:"bitrate,attr"`
	Width           int    `xml:"width,attr"`
	Height          int    `xml:"height,attr"`
	BootstrapInfoID string `xml:"bootstrapInfoId,attr"`
}

// Name labels the rendition: pixel height when declared ("720p"), otherwise
// the bitrate ("1500k"), otherwise "live".
func (m Media) Name() string {
	if m.Height > 0 {
		return fmt.Sprintf("%dp", m.Height)
	}
	if m.Bitrate > 0 {
		return fmt.Sprintf("%dk", m.Bitrate)
	}
	return "live"
}

// BootstrapInfo carries the fragment run tables, inline or by reference.
type BootstrapInfo struct {
	ID      string `xml:"id,attr"`
	Profile string `xml:"profile,attr"`
	URL     string `xml:"url,attr"`
	Inline  string `xml:",chardata"`
}

// Data decodes the inline base64 bootstrap payload.
func (b *BootstrapInfo) Data() ([]byte, error) {
	raw := strings.TrimSpace(b.Inline)
	if raw == "" {
		return nil, fmt.Errorf("bootstrap info %q has no inline data", b.ID)
	}
	return base64.StdEncoding.DecodeString(raw)
}
